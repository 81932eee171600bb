// Package redis provides Redis persistence implementation for approval workflows.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/dukex/approvals/pkg/persistence"
	redis "github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "approvals"

// Persistence implements the persistence.Store interface on Redis. Each record
// is a hash {revision, data}; a set per collection indexes the ids. Writes use
// WATCH/MULTI so a concurrent change of the key aborts the transaction.
type Persistence struct {
	client redis.UniversalClient
	prefix string
	logger *slog.Logger
}

// NewPersistence connects to the Redis server described by redisURL.
func NewPersistence(ctx context.Context, logger *slog.Logger, redisURL string) (*Persistence, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = client.Ping(pingCtx).Err()
	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return NewPersistenceWithClient(client, defaultKeyPrefix, logger), nil
}

// NewPersistenceWithClient wraps an existing client, namespacing keys under prefix.
func NewPersistenceWithClient(client redis.UniversalClient, prefix string, logger *slog.Logger) *Persistence {
	return &Persistence{
		client: client,
		prefix: prefix,
		logger: logger.With("module", "redis_persistence"),
	}
}

func (p *Persistence) key(collection persistence.Collection, id string) string {
	return p.prefix + ":" + string(collection) + ":" + id
}

func (p *Persistence) indexKey(collection persistence.Collection) string {
	return p.prefix + ":" + string(collection) + ":_ids"
}

func (p *Persistence) Get(ctx context.Context, collection persistence.Collection, id string) (*persistence.Record, error) {
	values, err := p.client.HGetAll(ctx, p.key(collection, id)).Result()
	if err != nil {
		return nil, persistence.NewRecordError("Get", collection, id, fmt.Errorf("failed to read record: %w", err))
	}

	return decode(collection, id, values)
}

func decode(collection persistence.Collection, id string, values map[string]string) (*persistence.Record, error) {
	if len(values) == 0 {
		return nil, persistence.NewRecordError("Get", collection, id, persistence.ErrRecordNotFound)
	}

	revision, err := strconv.ParseInt(values["revision"], 10, 64)
	if err != nil {
		return nil, persistence.NewRecordError("Get", collection, id, fmt.Errorf("corrupt revision: %w", err))
	}

	return &persistence.Record{ID: id, Revision: revision, Data: []byte(values["data"])}, nil
}

func (p *Persistence) Put(ctx context.Context, collection persistence.Collection, record *persistence.Record) error {
	if record.ID == "" {
		return persistence.NewRecordError("Put", collection, record.ID, persistence.ErrInvalidID)
	}

	key := p.key(collection, record.ID)

	err := p.client.Watch(ctx, func(tx *redis.Tx) error {
		var current int64

		stored, err := tx.HGet(ctx, key, "revision").Result()

		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			current, err = strconv.ParseInt(stored, 10, 64)
			if err != nil {
				return fmt.Errorf("corrupt revision: %w", err)
			}
		}

		if current != record.Revision {
			return persistence.ErrRevisionConflict
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, "revision", current+1, "data", record.Data)
			pipe.SAdd(ctx, p.indexKey(collection), record.ID)

			return nil
		})

		return err
	}, key)

	switch {
	case err == nil:
		record.Revision++

		return nil
	case errors.Is(err, persistence.ErrRevisionConflict), errors.Is(err, redis.TxFailedErr):
		return persistence.NewRecordError("Put", collection, record.ID, persistence.ErrRevisionConflict)
	default:
		return persistence.NewRecordError("Put", collection, record.ID, fmt.Errorf("failed to write record: %w", err))
	}
}

func (p *Persistence) List(ctx context.Context, collection persistence.Collection) ([]*persistence.Record, error) {
	ids, err := p.client.SMembers(ctx, p.indexKey(collection)).Result()
	if err != nil {
		return nil, persistence.NewRecordError("List", collection, "", fmt.Errorf("failed to read index: %w", err))
	}

	commands := make([]*redis.MapStringStringCmd, len(ids))

	_, err = p.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			commands[i] = pipe.HGetAll(ctx, p.key(collection, id))
		}

		return nil
	})
	if err != nil {
		return nil, persistence.NewRecordError("List", collection, "", fmt.Errorf("failed to read records: %w", err))
	}

	records := make([]*persistence.Record, 0, len(ids))

	for i, id := range ids {
		record, err := decode(collection, id, commands[i].Val())
		if err != nil {
			if persistence.IsNotFound(err) {
				p.logger.WarnContext(ctx, "Index references missing record", "collection", collection, "id", id)

				continue
			}

			return nil, err
		}

		records = append(records, record)
	}

	return records, nil
}

// HealthCheck pings the Redis server.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.client.Ping(ctx).Err()
	if err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

// Close closes the Redis client.
func (p *Persistence) Close(_ context.Context) error {
	err := p.client.Close()
	if err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}

	return nil
}
