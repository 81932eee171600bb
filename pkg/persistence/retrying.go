package persistence

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryingStore retries transient failures of an underlying Store. Not-found
// and revision conflicts are returned immediately; a write that keeps failing
// is reported as ErrPersistenceWriteFailed.
type RetryingStore struct {
	Store

	logger     *slog.Logger
	newBackOff func() backoff.BackOff
}

// NewRetryingStore wraps store with an exponential backoff retry policy.
func NewRetryingStore(store Store, logger *slog.Logger, maxElapsed time.Duration) *RetryingStore {
	return &RetryingStore{
		Store:  store,
		logger: logger,
		newBackOff: func() backoff.BackOff {
			policy := backoff.NewExponentialBackOff()
			policy.InitialInterval = 50 * time.Millisecond
			policy.MaxElapsedTime = maxElapsed

			return policy
		},
	}
}

func (s *RetryingStore) Get(ctx context.Context, collection Collection, id string) (*Record, error) {
	var record *Record

	err := s.retry(ctx, "Get", collection, id, func() error {
		var err error

		record, err = s.Store.Get(ctx, collection, id)

		return err
	})

	return record, err
}

func (s *RetryingStore) Put(ctx context.Context, collection Collection, record *Record) error {
	err := s.retry(ctx, "Put", collection, record.ID, func() error {
		return s.Store.Put(ctx, collection, record)
	})
	if err != nil && !IsNotFound(err) && !IsRevisionConflict(err) && !errors.Is(err, ErrInvalidID) {
		return NewRecordError("Put", collection, record.ID, errors.Join(ErrPersistenceWriteFailed, err))
	}

	return err
}

func (s *RetryingStore) List(ctx context.Context, collection Collection) ([]*Record, error) {
	var records []*Record

	err := s.retry(ctx, "List", collection, "", func() error {
		var err error

		records, err = s.Store.List(ctx, collection)

		return err
	})

	return records, err
}

func (s *RetryingStore) retry(ctx context.Context, op string, collection Collection, id string, fn func() error) error {
	return backoff.RetryNotify(
		func() error {
			err := fn()
			if err == nil {
				return nil
			}

			if IsNotFound(err) || IsRevisionConflict(err) || errors.Is(err, ErrInvalidID) {
				return backoff.Permanent(err)
			}

			return err
		},
		backoff.WithContext(s.newBackOff(), ctx),
		func(err error, wait time.Duration) {
			s.logger.WarnContext(ctx, "Retrying persistence operation",
				"op", op, "collection", collection, "id", id, "wait", wait, "error", err)
		},
	)
}
