// Package postgresql provides PostgreSQL persistence implementation for approval workflows.
package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/approvals/pkg/persistence"
	"github.com/dukex/approvals/pkg/persistence/sqlbase"
	_ "github.com/lib/pq"
)

// Persistence implements the persistence.Store interface for PostgreSQL.
// Compare-and-swap is a conditional INSERT/UPDATE on the revision column.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPersistence creates a new PostgreSQL persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	postgres := &Persistence{
		db:     database,
		logger: logger,
	}

	// Run migrations on initialization
	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return postgres, nil
}

// Get returns the record stored under (collection, id).
func (p *Persistence) Get(ctx context.Context, collection persistence.Collection, id string) (*persistence.Record, error) {
	query := `
		SELECT
			revision
		  , data
		FROM records
		WHERE collection = $1 AND id = $2
	`

	record := &persistence.Record{ID: id}

	err := p.db.QueryRowContext(ctx, query, string(collection), id).Scan(&record.Revision, &record.Data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRecordError("Get", collection, id, persistence.ErrRecordNotFound)
		}

		return nil, persistence.NewRecordError("Get", collection, id, fmt.Errorf("failed to scan record: %w", err))
	}

	return record, nil
}

// Put inserts the record when its revision is zero, otherwise updates it only
// if the stored revision still matches.
func (p *Persistence) Put(ctx context.Context, collection persistence.Collection, record *persistence.Record) error {
	if record.ID == "" {
		return persistence.NewRecordError("Put", collection, record.ID, persistence.ErrInvalidID)
	}

	var (
		result sql.Result
		err    error
	)

	if record.Revision == 0 {
		result, err = p.db.ExecContext(ctx, `
			INSERT INTO records (collection, id, revision, data)
			VALUES ($1, $2, 1, $3)
			ON CONFLICT (collection, id) DO NOTHING
		`, string(collection), record.ID, record.Data)
	} else {
		result, err = p.db.ExecContext(ctx, `
			UPDATE records
			SET revision = revision + 1, data = $4, updated_at = NOW()
			WHERE collection = $1 AND id = $2 AND revision = $3
		`, string(collection), record.ID, record.Revision, record.Data)
	}

	if err != nil {
		return persistence.NewRecordError("Put", collection, record.ID, fmt.Errorf("failed to write record: %w", err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewRecordError("Put", collection, record.ID, fmt.Errorf("failed to read affected rows: %w", err))
	}

	if affected == 0 {
		return persistence.NewRecordError("Put", collection, record.ID, persistence.ErrRevisionConflict)
	}

	record.Revision++

	return nil
}

// List returns every record of the collection.
func (p *Persistence) List(ctx context.Context, collection persistence.Collection) ([]*persistence.Record, error) {
	query := `
		SELECT
			id
		  , revision
		  , data
		FROM records
		WHERE collection = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := p.db.QueryContext(ctx, query, string(collection))
	if err != nil {
		return nil, persistence.NewRecordError("List", collection, "", fmt.Errorf("failed to query records: %w", err))
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			p.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	records := make([]*persistence.Record, 0)

	for rows.Next() {
		record := &persistence.Record{}

		err := rows.Scan(&record.ID, &record.Revision, &record.Data)
		if err != nil {
			return nil, persistence.NewRecordError("List", collection, "", fmt.Errorf("failed to scan record: %w", err))
		}

		records = append(records, record)
	}

	err = rows.Err()
	if err != nil {
		return nil, persistence.NewRecordError("List", collection, "", fmt.Errorf("error iterating records: %w", err))
	}

	return records, nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}
