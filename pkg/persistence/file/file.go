// Package file provides file-based persistence implementation for approval workflows.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dukex/approvals/pkg/persistence"
)

// Persistence implements the persistence.Store interface using the file system.
// Each record lives in <root>/<collection>/<id>.json. Compare-and-swap is
// guarded by an in-process mutex, so one process must own the directory.
type Persistence struct {
	root string // File system root for storing records
	mu   sync.Mutex
}

type envelope struct {
	Revision int64           `json:"revision"`
	Data     json.RawMessage `json:"data"`
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{root: cleanRoot}
}

// validateID validates that the record ID is safe for file operations.
func validateID(id string) error {
	if id == "" {
		return errors.New("record ID cannot be empty")
	}

	// Check for path traversal attempts
	if strings.Contains(id, "..") || strings.Contains(id, "/") || strings.Contains(id, "\\") {
		return errors.New("record ID contains invalid characters")
	}

	return nil
}

func (fp *Persistence) path(collection persistence.Collection, id string) string {
	return filepath.Join(fp.root, string(collection), id+".json")
}

func (fp *Persistence) Get(_ context.Context, collection persistence.Collection, id string) (*persistence.Record, error) {
	if err := validateID(id); err != nil {
		return nil, persistence.NewRecordError("Get", collection, id, errors.Join(persistence.ErrInvalidID, err))
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	return fp.read(collection, id)
}

func (fp *Persistence) read(collection persistence.Collection, id string) (*persistence.Record, error) {
	data, err := os.ReadFile(fp.path(collection, id)) // #nosec G304 -- id is validated and the path constructed safely
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewRecordError("Get", collection, id, persistence.ErrRecordNotFound)
		}

		return nil, persistence.NewRecordError("Get", collection, id, fmt.Errorf("failed to read record: %w", err))
	}

	var env envelope

	err = json.Unmarshal(data, &env)
	if err != nil {
		return nil, persistence.NewRecordError("Get", collection, id, fmt.Errorf("failed to unmarshal record: %w", err))
	}

	return &persistence.Record{ID: id, Revision: env.Revision, Data: env.Data}, nil
}

func (fp *Persistence) Put(_ context.Context, collection persistence.Collection, record *persistence.Record) error {
	if err := validateID(record.ID); err != nil {
		return persistence.NewRecordError("Put", collection, record.ID, errors.Join(persistence.ErrInvalidID, err))
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	var current int64

	existing, err := fp.read(collection, record.ID)

	switch {
	case err == nil:
		current = existing.Revision
	case !persistence.IsNotFound(err):
		return err
	}

	if current != record.Revision {
		return persistence.NewRecordError("Put", collection, record.ID, persistence.ErrRevisionConflict)
	}

	dir := filepath.Join(fp.root, string(collection))

	err = os.MkdirAll(dir, 0750)
	if err != nil {
		return persistence.NewRecordError("Put", collection, record.ID, fmt.Errorf("failed to create %s directory: %w", collection, err))
	}

	data, err := json.Marshal(envelope{Revision: current + 1, Data: record.Data})
	if err != nil {
		return persistence.NewRecordError("Put", collection, record.ID, fmt.Errorf("failed to marshal record: %w", err))
	}

	// Write to a temp file and rename so readers never observe a partial record.
	tmp, err := os.CreateTemp(dir, record.ID+".*.tmp")
	if err != nil {
		return persistence.NewRecordError("Put", collection, record.ID, fmt.Errorf("failed to create temp file: %w", err))
	}

	_, err = tmp.Write(data)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}

	if err == nil {
		err = os.Rename(tmp.Name(), fp.path(collection, record.ID))
	}

	if err != nil {
		_ = os.Remove(tmp.Name())

		return persistence.NewRecordError("Put", collection, record.ID, fmt.Errorf("failed to write record: %w", err))
	}

	record.Revision = current + 1

	return nil
}

func (fp *Persistence) List(_ context.Context, collection persistence.Collection) ([]*persistence.Record, error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	root := os.DirFS(filepath.Join(fp.root, string(collection)))

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, persistence.NewRecordError("List", collection, "", fmt.Errorf("failed to list record files: %w", err))
	}

	records := make([]*persistence.Record, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		record, err := fp.read(collection, strings.TrimSuffix(file, ".json"))
		if err != nil {
			if persistence.IsNotFound(err) {
				continue
			}

			return nil, err
		}

		records = append(records, record)
	}

	return records, nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}
