// Package memory provides an in-process persistence implementation, used for
// tests and single-node development.
package memory

import (
	"context"
	"sync"

	"github.com/dukex/approvals/pkg/persistence"
)

// Persistence keeps records in maps guarded by a single RWMutex. Data is
// copied on the way in and out so callers never share buffers with the store.
type Persistence struct {
	mu          sync.RWMutex
	collections map[persistence.Collection]map[string]*persistence.Record
}

// NewPersistence creates an empty in-memory store.
func NewPersistence() *Persistence {
	collections := make(map[persistence.Collection]map[string]*persistence.Record, len(persistence.Collections))
	for _, collection := range persistence.Collections {
		collections[collection] = make(map[string]*persistence.Record)
	}

	return &Persistence{collections: collections}
}

func (p *Persistence) Get(_ context.Context, collection persistence.Collection, id string) (*persistence.Record, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	record, ok := p.collections[collection][id]
	if !ok {
		return nil, persistence.NewRecordError("Get", collection, id, persistence.ErrRecordNotFound)
	}

	return clone(record), nil
}

func (p *Persistence) Put(_ context.Context, collection persistence.Collection, record *persistence.Record) error {
	if record.ID == "" {
		return persistence.NewRecordError("Put", collection, record.ID, persistence.ErrInvalidID)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	records, ok := p.collections[collection]
	if !ok {
		records = make(map[string]*persistence.Record)
		p.collections[collection] = records
	}

	var current int64
	if existing, ok := records[record.ID]; ok {
		current = existing.Revision
	}

	if current != record.Revision {
		return persistence.NewRecordError("Put", collection, record.ID, persistence.ErrRevisionConflict)
	}

	stored := clone(record)
	stored.Revision = current + 1
	records[record.ID] = stored
	record.Revision = stored.Revision

	return nil
}

func (p *Persistence) List(_ context.Context, collection persistence.Collection) ([]*persistence.Record, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	records := make([]*persistence.Record, 0, len(p.collections[collection]))
	for _, record := range p.collections[collection] {
		records = append(records, clone(record))
	}

	return records, nil
}

// HealthCheck always succeeds for the in-memory store.
func (p *Persistence) HealthCheck(_ context.Context) error {
	return nil
}

// Close performs any necessary cleanup. For in-memory persistence, there is nothing to clean up.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

func clone(record *persistence.Record) *persistence.Record {
	data := make([]byte, len(record.Data))
	copy(data, record.Data)

	return &persistence.Record{ID: record.ID, Revision: record.Revision, Data: data}
}
