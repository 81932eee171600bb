// Package persistence provides the key-value storage abstraction shared by
// definitions, workflow instances and approval tasks.
package persistence

import "context"

// Collection names a keyspace inside a Store.
type Collection string

const (
	CollectionDefinitions Collection = "definitions"
	CollectionInstances   Collection = "instances"
	CollectionTasks       Collection = "tasks"
)

// Collections lists every collection a Store must be able to hold.
var Collections = []Collection{CollectionDefinitions, CollectionInstances, CollectionTasks}

// Record is the unit of storage: an encoded entity and the revision used for
// compare-and-swap. A revision of zero means the record has never been stored.
type Record struct {
	ID       string
	Revision int64
	Data     []byte
}

// Store is the persistence contract consumed by every component.
//
// Put is an atomic per-key compare-and-swap: it succeeds only when the stored
// revision equals record.Revision (zero meaning "must not exist yet") and on
// success advances record.Revision. Otherwise it returns ErrRevisionConflict.
type Store interface {
	Get(ctx context.Context, collection Collection, id string) (*Record, error)
	Put(ctx context.Context, collection Collection, record *Record) error
	List(ctx context.Context, collection Collection) ([]*Record, error)
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}
