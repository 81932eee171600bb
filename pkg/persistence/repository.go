package persistence

import (
	"context"
	"encoding/json"
	"fmt"
)

// Entity is implemented by every model stored through a Repository.
type Entity interface {
	GetID() string
	GetRevision() int64
	SetRevision(rev int64)
}

type entityPtr[T any] interface {
	*T
	Entity
}

// Repository is a typed view over one collection of a Store. Entities are
// stored as JSON; the record revision travels on the entity itself.
type Repository[T any, P entityPtr[T]] struct {
	store      Store
	collection Collection
}

// NewRepository creates a typed repository for the given collection.
func NewRepository[T any, P entityPtr[T]](store Store, collection Collection) *Repository[T, P] {
	return &Repository[T, P]{store: store, collection: collection}
}

// Get loads and decodes the entity stored under id.
func (r *Repository[T, P]) Get(ctx context.Context, id string) (*T, error) {
	record, err := r.store.Get(ctx, r.collection, id)
	if err != nil {
		return nil, err
	}

	return r.decode(record)
}

// Save encodes and writes the entity using its revision for compare-and-swap.
// On success the entity revision is advanced.
func (r *Repository[T, P]) Save(ctx context.Context, entity *T) error {
	p := P(entity)

	data, err := json.Marshal(entity)
	if err != nil {
		return NewRecordError("Save", r.collection, p.GetID(), fmt.Errorf("failed to marshal: %w", err))
	}

	record := &Record{ID: p.GetID(), Revision: p.GetRevision(), Data: data}

	err = r.store.Put(ctx, r.collection, record)
	if err != nil {
		return err
	}

	p.SetRevision(record.Revision)

	return nil
}

// List returns every entity of the collection matching the predicate. A nil
// predicate matches everything.
func (r *Repository[T, P]) List(ctx context.Context, predicate func(*T) bool) ([]*T, error) {
	records, err := r.store.List(ctx, r.collection)
	if err != nil {
		return nil, err
	}

	entities := make([]*T, 0, len(records))

	for _, record := range records {
		entity, err := r.decode(record)
		if err != nil {
			return nil, err
		}

		if predicate == nil || predicate(entity) {
			entities = append(entities, entity)
		}
	}

	return entities, nil
}

func (r *Repository[T, P]) decode(record *Record) (*T, error) {
	var entity T

	err := json.Unmarshal(record.Data, &entity)
	if err != nil {
		return nil, NewRecordError("Decode", r.collection, record.ID, fmt.Errorf("failed to unmarshal: %w", err))
	}

	P(&entity).SetRevision(record.Revision)

	return &entity, nil
}
