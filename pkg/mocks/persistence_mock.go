package mocks

import (
	"context"

	"github.com/dukex/approvals/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockStore is a mock implementation of persistence.Store interface.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Get(ctx context.Context, collection persistence.Collection, id string) (*persistence.Record, error) {
	args := m.Called(ctx, collection, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*persistence.Record), args.Error(1)
}

func (m *MockStore) Put(ctx context.Context, collection persistence.Collection, record *persistence.Record) error {
	args := m.Called(ctx, collection, record)

	return args.Error(0)
}

func (m *MockStore) List(ctx context.Context, collection persistence.Collection) ([]*persistence.Record, error) {
	args := m.Called(ctx, collection)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*persistence.Record), args.Error(1)
}

func (m *MockStore) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockStore) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
