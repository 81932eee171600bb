package mocks

import (
	"context"

	"github.com/dukex/approvals/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockHooks is a mock implementation of hooks.Hooks interface.
type MockHooks struct {
	mock.Mock
}

func (m *MockHooks) OnTaskCreated(ctx context.Context, task models.ApprovalTask) error {
	args := m.Called(ctx, task)

	return args.Error(0)
}

func (m *MockHooks) OnStepCompleted(ctx context.Context, instance models.WorkflowInstance, step models.StepInstance) error {
	args := m.Called(ctx, instance, step)

	return args.Error(0)
}

func (m *MockHooks) OnInstanceCompleted(ctx context.Context, instance models.WorkflowInstance) error {
	args := m.Called(ctx, instance)

	return args.Error(0)
}

func (m *MockHooks) OnInstanceCancelled(ctx context.Context, instance models.WorkflowInstance, reason string) error {
	args := m.Called(ctx, instance, reason)

	return args.Error(0)
}

func (m *MockHooks) OnTaskOverdue(ctx context.Context, task models.ApprovalTask, policy string) error {
	args := m.Called(ctx, task, policy)

	return args.Error(0)
}
