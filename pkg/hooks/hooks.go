// Package hooks delivers side effects of committed workflow transitions to
// notification and audit collaborators.
package hooks

import (
	"context"

	"github.com/dukex/approvals/pkg/models"
)

// Hooks receives committed transitions. Implementations may fail; the
// dispatcher retries them without affecting the transition itself.
type Hooks interface {
	OnTaskCreated(ctx context.Context, task models.ApprovalTask) error
	OnStepCompleted(ctx context.Context, instance models.WorkflowInstance, step models.StepInstance) error
	OnInstanceCompleted(ctx context.Context, instance models.WorkflowInstance) error
	OnInstanceCancelled(ctx context.Context, instance models.WorkflowInstance, reason string) error
	OnTaskOverdue(ctx context.Context, task models.ApprovalTask, policy string) error
}

// Nop ignores every hook.
type Nop struct{}

func (Nop) OnTaskCreated(context.Context, models.ApprovalTask) error { return nil }

func (Nop) OnStepCompleted(context.Context, models.WorkflowInstance, models.StepInstance) error {
	return nil
}

func (Nop) OnInstanceCompleted(context.Context, models.WorkflowInstance) error { return nil }

func (Nop) OnInstanceCancelled(context.Context, models.WorkflowInstance, string) error { return nil }

func (Nop) OnTaskOverdue(context.Context, models.ApprovalTask, string) error { return nil }
