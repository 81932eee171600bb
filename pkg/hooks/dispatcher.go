package hooks

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dukex/approvals/pkg/models"
)

const defaultMaxElapsed = 30 * time.Second

// Dispatcher fires hooks asynchronously with at-least-once retry. Payloads are
// copied before the call returns so callers may keep mutating their values.
type Dispatcher struct {
	hooks      Hooks
	logger     *slog.Logger
	maxElapsed time.Duration

	wg sync.WaitGroup
}

type DispatcherOption func(*Dispatcher)

// WithMaxElapsed bounds how long a failing hook is retried.
func WithMaxElapsed(d time.Duration) DispatcherOption {
	return func(dispatcher *Dispatcher) {
		dispatcher.maxElapsed = d
	}
}

func NewDispatcher(hooks Hooks, logger *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	if hooks == nil {
		hooks = Nop{}
	}

	d := &Dispatcher{
		hooks:      hooks,
		logger:     logger.With("module", "hooks_dispatcher"),
		maxElapsed: defaultMaxElapsed,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

func (d *Dispatcher) TaskCreated(ctx context.Context, task models.ApprovalTask) {
	d.dispatch(ctx, "task_created", func(ctx context.Context) error {
		return d.hooks.OnTaskCreated(ctx, task)
	})
}

func (d *Dispatcher) StepCompleted(ctx context.Context, instance *models.WorkflowInstance, step *models.StepInstance) {
	snapshot := instance.Clone()
	stepSnapshot := snapshot.StepInstance(step.ID)

	if stepSnapshot == nil {
		stepCopy := *step
		stepSnapshot = &stepCopy
	}

	d.dispatch(ctx, "step_completed", func(ctx context.Context) error {
		return d.hooks.OnStepCompleted(ctx, *snapshot, *stepSnapshot)
	})
}

func (d *Dispatcher) InstanceCompleted(ctx context.Context, instance *models.WorkflowInstance) {
	snapshot := instance.Clone()

	d.dispatch(ctx, "instance_completed", func(ctx context.Context) error {
		return d.hooks.OnInstanceCompleted(ctx, *snapshot)
	})
}

func (d *Dispatcher) InstanceCancelled(ctx context.Context, instance *models.WorkflowInstance, reason string) {
	snapshot := instance.Clone()

	d.dispatch(ctx, "instance_cancelled", func(ctx context.Context) error {
		return d.hooks.OnInstanceCancelled(ctx, *snapshot, reason)
	})
}

func (d *Dispatcher) TaskOverdue(ctx context.Context, task models.ApprovalTask, policy string) {
	d.dispatch(ctx, "task_overdue", func(ctx context.Context) error {
		return d.hooks.OnTaskOverdue(ctx, task, policy)
	})
}

// Wait blocks until every dispatched hook finished or gave up.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) dispatch(ctx context.Context, hook string, call func(context.Context) error) {
	ctx = context.WithoutCancel(ctx)

	d.wg.Add(1)

	go func() {
		defer d.wg.Done()

		policy := backoff.NewExponentialBackOff()
		policy.InitialInterval = 100 * time.Millisecond
		policy.MaxElapsedTime = d.maxElapsed

		err := backoff.RetryNotify(
			func() error { return call(ctx) },
			backoff.WithContext(policy, ctx),
			func(err error, next time.Duration) {
				d.logger.WarnContext(ctx, "Hook failed, retrying", "hook", hook, "retry_in", next, "error", err)
			},
		)
		if err != nil {
			d.logger.ErrorContext(ctx, "Hook dropped after retries", "hook", hook, "error", err)
		}
	}()
}
