// Package engine drives approval workflow instances through their steps.
//
// Every mutation of an instance runs under a per-instance lock and commits
// through a compare-and-swap write of the whole aggregate. Each attempt works
// on a freshly loaded copy, so a failed or conflicting write leaves nothing
// behind. Task bookkeeping and hooks run only after the write succeeded.
package engine

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/dukex/approvals/pkg/hooks"
	"github.com/dukex/approvals/pkg/models"
	"github.com/dukex/approvals/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const defaultConflictRetries = 10

// DefinitionSource provides the definitions instances are started from.
type DefinitionSource interface {
	GetActive(ctx context.Context, id string) (*models.WorkflowDefinition, error)
}

// TaskManager keeps approval tasks in line with committed instances.
type TaskManager interface {
	Reconcile(ctx context.Context, instance *models.WorkflowInstance) error
	GetUserTasks(ctx context.Context, user string) ([]*models.ApprovalTask, error)
	GetOverdueTasks(ctx context.Context, now time.Time) ([]*models.ApprovalTask, error)
}

// DuplicatePolicy decides what happens when a user decides twice on a step.
type DuplicatePolicy string

const (
	// DuplicateAppend records every decision; quorum counts distinct users.
	DuplicateAppend DuplicatePolicy = "append"
	// DuplicateReject refuses any further decision from a user who already decided.
	DuplicateReject DuplicatePolicy = "reject"
)

// ParseDuplicatePolicy parses a policy name; empty means append.
func ParseDuplicatePolicy(value string) (DuplicatePolicy, error) {
	switch DuplicatePolicy(value) {
	case "", DuplicateAppend:
		return DuplicateAppend, nil
	case DuplicateReject:
		return DuplicateReject, nil
	default:
		return "", fmt.Errorf("%w: unknown duplicate decision policy %q", ErrInvalidRequest, value)
	}
}

// Engine drives workflow instances through their steps.
type Engine struct {
	instances   *persistence.Repository[models.WorkflowInstance, *models.WorkflowInstance]
	definitions DefinitionSource
	tasks       TaskManager
	dispatcher  *hooks.Dispatcher
	roles       RoleResolver
	duplicates  DuplicatePolicy
	validate    *validator.Validate
	tracer      trace.Tracer
	logger      *slog.Logger
	now         func() time.Time
	locks       *keyedMutex
	retries     int
}

// Option configures an Engine.
type Option func(*Engine)

// WithDispatcher sets where step and instance hooks are sent.
func WithDispatcher(dispatcher *hooks.Dispatcher) Option {
	return func(e *Engine) {
		e.dispatcher = dispatcher
	}
}

func WithRoleResolver(resolver RoleResolver) Option {
	return func(e *Engine) {
		e.roles = resolver
	}
}

func WithDuplicatePolicy(policy DuplicatePolicy) Option {
	return func(e *Engine) {
		e.duplicates = policy
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New creates an engine over the given store. Instances live in the store's
// instances collection; the engine keeps no other state.
func New(store persistence.Store, definitions DefinitionSource, tasks TaskManager, opts ...Option) *Engine {
	e := &Engine{
		instances:   persistence.NewRepository[models.WorkflowInstance](store, persistence.CollectionInstances),
		definitions: definitions,
		tasks:       tasks,
		roles:       noRoles{},
		duplicates:  DuplicateAppend,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		tracer:      otel.Tracer("approvals/engine"),
		logger:      slog.Default(),
		now:         time.Now,
		locks:       newKeyedMutex(),
		retries:     defaultConflictRetries,
	}

	for _, opt := range opts {
		opt(e)
	}

	e.logger = e.logger.With("module", "engine")

	if e.dispatcher == nil {
		e.dispatcher = hooks.NewDispatcher(nil, e.logger)
	}

	return e
}

// GetInstance returns the committed state of an instance.
func (e *Engine) GetInstance(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	instance, err := e.instances.Get(ctx, id)
	if persistence.IsNotFound(err) {
		return nil, newInstanceError("GetInstance", id, ErrInstanceNotFound)
	}

	if err != nil {
		return nil, newInstanceError("GetInstance", id, err)
	}

	return instance, nil
}

// GetInstancesByEntity returns every instance started for the entity, oldest first.
func (e *Engine) GetInstancesByEntity(ctx context.Context, entityType models.EntityType, entityID string) ([]*models.WorkflowInstance, error) {
	return e.listInstances(ctx, func(instance *models.WorkflowInstance) bool {
		return instance.EntityType == entityType && instance.EntityID == entityID
	})
}

// GetActiveInstances returns every instance with status active, oldest first.
func (e *Engine) GetActiveInstances(ctx context.Context) ([]*models.WorkflowInstance, error) {
	return e.listInstances(ctx, func(instance *models.WorkflowInstance) bool {
		return instance.Status == models.InstanceStatusActive
	})
}

// GetOpenInstances returns active and paused instances, oldest first.
func (e *Engine) GetOpenInstances(ctx context.Context) ([]*models.WorkflowInstance, error) {
	return e.listInstances(ctx, func(instance *models.WorkflowInstance) bool {
		return !instance.Status.IsTerminal()
	})
}

func (e *Engine) listInstances(ctx context.Context, predicate func(*models.WorkflowInstance) bool) ([]*models.WorkflowInstance, error) {
	instances, err := e.instances.List(ctx, predicate)
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}

	slices.SortFunc(instances, func(a, b *models.WorkflowInstance) int {
		return cmp.Or(a.StartedAt.Compare(b.StartedAt), cmp.Compare(a.ID, b.ID))
	})

	return instances, nil
}

// GetUserTasks returns the pending tasks of a user, oldest first.
func (e *Engine) GetUserTasks(ctx context.Context, user string) ([]*models.ApprovalTask, error) {
	return e.tasks.GetUserTasks(ctx, user)
}

// GetOverdueTasks returns pending tasks past their due date at now.
func (e *Engine) GetOverdueTasks(ctx context.Context, now time.Time) ([]*models.ApprovalTask, error) {
	return e.tasks.GetOverdueTasks(ctx, now)
}

// ReconcileTasks re-applies task bookkeeping for a committed instance. It is
// used to heal tasks after a crash between the instance write and the task
// writes.
func (e *Engine) ReconcileTasks(ctx context.Context, id string) error {
	unlock := e.locks.Lock(id)
	defer unlock()

	instance, err := e.GetInstance(ctx, id)
	if err != nil {
		return err
	}

	return e.tasks.Reconcile(ctx, instance)
}
