// Package tasks creates and tracks the approval tasks handed to assignees.
package tasks

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
	"github.com/google/uuid"
)

var taskNamespace = uuid.MustParse("6f1c2d0e-8a4b-4f57-9c3e-2b7d5e1a9f40")

// TaskID derives the task identifier from the step instance and assignee, so
// the same pair always maps to the same record.
func TaskID(stepInstanceID, assignee string) string {
	return uuid.NewSHA1(taskNamespace, []byte(stepInstanceID+"/"+assignee)).String()
}

// Manager owns approval tasks. It reads step instances but never mutates them.
type Manager struct {
	tasks      *persistence.Repository[models.ApprovalTask, *models.ApprovalTask]
	dispatcher *hooks.Dispatcher
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a task manager over the store's tasks collection. A nil
// dispatcher drops task hooks.
func NewManager(store persistence.Store, dispatcher *hooks.Dispatcher, logger *slog.Logger, opts ...Option) *Manager {
	if dispatcher == nil {
		dispatcher = hooks.NewDispatcher(nil, logger)
	}

	m := &Manager{
		tasks:      persistence.NewRepository[models.ApprovalTask](store, persistence.CollectionTasks),
		dispatcher: dispatcher,
		logger:     logger.With("module", "task_manager"),
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// DueDate returns when tasks of the step fall due, or nil without a timeout.
func DueDate(step *models.StepInstance) *time.Time {
	if step.TimeoutAt != nil {
		due := *step.TimeoutAt

		return &due
	}

	if step.TimeoutDays == nil || step.StartedAt == nil {
		return nil
	}

	due := step.StartedAt.AddDate(0, 0, *step.TimeoutDays)

	return &due
}

// CreateTasksForStep creates one pending task per assignee of the step. Pairs
// that already have a task are left alone, so the call may be repeated.
func (m *Manager) CreateTasksForStep(ctx context.Context, instance *models.WorkflowInstance, step *models.StepInstance) ([]*models.ApprovalTask, error) {
	createdAt := m.now().UTC()
	if step.StartedAt != nil {
		createdAt = *step.StartedAt
	}

	priority := instance.Priority
	if !priority.Valid() {
		priority = models.TaskPriorityMedium
	}

	created := make([]*models.ApprovalTask, 0, len(step.AssignedTo))
	seen := make(map[string]struct{}, len(step.AssignedTo))

	for _, assignee := range step.AssignedTo {
		if _, dup := seen[assignee]; dup || assignee == "" {
			continue
		}

		seen[assignee] = struct{}{}

		task := &models.ApprovalTask{
			ID:                 TaskID(step.ID, assignee),
			WorkflowInstanceID: instance.ID,
			StepInstanceID:     step.ID,
			AssignedTo:         assignee,
			Priority:           priority,
			DueDate:            DueDate(step),
			Status:             models.TaskStatusPending,
			CreatedAt:          createdAt,
		}

		err := m.tasks.Save(ctx, task)
		if persistence.IsRevisionConflict(err) {
			continue
		}

		if err != nil {
			return created, fmt.Errorf("failed to create task for %s: %w", assignee, err)
		}

		m.logger.DebugContext(ctx, "Created approval task", "task_id", task.ID, "instance_id", instance.ID, "assigned_to", assignee)

		created = append(created, task)
		m.dispatcher.TaskCreated(ctx, *task)
	}

	return created, nil
}

// Reconcile brings the tasks of an instance in line with its committed state:
// missing tasks of the in-progress step are created, tasks of users who decided
// are completed and the remaining open tasks of closed steps are cancelled.
func (m *Manager) Reconcile(ctx context.Context, instance *models.WorkflowInstance) error {
	if instance.Status == models.InstanceStatusActive || instance.Status == models.InstanceStatusPaused {
		if step := instance.CurrentStep(); step != nil && step.Status == models.StepStatusInProgress {
			_, err := m.CreateTasksForStep(ctx, instance, step)
			if err != nil {
				return err
			}
		}
	}

	open, err := m.tasks.List(ctx, func(task *models.ApprovalTask) bool {
		return task.WorkflowInstanceID == instance.ID && task.Status == models.TaskStatusPending
	})
	if err != nil {
		return fmt.Errorf("failed to list tasks of instance %s: %w", instance.ID, err)
	}

	for _, task := range open {
		status, at := m.resolve(instance, task)
		if status == models.TaskStatusPending {
			continue
		}

		task.Status = status
		task.CompletedAt = &at

		err := m.tasks.Save(ctx, task)
		if persistence.IsRevisionConflict(err) {
			m.logger.DebugContext(ctx, "Task changed concurrently, skipping", "task_id", task.ID)

			continue
		}

		if err != nil {
			return fmt.Errorf("failed to update task %s: %w", task.ID, err)
		}
	}

	return nil
}

func (m *Manager) resolve(instance *models.WorkflowInstance, task *models.ApprovalTask) (models.TaskStatus, time.Time) {
	step := instance.StepInstance(task.StepInstanceID)
	if step == nil {
		return models.TaskStatusCancelled, m.now().UTC()
	}

	for _, decision := range step.Approvals {
		if decision.MadeBy(task.AssignedTo) {
			return models.TaskStatusCompleted, decision.Timestamp
		}
	}

	if instance.Status.IsTerminal() || step.Status != models.StepStatusInProgress {
		closedAt := m.now().UTC()
		if step.CompletedAt != nil {
			closedAt = *step.CompletedAt
		} else if instance.CompletedAt != nil {
			closedAt = *instance.CompletedAt
		}

		return models.TaskStatusCancelled, closedAt
	}

	return models.TaskStatusPending, time.Time{}
}

// GetTask returns a task by ID.
func (m *Manager) GetTask(ctx context.Context, id string) (*models.ApprovalTask, error) {
	return m.tasks.Get(ctx, id)
}

// GetInstanceTasks returns every task of an instance ordered by creation.
func (m *Manager) GetInstanceTasks(ctx context.Context, instanceID string) ([]*models.ApprovalTask, error) {
	tasks, err := m.tasks.List(ctx, func(task *models.ApprovalTask) bool {
		return task.WorkflowInstanceID == instanceID
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(tasks, byCreation)

	return tasks, nil
}

// GetUserTasks returns the pending tasks of a user, oldest first.
func (m *Manager) GetUserTasks(ctx context.Context, user string) ([]*models.ApprovalTask, error) {
	tasks, err := m.tasks.List(ctx, func(task *models.ApprovalTask) bool {
		return task.AssignedTo == user && task.Status == models.TaskStatusPending
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(tasks, byCreation)

	return tasks, nil
}

// GetOverdueTasks returns pending tasks whose due date is before now. The
// returned copies carry status overdue; stored tasks are not modified.
func (m *Manager) GetOverdueTasks(ctx context.Context, now time.Time) ([]*models.ApprovalTask, error) {
	tasks, err := m.tasks.List(ctx, func(task *models.ApprovalTask) bool {
		return task.IsOverdue(now)
	})
	if err != nil {
		return nil, err
	}

	for _, task := range tasks {
		task.Status = models.TaskStatusOverdue
	}

	slices.SortFunc(tasks, func(a, b *models.ApprovalTask) int {
		return cmp.Or(a.DueDate.Compare(*b.DueDate), cmp.Compare(a.ID, b.ID))
	})

	return tasks, nil
}

func byCreation(a, b *models.ApprovalTask) int {
	return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
}
