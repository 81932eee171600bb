// Package escalation runs the scheduled job that acts on overdue approval tasks.
package escalation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/approvals/pkg/engine"
	"github.com/dukex/approvals/pkg/hooks"
	"github.com/dukex/approvals/pkg/models"
	"github.com/robfig/cron/v3"
)

// Policy names what happens to an overdue task.
type Policy string

const (
	// PolicyNotify only raises the overdue hook.
	PolicyNotify Policy = "notify"
	// PolicyAutoReject also rejects the step as the system user, which cancels the instance.
	PolicyAutoReject Policy = "auto_reject"
)

const DefaultSchedule = "*/15 * * * *"

// Engine is the part of the workflow engine the escalator drives. Every
// transition goes through SubmitDecision so it takes the same atomic path as
// a human decision.
type Engine interface {
	GetOverdueTasks(ctx context.Context, now time.Time) ([]*models.ApprovalTask, error)
	GetOpenInstances(ctx context.Context) ([]*models.WorkflowInstance, error)
	ReconcileTasks(ctx context.Context, id string) error
	SubmitDecision(ctx context.Context, req engine.DecisionRequest) (bool, error)
}

// Config holds the cron schedule, the overdue policy and the system user that
// auto_reject decides as.
type Config struct {
	Schedule    string
	Policy      Policy
	SystemUser  string
	SystemEmail string
}

func (c *Config) validate() error {
	if c.Schedule == "" {
		c.Schedule = DefaultSchedule
	}

	if c.Policy == "" {
		c.Policy = PolicyNotify
	}

	if _, err := cron.ParseStandard(c.Schedule); err != nil {
		return fmt.Errorf("invalid escalation schedule: %w", err)
	}

	switch c.Policy {
	case PolicyNotify:
	case PolicyAutoReject:
		if c.SystemUser == "" {
			return errors.New("auto_reject escalation requires a system user")
		}
	default:
		return fmt.Errorf("unknown escalation policy %q", c.Policy)
	}

	return nil
}

// Report summarises one escalation run.
type Report struct {
	Reconciled int
	Overdue    int
	Notified   int
	Rejected   int
}

// Escalator periodically acts on overdue tasks.
type Escalator struct {
	engine     Engine
	dispatcher *hooks.Dispatcher
	config     Config
	logger     *slog.Logger
	now        func() time.Time
	cron       *cron.Cron

	mu       sync.Mutex
	notified map[string]struct{}
}

// New validates config and creates an escalator. Start schedules it; RunOnce
// performs a single scan.
func New(eng Engine, dispatcher *hooks.Dispatcher, config Config, logger *slog.Logger) (*Escalator, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	return &Escalator{
		engine:     eng,
		dispatcher: dispatcher,
		config:     config,
		logger: logger.With(
			"module", "escalator",
			"schedule", config.Schedule,
			"policy", config.Policy,
		),
		now:      time.Now,
		notified: make(map[string]struct{}),
	}, nil
}

// RunOnce reconciles open instances and escalates every overdue task. A task
// is announced once per escalator lifetime.
func (e *Escalator) RunOnce(ctx context.Context) (Report, error) {
	var report Report

	open, err := e.engine.GetOpenInstances(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list open instances: %w", err)
	}

	var errs []error

	for _, instance := range open {
		err := e.engine.ReconcileTasks(ctx, instance.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("reconcile %s: %w", instance.ID, err))

			continue
		}

		report.Reconciled++
	}

	overdue, err := e.engine.GetOverdueTasks(ctx, e.now().UTC())
	if err != nil {
		return report, errors.Join(append(errs, fmt.Errorf("failed to list overdue tasks: %w", err))...)
	}

	report.Overdue = len(overdue)
	rejectedSteps := make(map[string]struct{})

	for _, task := range overdue {
		if e.markNotified(task.ID) {
			e.dispatcher.TaskOverdue(ctx, *task, string(e.config.Policy))
			report.Notified++
		}

		if e.config.Policy != PolicyAutoReject {
			continue
		}

		if _, done := rejectedSteps[task.StepInstanceID]; done {
			continue
		}

		rejectedSteps[task.StepInstanceID] = struct{}{}

		applied, err := e.engine.SubmitDecision(ctx, engine.DecisionRequest{
			InstanceID:     task.WorkflowInstanceID,
			StepInstanceID: task.StepInstanceID,
			UserID:         e.config.SystemUser,
			UserEmail:      e.config.SystemEmail,
			Decision:       models.DecisionReject,
			Comments:       fmt.Sprintf("automatically rejected: task of %s overdue since %s", task.AssignedTo, task.DueDate.Format(time.RFC3339)),
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("auto-reject %s: %w", task.WorkflowInstanceID, err))

			continue
		}

		if applied {
			report.Rejected++

			e.logger.InfoContext(ctx, "Auto-rejected overdue step",
				"instance_id", task.WorkflowInstanceID,
				"step_instance_id", task.StepInstanceID,
			)
		}
	}

	return report, errors.Join(errs...)
}

func (e *Escalator) markNotified(taskID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, seen := e.notified[taskID]; seen {
		return false
	}

	e.notified[taskID] = struct{}{}

	return true
}

// Start schedules RunOnce. Overlapping runs are skipped.
func (e *Escalator) Start(ctx context.Context) error {
	e.logger.InfoContext(ctx, "Starting escalator")

	e.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	id, err := e.cron.AddFunc(e.config.Schedule, func() { e.run(ctx) })
	if err != nil {
		return fmt.Errorf("failed to schedule escalation job: %w", err)
	}

	e.logger.DebugContext(ctx, "Escalation job scheduled", "entry_id", id)
	e.cron.Start()

	return nil
}

func (e *Escalator) run(ctx context.Context) {
	report, err := e.RunOnce(ctx)
	if err != nil {
		e.logger.ErrorContext(ctx, "Escalation run finished with errors", "error", err)
	}

	e.logger.InfoContext(ctx, "Escalation run finished",
		"reconciled", report.Reconciled,
		"overdue", report.Overdue,
		"notified", report.Notified,
		"rejected", report.Rejected,
	)
}

// Stop waits for a running job to finish.
func (e *Escalator) Stop(ctx context.Context) error {
	e.logger.InfoContext(ctx, "Stopping escalator")

	if e.cron == nil {
		return nil
	}

	select {
	case <-e.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
