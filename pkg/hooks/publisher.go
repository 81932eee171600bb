package hooks

import (
	"context"
	"time"

	"github.com/dukex/approvals/pkg/eventbus"
	"github.com/dukex/approvals/pkg/events"
	"github.com/dukex/approvals/pkg/models"
)

// Publisher turns hooks into events on the event bus, keyed by instance ID so
// a partitioned transport keeps per-instance ordering.
type Publisher struct {
	bus eventbus.EventBus
	now func() time.Time
}

func NewPublisher(bus eventbus.EventBus) *Publisher {
	return &Publisher{bus: bus, now: time.Now}
}

func (p *Publisher) base(eventType events.EventType, instanceID, workflowID string) events.BaseEvent {
	return events.NewBaseEvent(p.bus.GenerateID(), eventType, instanceID, workflowID, p.now())
}

func (p *Publisher) OnTaskCreated(ctx context.Context, task models.ApprovalTask) error {
	return p.bus.Publish(ctx, task.WorkflowInstanceID, events.TaskCreated{
		BaseEvent: p.base(events.TaskCreatedEvent, task.WorkflowInstanceID, ""),
		Task:      task,
	})
}

func (p *Publisher) OnStepCompleted(ctx context.Context, instance models.WorkflowInstance, step models.StepInstance) error {
	return p.bus.Publish(ctx, instance.ID, events.StepCompleted{
		BaseEvent: p.base(events.StepCompletedEvent, instance.ID, instance.WorkflowID),
		Instance:  instance,
		Step:      step,
	})
}

func (p *Publisher) OnInstanceCompleted(ctx context.Context, instance models.WorkflowInstance) error {
	return p.bus.Publish(ctx, instance.ID, events.InstanceCompleted{
		BaseEvent: p.base(events.InstanceCompletedEvent, instance.ID, instance.WorkflowID),
		Instance:  instance,
	})
}

func (p *Publisher) OnInstanceCancelled(ctx context.Context, instance models.WorkflowInstance, reason string) error {
	return p.bus.Publish(ctx, instance.ID, events.InstanceCancelled{
		BaseEvent: p.base(events.InstanceCancelledEvent, instance.ID, instance.WorkflowID),
		Instance:  instance,
		Reason:    reason,
	})
}

func (p *Publisher) OnTaskOverdue(ctx context.Context, task models.ApprovalTask, policy string) error {
	return p.bus.Publish(ctx, task.WorkflowInstanceID, events.TaskOverdue{
		BaseEvent: p.base(events.TaskOverdueEvent, task.WorkflowInstanceID, ""),
		Task:      task,
		Policy:    policy,
	})
}
