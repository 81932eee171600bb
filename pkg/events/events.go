// Package events defines the payloads published when approval workflows change state.
package events

import (
	"time"

	"github.com/dukex/approvals/pkg/models"
)

type EventType string

// Topic carries every approval lifecycle event.
const Topic = "approvals.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	TaskCreatedEvent       EventType = "task.created"
	TaskOverdueEvent       EventType = "task.overdue"
	StepCompletedEvent     EventType = "step.completed"
	InstanceCompletedEvent EventType = "instance.completed"
	InstanceCancelledEvent EventType = "instance.cancelled"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	InstanceID string         `json:"instance_id"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// NewBaseEvent fills the common fields of an event.
func NewBaseEvent(id string, eventType EventType, instanceID, workflowID string, at time.Time) BaseEvent {
	return BaseEvent{
		ID:         id,
		Type:       eventType,
		Timestamp:  at,
		InstanceID: instanceID,
		WorkflowID: workflowID,
	}
}

type TaskCreated struct {
	BaseEvent

	Task models.ApprovalTask `json:"task"`
}

func (e TaskCreated) GetType() EventType {
	return TaskCreatedEvent
}

// TaskOverdue is raised by the escalation job for a pending task past its due date.
type TaskOverdue struct {
	BaseEvent

	Task   models.ApprovalTask `json:"task"`
	Policy string              `json:"policy"`
}

func (e TaskOverdue) GetType() EventType {
	return TaskOverdueEvent
}

type StepCompleted struct {
	BaseEvent

	Instance models.WorkflowInstance `json:"instance"`
	Step     models.StepInstance     `json:"step"`
}

func (e StepCompleted) GetType() EventType {
	return StepCompletedEvent
}

type InstanceCompleted struct {
	BaseEvent

	Instance models.WorkflowInstance `json:"instance"`
}

func (e InstanceCompleted) GetType() EventType {
	return InstanceCompletedEvent
}

type InstanceCancelled struct {
	BaseEvent

	Instance models.WorkflowInstance `json:"instance"`
	Reason   string                  `json:"reason,omitempty"`
}

func (e InstanceCancelled) GetType() EventType {
	return InstanceCancelledEvent
}
