package models

import "time"

// TaskStatus represents the state of an approval task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusOverdue   TaskStatus = "overdue" // projection only, never stored
	TaskStatusCancelled TaskStatus = "cancelled"
)

// TaskPriority orders tasks for presentation.
type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "low"
	TaskPriorityMedium TaskPriority = "medium"
	TaskPriorityHigh   TaskPriority = "high"
	TaskPriorityUrgent TaskPriority = "urgent"
)

// Valid reports whether p is a known priority.
func (p TaskPriority) Valid() bool {
	switch p {
	case TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh, TaskPriorityUrgent:
		return true
	default:
		return false
	}
}

// ApprovalTask is a unit of pending work for one assignee on one step instance.
type ApprovalTask struct {
	ID                 string       `json:"id"`
	WorkflowInstanceID string       `json:"workflow_instance_id"`
	StepInstanceID     string       `json:"step_instance_id"`
	AssignedTo         string       `json:"assigned_to"`
	Priority           TaskPriority `json:"priority"`
	DueDate            *time.Time   `json:"due_date,omitempty"`
	Status             TaskStatus   `json:"status"`
	CreatedAt          time.Time    `json:"created_at"`
	CompletedAt        *time.Time   `json:"completed_at,omitempty"`

	Revision int64 `json:"-"`
}

// IsOverdue reports whether the task is pending past its due date at now.
func (t *ApprovalTask) IsOverdue(now time.Time) bool {
	return t.Status == TaskStatusPending && t.DueDate != nil && t.DueDate.Before(now)
}

func (t *ApprovalTask) GetID() string { return t.ID }

func (t *ApprovalTask) GetRevision() int64 { return t.Revision }

func (t *ApprovalTask) SetRevision(rev int64) { t.Revision = rev }
