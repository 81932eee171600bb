package models

import (
	"maps"
	"slices"
	"time"
)

// InstanceStatus represents the lifecycle state of a workflow instance.
type InstanceStatus string

const (
	InstanceStatusActive    InstanceStatus = "active"
	InstanceStatusCompleted InstanceStatus = "completed" // terminal
	InstanceStatusCancelled InstanceStatus = "cancelled" // terminal
	InstanceStatusPaused    InstanceStatus = "paused"
)

// IsTerminal reports whether no further transition may leave s.
func (s InstanceStatus) IsTerminal() bool {
	return s == InstanceStatusCompleted || s == InstanceStatusCancelled
}

// StepStatus represents the state of a single step instance.
type StepStatus string

const (
	StepStatusPending    StepStatus = "pending"
	StepStatusInProgress StepStatus = "in_progress"
	StepStatusCompleted  StepStatus = "completed"
	StepStatusSkipped    StepStatus = "skipped"
	StepStatusRejected   StepStatus = "rejected"
)

// StepInstance is the live execution record of one WorkflowStep inside an instance.
type StepInstance struct {
	ID                   string             `json:"id"`
	StepID               string             `json:"step_id"`
	Name                 string             `json:"name"`
	Type                 StepType           `json:"type"`
	Order                int                `json:"order"`
	Status               StepStatus         `json:"status"`
	AssignedTo           []string           `json:"assigned_to"`
	AssignedRoles        []string           `json:"assigned_roles,omitempty"`
	RequiresAllApprovers bool               `json:"requires_all_approvers"`
	TimeoutDays          *int               `json:"timeout_days,omitempty"`
	Skip                 bool               `json:"skip,omitempty"`
	Approvals            []ApprovalDecision `json:"approvals"`
	StartedAt            *time.Time         `json:"started_at,omitempty"`
	CompletedAt          *time.Time         `json:"completed_at,omitempty"`
	TimeoutAt            *time.Time         `json:"timeout_at,omitempty"`
}

// HasDecisionFrom reports whether the user already recorded any decision on the step.
func (s *StepInstance) HasDecisionFrom(userID, userEmail string) bool {
	for _, decision := range s.Approvals {
		if decision.MadeBy(userID) || decision.MadeBy(userEmail) {
			return true
		}
	}

	return false
}

// WorkflowInstance is one execution of a WorkflowDefinition against a business entity.
type WorkflowInstance struct {
	ID            string          `json:"id"`
	WorkflowID    string          `json:"workflow_id"`
	EntityType    EntityType      `json:"entity_type"`
	EntityID      string          `json:"entity_id"`
	EntityName    string          `json:"entity_name"`
	Status        InstanceStatus  `json:"status"`
	CurrentStepID *string         `json:"current_step_id,omitempty"`
	Steps         []*StepInstance `json:"steps"`
	Priority      TaskPriority    `json:"priority"`
	StartedBy     string          `json:"started_by"`
	StartedAt     time.Time       `json:"started_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	CancelledBy   string          `json:"cancelled_by,omitempty"`
	CancelReason  string          `json:"cancel_reason,omitempty"`
	Metadata      map[string]any  `json:"metadata,omitempty"`

	Revision int64 `json:"-"`
}

// HasDecisionRequest reports whether a decision submitted under requestID is
// already recorded on any step of the instance.
func (i *WorkflowInstance) HasDecisionRequest(requestID string) bool {
	if requestID == "" {
		return false
	}

	for _, step := range i.Steps {
		for _, decision := range step.Approvals {
			if decision.RequestID == requestID {
				return true
			}
		}
	}

	return false
}

// StepInstance returns the step instance with the given ID, or nil.
func (i *WorkflowInstance) StepInstance(id string) *StepInstance {
	for _, step := range i.Steps {
		if step.ID == id {
			return step
		}
	}

	return nil
}

// CurrentStep returns the step referenced by CurrentStepID, or nil.
func (i *WorkflowInstance) CurrentStep() *StepInstance {
	if i.CurrentStepID == nil {
		return nil
	}

	return i.StepInstance(*i.CurrentStepID)
}

func (i *WorkflowInstance) GetID() string { return i.ID }

func (i *WorkflowInstance) GetRevision() int64 { return i.Revision }

func (i *WorkflowInstance) SetRevision(rev int64) { i.Revision = rev }

// Clone returns a deep copy of the instance, safe to hand to other goroutines.
func (i *WorkflowInstance) Clone() *WorkflowInstance {
	clone := *i

	clone.Steps = make([]*StepInstance, len(i.Steps))
	for idx, step := range i.Steps {
		stepCopy := *step
		stepCopy.AssignedTo = slices.Clone(step.AssignedTo)
		stepCopy.AssignedRoles = slices.Clone(step.AssignedRoles)
		stepCopy.Approvals = slices.Clone(step.Approvals)
		clone.Steps[idx] = &stepCopy
	}

	if i.CurrentStepID != nil {
		id := *i.CurrentStepID
		clone.CurrentStepID = &id
	}

	clone.Metadata = maps.Clone(i.Metadata)

	return &clone
}
