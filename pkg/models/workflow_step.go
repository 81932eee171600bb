package models

// StepType classifies a workflow step.
type StepType string

const (
	StepTypeApproval     StepType = "approval"
	StepTypeReview       StepType = "review"
	StepTypeNotification StepType = "notification" // completes on activation
	StepTypeConditional  StepType = "conditional"  // may be skipped by the caller
)

// WorkflowStep is one stage of a WorkflowDefinition.
type WorkflowStep struct {
	ID                   string       `json:"id"                      validate:"required"`
	Name                 string       `json:"name"                    validate:"required"`
	Type                 StepType     `json:"type"                    validate:"required,oneof=approval review notification conditional"`
	Order                int          `json:"order"`
	AssignedTo           []string     `json:"assigned_to,omitempty"`
	AssignedRoles        []string     `json:"assigned_roles,omitempty"`
	RequiresAllApprovers bool         `json:"requires_all_approvers"`
	TimeoutDays          *int         `json:"timeout_days,omitempty"  validate:"omitempty,gt=0"`
	Conditions           []*Condition `json:"conditions,omitempty"`
	Actions              []*Action    `json:"actions,omitempty"`
}
