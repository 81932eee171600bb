package web

import (
	"github.com/dukex/approvals/pkg/aggregator"
	"github.com/dukex/approvals/pkg/models"
)

// DefinitionRequest is the request body for registering or revising a
// workflow definition.
type DefinitionRequest struct {
	ID          string                 `json:"id,omitempty"`
	Name        string                 `json:"name"                  validate:"required,min=3"`
	Description string                 `json:"description,omitempty"`
	EntityType  models.EntityType      `json:"entity_type,omitempty" validate:"omitempty,oneof=document product material fee report"`
	Triggers    []*models.Trigger      `json:"triggers,omitempty"`
	Steps       []*models.WorkflowStep `json:"steps"                 validate:"required,min=1"`
	CreatedBy   string                 `json:"created_by,omitempty"`
}

// Definition converts the request to a model. Step validation is left to
// the definition catalogue.
func (r DefinitionRequest) Definition() *models.WorkflowDefinition {
	return &models.WorkflowDefinition{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		EntityType:  r.EntityType,
		Triggers:    r.Triggers,
		Steps:       r.Steps,
		CreatedBy:   r.CreatedBy,
	}
}

// StartInstanceRequest is the request body for starting a workflow instance.
type StartInstanceRequest struct {
	DefinitionID string              `json:"definition_id"         validate:"required"`
	EntityType   models.EntityType   `json:"entity_type,omitempty"`
	EntityID     string              `json:"entity_id"             validate:"required"`
	EntityName   string              `json:"entity_name,omitempty"`
	StartedBy    string              `json:"started_by"            validate:"required"`
	Priority     models.TaskPriority `json:"priority,omitempty"`
	Metadata     map[string]any      `json:"metadata,omitempty"`
	SkipSteps    []string            `json:"skip_steps,omitempty"`
}

// DecisionRequest is the request body for deciding on a step instance.
type DecisionRequest struct {
	RequestID string          `json:"request_id,omitempty" validate:"omitempty,uuid"`
	UserID    string          `json:"user_id,omitempty"`
	UserEmail string          `json:"user_email,omitempty"`
	Decision  models.Decision `json:"decision"             validate:"required,oneof=approve reject request_changes"`
	Comments  string          `json:"comments,omitempty"`
}

// CancelInstanceRequest is the request body for cancelling an instance.
type CancelInstanceRequest struct {
	CancelledBy string `json:"cancelled_by" validate:"required"`
	Reason      string `json:"reason"       validate:"required"`
}

// StepProgress summarises the decisions recorded on a step instance.
type StepProgress struct {
	StepInstanceID string             `json:"step_instance_id"`
	StepID         string             `json:"step_id"`
	Status         models.StepStatus  `json:"status"`
	Approvers      int                `json:"approvers"`
	Assignees      int                `json:"assignees"`
	Verdict        aggregator.Verdict `json:"verdict"`
}

// InstanceResponse is an instance together with the progress of its steps.
type InstanceResponse struct {
	*models.WorkflowInstance

	Progress []StepProgress `json:"progress"`
}

// TransformInstanceResponse adds per-step progress to an instance.
func TransformInstanceResponse(instance *models.WorkflowInstance) InstanceResponse {
	progress := make([]StepProgress, 0, len(instance.Steps))

	for _, step := range instance.Steps {
		progress = append(progress, StepProgress{
			StepInstanceID: step.ID,
			StepID:         step.StepID,
			Status:         step.Status,
			Approvers:      aggregator.DistinctApprovers(step.Approvals),
			Assignees:      len(step.AssignedTo),
			Verdict:        aggregator.Evaluate(step.Approvals, step.AssignedTo, step.RequiresAllApprovers),
		})
	}

	return InstanceResponse{WorkflowInstance: instance, Progress: progress}
}

// TransformInstancesResponse applies TransformInstanceResponse to each instance.
func TransformInstancesResponse(instances []*models.WorkflowInstance) []InstanceResponse {
	responses := make([]InstanceResponse, 0, len(instances))

	for _, instance := range instances {
		responses = append(responses, TransformInstanceResponse(instance))
	}

	return responses
}
