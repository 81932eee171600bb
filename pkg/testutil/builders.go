// Package testutil provides test data builders for workflow definitions.
package testutil

import (
	"github.com/dukex/approvals/pkg/models"
	"github.com/google/uuid"
)

// CreateTestDefinition creates a document definition with a single approval
// step. Overrides are applied in order.
func CreateTestDefinition(overrides ...func(*models.WorkflowDefinition)) *models.WorkflowDefinition {
	definition := &models.WorkflowDefinition{
		ID:         uuid.New().String(),
		Name:       "Test Workflow",
		EntityType: models.EntityTypeDocument,
		Steps: []*models.WorkflowStep{
			CreateTestStep("approval", 1, WithAssignees("approver@example.com")),
		},
	}

	for _, override := range overrides {
		override(definition)
	}

	return definition
}

// WithoutID leaves the ID to be generated on registration.
func WithoutID() func(*models.WorkflowDefinition) {
	return func(d *models.WorkflowDefinition) {
		d.ID = ""
	}
}

// WithName sets the definition name.
func WithName(name string) func(*models.WorkflowDefinition) {
	return func(d *models.WorkflowDefinition) {
		d.Name = name
	}
}

// WithEntityType sets the definition entity type.
func WithEntityType(entityType models.EntityType) func(*models.WorkflowDefinition) {
	return func(d *models.WorkflowDefinition) {
		d.EntityType = entityType
	}
}

// WithSteps replaces the definition steps.
func WithSteps(steps ...*models.WorkflowStep) func(*models.WorkflowDefinition) {
	return func(d *models.WorkflowDefinition) {
		d.Steps = steps
	}
}

// CreateTestStep creates an approval step without assignees.
func CreateTestStep(id string, order int, overrides ...func(*models.WorkflowStep)) *models.WorkflowStep {
	step := &models.WorkflowStep{
		ID:    id,
		Name:  "Step " + id,
		Type:  models.StepTypeApproval,
		Order: order,
	}

	for _, override := range overrides {
		override(step)
	}

	return step
}

// WithAssignees sets the users assigned to the step.
func WithAssignees(users ...string) func(*models.WorkflowStep) {
	return func(s *models.WorkflowStep) {
		s.AssignedTo = users
	}
}

// WithRoles sets the roles assigned to the step.
func WithRoles(roles ...string) func(*models.WorkflowStep) {
	return func(s *models.WorkflowStep) {
		s.AssignedRoles = roles
	}
}

// WithRequiresAll makes every assignee's approval necessary.
func WithRequiresAll() func(*models.WorkflowStep) {
	return func(s *models.WorkflowStep) {
		s.RequiresAllApprovers = true
	}
}

// WithTimeoutDays sets the step timeout.
func WithTimeoutDays(days int) func(*models.WorkflowStep) {
	return func(s *models.WorkflowStep) {
		s.TimeoutDays = &days
	}
}

// WithStepType sets the step type.
func WithStepType(stepType models.StepType) func(*models.WorkflowStep) {
	return func(s *models.WorkflowStep) {
		s.Type = stepType
	}
}
