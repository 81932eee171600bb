package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failedFields(err error) map[string]string {
	var validationErrors validator.ValidationErrors

	_ = errors.As(err, &validationErrors)

	fields := make(map[string]string, len(validationErrors))
	for _, fieldErr := range validationErrors {
		fields[fieldErr.Field()] = fieldErr.Tag()
	}

	return fields
}

func validDefinition() *WorkflowDefinition {
	days := 2

	return &WorkflowDefinition{
		ID:         "wf-1",
		Name:       "Document approval",
		EntityType: EntityTypeDocument,
		Steps: []*WorkflowStep{
			{ID: "review", Name: "Review", Type: StepTypeReview, Order: 1, AssignedTo: []string{"alice"}, TimeoutDays: &days},
		},
	}
}

// WorkflowDefinition Model Tests

func TestWorkflowDefinition_Validation(t *testing.T) {
	validate := validator.New(validator.WithRequiredStructEnabled())

	tests := []struct {
		name   string
		mutate func(*WorkflowDefinition)
		field  string
		tag    string
	}{
		{name: "valid", mutate: func(*WorkflowDefinition) {}},
		{name: "missing name", mutate: func(d *WorkflowDefinition) { d.Name = "" }, field: "Name", tag: "required"},
		{name: "short name", mutate: func(d *WorkflowDefinition) { d.Name = "ab" }, field: "Name", tag: "min"},
		{name: "unknown entity type", mutate: func(d *WorkflowDefinition) { d.EntityType = "invoice" }, field: "EntityType", tag: "oneof"},
		{name: "no steps", mutate: func(d *WorkflowDefinition) { d.Steps = nil }, field: "Steps", tag: "required"},
		{name: "step without id", mutate: func(d *WorkflowDefinition) { d.Steps[0].ID = "" }, field: "ID", tag: "required"},
		{name: "unknown step type", mutate: func(d *WorkflowDefinition) { d.Steps[0].Type = "vote" }, field: "Type", tag: "oneof"},
		{name: "zero timeout", mutate: func(d *WorkflowDefinition) { zero := 0; d.Steps[0].TimeoutDays = &zero }, field: "TimeoutDays", tag: "gt"},
		{name: "trigger without type", mutate: func(d *WorkflowDefinition) { d.Triggers = []*Trigger{{}} }, field: "Type", tag: "required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			definition := validDefinition()
			tt.mutate(definition)

			err := validate.Struct(definition)
			if tt.field == "" {
				require.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.Equal(t, tt.tag, failedFields(err)[tt.field])
		})
	}
}

func TestWorkflowDefinition_Step(t *testing.T) {
	definition := validDefinition()

	assert.Same(t, definition.Steps[0], definition.Step("review"))
	assert.Nil(t, definition.Step("missing"))
}

func TestWorkflowDefinition_RevisionNotSerialized(t *testing.T) {
	definition := validDefinition()
	definition.Revision = 7

	data, err := json.Marshal(definition)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "revision")
}

func TestEntityType_Valid(t *testing.T) {
	for _, entityType := range []EntityType{EntityTypeDocument, EntityTypeProduct, EntityTypeMaterial, EntityTypeFee, EntityTypeReport} {
		assert.True(t, entityType.Valid(), entityType)
	}

	assert.False(t, EntityType("invoice").Valid())
	assert.False(t, EntityType("").Valid())
}

// Decision Model Tests

func TestDecision_Valid(t *testing.T) {
	assert.True(t, DecisionApprove.Valid())
	assert.True(t, DecisionReject.Valid())
	assert.True(t, DecisionRequestChanges.Valid())
	assert.False(t, Decision("abstain").Valid())
}

func TestApprovalDecision_MadeBy(t *testing.T) {
	decision := ApprovalDecision{UserID: "u-1", UserEmail: "alice@example.com", Decision: DecisionApprove}

	assert.True(t, decision.MadeBy("u-1"))
	assert.True(t, decision.MadeBy("alice@example.com"))
	assert.False(t, decision.MadeBy("bob@example.com"))
	assert.False(t, decision.MadeBy(""))

	assert.Equal(t, "u-1", decision.Voter())
	assert.Equal(t, "bob@example.com", ApprovalDecision{UserEmail: "bob@example.com"}.Voter())
}

// WorkflowInstance Model Tests

func TestInstanceStatus_IsTerminal(t *testing.T) {
	assert.False(t, InstanceStatusActive.IsTerminal())
	assert.False(t, InstanceStatusPaused.IsTerminal())
	assert.True(t, InstanceStatusCompleted.IsTerminal())
	assert.True(t, InstanceStatusCancelled.IsTerminal())
}

func TestWorkflowInstance_CurrentStep(t *testing.T) {
	current := "si-2"
	instance := &WorkflowInstance{
		Steps: []*StepInstance{{ID: "si-1"}, {ID: "si-2"}},
	}

	assert.Nil(t, instance.CurrentStep())

	instance.CurrentStepID = &current
	assert.Same(t, instance.Steps[1], instance.CurrentStep())
	assert.Nil(t, instance.StepInstance("si-3"))
}

func TestStepInstance_HasDecisionFrom(t *testing.T) {
	step := &StepInstance{Approvals: []ApprovalDecision{{UserEmail: "alice@example.com", Decision: DecisionRequestChanges}}}

	assert.True(t, step.HasDecisionFrom("", "alice@example.com"))
	assert.True(t, step.HasDecisionFrom("alice@example.com", ""))
	assert.False(t, step.HasDecisionFrom("bob", "bob@example.com"))
}

func TestWorkflowInstance_HasDecisionRequest(t *testing.T) {
	instance := &WorkflowInstance{Steps: []*StepInstance{
		{ID: "s1", Approvals: []ApprovalDecision{{RequestID: "r1", UserID: "alice", Decision: DecisionApprove}}},
		{ID: "s2", Approvals: []ApprovalDecision{{UserID: "bob", Decision: DecisionApprove}}},
	}}

	assert.True(t, instance.HasDecisionRequest("r1"))
	assert.False(t, instance.HasDecisionRequest("r2"))
	assert.False(t, instance.HasDecisionRequest(""))
}

func TestWorkflowInstance_Clone(t *testing.T) {
	current := "si-1"
	original := &WorkflowInstance{
		ID:            "wi-1",
		CurrentStepID: &current,
		Metadata:      map[string]any{"source": "import"},
		Steps: []*StepInstance{{
			ID:         "si-1",
			AssignedTo: []string{"alice"},
			Approvals:  []ApprovalDecision{{UserID: "alice", Decision: DecisionApprove}},
		}},
	}

	clone := original.Clone()
	require.Equal(t, original, clone)

	clone.Steps[0].AssignedTo[0] = "mallory"
	clone.Steps[0].Approvals[0].Decision = DecisionReject
	clone.Steps[0].Status = StepStatusRejected
	*clone.CurrentStepID = "si-9"
	clone.Metadata["source"] = "api"

	assert.Equal(t, "alice", original.Steps[0].AssignedTo[0])
	assert.Equal(t, DecisionApprove, original.Steps[0].Approvals[0].Decision)
	assert.Empty(t, original.Steps[0].Status)
	assert.Equal(t, "si-1", *original.CurrentStepID)
	assert.Equal(t, "import", original.Metadata["source"])
}

// ApprovalTask Model Tests

func TestApprovalTask_IsOverdue(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name     string
		task     ApprovalTask
		expected bool
	}{
		{name: "pending past due", task: ApprovalTask{Status: TaskStatusPending, DueDate: &past}, expected: true},
		{name: "pending before due", task: ApprovalTask{Status: TaskStatusPending, DueDate: &future}},
		{name: "pending due now", task: ApprovalTask{Status: TaskStatusPending, DueDate: &now}},
		{name: "no due date", task: ApprovalTask{Status: TaskStatusPending}},
		{name: "completed past due", task: ApprovalTask{Status: TaskStatusCompleted, DueDate: &past}},
		{name: "cancelled past due", task: ApprovalTask{Status: TaskStatusCancelled, DueDate: &past}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.task.IsOverdue(now))
		})
	}
}

func TestTaskPriority_Valid(t *testing.T) {
	for _, priority := range []TaskPriority{TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh, TaskPriorityUrgent} {
		assert.True(t, priority.Valid(), priority)
	}

	assert.False(t, TaskPriority("critical").Valid())
}
