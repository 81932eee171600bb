package engine

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/dukex/approvals/pkg/models"
	"github.com/dukex/approvals/pkg/otelhelper"
	"github.com/dukex/approvals/pkg/services"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// StartRequest describes a new workflow instance.
type StartRequest struct {
	DefinitionID string              `json:"definition_id" validate:"required"`
	EntityType   models.EntityType   `json:"entity_type"   validate:"omitempty,oneof=document product material fee report"`
	EntityID     string              `json:"entity_id"     validate:"required"`
	EntityName   string              `json:"entity_name"`
	StartedBy    string              `json:"started_by"    validate:"required"`
	Priority     models.TaskPriority `json:"priority"      validate:"omitempty,oneof=low medium high urgent"`
	Metadata     map[string]any      `json:"metadata,omitempty"`
	// SkipSteps lists definition step IDs whose predicate the caller evaluated
	// to false. They are marked skipped when reached.
	SkipSteps []string `json:"skip_steps,omitempty"`
}

// StartInstance materialises an instance of an active definition and
// activates its first step. Instances are not deduplicated by entity.
func (e *Engine) StartInstance(ctx context.Context, req StartRequest) (*models.WorkflowInstance, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.StartInstance",
		attribute.String(otelhelper.WorkflowIDKey, req.DefinitionID),
		attribute.String(otelhelper.EntityIDKey, req.EntityID),
	)
	defer span.End()

	instance, err := e.startInstance(ctx, req)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	span.SetAttributes(attribute.String(otelhelper.InstanceIDKey, instance.ID))

	return instance, nil
}

func (e *Engine) startInstance(ctx context.Context, req StartRequest) (*models.WorkflowInstance, error) {
	err := e.validate.Struct(req)
	if err != nil {
		return nil, newInstanceError("StartInstance", "", fmt.Errorf("%w: %w", ErrInvalidRequest, err))
	}

	definition, err := e.definitions.GetActive(ctx, req.DefinitionID)
	if err != nil {
		if services.IsNotFoundError(err) {
			return nil, newInstanceError("StartInstance", "", err)
		}

		return nil, newInstanceError("StartInstance", "", fmt.Errorf("failed to load definition: %w", err))
	}

	if req.EntityType != "" && req.EntityType != definition.EntityType {
		return nil, newInstanceError("StartInstance", "", fmt.Errorf("%w: definition %s handles %s, got %s",
			ErrEntityTypeMismatch, definition.ID, definition.EntityType, req.EntityType))
	}

	for _, stepID := range req.SkipSteps {
		if definition.Step(stepID) == nil {
			return nil, newInstanceError("StartInstance", "", fmt.Errorf("%w: unknown step %q in skip list", ErrInvalidRequest, stepID))
		}
	}

	priority := req.Priority
	if priority == "" {
		priority = models.TaskPriorityMedium
	}

	now := e.now().UTC()

	instance := &models.WorkflowInstance{
		ID:         uuid.Must(uuid.NewV7()).String(),
		WorkflowID: definition.ID,
		EntityType: definition.EntityType,
		EntityID:   req.EntityID,
		EntityName: req.EntityName,
		Status:     models.InstanceStatusActive,
		Steps:      make([]*models.StepInstance, 0, len(definition.Steps)),
		Priority:   priority,
		StartedBy:  req.StartedBy,
		StartedAt:  now,
		Metadata:   req.Metadata,
	}

	for _, step := range definition.Steps {
		assignees, err := e.assignees(ctx, step)
		if err != nil {
			return nil, newInstanceError("StartInstance", "", err)
		}

		instance.Steps = append(instance.Steps, &models.StepInstance{
			ID:                   uuid.Must(uuid.NewV7()).String(),
			StepID:               step.ID,
			Name:                 step.Name,
			Type:                 step.Type,
			Order:                step.Order,
			Status:               models.StepStatusPending,
			AssignedTo:           assignees,
			AssignedRoles:        slices.Clone(step.AssignedRoles),
			RequiresAllApprovers: step.RequiresAllApprovers,
			TimeoutDays:          step.TimeoutDays,
			Skip:                 slices.Contains(req.SkipSteps, step.ID),
			Approvals:            []models.ApprovalDecision{},
		})
	}

	effects := advance(instance, now)

	err = e.instances.Save(ctx, instance)
	if err != nil {
		return nil, newInstanceError("StartInstance", instance.ID, err)
	}

	e.logger.InfoContext(ctx, "Started workflow instance",
		"instance_id", instance.ID,
		"workflow_id", definition.ID,
		"entity_type", instance.EntityType,
		"entity_id", instance.EntityID,
		"status", instance.Status,
	)

	e.afterCommit(ctx, instance, effects)

	return instance, nil
}

// assignees returns the users of a step: explicit assignees first, then the
// members of its roles, without duplicates.
func (e *Engine) assignees(ctx context.Context, step *models.WorkflowStep) ([]string, error) {
	users := slices.Clone(step.AssignedTo)

	if len(step.AssignedRoles) > 0 {
		members, err := e.roles.ResolveRoles(ctx, step.AssignedRoles)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve roles of step %s: %w", step.ID, err)
		}

		users = append(users, members...)
	}

	unique := make([]string, 0, len(users))

	for _, user := range users {
		if user != "" && !slices.Contains(unique, user) {
			unique = append(unique, user)
		}
	}

	return unique, nil
}

// CancelInstance force-cancels an open instance outside the decision path.
func (e *Engine) CancelInstance(ctx context.Context, id, cancelledBy, reason string) (*models.WorkflowInstance, error) {
	return e.changeStatus(ctx, "CancelInstance", id, func(instance *models.WorkflowInstance, now time.Time) (bool, []effect, error) {
		if instance.Status.IsTerminal() {
			return false, nil, fmt.Errorf("%w: instance is %s", ErrInvalidTransition, instance.Status)
		}

		return true, []effect{cancel(instance, now, cancelledBy, reason)}, nil
	})
}

// PauseInstance stops an active instance from accepting decisions.
func (e *Engine) PauseInstance(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	return e.changeStatus(ctx, "PauseInstance", id, func(instance *models.WorkflowInstance, _ time.Time) (bool, []effect, error) {
		if instance.Status != models.InstanceStatusActive {
			return false, nil, fmt.Errorf("%w: cannot pause a %s instance", ErrInvalidTransition, instance.Status)
		}

		instance.Status = models.InstanceStatusPaused

		return true, nil, nil
	})
}

// ResumeInstance lets a paused instance accept decisions again.
func (e *Engine) ResumeInstance(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	return e.changeStatus(ctx, "ResumeInstance", id, func(instance *models.WorkflowInstance, _ time.Time) (bool, []effect, error) {
		if instance.Status != models.InstanceStatusPaused {
			return false, nil, fmt.Errorf("%w: cannot resume a %s instance", ErrInvalidTransition, instance.Status)
		}

		instance.Status = models.InstanceStatusActive

		return true, nil, nil
	})
}

func (e *Engine) changeStatus(ctx context.Context, op, id string, fn transition) (*models.WorkflowInstance, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine."+op, attribute.String(otelhelper.InstanceIDKey, id))
	defer span.End()

	instance, _, err := e.mutate(ctx, op, id, fn)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	e.logger.InfoContext(ctx, "Instance status changed", "op", op, "instance_id", id, "status", instance.Status)

	return instance, nil
}
