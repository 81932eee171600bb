package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/approvals/pkg/aggregator"
	"github.com/dukex/approvals/pkg/models"
	"github.com/dukex/approvals/pkg/otelhelper"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// DecisionRequest is one user's decision on a step instance. RequestID makes
// the submission idempotent; SubmitDecision assigns one when it is empty.
type DecisionRequest struct {
	RequestID      string          `json:"request_id,omitempty" validate:"omitempty,uuid"`
	InstanceID     string          `json:"instance_id"          validate:"required"`
	StepInstanceID string          `json:"step_instance_id"     validate:"required"`
	UserID         string          `json:"user_id"              validate:"required_without=UserEmail"`
	UserEmail      string          `json:"user_email"           validate:"required_without=UserID,omitempty,email"`
	Decision       models.Decision `json:"decision"`
	Comments       string          `json:"comments,omitempty"`
}

// SubmitDecision records a decision and applies the resulting verdict.
//
// It returns false without changing anything when the instance is not active,
// the step instance is unknown or not in progress, or the user already
// decided and duplicates are rejected. These are expected races between
// callers and are not errors. A missing instance is ErrInstanceNotFound.
func (e *Engine) SubmitDecision(ctx context.Context, req DecisionRequest) (bool, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.SubmitDecision",
		attribute.String(otelhelper.InstanceIDKey, req.InstanceID),
		attribute.String(otelhelper.StepInstanceKey, req.StepInstanceID),
		attribute.String(otelhelper.UserIDKey, req.UserID),
		attribute.String(otelhelper.DecisionKey, string(req.Decision)),
	)
	defer span.End()

	if req.RequestID == "" {
		req.RequestID = uuid.Must(uuid.NewV7()).String()
	}

	err := e.validate.Struct(req)
	if err != nil {
		err = newInstanceError("SubmitDecision", req.InstanceID, fmt.Errorf("%w: %w", ErrInvalidRequest, err))
		otelhelper.SetError(span, err)

		return false, err
	}

	if !req.Decision.Valid() {
		err = newInstanceError("SubmitDecision", req.InstanceID, fmt.Errorf("%w: %q", ErrInvalidDecision, req.Decision))
		otelhelper.SetError(span, err)

		return false, err
	}

	instance, applied, err := e.mutate(ctx, "SubmitDecision", req.InstanceID, func(instance *models.WorkflowInstance, now time.Time) (bool, []effect, error) {
		return e.applyDecision(instance, req, now)
	})
	if err != nil {
		otelhelper.SetError(span, err)

		return false, err
	}

	span.SetAttributes(attribute.Bool("approvals.decision.applied", applied))

	if !applied {
		e.logger.InfoContext(ctx, "Decision not applied",
			"instance_id", req.InstanceID,
			"step_instance_id", req.StepInstanceID,
			"instance_status", instance.Status,
		)

		return false, nil
	}

	e.logger.InfoContext(ctx, "Decision recorded",
		"instance_id", req.InstanceID,
		"step_instance_id", req.StepInstanceID,
		"decision", req.Decision,
		"instance_status", instance.Status,
	)

	return true, nil
}

func (e *Engine) applyDecision(instance *models.WorkflowInstance, req DecisionRequest, now time.Time) (bool, []effect, error) {
	if instance.HasDecisionRequest(req.RequestID) {
		return false, nil, errAlreadyApplied
	}

	if instance.Status != models.InstanceStatusActive {
		return false, nil, nil
	}

	step := instance.StepInstance(req.StepInstanceID)
	if step == nil || step.Status != models.StepStatusInProgress {
		return false, nil, nil
	}

	if e.duplicates == DuplicateReject && step.HasDecisionFrom(req.UserID, req.UserEmail) {
		return false, nil, nil
	}

	decision := models.ApprovalDecision{
		RequestID: req.RequestID,
		UserID:    req.UserID,
		UserEmail: req.UserEmail,
		Decision:  req.Decision,
		Comments:  req.Comments,
		Timestamp: now,
	}

	step.Approvals = append(step.Approvals, decision)

	switch aggregator.Evaluate(step.Approvals, step.AssignedTo, step.RequiresAllApprovers) {
	case aggregator.VerdictRejected:
		step.Status = models.StepStatusRejected
		step.CompletedAt = &now

		return true, []effect{cancel(instance, now, decision.Voter(), rejectionReason(step, decision))}, nil
	case aggregator.VerdictApproved:
		step.Status = models.StepStatusCompleted
		step.CompletedAt = &now

		effects := []effect{{kind: effectStepCompleted, step: step}}

		return true, append(effects, advance(instance, now)...), nil
	default:
		return true, nil, nil
	}
}
