package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/approvals/pkg/models"
	"github.com/dukex/approvals/pkg/persistence"
)

type effectKind int

const (
	effectStepCompleted effectKind = iota
	effectInstanceCompleted
	effectInstanceCancelled
)

// effect is a hook owed once the transition that produced it is committed.
type effect struct {
	kind   effectKind
	step   *models.StepInstance
	reason string
}

// transition mutates a working copy of an instance. It reports whether
// anything changed and which hooks the change owes.
type transition func(instance *models.WorkflowInstance, now time.Time) (bool, []effect, error)

// mutate applies fn to the instance and commits it. A revision conflict means
// another writer got there first, so the instance is reloaded and fn evaluated
// again against the fresh state. When fn reports errAlreadyApplied after a
// conflict, the conflicting write was this call's own commit whose reply was
// lost; its hooks are still owed.
func (e *Engine) mutate(ctx context.Context, op, id string, fn transition) (*models.WorkflowInstance, bool, error) {
	unlock := e.locks.Lock(id)
	defer unlock()

	var (
		conflicted bool
		owed       []effect
	)

	for range e.retries {
		instance, err := e.instances.Get(ctx, id)
		if persistence.IsNotFound(err) {
			return nil, false, newInstanceError(op, id, ErrInstanceNotFound)
		}

		if err != nil {
			return nil, false, newInstanceError(op, id, err)
		}

		changed, effects, err := fn(instance, e.now().UTC())
		if errors.Is(err, errAlreadyApplied) {
			if conflicted {
				e.afterCommit(ctx, instance, owed)
			}

			return instance, true, nil
		}

		if err != nil {
			return instance, false, newInstanceError(op, id, err)
		}

		if !changed {
			return instance, false, nil
		}

		err = e.instances.Save(ctx, instance)
		if persistence.IsRevisionConflict(err) {
			e.logger.DebugContext(ctx, "Instance changed concurrently, retrying", "op", op, "instance_id", id)

			conflicted = true
			owed = effects

			continue
		}

		if err != nil {
			return nil, false, newInstanceError(op, id, err)
		}

		e.afterCommit(ctx, instance, effects)

		return instance, true, nil
	}

	return nil, false, newInstanceError(op, id, ErrTooManyConflicts)
}

// afterCommit runs the task bookkeeping and hands hooks to the dispatcher.
// Neither can undo the committed transition.
func (e *Engine) afterCommit(ctx context.Context, instance *models.WorkflowInstance, effects []effect) {
	err := e.tasks.Reconcile(ctx, instance)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to reconcile tasks", "instance_id", instance.ID, "error", err)
	}

	for _, fx := range effects {
		switch fx.kind {
		case effectStepCompleted:
			e.dispatcher.StepCompleted(ctx, instance, fx.step)
		case effectInstanceCompleted:
			e.dispatcher.InstanceCompleted(ctx, instance)
		case effectInstanceCancelled:
			e.dispatcher.InstanceCancelled(ctx, instance, fx.reason)
		}
	}
}

// advance activates the next pending step after the current one. Skipped
// steps are passed over and notification steps complete on activation. With
// no step left the instance completes.
func advance(instance *models.WorkflowInstance, now time.Time) []effect {
	var effects []effect

	next := 0

	if current := instance.CurrentStep(); current != nil {
		for i, step := range instance.Steps {
			if step.ID == current.ID {
				next = i + 1

				break
			}
		}
	}

	for _, step := range instance.Steps[next:] {
		if step.Status != models.StepStatusPending {
			continue
		}

		if step.Skip {
			step.Status = models.StepStatusSkipped
			step.CompletedAt = &now

			continue
		}

		activate(instance, step, now)

		if step.Type == models.StepTypeNotification {
			step.Status = models.StepStatusCompleted
			step.CompletedAt = &now
			effects = append(effects, effect{kind: effectStepCompleted, step: step})

			continue
		}

		return effects
	}

	instance.Status = models.InstanceStatusCompleted
	instance.CompletedAt = &now
	instance.CurrentStepID = nil

	return append(effects, effect{kind: effectInstanceCompleted})
}

func activate(instance *models.WorkflowInstance, step *models.StepInstance, now time.Time) {
	step.Status = models.StepStatusInProgress
	step.StartedAt = &now

	if step.TimeoutDays != nil {
		timeoutAt := now.AddDate(0, 0, *step.TimeoutDays)
		step.TimeoutAt = &timeoutAt
	}

	id := step.ID
	instance.CurrentStepID = &id
}

// cancel moves an instance to cancelled. Step statuses are left as they are.
func cancel(instance *models.WorkflowInstance, now time.Time, by, reason string) effect {
	instance.Status = models.InstanceStatusCancelled
	instance.CompletedAt = &now
	instance.CurrentStepID = nil
	instance.CancelledBy = by
	instance.CancelReason = reason

	return effect{kind: effectInstanceCancelled, reason: reason}
}

func rejectionReason(step *models.StepInstance, decision models.ApprovalDecision) string {
	return fmt.Sprintf("step %q rejected by %s", step.Name, decision.Voter())
}
