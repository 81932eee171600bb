package tasks_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/approvals/pkg/hooks"
	"github.com/dukex/approvals/pkg/mocks"
	"github.com/dukex/approvals/pkg/models"
	"github.com/dukex/approvals/pkg/persistence/memory"
	"github.com/dukex/approvals/pkg/tasks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

func newManager(t *testing.T, h hooks.Hooks) (*tasks.Manager, *hooks.Dispatcher) {
	t.Helper()

	dispatcher := hooks.NewDispatcher(h, slog.Default())
	manager := tasks.NewManager(memory.NewPersistence(), dispatcher, slog.Default(), tasks.WithClock(func() time.Time { return baseTime }))

	return manager, dispatcher
}

func activeInstance(timeoutDays *int, assignees ...string) *models.WorkflowInstance {
	started := baseTime
	stepID := "step-inst-1"

	return &models.WorkflowInstance{
		ID:            "inst-1",
		WorkflowID:    "wf-1",
		Status:        models.InstanceStatusActive,
		CurrentStepID: &stepID,
		Priority:      models.TaskPriorityHigh,
		Steps: []*models.StepInstance{
			{
				ID:          stepID,
				StepID:      "legal",
				Status:      models.StepStatusInProgress,
				AssignedTo:  assignees,
				TimeoutDays: timeoutDays,
				StartedAt:   &started,
			},
		},
	}
}

func TestManager_CreateTasksForStep(t *testing.T) {
	manager, dispatcher := newManager(t, nil)
	ctx := context.Background()

	days := 3
	instance := activeInstance(&days, "alice", "bob", "alice")

	created, err := manager.CreateTasksForStep(ctx, instance, instance.Steps[0])
	require.NoError(t, err)
	require.Len(t, created, 2)

	for _, task := range created {
		assert.Equal(t, models.TaskStatusPending, task.Status)
		assert.Equal(t, models.TaskPriorityHigh, task.Priority)
		require.NotNil(t, task.DueDate)
		assert.Equal(t, baseTime.AddDate(0, 0, 3), *task.DueDate)
		assert.Equal(t, tasks.TaskID("step-inst-1", task.AssignedTo), task.ID)
	}

	again, err := manager.CreateTasksForStep(ctx, instance, instance.Steps[0])
	require.NoError(t, err)
	assert.Empty(t, again)

	all, err := manager.GetInstanceTasks(ctx, "inst-1")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	dispatcher.Wait()
}

func TestManager_CreateTasksForStep_NoTimeout(t *testing.T) {
	manager, _ := newManager(t, nil)

	instance := activeInstance(nil, "alice")

	created, err := manager.CreateTasksForStep(context.Background(), instance, instance.Steps[0])
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Nil(t, created[0].DueDate)
}

func TestManager_CreateTasksForStep_FiresHook(t *testing.T) {
	mockHooks := &mocks.MockHooks{}
	mockHooks.On("OnTaskCreated", mock.Anything, mock.MatchedBy(func(task models.ApprovalTask) bool {
		return task.AssignedTo == "alice"
	})).Return(nil).Once()

	manager, dispatcher := newManager(t, mockHooks)
	instance := activeInstance(nil, "alice")

	_, err := manager.CreateTasksForStep(context.Background(), instance, instance.Steps[0])
	require.NoError(t, err)

	_, err = manager.CreateTasksForStep(context.Background(), instance, instance.Steps[0])
	require.NoError(t, err)

	dispatcher.Wait()
	mockHooks.AssertExpectations(t)
}

func TestManager_GetUserTasks_OldestFirst(t *testing.T) {
	manager, _ := newManager(t, nil)
	ctx := context.Background()

	first := activeInstance(nil, "alice")

	second := activeInstance(nil, "alice")
	second.ID = "inst-2"
	second.Steps[0].ID = "step-inst-2"
	later := baseTime.Add(time.Hour)
	second.Steps[0].StartedAt = &later

	_, err := manager.CreateTasksForStep(ctx, second, second.Steps[0])
	require.NoError(t, err)
	_, err = manager.CreateTasksForStep(ctx, first, first.Steps[0])
	require.NoError(t, err)

	userTasks, err := manager.GetUserTasks(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, userTasks, 2)
	assert.Equal(t, "inst-1", userTasks[0].WorkflowInstanceID)
	assert.Equal(t, "inst-2", userTasks[1].WorkflowInstanceID)

	none, err := manager.GetUserTasks(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestManager_OverdueIsAProjection(t *testing.T) {
	manager, _ := newManager(t, nil)
	ctx := context.Background()

	days := 1
	instance := activeInstance(&days, "alice")

	_, err := manager.CreateTasksForStep(ctx, instance, instance.Steps[0])
	require.NoError(t, err)

	overdue, err := manager.GetOverdueTasks(ctx, baseTime.AddDate(0, 0, 4))
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, models.TaskStatusOverdue, overdue[0].Status)

	stored, err := manager.GetTask(ctx, overdue[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusPending, stored.Status)

	notYet, err := manager.GetOverdueTasks(ctx, baseTime.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, notYet)
}

func TestManager_Reconcile(t *testing.T) {
	manager, _ := newManager(t, nil)
	ctx := context.Background()

	instance := activeInstance(nil, "alice", "bob")

	// Tasks are created by Reconcile when missing.
	require.NoError(t, manager.Reconcile(ctx, instance))

	all, err := manager.GetInstanceTasks(ctx, instance.ID)
	require.NoError(t, err)
	require.Len(t, all, 2)

	decidedAt := baseTime.Add(2 * time.Hour)
	step := instance.Steps[0]
	step.Approvals = append(step.Approvals, models.ApprovalDecision{
		UserID:    "alice",
		UserEmail: "alice@example.com",
		Decision:  models.DecisionApprove,
		Timestamp: decidedAt,
	})
	step.Status = models.StepStatusCompleted
	step.CompletedAt = &decidedAt
	instance.Status = models.InstanceStatusCompleted
	instance.CurrentStepID = nil

	require.NoError(t, manager.Reconcile(ctx, instance))

	alice, err := manager.GetTask(ctx, tasks.TaskID(step.ID, "alice"))
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCompleted, alice.Status)
	require.NotNil(t, alice.CompletedAt)
	assert.Equal(t, decidedAt, *alice.CompletedAt)

	bob, err := manager.GetTask(ctx, tasks.TaskID(step.ID, "bob"))
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCancelled, bob.Status)

	pending, err := manager.GetUserTasks(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, pending)

	// Reconciling again is a no-op.
	require.NoError(t, manager.Reconcile(ctx, instance))
}

func TestManager_Reconcile_MatchesAssigneeByEmail(t *testing.T) {
	manager, _ := newManager(t, nil)
	ctx := context.Background()

	instance := activeInstance(nil, "carol@example.com", "dave@example.com")
	require.NoError(t, manager.Reconcile(ctx, instance))

	instance.Steps[0].Approvals = append(instance.Steps[0].Approvals, models.ApprovalDecision{
		UserID:    "u-carol",
		UserEmail: "carol@example.com",
		Decision:  models.DecisionApprove,
		Timestamp: baseTime,
	})

	require.NoError(t, manager.Reconcile(ctx, instance))

	carol, err := manager.GetUserTasks(ctx, "carol@example.com")
	require.NoError(t, err)
	assert.Empty(t, carol)

	dave, err := manager.GetUserTasks(ctx, "dave@example.com")
	require.NoError(t, err)
	assert.Len(t, dave, 1)
}
