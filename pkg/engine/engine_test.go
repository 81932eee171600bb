package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukex/approvals/pkg/hooks"
	"github.com/dukex/approvals/pkg/models"
	"github.com/dukex/approvals/pkg/persistence"
	"github.com/dukex/approvals/pkg/persistence/memory"
	"github.com/dukex/approvals/pkg/services"
	"github.com/dukex/approvals/pkg/tasks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

// recordingHooks keeps every hook call for assertions.
type recordingHooks struct {
	mu        sync.Mutex
	created   []models.ApprovalTask
	steps     []models.StepInstance
	completed []models.WorkflowInstance
	cancelled []models.WorkflowInstance
	reasons   []string
}

func (r *recordingHooks) OnTaskCreated(_ context.Context, task models.ApprovalTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.created = append(r.created, task)

	return nil
}

func (r *recordingHooks) OnStepCompleted(_ context.Context, _ models.WorkflowInstance, step models.StepInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.steps = append(r.steps, step)

	return nil
}

func (r *recordingHooks) OnInstanceCompleted(_ context.Context, instance models.WorkflowInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.completed = append(r.completed, instance)

	return nil
}

func (r *recordingHooks) OnInstanceCancelled(_ context.Context, instance models.WorkflowInstance, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cancelled = append(r.cancelled, instance)
	r.reasons = append(r.reasons, reason)

	return nil
}

func (r *recordingHooks) OnTaskOverdue(context.Context, models.ApprovalTask, string) error {
	return nil
}

type fixture struct {
	engine      *Engine
	definitions *services.Definition
	tasks       *tasks.Manager
	store       persistence.Store
	dispatcher  *hooks.Dispatcher
	hooks       *recordingHooks
	clock       *fakeClock
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	return newFixtureWithStore(t, memory.NewPersistence(), opts...)
}

func newFixtureWithStore(t *testing.T, store persistence.Store, opts ...Option) *fixture {
	t.Helper()

	clock := &fakeClock{now: time.Date(2025, 5, 5, 8, 0, 0, 0, time.UTC)}
	recorder := &recordingHooks{}
	dispatcher := hooks.NewDispatcher(recorder, slog.Default())
	taskManager := tasks.NewManager(store, dispatcher, slog.Default(), tasks.WithClock(clock.Now))
	definitions := services.NewDefinition(store)

	opts = append([]Option{WithDispatcher(dispatcher), WithClock(clock.Now)}, opts...)

	return &fixture{
		engine:      New(store, definitions, taskManager, opts...),
		definitions: definitions,
		tasks:       taskManager,
		store:       store,
		dispatcher:  dispatcher,
		hooks:       recorder,
		clock:       clock,
	}
}

func (f *fixture) register(t *testing.T, steps ...*models.WorkflowStep) *models.WorkflowDefinition {
	t.Helper()

	definition, err := f.definitions.Register(t.Context(), &models.WorkflowDefinition{
		Name:       "Document approval",
		EntityType: models.EntityTypeDocument,
		Steps:      steps,
	})
	require.NoError(t, err)

	return definition
}

func (f *fixture) start(t *testing.T, definition *models.WorkflowDefinition, skip ...string) *models.WorkflowInstance {
	t.Helper()

	instance, err := f.engine.StartInstance(t.Context(), StartRequest{
		DefinitionID: definition.ID,
		EntityType:   models.EntityTypeDocument,
		EntityID:     "doc-42",
		EntityName:   "Supplier contract",
		StartedBy:    "requester@example.com",
		SkipSteps:    skip,
	})
	require.NoError(t, err)

	return instance
}

func (f *fixture) decide(t *testing.T, instanceID, stepInstanceID, user string, decision models.Decision) bool {
	t.Helper()

	applied, err := f.engine.SubmitDecision(t.Context(), DecisionRequest{
		InstanceID:     instanceID,
		StepInstanceID: stepInstanceID,
		UserID:         user,
		UserEmail:      user + "@example.com",
		Decision:       decision,
	})
	require.NoError(t, err)

	return applied
}

func (f *fixture) reload(t *testing.T, id string) *models.WorkflowInstance {
	t.Helper()

	instance, err := f.engine.GetInstance(t.Context(), id)
	require.NoError(t, err)

	return instance
}

func approvalStep(id string, order int, requiresAll bool, assignees ...string) *models.WorkflowStep {
	emails := make([]string, len(assignees))
	for i, assignee := range assignees {
		emails[i] = assignee + "@example.com"
	}

	return &models.WorkflowStep{
		ID:                   id,
		Name:                 id,
		Type:                 models.StepTypeApproval,
		Order:                order,
		AssignedTo:           emails,
		RequiresAllApprovers: requiresAll,
	}
}

func TestStartInstance_MaterializesSteps(t *testing.T) {
	f := newFixture(t)

	definition := f.register(t,
		approvalStep("manager", 1, false, "alice", "bob"),
		approvalStep("legal", 2, true, "carol", "dave"),
		approvalStep("finance", 3, false, "erin"),
	)

	instance := f.start(t, definition)

	assert.Equal(t, models.InstanceStatusActive, instance.Status)
	assert.Equal(t, definition.ID, instance.WorkflowID)
	assert.Equal(t, models.TaskPriorityMedium, instance.Priority)
	require.Len(t, instance.Steps, 3)

	first := instance.Steps[0]
	assert.Equal(t, models.StepStatusInProgress, first.Status)
	require.NotNil(t, first.StartedAt)
	assert.Equal(t, f.clock.Now(), *first.StartedAt)
	require.NotNil(t, instance.CurrentStepID)
	assert.Equal(t, first.ID, *instance.CurrentStepID)

	for _, step := range instance.Steps[1:] {
		assert.Equal(t, models.StepStatusPending, step.Status)
		assert.Nil(t, step.StartedAt)
	}

	inProgress := 0
	for _, step := range f.reload(t, instance.ID).Steps {
		if step.Status == models.StepStatusInProgress {
			inProgress++
		}
	}

	assert.Equal(t, 1, inProgress)

	for _, user := range []string{"alice@example.com", "bob@example.com"} {
		userTasks, err := f.engine.GetUserTasks(t.Context(), user)
		require.NoError(t, err)
		require.Len(t, userTasks, 1)
		assert.Equal(t, first.ID, userTasks[0].StepInstanceID)
	}

	carol, err := f.engine.GetUserTasks(t.Context(), "carol@example.com")
	require.NoError(t, err)
	assert.Empty(t, carol)

	f.dispatcher.Wait()
	assert.Len(t, f.hooks.created, 2)
}

func TestStartInstance_CopiesAssignees(t *testing.T) {
	f := newFixture(t)

	definition := f.register(t, approvalStep("manager", 1, false, "alice"))
	instance := f.start(t, definition)

	revised, err := f.definitions.Revise(t.Context(), definition.ID, &models.WorkflowDefinition{
		Name:  "Document approval",
		Steps: []*models.WorkflowStep{approvalStep("manager", 1, false, "mallory")},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"mallory@example.com"}, revised.Steps[0].AssignedTo)

	// The running instance keeps the assignees it was started with.
	running := f.reload(t, instance.ID)
	assert.Equal(t, []string{"alice@example.com"}, running.Steps[0].AssignedTo)
	assert.True(t, f.decide(t, instance.ID, running.Steps[0].ID, "alice", models.DecisionApprove))
}

func TestStartInstance_Errors(t *testing.T) {
	f := newFixture(t)

	definition := f.register(t, approvalStep("manager", 1, false, "alice"))

	t.Run("unknown definition", func(t *testing.T) {
		_, err := f.engine.StartInstance(t.Context(), StartRequest{DefinitionID: "missing", EntityID: "doc-1", StartedBy: "u"})
		require.ErrorIs(t, err, ErrDefinitionNotFound)
		assert.True(t, IsNotFound(err))
	})

	t.Run("entity type mismatch", func(t *testing.T) {
		_, err := f.engine.StartInstance(t.Context(), StartRequest{
			DefinitionID: definition.ID, EntityType: models.EntityTypeFee, EntityID: "fee-1", StartedBy: "u",
		})
		require.ErrorIs(t, err, ErrEntityTypeMismatch)
	})

	t.Run("missing entity", func(t *testing.T) {
		_, err := f.engine.StartInstance(t.Context(), StartRequest{DefinitionID: definition.ID, StartedBy: "u"})
		require.ErrorIs(t, err, ErrInvalidRequest)
		assert.True(t, IsValidationError(err))
	})

	t.Run("unknown skipped step", func(t *testing.T) {
		_, err := f.engine.StartInstance(t.Context(), StartRequest{
			DefinitionID: definition.ID, EntityID: "doc-1", StartedBy: "u", SkipSteps: []string{"nope"},
		})
		require.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("inactive definition", func(t *testing.T) {
		_, err := f.definitions.Deactivate(t.Context(), definition.ID)
		require.NoError(t, err)

		_, err = f.engine.StartInstance(t.Context(), StartRequest{DefinitionID: definition.ID, EntityID: "doc-1", StartedBy: "u"})
		require.ErrorIs(t, err, ErrDefinitionNotFound)
	})
}

func TestStartInstance_NoDeduplicationByEntity(t *testing.T) {
	f := newFixture(t)

	definition := f.register(t, approvalStep("manager", 1, false, "alice"))

	first := f.start(t, definition)
	second := f.start(t, definition)
	assert.NotEqual(t, first.ID, second.ID)

	f.clock.Advance(time.Minute)
	require.True(t, f.decide(t, second.ID, second.Steps[0].ID, "alice", models.DecisionApprove))

	byEntity, err := f.engine.GetInstancesByEntity(t.Context(), models.EntityTypeDocument, "doc-42")
	require.NoError(t, err)
	assert.Len(t, byEntity, 2)

	active, err := f.engine.GetActiveInstances(t.Context())
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, first.ID, active[0].ID)
}

func TestGetInstance_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.GetInstance(t.Context(), "missing")
	require.ErrorIs(t, err, ErrInstanceNotFound)
}

func TestStartInstance_RoleResolution(t *testing.T) {
	f := newFixture(t, WithRoleResolver(StaticRoles{"legal": {"carol@example.com", "alice@example.com"}}))

	step := approvalStep("review", 1, true, "alice")
	step.AssignedRoles = []string{"legal"}
	definition := f.register(t, step)

	instance := f.start(t, definition)
	assert.Equal(t, []string{"alice@example.com", "carol@example.com"}, instance.Steps[0].AssignedTo)

	require.True(t, f.decide(t, instance.ID, instance.Steps[0].ID, "alice", models.DecisionApprove))
	assert.Equal(t, models.InstanceStatusActive, f.reload(t, instance.ID).Status)

	require.True(t, f.decide(t, instance.ID, instance.Steps[0].ID, "carol", models.DecisionApprove))
	assert.Equal(t, models.InstanceStatusCompleted, f.reload(t, instance.ID).Status)
}

type failingRoles struct{}

func (failingRoles) ResolveRoles(context.Context, []string) ([]string, error) {
	return nil, errors.New("directory unavailable")
}

func TestStartInstance_RoleResolutionFailure(t *testing.T) {
	f := newFixture(t, WithRoleResolver(failingRoles{}))

	step := approvalStep("review", 1, false)
	step.AssignedRoles = []string{"legal"}
	definition := f.register(t, step)

	_, err := f.engine.StartInstance(t.Context(), StartRequest{DefinitionID: definition.ID, EntityID: "doc-1", StartedBy: "u"})
	require.Error(t, err)

	active, err := f.engine.GetActiveInstances(t.Context())
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestKeyedMutex_ReleasesEntries(t *testing.T) {
	locks := newKeyedMutex()

	var wg sync.WaitGroup

	counter := 0

	for range 50 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			unlock := locks.Lock("instance")
			counter++
			unlock()
		}()
	}

	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, locks.size())
}

func TestParseStaticRoles(t *testing.T) {
	roles, err := ParseStaticRoles([]string{"finance=alice, bob", "legal=carol"})
	require.NoError(t, err)

	users, err := roles.ResolveRoles(context.Background(), []string{"finance", "legal", "unknown"})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob", "carol"}, users)

	_, err = ParseStaticRoles([]string{"nobody"})
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestParseDuplicatePolicy(t *testing.T) {
	policy, err := ParseDuplicatePolicy("")
	require.NoError(t, err)
	assert.Equal(t, DuplicateAppend, policy)

	policy, err = ParseDuplicatePolicy("reject")
	require.NoError(t, err)
	assert.Equal(t, DuplicateReject, policy)

	_, err = ParseDuplicatePolicy("replace")
	require.ErrorIs(t, err, ErrInvalidRequest)
}
