package main

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/approvals/pkg/cmd"
	"github.com/dukex/approvals/pkg/engine"
	"github.com/dukex/approvals/pkg/escalation"
	"github.com/dukex/approvals/pkg/models"
	"github.com/dukex/approvals/pkg/persistence/memory"
	"github.com/dukex/approvals/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *cmd.Components) {
	t.Helper()

	components, err := cmd.NewComponents(memory.NewPersistence(), nil, slog.Default(), cmd.EngineConfig{})
	require.NoError(t, err)

	escalator, err := escalation.New(components.Engine, components.Dispatcher, escalation.Config{
		Schedule:   "@every 1h",
		Policy:     escalation.PolicyAutoReject,
		SystemUser: "system",
	}, slog.Default())
	require.NoError(t, err)

	return NewService(escalator, components.Dispatcher, slog.Default()), components
}

func TestService_RunOnce(t *testing.T) {
	service, components := newTestService(t)

	definition, err := components.Definitions.Register(t.Context(), testutil.CreateTestDefinition(
		testutil.WithEntityType(models.EntityTypeProduct),
		testutil.WithSteps(testutil.CreateTestStep("pm", 1, testutil.WithAssignees("pm@example.com"), testutil.WithTimeoutDays(3))),
	))
	require.NoError(t, err)

	_, err = components.Engine.StartInstance(t.Context(), engine.StartRequest{
		DefinitionID: definition.ID,
		EntityID:     "sku-1",
		StartedBy:    "frank",
	})
	require.NoError(t, err)

	report, err := service.RunOnce(t.Context())
	require.NoError(t, err)
	assert.Equal(t, escalation.Report{Reconciled: 1}, report)
}

func TestService_RunStopsWithContext(t *testing.T) {
	service, _ := newTestService(t)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)

	go func() { done <- service.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("service did not stop")
	}
}
