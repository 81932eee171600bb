package cmd

import (
	"log/slog"
	"strings"

	"github.com/dukex/approvals/pkg/engine"
	"github.com/dukex/approvals/pkg/eventbus"
	"github.com/dukex/approvals/pkg/hooks"
	"github.com/dukex/approvals/pkg/persistence"
	"github.com/dukex/approvals/pkg/services"
	"github.com/dukex/approvals/pkg/tasks"
	"go.opentelemetry.io/otel/trace"
)

// EngineConfig holds the engine settings exposed as command-line flags.
type EngineConfig struct {
	DuplicatePolicy string
	// Roles is a ";" separated list of "role=user1,user2" entries.
	Roles  string
	Tracer trace.Tracer
}

// Components is the wired approval core shared by the binaries.
type Components struct {
	Store       persistence.Store
	Definitions *services.Definition
	Tasks       *tasks.Manager
	Dispatcher  *hooks.Dispatcher
	Engine      *engine.Engine
}

// NewComponents wires the definition catalogue, task manager and engine over
// store. Hooks publish to bus; a nil bus disables them.
func NewComponents(store persistence.Store, bus eventbus.EventBus, logger *slog.Logger, config EngineConfig) (*Components, error) {
	policy, err := engine.ParseDuplicatePolicy(config.DuplicatePolicy)
	if err != nil {
		return nil, err
	}

	roles, err := engine.ParseStaticRoles(ParseRoles(config.Roles))
	if err != nil {
		return nil, err
	}

	var receiver hooks.Hooks = hooks.Nop{}
	if bus != nil {
		receiver = hooks.NewPublisher(bus)
	}

	dispatcher := hooks.NewDispatcher(receiver, logger)
	definitions := services.NewDefinition(store)
	taskManager := tasks.NewManager(store, dispatcher, logger)

	opts := []engine.Option{
		engine.WithDispatcher(dispatcher),
		engine.WithRoleResolver(roles),
		engine.WithDuplicatePolicy(policy),
		engine.WithLogger(logger),
	}

	if config.Tracer != nil {
		opts = append(opts, engine.WithTracer(config.Tracer))
	}

	return &Components{
		Store:       store,
		Definitions: definitions,
		Tasks:       taskManager,
		Dispatcher:  dispatcher,
		Engine:      engine.New(store, definitions, taskManager, opts...),
	}, nil
}

// ParseRoles splits a ";" separated role table into entries.
func ParseRoles(value string) []string {
	var entries []string

	for entry := range strings.SplitSeq(value, ";") {
		if entry = strings.TrimSpace(entry); entry != "" {
			entries = append(entries, entry)
		}
	}

	return entries
}
