package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/approvals/pkg/config"
	"github.com/dukex/approvals/pkg/services"
)

// SeedDefinitions registers the definitions found at path. Definitions whose
// ID is already stored are left untouched, so seeding is safe on every
// start. Definitions without an ID are registered under a new ID each time.
func SeedDefinitions(ctx context.Context, logger *slog.Logger, catalogue *services.Definition, path string) (int, error) {
	definitions, err := config.LoadDefinitionsPath(path)
	if err != nil {
		return 0, err
	}

	registered := 0

	for _, definition := range definitions {
		_, err := catalogue.Register(ctx, definition)
		if errors.Is(err, services.ErrDefinitionExists) {
			logger.DebugContext(ctx, "Definition already registered", "definition_id", definition.ID)

			continue
		}

		if err != nil {
			return registered, fmt.Errorf("failed to register definition %q: %w", definition.Name, err)
		}

		registered++

		logger.InfoContext(ctx, "Registered definition",
			"definition_id", definition.ID,
			"name", definition.Name,
			"entity_type", definition.EntityType,
		)
	}

	return registered, nil
}
