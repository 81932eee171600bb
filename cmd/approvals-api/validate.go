package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dukex/approvals/pkg/config"
	"github.com/dukex/approvals/pkg/services"
	"github.com/urfave/cli/v3"
)

var ErrInvalidDefinitions = errors.New("invalid definitions found")

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Aliases:   []string{"v"},
		Usage:     "Validate workflow definition files without registering them",
		ArgsUsage: "<file or directory>",
		Action: func(_ context.Context, command *cli.Command) error {
			path := command.Args().First()
			if path == "" {
				return cli.Exit("a definitions file or directory is required", 1)
			}

			definitions, err := config.LoadDefinitionsPath(path)
			if err != nil {
				return err
			}

			// Validate only needs the rules, not a store.
			catalogue := services.NewDefinition(nil)

			valid := 0
			invalid := 0

			_, _ = fmt.Fprintln(os.Stdout, "Definition Validation Results:")
			_, _ = fmt.Fprintln(os.Stdout, "==============================")

			for _, definition := range definitions {
				_, _ = fmt.Fprintf(os.Stdout, "\nDefinition: %s (%s, %d steps)\n", definition.Name, definition.EntityType, len(definition.Steps))

				if err := catalogue.Validate(definition); err != nil {
					_, _ = fmt.Fprintf(os.Stdout, "    ❌ INVALID: %v\n", err)
					invalid++

					continue
				}

				_, _ = fmt.Fprintf(os.Stdout, "    ✅ VALID\n")
				valid++
			}

			_, _ = fmt.Fprintf(os.Stdout, "\nValidation Summary:\n")
			_, _ = fmt.Fprintf(os.Stdout, "  Total definitions: %d\n", valid+invalid)
			_, _ = fmt.Fprintf(os.Stdout, "  Valid definitions: %d\n", valid)
			_, _ = fmt.Fprintf(os.Stdout, "  Invalid definitions: %d\n", invalid)

			if invalid > 0 {
				return fmt.Errorf("%w: %d", ErrInvalidDefinitions, invalid)
			}

			return nil
		},
	}
}
