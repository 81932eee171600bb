package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dukex/approvals/pkg/cmd"
	"github.com/dukex/approvals/pkg/escalation"
	"github.com/dukex/approvals/pkg/log"
	cli "github.com/urfave/cli/v3"
)

const serviceName = "approvals-escalator"

func main() {
	cmd := &cli.Command{
		Name:                  serviceName,
		Usage:                 "Escalate overdue approval tasks on a schedule",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence (file://, memory://, postgres://, redis://)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers for the kafka event bus",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "schedule",
				Usage:   "Cron expression for escalation runs",
				Value:   escalation.DefaultSchedule,
				Sources: cli.EnvVars("ESCALATION_SCHEDULE"),
			},
			&cli.StringFlag{
				Name:    "policy",
				Usage:   "What to do with overdue tasks (notify, auto_reject)",
				Value:   string(escalation.PolicyNotify),
				Sources: cli.EnvVars("ESCALATION_POLICY"),
			},
			&cli.StringFlag{
				Name:    "system-user",
				Usage:   "User recorded on automatic rejections",
				Value:   "system",
				Sources: cli.EnvVars("ESCALATION_SYSTEM_USER"),
			},
			&cli.StringFlag{
				Name:    "system-email",
				Usage:   "E-mail recorded on automatic rejections",
				Sources: cli.EnvVars("ESCALATION_SYSTEM_EMAIL"),
			},
			&cli.BoolFlag{
				Name:  "once",
				Usage: "Run a single escalation pass and exit",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				Value:   "text",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("escalator")

			logger.InfoContext(ctx, "Initializing Approvals Escalator")

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), serviceName, logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			components, err := cmd.NewComponents(persistence, eventBus, logger, cmd.EngineConfig{})
			if err != nil {
				return err
			}

			escalator, err := escalation.New(components.Engine, components.Dispatcher, escalation.Config{
				Schedule:    command.String("schedule"),
				Policy:      escalation.Policy(command.String("policy")),
				SystemUser:  command.String("system-user"),
				SystemEmail: command.String("system-email"),
			}, logger)
			if err != nil {
				return err
			}

			service := NewService(escalator, components.Dispatcher, logger)

			if !command.Bool("once") {
				return service.Run(ctx)
			}

			report, err := service.RunOnce(ctx)

			_, _ = fmt.Fprintf(os.Stdout, "reconciled=%d overdue=%d notified=%d rejected=%d\n",
				report.Reconciled, report.Overdue, report.Notified, report.Rejected)

			return err
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
