package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukex/approvals/pkg/escalation"
	"github.com/dukex/approvals/pkg/hooks"
)

const shutdownTimeout = 30 * time.Second

// Service runs the escalator until the context ends or the process is asked
// to stop.
type Service struct {
	escalator  *escalation.Escalator
	dispatcher *hooks.Dispatcher
	logger     *slog.Logger
}

func NewService(escalator *escalation.Escalator, dispatcher *hooks.Dispatcher, logger *slog.Logger) *Service {
	return &Service{
		escalator:  escalator,
		dispatcher: dispatcher,
		logger:     logger.With("module", "escalator_service"),
	}
}

// Run starts the schedule and blocks until shutdown. Pending hook deliveries
// are drained before it returns.
func (s *Service) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.handleSignals(ctx, cancel)

	if err := s.escalator.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	s.logger.Info("Shutting down gracefully...")

	stopCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer stop()

	err := s.escalator.Stop(stopCtx)

	s.dispatcher.Wait()

	return err
}

// RunOnce performs a single escalation pass.
func (s *Service) RunOnce(ctx context.Context) (escalation.Report, error) {
	report, err := s.escalator.RunOnce(ctx)

	s.dispatcher.Wait()

	return report, err
}

func (s *Service) handleSignals(ctx context.Context, cancel context.CancelFunc) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(signals)

		select {
		case sig := <-signals:
			s.logger.Info("Received signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
}
