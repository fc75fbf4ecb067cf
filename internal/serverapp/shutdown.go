package serverapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"relquery/internal/logging"
)

// cleanupStack holds teardown steps in acquisition order. The HTTP server is
// pushed last, so it drains before the database closes.
type cleanupStack struct {
	items []cleanupItem
}

type cleanupItem struct {
	name string
	fn   func(context.Context) error
}

func (s *cleanupStack) push(name string, fn func(context.Context) error) {
	s.items = append(s.items, cleanupItem{name: name, fn: fn})
}

// run executes every step even when earlier ones fail and returns the
// failures joined, each prefixed with its step name.
func (s *cleanupStack) run(ctx context.Context, logger *logging.Logger) error {
	var errs []error
	for i := len(s.items) - 1; i >= 0; i-- {
		item := s.items[i]
		start := time.Now()
		err := item.fn(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", item.name, err))
		}
		if logger == nil {
			continue
		}
		if err != nil {
			logger.Warn("teardown step failed",
				slog.String("component", item.name),
				slog.String("error", err.Error()),
			)
			continue
		}
		logger.Info("teardown step done",
			slog.String("component", item.name),
			slog.Duration("duration", time.Since(start)),
		)
	}
	return errors.Join(errs...)
}

// Shutdown stops the listener, closes the store and database, and flushes
// telemetry. Only the first call does work; later calls return its result.
func (a *App) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	a.shutdownOnce.Do(func() {
		a.stateMu.Lock()
		cleanup := a.cleanup
		a.started = false
		a.stateMu.Unlock()

		a.shutdownErr = cleanup.run(ctx, a.logger)
	})
	return a.shutdownErr
}
