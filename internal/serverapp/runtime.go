package serverapp

import (
	"errors"
	"log/slog"
	"os"
)

// StopReason says why WaitForStop returned.
type StopReason string

const (
	StopSignal      StopReason = "signal"
	StopServerError StopReason = "server_error"
)

var errServerExited = errors.New("server stopped unexpectedly")

// Start begins serving GraphQL queries. It requires Init and returns the
// channel the listener reports failures on; repeated calls return the same
// channel.
func (a *App) Start() (<-chan error, error) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()

	if !a.initialized {
		return nil, errors.New("app is not initialized")
	}
	if a.started {
		return a.serverErrors, nil
	}

	entities := 0
	if a.schema != nil {
		entities = len(a.schema.Entities)
	}
	a.logger.Info("query engine ready",
		slog.Int("entities", entities),
		slog.String("dialect", a.cfg.Database.Dialect),
	)

	a.serverErrors = startServer(a.cfg, a.logger, a.srv, a.serverAddr)
	a.started = true
	return a.serverErrors, nil
}

// WaitForStop blocks until a signal arrives on stop or the listener fails.
// A nil serverErrors falls back to the channel returned by Start; a nil stop
// waits on the listener alone.
func (a *App) WaitForStop(stop <-chan os.Signal, serverErrors <-chan error) (StopReason, error) {
	if serverErrors == nil {
		a.stateMu.Lock()
		if a.serverErrors != nil {
			serverErrors = a.serverErrors
		}
		a.stateMu.Unlock()
	}
	if stop == nil && serverErrors == nil {
		return "", errors.New("nothing to wait on: stop and serverErrors are both nil")
	}

	// receiving from a nil channel blocks, so a missing source drops out of
	// the select
	select {
	case sig := <-stop:
		if a.logger != nil {
			a.logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		}
		return StopSignal, nil
	case err := <-serverErrors:
		if err == nil {
			err = errServerExited
		}
		if a.logger != nil {
			a.logger.Error("listener stopped", slog.String("error", err.Error()))
		}
		return StopServerError, err
	}
}
