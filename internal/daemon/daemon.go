// Package daemon dispatches command-channel and control-socket requests onto the pipeline.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/rbright/voxd/internal/backend"
	"github.com/rbright/voxd/internal/config"
	"github.com/rbright/voxd/internal/history"
	"github.com/rbright/voxd/internal/pipeline"
	"github.com/rbright/voxd/internal/protocol"
	"github.com/rbright/voxd/internal/router"
	"github.com/rbright/voxd/internal/session"
)

// HistoryReader lists persisted records, newest first.
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]history.Record, error)
}

// CredentialResolver maps provider settings to secrets.
type CredentialResolver func(map[backend.Provider]router.ProviderSettings) map[backend.Provider]string

// Deps are the long-lived components a Daemon drives. Store and Checks may be empty.
type Deps struct {
	Machine     *session.Machine
	Runner      *pipeline.Runner
	Router      *router.Router
	History     *history.Logger
	Store       HistoryReader
	Checks      []Check
	Credentials CredentialResolver
	Events      pipeline.Events
	Version     string
	Logger      *slog.Logger
}

// Daemon implements protocol.Handler and ipc.Handler over one pipeline.
type Daemon struct {
	deps   Deps
	logger *slog.Logger
}

// New builds a Daemon. Credentials default to environment lookup.
func New(deps Deps) *Daemon {
	if deps.Credentials == nil {
		deps.Credentials = func(providers map[backend.Provider]router.ProviderSettings) map[backend.Provider]string {
			return config.ResolveCredentials(providers, os.LookupEnv)
		}
	}
	return &Daemon{deps: deps, logger: deps.Logger}
}

// Ready announces the daemon on the event channel.
func (d *Daemon) Ready() {
	d.emit(protocol.EventReady, Ready{Version: d.deps.Version})
}

// Handle evaluates one command-channel request.
func (d *Daemon) Handle(ctx context.Context, req protocol.Request) (any, error) {
	d.logDebug("command received", "id", req.ID, "command", req.Command)

	var (
		data any
		err  error
	)
	switch req.Command {
	case protocol.CommandStartRecording:
		data, err = d.startRecording(ctx, req)
	case protocol.CommandStopRecording:
		data, err = d.stopRecording()
	case protocol.CommandCancelRecording:
		data, err = d.cancelRecording()
	case protocol.CommandStatus:
		data, err = d.status(), nil
	case protocol.CommandConfigure:
		data, err = d.configure(req)
	case protocol.CommandHealthCheck:
		data, err = d.healthCheck(ctx), nil
	case protocol.CommandInjectText:
		data, err = d.injectText(ctx, req)
	case protocol.CommandQuickWarmup:
		data, err = d.quickWarmup()
	case protocol.CommandSetPrivacySettings:
		data, err = d.setPrivacySettings(req)
	case protocol.CommandGetHistory:
		data, err = d.getHistory(ctx, req)
	case protocol.CommandShutdown:
		d.logInfo("shutdown requested", "id", req.ID)
		return Acknowledged{OK: true}, protocol.ErrShutdown
	default:
		return nil, protocol.Errorf(protocol.CodeUnknownCommand, "unknown command %q", req.Command)
	}
	if err != nil {
		werr := wireError(err)
		d.logWarn("command failed", "id", req.ID, "command", req.Command, "code", werr.Code, "error", err.Error())
		return nil, werr
	}
	return data, nil
}

// Close discards an open capture, waits for in-flight pipelines, then drains the history queue.
func (d *Daemon) Close(ctx context.Context) error {
	var errs []error
	if d.deps.Runner != nil {
		if d.deps.Runner.Cancel() {
			d.logInfo("capture discarded on shutdown")
		}
		if err := d.deps.Runner.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("wait for pipelines: %w", err))
		}
	}
	if d.deps.History != nil {
		if err := d.deps.History.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain history: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (d *Daemon) emit(event string, payload any) {
	if d.deps.Events == nil {
		return
	}
	d.deps.Events.Emit(event, payload)
}

func (d *Daemon) logInfo(msg string, args ...any) {
	if d.logger == nil {
		return
	}
	d.logger.Info(msg, args...)
}

func (d *Daemon) logWarn(msg string, args ...any) {
	if d.logger == nil {
		return
	}
	d.logger.Warn(msg, args...)
}

func (d *Daemon) logDebug(msg string, args ...any) {
	if d.logger == nil {
		return
	}
	d.logger.Debug(msg, args...)
}
