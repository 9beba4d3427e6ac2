package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/rbright/voxd/internal/audio"
	"github.com/rbright/voxd/internal/backend"
	"github.com/rbright/voxd/internal/config"
	"github.com/rbright/voxd/internal/daemon"
	"github.com/rbright/voxd/internal/doctor"
	"github.com/rbright/voxd/internal/history"
	"github.com/rbright/voxd/internal/ipc"
	"github.com/rbright/voxd/internal/notes"
	"github.com/rbright/voxd/internal/output"
	"github.com/rbright/voxd/internal/pipeline"
	"github.com/rbright/voxd/internal/protocol"
	"github.com/rbright/voxd/internal/router"
	"github.com/rbright/voxd/internal/session"
	"github.com/rbright/voxd/internal/transcribe"
	"github.com/rbright/voxd/internal/version"
)

const (
	socketProbeTimeout = 180 * time.Millisecond
	socketRetries      = 8
	shutdownTimeout    = 10 * time.Second
	probeTimeout       = 2 * time.Second
)

// serve builds every component from cfg, then runs the command channel on
// stdin/stdout alongside the control socket.
func serve(ctx context.Context, cfg config.Config, stdin io.Reader, stdout io.Writer, logger *slog.Logger) error {
	fs := afero.NewOsFs()

	store, err := history.OpenSQLite(cfg.History.DBPath)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer store.Close()
	metrics := history.NewMetricsLog(fs, cfg.History.MetricsPath, cfg.History.MetricsLimit)
	historyLog := history.NewLogger(store, metrics, cfg.PrivacySettings(), logger)

	transcriber, err := transcribe.New(transcribe.Config{
		Endpoint: cfg.Transcriber.Endpoint,
		Language: cfg.Transcriber.Language,
		Timeout:  cfg.TranscriberTimeout(),
		FS:       fs,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	emitter := protocol.NewEmitter(stdout, logger)
	mute := audio.MuteProbe{Input: cfg.Audio.Input, Fallback: cfg.Audio.Fallback}
	machine := session.NewMachine(logger, daemon.StateNotifier(emitter), mute)
	rt := router.New(cfg.RouterConfig(), backend.NewFactory(logger), logger)

	deps := pipeline.Deps{
		Machine: machine,
		Capture: audio.NewRecorder(audio.RecorderConfig{
			Dir:      cfg.Audio.Dir,
			Input:    cfg.Audio.Input,
			Fallback: cfg.Audio.Fallback,
			FS:       fs,
			Logger:   logger,
		}),
		Transcriber: transcriber,
		Router:      rt,
		Deliverer:   output.NewDeliverer(cfg, logger),
		Selection:   output.NewSelection(cfg, logger),
		Recorder:    historyLog,
		Events:      emitter,
	}
	if path := strings.TrimSpace(cfg.Notes.Path); path != "" {
		deps.Notes = notes.NewRetryingSink(notes.NewFileSink(fs, path), 0, 0, logger)
	}
	runner := pipeline.NewRunner(ctx, deps, pipeline.Options{
		SelectionTimeout: cfg.SelectionTimeout(),
		Language:         cfg.Translate.Language,
		FS:               fs,
		Logger:           logger,
	})

	d := daemon.New(daemon.Deps{
		Machine: machine,
		Runner:  runner,
		Router:  rt,
		History: historyLog,
		Store:   store,
		Checks:  healthChecks(cfg, transcriber),
		Events:  emitter,
		Version: version.Version,
		Logger:  logger,
	})

	listener, err := ipc.Acquire(ctx, cfg.Control.Socket, socketProbeTimeout, socketRetries, nil)
	if err != nil {
		closeDaemon(d, logger)
		return err
	}

	serverCtx, serverCancel := context.WithCancel(ctx)
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- ipc.NewServer(cfg.Control.Token, d.ControlHandler(), logger).Serve(serverCtx, listener)
	}()

	logger.Info("daemon ready", "socket", cfg.Control.Socket, "routing_mode", cfg.Routing.Mode)
	d.Ready()
	serveErr := protocol.Serve(ctx, stdin, emitter, d, logger)

	serverCancel()
	serverErr := <-serverErrCh
	closeDaemon(d, logger)
	logger.Info("daemon stopped")

	return errors.Join(serveErr, serverErr)
}

func closeDaemon(d *daemon.Daemon, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		logger.Warn("daemon shutdown incomplete", "error", err.Error())
	}
}

// healthChecks probes the transcription server and the local model endpoint.
func healthChecks(cfg config.Config, transcriber *transcribe.Client) []daemon.Check {
	checks := []daemon.Check{{Name: "transcriber", Run: transcriber.CheckHTTP}}

	if addr := strings.TrimSpace(cfg.Transcriber.GRPC); addr != "" {
		checks = append(checks, daemon.Check{Name: "transcriber_grpc", Run: func(ctx context.Context) error {
			return transcribe.ProbeGRPC(ctx, addr, probeTimeout)
		}})
	}

	if endpoint := strings.TrimSpace(cfg.Routing.Local.Endpoint); endpoint != "" {
		client := &http.Client{Timeout: probeTimeout}
		checks = append(checks, daemon.Check{Name: "local_backend", Run: func(ctx context.Context) error {
			status, err := doctor.ProbeHTTP(ctx, client, endpoint)
			if err != nil {
				return err
			}
			if status >= 500 {
				return fmt.Errorf("local backend returned HTTP %d", status)
			}
			return nil
		}})
	}
	return checks
}
