// Package app wires the command tree to configuration, logging, and the daemon.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/rbright/voxd/internal/audio"
	"github.com/rbright/voxd/internal/cli"
	"github.com/rbright/voxd/internal/config"
	"github.com/rbright/voxd/internal/doctor"
	"github.com/rbright/voxd/internal/history"
	"github.com/rbright/voxd/internal/ipc"
	"github.com/rbright/voxd/internal/logging"
	"github.com/rbright/voxd/internal/version"
)

const controlTimeout = 2 * time.Second

// Runner executes one CLI invocation.
type Runner struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

// Execute runs args and returns the process exit code: 0 ok, 1 failure, 2 usage.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdin: os.Stdin, Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	root := cli.NewRootCommand(r, r.Stdout, r.Stderr)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	switch {
	case err == nil:
		return 0
	case cli.IsUsage(err):
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, root.UsageString())
		return 2
	default:
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
}

// environment is the loaded config plus the logger for one command.
type environment struct {
	loaded config.Loaded
	logger *slog.Logger
	close  func()
}

func (r Runner) setup(command string, opts cli.Options) (environment, error) {
	var console io.Writer
	if opts.Verbose {
		console = r.Stderr
	}
	logRuntime, err := logging.New(logging.Options{Console: console, Verbose: opts.Verbose})
	if err != nil {
		return environment{}, fmt.Errorf("setup logging: %w", err)
	}

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	loaded, err := config.Load(opts.ConfigPath)
	if err != nil {
		logger.Error("load config failed", "error", err.Error())
		_ = logRuntime.Close()
		return environment{}, err
	}
	for _, w := range loaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	logger.Info("command start",
		"command", command,
		"config", loaded.Path,
		"log", logRuntime.Path,
	)
	return environment{
		loaded: loaded,
		logger: logger,
		close:  func() { _ = logRuntime.Close() },
	}, nil
}

// Serve runs the daemon until stdin closes, shutdown is requested, or ctx ends.
func (r Runner) Serve(ctx context.Context, opts cli.Options) error {
	env, err := r.setup("serve", opts)
	if err != nil {
		return err
	}
	defer env.close()

	stdin := r.Stdin
	if stdin == nil {
		stdin = os.Stdin
	}
	return serve(ctx, env.loaded.Config, stdin, r.Stdout, env.logger)
}

// Control forwards one command to the running daemon's control socket.
func (r Runner) Control(ctx context.Context, opts cli.Options, command ipc.Command) error {
	env, err := r.setup(strings.ToLower(string(command)), opts)
	if err != nil {
		return err
	}
	defer env.close()

	cfg := env.loaded.Config
	if strings.TrimSpace(cfg.Control.Token) == "" {
		return errors.New("control.token is empty; set it in the config file or VOXD_CONTROL_TOKEN")
	}

	reply, err := ipc.Send(ctx, cfg.Control.Socket, ipc.Request{Command: command, Token: cfg.Control.Token}, controlTimeout)
	if err != nil {
		if ipc.Unavailable(err) {
			if command == ipc.CommandStatus {
				fmt.Fprintln(r.Stdout, "not running")
				return nil
			}
			return errors.New("no running voxd daemon")
		}
		return fmt.Errorf("forward %s: %w", command, err)
	}
	if err := ipc.ReplyError(reply); err != nil {
		env.logger.Warn("control command refused", "command", command, "reply", reply)
		return err
	}

	fmt.Fprintln(r.Stdout, reply)
	return nil
}

// History prints recent records from the history store.
func (r Runner) History(ctx context.Context, opts cli.Options, limit int) error {
	env, err := r.setup("history", opts)
	if err != nil {
		return err
	}
	defer env.close()

	path := env.loaded.Config.History.DBPath
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(r.Stdout, "no history recorded")
		return nil
	}

	store, err := history.OpenSQLite(path)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.Recent(ctx, limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(r.Stdout, "no history recorded")
		return nil
	}
	for _, rec := range records {
		fmt.Fprintln(r.Stdout, formatRecord(rec, time.Now()))
	}
	return nil
}

func formatRecord(rec history.Record, now time.Time) string {
	provider := rec.Provider
	if provider == "" {
		provider = "-"
	}
	line := fmt.Sprintf("%-16s %-10s %-9s %-9s %sms",
		humanize.RelTime(rec.StartedAt, now, "ago", "from now"),
		rec.Mode,
		rec.Outcome,
		provider,
		humanize.Comma(rec.TotalMS),
	)
	if rec.ErrorCode != "" {
		line += " " + rec.ErrorCode
	}
	if rec.Output != nil && *rec.Output != "" {
		line += fmt.Sprintf(" %q", excerpt(*rec.Output, 60))
	}
	return line
}

func excerpt(text string, n int) string {
	runes := []rune(strings.Join(strings.Fields(text), " "))
	if len(runes) <= n {
		return string(runes)
	}
	return string(runes[:n]) + "…"
}

// Devices lists Pulse input sources.
func (r Runner) Devices(ctx context.Context, _ cli.Options) error {
	devices, err := audio.ListDevices(ctx)
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		return errors.New("no audio devices found")
	}

	for _, device := range devices {
		defaultMark := " "
		if device.Default {
			defaultMark = "*"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s id=%s | description=%q | state=%s | available=%s | muted=%s\n",
			defaultMark,
			device.ID,
			device.Description,
			device.State,
			yesNo(device.Available),
			yesNo(device.Muted),
		)
	}
	return nil
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

// Doctor prints the readiness report and fails when any check fails.
func (r Runner) Doctor(ctx context.Context, opts cli.Options) error {
	env, err := r.setup("doctor", opts)
	if err != nil {
		return err
	}
	defer env.close()

	report := doctor.Run(ctx, env.loaded, doctor.Options{})
	fmt.Fprintln(r.Stdout, report.String())
	if report.OK() {
		return nil
	}
	failed := report.Failed()
	env.logger.Warn("doctor checks failed", "failed", failed)
	return fmt.Errorf("%d doctor checks failed: %s", len(failed), strings.Join(failed, ", "))
}

func (r Runner) Version(context.Context) error {
	fmt.Fprintln(r.Stdout, version.String())
	return nil
}
