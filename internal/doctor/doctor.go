// Package doctor runs runtime readiness diagnostics for config, tools, audio, and backends.
package doctor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rbright/voxd/internal/audio"
	"github.com/rbright/voxd/internal/config"
	"github.com/rbright/voxd/internal/ipc"
	"github.com/rbright/voxd/internal/router"
	"github.com/rbright/voxd/internal/transcribe"
)

const probeTimeout = 2 * time.Second

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Options replaces live dependencies in tests.
type Options struct {
	List audio.Lister
	HTTP *http.Client
}

// Run executes environment/config/runtime checks for a loaded config.
// Probes run concurrently; the report keeps a stable order.
func Run(ctx context.Context, loaded config.Loaded, opts Options) Report {
	if opts.HTTP == nil {
		opts.HTTP = &http.Client{Timeout: probeTimeout}
	}
	cfg := loaded.Config

	probes := []func(context.Context) Check{
		func(context.Context) Check { return checkConfig(loaded) },
		func(context.Context) Check {
			return checkEnv("WAYLAND_DISPLAY", func(v string) bool {
				return strings.TrimSpace(v) != ""
			}, "wayland display detected", "WAYLAND_DISPLAY is empty")
		},
		func(context.Context) Check { return checkCommand(cfg.Clipboard.Argv, "clipboard_cmd") },
		func(ctx context.Context) Check { return checkAudioSelection(ctx, cfg, opts.List) },
		func(ctx context.Context) Check { return checkTranscriber(ctx, cfg, opts.HTTP) },
		func(context.Context) Check { return checkToken(cfg) },
		func(ctx context.Context) Check { return checkSocket(ctx, cfg) },
	}
	if cfg.Paste.Enable {
		probes = append(probes, func(context.Context) Check { return checkCommand(cfg.Paste.Cmd.Argv, "paste.cmd") })
	}
	if len(cfg.Selection.Cmd.Argv) > 0 {
		probes = append(probes, func(context.Context) Check { return checkCommand(cfg.Selection.Cmd.Argv, "selection.cmd") })
	}
	if strings.TrimSpace(cfg.Transcriber.GRPC) != "" {
		probes = append(probes, func(ctx context.Context) Check { return checkTranscriberGRPC(ctx, cfg) })
	}
	if cfg.Routing.Mode == router.RoutingLocal || strings.TrimSpace(cfg.Routing.Local.Endpoint) != "" {
		probes = append(probes, func(ctx context.Context) Check { return checkLocalEndpoint(ctx, cfg, opts.HTTP) })
	}

	checks := make([]Check, len(probes))
	var g errgroup.Group
	for i, probe := range probes {
		g.Go(func() error {
			checks[i] = probe(ctx)
			return nil
		})
	}
	_ = g.Wait()

	return Report{Checks: checks}
}

func checkConfig(loaded config.Loaded) Check {
	message := fmt.Sprintf("loaded %q", loaded.Path)
	if !loaded.Exists {
		message = fmt.Sprintf("%q not found; using defaults", loaded.Path)
	}
	if n := len(loaded.Warnings); n > 0 {
		message = fmt.Sprintf("%s (%d warnings)", message, n)
	}
	return Check{Name: "config", Pass: true, Message: message}
}

// checkEnv validates an environment variable through a caller-supplied predicate.
func checkEnv(name string, predicate func(string) bool, okMsg, failMsg string) Check {
	value := os.Getenv(name)
	if predicate(value) {
		return Check{Name: name, Pass: true, Message: okMsg}
	}
	return Check{Name: name, Pass: false, Message: failMsg}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	path, err := exec.LookPath(argv[0])
	if err != nil {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", argv[0])}
	}
	return Check{Name: name, Pass: true, Message: fmt.Sprintf("%s found at %s", argv[0], path)}
}

// checkAudioSelection runs live device selection to surface selection/fallback issues.
func checkAudioSelection(ctx context.Context, cfg config.Config, list audio.Lister) Check {
	selection, err := audio.SelectDevice(ctx, list, cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

func checkTranscriber(ctx context.Context, cfg config.Config, client *http.Client) Check {
	tc, err := transcribe.New(transcribe.Config{Endpoint: cfg.Transcriber.Endpoint, HTTP: client})
	if err != nil {
		return Check{Name: "transcriber.http", Pass: false, Message: err.Error()}
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if err := tc.CheckHTTP(ctx); err != nil {
		return Check{Name: "transcriber.http", Pass: false, Message: err.Error()}
	}
	return Check{Name: "transcriber.http", Pass: true, Message: fmt.Sprintf("reachable at %s", tc.Endpoint())}
}

func checkTranscriberGRPC(ctx context.Context, cfg config.Config) Check {
	addr := strings.TrimSpace(cfg.Transcriber.GRPC)
	if err := transcribe.ProbeGRPC(ctx, addr, probeTimeout); err != nil {
		return Check{Name: "transcriber.grpc", Pass: false, Message: err.Error()}
	}
	return Check{Name: "transcriber.grpc", Pass: true, Message: fmt.Sprintf("serving at %s", addr)}
}

func checkLocalEndpoint(ctx context.Context, cfg config.Config, client *http.Client) Check {
	endpoint := strings.TrimSpace(cfg.Routing.Local.Endpoint)
	if endpoint == "" {
		return Check{Name: "local.endpoint", Pass: false, Message: "routing.local.endpoint is empty"}
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	status, err := ProbeHTTP(ctx, client, endpoint)
	if err != nil {
		return Check{Name: "local.endpoint", Pass: false, Message: fmt.Sprintf("request failed: %v", err)}
	}
	if status >= 500 {
		return Check{Name: "local.endpoint", Pass: false, Message: fmt.Sprintf("HTTP %d from %s", status, endpoint)}
	}
	return Check{Name: "local.endpoint", Pass: true, Message: fmt.Sprintf("HTTP %d from %s", status, endpoint)}
}

func checkToken(cfg config.Config) Check {
	if strings.TrimSpace(cfg.Control.Token) == "" {
		return Check{Name: "control.token", Pass: false, Message: "control.token is empty; socket control is disabled"}
	}
	return Check{Name: "control.token", Pass: true, Message: "token configured"}
}

func checkSocket(ctx context.Context, cfg config.Config) Check {
	path := strings.TrimSpace(cfg.Control.Socket)
	if path == "" {
		return Check{Name: "control.socket", Pass: false, Message: "control.socket is empty"}
	}
	alive, err := ipc.Probe(ctx, path, 250*time.Millisecond)
	switch {
	case err != nil:
		return Check{Name: "control.socket", Pass: false, Message: err.Error()}
	case alive:
		return Check{Name: "control.socket", Pass: true, Message: fmt.Sprintf("daemon listening at %s", path)}
	default:
		return Check{Name: "control.socket", Pass: true, Message: fmt.Sprintf("no daemon at %s", path)}
	}
}

// ProbeHTTP issues GET base and returns the status code.
func ProbeHTTP(ctx context.Context, client *http.Client, base string) (int, error) {
	if client == nil {
		client = &http.Client{Timeout: probeTimeout}
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base, nil)
	if err != nil {
		return 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return resp.StatusCode, nil
}

// Failed lists failing check names in sorted order.
func (r Report) Failed() []string {
	var names []string
	for _, check := range r.Checks {
		if !check.Pass {
			names = append(names, check.Name)
		}
	}
	sort.Strings(names)
	return names
}
