package doctor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rbright/voxd/internal/audio"
	"github.com/rbright/voxd/internal/config"
	"github.com/rbright/voxd/internal/router"
)

func TestReportOKAndString(t *testing.T) {
	report := Report{Checks: []Check{
		{Name: "one", Pass: true, Message: "good"},
		{Name: "two", Pass: false, Message: "bad"},
	}}

	require.False(t, report.OK())
	require.Equal(t, []string{"two"}, report.Failed())
	text := report.String()
	require.Contains(t, text, "[OK] one: good")
	require.Contains(t, text, "[FAIL] two: bad")
}

func TestReportOKAllPassing(t *testing.T) {
	report := Report{Checks: []Check{{Name: "one", Pass: true}, {Name: "two", Pass: true}}}
	require.True(t, report.OK())
	require.Empty(t, report.Failed())
}

func TestCheckEnv(t *testing.T) {
	t.Setenv("TEST_DOCTOR_ENV", "wayland-1")

	check := checkEnv(
		"TEST_DOCTOR_ENV",
		func(v string) bool { return strings.HasPrefix(v, "wayland") },
		"looks good",
		"unexpected",
	)

	require.True(t, check.Pass)
	require.Equal(t, "looks good", check.Message)
}

func TestCheckCommandEmpty(t *testing.T) {
	check := checkCommand(nil, "clipboard_cmd")
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "command is empty")
}

func TestCheckCommandMissingBinary(t *testing.T) {
	check := checkCommand([]string{"definitely-not-a-real-binary"}, "paste.cmd")
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "binary not found")
}

func TestCheckCommandUsesBinaryFromPath(t *testing.T) {
	dir := writeFakeBin(t, "fake-bin")

	check := checkCommand([]string{"fake-bin", "--arg"}, "clipboard_cmd")
	require.True(t, check.Pass)
	require.Equal(t, "clipboard_cmd", check.Name)
	require.Contains(t, check.Message, filepath.Join(dir, "fake-bin"))
}

func TestCheckAudioSelection(t *testing.T) {
	cfg := config.Default()
	list := func(context.Context) ([]audio.Device, error) {
		return []audio.Device{{ID: "mic-1", Available: true, Default: true}}, nil
	}

	check := checkAudioSelection(context.Background(), cfg, list)
	require.True(t, check.Pass)
	require.Contains(t, check.Message, `"mic-1"`)

	failing := func(context.Context) ([]audio.Device, error) { return nil, errors.New("pulse down") }
	check = checkAudioSelection(context.Background(), cfg, failing)
	require.False(t, check.Pass)
	require.Equal(t, "audio.device", check.Name)
	require.Contains(t, check.Message, "pulse down")
}

func TestCheckTranscriber(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(up.Close)

	cfg := config.Default()
	cfg.Transcriber.Endpoint = up.URL + "/v1/audio/transcriptions"
	check := checkTranscriber(context.Background(), cfg, up.Client())
	require.True(t, check.Pass, check.Message)

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(down.Close)

	cfg.Transcriber.Endpoint = down.URL + "/v1/audio/transcriptions"
	check = checkTranscriber(context.Background(), cfg, down.Client())
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "502")

	cfg.Transcriber.Endpoint = ""
	check = checkTranscriber(context.Background(), cfg, nil)
	require.False(t, check.Pass)
}

func TestCheckLocalEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("Ollama is running"))
	}))
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.Routing.Local.Endpoint = strings.TrimPrefix(server.URL, "http://")

	check := checkLocalEndpoint(context.Background(), cfg, server.Client())
	require.True(t, check.Pass, check.Message)
	require.Contains(t, check.Message, "HTTP 200")

	cfg.Routing.Local.Endpoint = ""
	check = checkLocalEndpoint(context.Background(), cfg, server.Client())
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "endpoint is empty")
}

func TestCheckTokenAndSocket(t *testing.T) {
	cfg := config.Default()
	cfg.Control.Token = ""
	require.False(t, checkToken(cfg).Pass)

	cfg.Control.Token = "secret"
	require.True(t, checkToken(cfg).Pass)

	cfg.Control.Socket = filepath.Join(t.TempDir(), "missing.sock")
	check := checkSocket(context.Background(), cfg)
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "no daemon")
}

func TestRunIncludesOptionalChecksAndKeepsOrder(t *testing.T) {
	writeFakeBin(t, "fake-paste")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.Paste.Enable = true
	cfg.Paste.Cmd = config.CommandConfig{Raw: "fake-paste", Argv: []string{"fake-paste"}}
	cfg.Selection.Cmd = config.CommandConfig{}
	cfg.Transcriber.Endpoint = server.URL + "/v1/audio/transcriptions"
	cfg.Routing.Mode = router.RoutingLocal
	cfg.Routing.Local.Endpoint = server.URL
	cfg.Control.Token = "secret"
	cfg.Control.Socket = filepath.Join(t.TempDir(), "voxd.sock")

	list := func(context.Context) ([]audio.Device, error) {
		return []audio.Device{{ID: "mic-1", Available: true, Default: true}}, nil
	}
	report := Run(context.Background(), config.Loaded{Path: "/tmp/config.yaml", Config: cfg, Exists: true}, Options{
		List: list,
		HTTP: server.Client(),
	})

	names := make([]string, 0, len(report.Checks))
	for _, check := range report.Checks {
		names = append(names, check.Name)
	}
	require.Equal(t, []string{
		"config",
		"WAYLAND_DISPLAY",
		"clipboard_cmd",
		"audio.device",
		"transcriber.http",
		"control.token",
		"control.socket",
		"paste.cmd",
		"local.endpoint",
	}, names)
	require.NotContains(t, names, "selection.cmd")
	require.NotContains(t, names, "transcriber.grpc")

	byName := map[string]Check{}
	for _, check := range report.Checks {
		byName[check.Name] = check
	}
	require.True(t, byName["paste.cmd"].Pass)
	require.True(t, byName["local.endpoint"].Pass)
	require.True(t, byName["transcriber.http"].Pass)
	require.Equal(t, `loaded "/tmp/config.yaml"`, byName["config"].Message)
}

func TestCheckConfigReportsMissingFileAndWarnings(t *testing.T) {
	check := checkConfig(config.Loaded{
		Path:     "/tmp/none.yaml",
		Warnings: []config.Warning{{Message: "a"}, {Message: "b"}},
	})
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "not found")
	require.Contains(t, check.Message, "2 warnings")
}

func writeFakeBin(t *testing.T, name string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("#!/usr/bin/env sh\nexit 0\n"), 0o755))
	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))
	return dir
}
