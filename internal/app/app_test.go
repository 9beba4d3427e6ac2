package app

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/adrg/xdg"
	"github.com/stretchr/testify/require"

	"github.com/rbright/voxd/internal/history"
	"github.com/rbright/voxd/internal/ipc"
)

const testToken = "test-token"

func TestExecuteHelp(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"--help"}, &stdout, &stderr)
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdout.String(), "Usage:")
	require.Empty(t, stderr.String())
}

func TestExecuteVersion(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"version"}, &stdout, &stderr)
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdout.String(), "voxd")
	require.Empty(t, stderr.String())
}

func TestExecuteUnknownCommand(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"definitely-not-a-command"}, &stdout, &stderr)
	require.Equal(t, 2, exitCode)
	require.Contains(t, stderr.String(), "unknown command")
	require.Contains(t, stderr.String(), "Usage:")
}

func TestExecuteInvalidConfigFails(t *testing.T) {
	paths := setupRunnerEnv(t, "routing:\n  mode: sideways\n")

	var stderr bytes.Buffer
	runner := Runner{Stdout: &bytes.Buffer{}, Stderr: &stderr}
	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "status"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "routing.mode")
}

func TestControlStatusWhenDaemonNotRunning(t *testing.T) {
	paths := setupRunnerEnv(t, "")

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "status"})
	require.Equal(t, 0, exitCode)
	require.Equal(t, "not running\n", stdout.String())
	require.Empty(t, stderr.String())

	stdout.Reset()
	exitCode = runner.Execute(context.Background(), []string{"--config", paths.configPath, "stop"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "no running voxd daemon")
}

func TestControlRequiresToken(t *testing.T) {
	paths := setupRunnerEnv(t, "")
	t.Setenv("VOXD_CONTROL_TOKEN", "")
	require.NoError(t, os.WriteFile(paths.configPath, []byte(fmt.Sprintf(
		"control:\n  socket: %s\n", paths.socketPath)), 0o600))

	var stderr bytes.Buffer
	runner := Runner{Stdout: &bytes.Buffer{}, Stderr: &stderr}
	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "ping"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "control.token is empty")
}

func TestControlForwardsCommandsWithToken(t *testing.T) {
	paths := setupRunnerEnv(t, "")
	requests := make(chan ipc.Request, 8)

	stop := startControlServer(t, paths.socketPath, func(_ context.Context, req ipc.Request) string {
		requests <- req
		switch req.Command {
		case ipc.CommandStatus:
			return "capturing"
		case ipc.CommandPing:
			return ipc.ResponsePong
		case ipc.CommandStart:
			return ipc.Busy("transforming")
		default:
			return ipc.ResponseOK
		}
	})
	defer stop()

	for _, tc := range []struct {
		arg      string
		wantCode int
		wantOut  string
		wantErr  string
	}{
		{arg: "status", wantOut: "capturing\n"},
		{arg: "ping", wantOut: "PONG\n"},
		{arg: "stop", wantOut: "OK\n"},
		{arg: "reset", wantOut: "OK\n"},
		{arg: "start", wantCode: 1, wantErr: "daemon busy: transforming"},
	} {
		t.Run(tc.arg, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			runner := Runner{Stdout: &stdout, Stderr: &stderr}
			exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, tc.arg})
			require.Equal(t, tc.wantCode, exitCode, stderr.String())
			require.Equal(t, tc.wantOut, stdout.String())
			if tc.wantErr != "" {
				require.Contains(t, stderr.String(), tc.wantErr)
			}
			req := <-requests
			require.Equal(t, strings.ToUpper(tc.arg), string(req.Command))
			require.Equal(t, testToken, req.Token)
		})
	}
}

func TestHistoryPrintsRecentRecords(t *testing.T) {
	paths := setupRunnerEnv(t, "")

	var stdout bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &bytes.Buffer{}}
	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "history"})
	require.Equal(t, 0, exitCode)
	require.Equal(t, "no history recorded\n", stdout.String())

	store, err := history.OpenSQLite(paths.dbPath)
	require.NoError(t, err)
	base := time.Now().Add(-time.Hour)
	for i, outcome := range []history.Outcome{history.OutcomeDelivered, history.OutcomeFallback, history.OutcomeNoted} {
		require.NoError(t, store.Save(context.Background(), history.Record{
			ID:        fmt.Sprintf("r%d", i),
			SessionID: fmt.Sprintf("s%d", i),
			Mode:      "standard",
			Outcome:   outcome,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
			TotalMS:   1234,
			Output:    history.Text(fmt.Sprintf("output %d", i)),
		}))
	}
	require.NoError(t, store.Close())

	stdout.Reset()
	exitCode = runner.Execute(context.Background(), []string{"--config", paths.configPath, "history", "-n", "2"})
	require.Equal(t, 0, exitCode)

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "noted")
	require.Contains(t, lines[0], `"output 2"`)
	require.Contains(t, lines[1], "fallback")
	require.Contains(t, lines[1], "1,234ms")
}

func TestFormatRecord(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	line := formatRecord(history.Record{
		Mode:      "qa",
		Outcome:   history.OutcomeFailed,
		Provider:  "openai",
		StartedAt: now.Add(-3 * time.Minute),
		TotalMS:   15320,
		ErrorCode: "BACKEND_PERMANENT",
	}, now)

	require.Contains(t, line, "3 minutes ago")
	require.Contains(t, line, "qa")
	require.Contains(t, line, "openai")
	require.Contains(t, line, "15,320ms")
	require.Contains(t, line, "BACKEND_PERMANENT")

	require.Equal(t, "a b", excerpt("a\n\n b", 10))
	require.Equal(t, "abc…", excerpt("abcdef", 3))
}

func TestServeRunsCommandChannelAndControlSocket(t *testing.T) {
	paths := setupRunnerEnv(t, "")

	stdinReader, stdinWriter := io.Pipe()
	stdout := &syncBuffer{}
	runner := Runner{Stdin: stdinReader, Stdout: stdout, Stderr: &bytes.Buffer{}}

	done := make(chan int, 1)
	go func() {
		done <- runner.Execute(context.Background(), []string{"--config", paths.configPath, "serve"})
	}()

	require.Eventually(t, func() bool {
		reply, err := ipc.Send(context.Background(), paths.socketPath,
			ipc.Request{Command: ipc.CommandPing, Token: testToken}, 200*time.Millisecond)
		return err == nil && reply == ipc.ResponsePong
	}, 5*time.Second, 20*time.Millisecond)

	reply, err := ipc.Send(context.Background(), paths.socketPath,
		ipc.Request{Command: ipc.CommandStatus, Token: testToken}, time.Second)
	require.NoError(t, err)
	require.Equal(t, "idle", reply)

	reply, err = ipc.Send(context.Background(), paths.socketPath,
		ipc.Request{Command: ipc.CommandStatus, Token: "wrong"}, time.Second)
	require.NoError(t, err)
	require.Equal(t, ipc.Fail(ipc.ReasonInvalidToken), reply)

	_, err = io.WriteString(stdinWriter, `{"id":"1","command":"status"}`+"\n"+
		`{"id":"2","command":"get_history","limit":5}`+"\n"+
		`{"id":"3","command":"bogus"}`+"\n"+
		`{"id":"4","command":"shutdown"}`+"\n")
	require.NoError(t, err)

	select {
	case code := <-done:
		require.Equal(t, 0, code)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not exit after shutdown")
	}
	_ = stdinWriter.Close()

	lines := stdout.Lines(t)
	require.GreaterOrEqual(t, len(lines), 5)
	require.Equal(t, "ready", lines[0]["event"])

	responses := map[string]map[string]any{}
	for _, line := range lines {
		if id, ok := line["id"].(string); ok {
			responses[id] = line
		}
	}
	require.Equal(t, true, responses["1"]["success"])
	require.Equal(t, "idle", responses["1"]["data"].(map[string]any)["state"])
	require.Equal(t, true, responses["2"]["success"])
	require.Equal(t, false, responses["3"]["success"])
	require.Equal(t, "UNKNOWN_COMMAND", responses["3"]["error"].(map[string]any)["code"])
	require.Equal(t, true, responses["4"]["success"])

	_, err = os.Stat(paths.socketPath)
	require.ErrorIs(t, err, os.ErrNotExist)
	_, err = os.Stat(paths.dbPath)
	require.NoError(t, err)
}

func TestServeRefusesWhenDaemonAlreadyRunning(t *testing.T) {
	paths := setupRunnerEnv(t, "")
	stop := startControlServer(t, paths.socketPath, func(context.Context, ipc.Request) string {
		return ipc.ResponsePong
	})
	defer stop()

	var stderr bytes.Buffer
	runner := Runner{Stdin: strings.NewReader(""), Stdout: &bytes.Buffer{}, Stderr: &stderr}
	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "serve"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), ipc.ErrAlreadyRunning.Error())
}

type runnerPaths struct {
	configPath string
	socketPath string
	dbPath     string
}

// setupRunnerEnv writes a config rooted in temp dirs. extra is appended verbatim.
func setupRunnerEnv(t *testing.T, extra string) runnerPaths {
	t.Helper()

	t.Setenv("XDG_STATE_HOME", t.TempDir())
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	xdg.Reload()
	t.Cleanup(xdg.Reload)

	dir := t.TempDir()
	paths := runnerPaths{
		configPath: filepath.Join(dir, "config.yaml"),
		socketPath: filepath.Join(dir, "voxd.sock"),
		dbPath:     filepath.Join(dir, "history.db"),
	}

	content := fmt.Sprintf(`history:
  db_path: %s
  metrics_path: %s
  metrics_limit: 10
audio:
  input: default
  fallback: default
  dir: %s
notes:
  path: %s
control:
  token: %s
  socket: %s
`,
		paths.dbPath,
		filepath.Join(dir, "metrics.json"),
		filepath.Join(dir, "audio"),
		filepath.Join(dir, "notes.md"),
		testToken,
		paths.socketPath,
	)
	if extra != "" {
		content = extra
	}
	require.NoError(t, os.WriteFile(paths.configPath, []byte(content), 0o600))
	return paths
}

func startControlServer(t *testing.T, socketPath string, handler func(context.Context, ipc.Request) string) func() {
	t.Helper()

	listener, err := ipc.Acquire(context.Background(), socketPath, 100*time.Millisecond, 0, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ipc.NewServer(testToken, ipc.HandlerFunc(handler), nil).Serve(ctx, listener)
	}()

	return func() {
		cancel()
		require.NoError(t, <-done)
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Lines(t *testing.T) []map[string]any {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []map[string]any
	scanner := bufio.NewScanner(bytes.NewReader(b.buf.Bytes()))
	for scanner.Scan() {
		var line map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line), scanner.Text())
		out = append(out, line)
	}
	return out
}
