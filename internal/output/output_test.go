package output

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rbright/voxd/internal/config"
	"github.com/stretchr/testify/require"
)

func TestRunCommandWithInputWritesStdin(t *testing.T) {
	scriptPath := writeStdinCaptureScript(t)
	outputPath := filepath.Join(t.TempDir(), "stdin.txt")

	err := runCommandWithInput(context.Background(), []string{scriptPath, outputPath}, "hello from voxd")
	require.NoError(t, err)

	data, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	require.Equal(t, "hello from voxd", string(data))
}

func TestRunCommandWithInputRejectsEmptyArgv(t *testing.T) {
	err := runCommandWithInput(context.Background(), nil, "payload")
	require.Error(t, err)
	require.Contains(t, err.Error(), "argv cannot be empty")
}

func TestRunCommandIncludesStderrInError(t *testing.T) {
	failScript := writeFailScript(t, "boom")

	_, err := runCommand(context.Background(), []string{failScript}, "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "boom")
}

func TestDeliverWritesClipboardWhenPasteDisabled(t *testing.T) {
	scriptPath := writeStdinCaptureScript(t)
	clipboardPath := filepath.Join(t.TempDir(), "clipboard.txt")

	cfg := config.Default()
	cfg.Paste.Enable = false
	cfg.Clipboard = config.CommandConfig{Argv: []string{scriptPath, clipboardPath}}

	err := NewDeliverer(cfg, nil).Deliver(context.Background(), "hello   world")
	require.NoError(t, err)

	data, err := os.ReadFile(clipboardPath)
	require.NoError(t, err)
	require.Equal(t, "hello   world", string(data))
}

func TestDeliverSkipsEmptyText(t *testing.T) {
	scriptPath := writeStdinCaptureScript(t)
	clipboardPath := filepath.Join(t.TempDir(), "clipboard.txt")

	cfg := config.Default()
	cfg.Paste.Enable = false
	cfg.Clipboard = config.CommandConfig{Argv: []string{scriptPath, clipboardPath}}

	require.NoError(t, NewDeliverer(cfg, nil).Deliver(context.Background(), ""))

	_, statErr := os.Stat(clipboardPath)
	require.True(t, os.IsNotExist(statErr))
}

func TestDeliverReturnsErrorWhenClipboardCommandFails(t *testing.T) {
	cfg := config.Default()
	cfg.Paste.Enable = false
	cfg.Clipboard = config.CommandConfig{Argv: []string{writeFailScript(t, "clipboard failed")}}

	err := NewDeliverer(cfg, nil).Deliver(context.Background(), "text")
	require.Error(t, err)
	require.Contains(t, err.Error(), "set clipboard")
}

func TestDeliverPasteFailureDoesNotFailDelivery(t *testing.T) {
	clipboardScript := writeStdinCaptureScript(t)
	clipboardPath := filepath.Join(t.TempDir(), "clipboard.txt")

	cfg := config.Default()
	cfg.Clipboard = config.CommandConfig{Argv: []string{clipboardScript, clipboardPath}}
	cfg.Paste.Enable = true
	cfg.Paste.Cmd = config.CommandConfig{Argv: []string{writeFailScript(t, "paste failed")}}

	require.NoError(t, NewDeliverer(cfg, nil).Deliver(context.Background(), "text"))

	data, err := os.ReadFile(clipboardPath)
	require.NoError(t, err)
	require.Equal(t, "text", string(data))
}

func TestDeliverRunsPasteAfterClipboard(t *testing.T) {
	dir := t.TempDir()
	order := filepath.Join(dir, "order.log")
	clipboard := writeScript(t, "clip.sh", "cat >/dev/null\necho clipboard >> \""+order+"\"\n")
	paste := writeScript(t, "paste.sh", "echo paste >> \""+order+"\"\n")

	cfg := config.Default()
	cfg.Clipboard = config.CommandConfig{Argv: []string{clipboard}}
	cfg.Paste.Enable = true
	cfg.Paste.Cmd = config.CommandConfig{Argv: []string{paste}}

	require.NoError(t, NewDeliverer(cfg, nil).Deliver(context.Background(), "text"))

	data, err := os.ReadFile(order)
	require.NoError(t, err)
	require.Equal(t, "clipboard\npaste\n", string(data))
}

func TestSelectionReturnsTrimmedStdout(t *testing.T) {
	cfg := config.Default()
	cfg.Selection.Cmd = config.CommandConfig{Argv: []string{writeScript(t, "sel.sh", "printf '  selected text \\n'\n")}}

	got, err := NewSelection(cfg, nil).Selection(context.Background())
	require.NoError(t, err)
	require.Equal(t, "selected text", got)
}

func TestSelectionCommandFailureReadsEmpty(t *testing.T) {
	cfg := config.Default()
	cfg.Selection.Cmd = config.CommandConfig{Argv: []string{writeFailScript(t, "nothing selected")}}

	got, err := NewSelection(cfg, nil).Selection(context.Background())
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestSelectionWithoutCommandReadsEmpty(t *testing.T) {
	cfg := config.Default()
	cfg.Selection.Cmd = config.CommandConfig{}

	got, err := NewSelection(cfg, nil).Selection(context.Background())
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestSelectionTimeoutReturnsContextError(t *testing.T) {
	cfg := config.Default()
	cfg.Selection.Cmd = config.CommandConfig{Argv: []string{"sleep", "5"}}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewSelection(cfg, nil).Selection(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func writeScript(t *testing.T, name string, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("#!/usr/bin/env bash\nset -euo pipefail\n"+body), 0o755))
	return path
}

func writeStdinCaptureScript(t *testing.T) string {
	t.Helper()
	return writeScript(t, "capture-stdin.sh", "cat > \"$1\"\n")
}

func writeFailScript(t *testing.T, message string) string {
	t.Helper()
	return writeScript(t, "fail.sh", "echo \""+message+"\" >&2\nexit 1\n")
}
