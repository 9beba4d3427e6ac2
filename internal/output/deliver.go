// Package output hands pipeline text to the desktop (clipboard, paste) and reads the selection back.
package output

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/rbright/voxd/internal/config"
)

const (
	clipboardTimeout = 2 * time.Second
	pasteTimeout     = 2 * time.Second
)

// Deliverer copies text to the clipboard and optionally dispatches a paste.
type Deliverer struct {
	clipboard []string
	paste     []string
	logger    *slog.Logger
}

// NewDeliverer builds a deliverer from the clipboard and paste commands.
func NewDeliverer(cfg config.Config, logger *slog.Logger) *Deliverer {
	d := &Deliverer{clipboard: cfg.Clipboard.Argv, logger: logger}
	if cfg.Paste.Enable {
		d.paste = cfg.Paste.Cmd.Argv
	}
	return d
}

// Deliver writes text to the clipboard. A paste failure is logged and the clipboard stays set.
func (d *Deliverer) Deliver(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}

	clipboardCtx, cancel := context.WithTimeout(ctx, clipboardTimeout)
	defer cancel()
	if err := runCommandWithInput(clipboardCtx, d.clipboard, text); err != nil {
		return fmt.Errorf("set clipboard: %w", err)
	}

	if len(d.paste) == 0 {
		return nil
	}
	pasteCtx, pasteCancel := context.WithTimeout(ctx, pasteTimeout)
	defer pasteCancel()
	if err := runCommandWithInput(pasteCtx, d.paste, ""); err != nil && d.logger != nil {
		d.logger.Error("paste dispatch failed; clipboard remains set", "error", err.Error())
	}
	return nil
}

// runCommandWithInput executes argv and optionally writes input to stdin.
func runCommandWithInput(ctx context.Context, argv []string, input string) error {
	_, err := runCommand(ctx, argv, input)
	return err
}

// runCommand executes argv with input on stdin and returns stdout.
func runCommand(ctx context.Context, argv []string, input string) (string, error) {
	if len(argv) == 0 {
		return "", fmt.Errorf("command argv cannot be empty")
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = strings.NewReader(input)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("run %s: %w: %s", argv[0], err, msg)
		}
		return "", fmt.Errorf("run %s: %w", argv[0], err)
	}
	return stdout.String(), nil
}
