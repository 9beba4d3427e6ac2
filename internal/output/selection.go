package output

import (
	"context"
	"log/slog"
	"strings"

	"github.com/rbright/voxd/internal/config"
)

// Selection reads the current text selection through an external command.
type Selection struct {
	argv   []string
	logger *slog.Logger
}

// NewSelection builds a selection reader. An empty command always reads "".
func NewSelection(cfg config.Config, logger *slog.Logger) *Selection {
	return &Selection{argv: cfg.Selection.Cmd.Argv, logger: logger}
}

// Selection returns the selected text with surrounding whitespace trimmed.
// A command that exits non-zero means nothing is selected.
func (s *Selection) Selection(ctx context.Context) (string, error) {
	if len(s.argv) == 0 {
		return "", nil
	}
	out, err := runCommand(ctx, s.argv, "")
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if s.logger != nil {
			s.logger.Debug("selection command failed; treating as empty", "error", err.Error())
		}
		return "", nil
	}
	return strings.TrimSpace(out), nil
}
