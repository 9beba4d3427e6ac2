package session

import (
	"fmt"
	"strings"
)

// Mode is the user-selected pipeline flavor for one session.
type Mode string

const (
	ModeStandard          Mode = "standard"
	ModeQuestion          Mode = "question-answer"
	ModeRefineSelection   Mode = "refine-selection"
	ModeRefineInstruction Mode = "refine-by-instruction"
	ModeNote              Mode = "note"
	ModeTranslate         Mode = "translate"
)

var modeAliases = map[string]Mode{
	"":                      ModeStandard,
	"standard":              ModeStandard,
	"dictation":             ModeStandard,
	"question-answer":       ModeQuestion,
	"question_answer":       ModeQuestion,
	"qa":                    ModeQuestion,
	"refine-selection":      ModeRefineSelection,
	"refine_selection":      ModeRefineSelection,
	"refine":                ModeRefineSelection,
	"refine-by-instruction": ModeRefineInstruction,
	"refine_by_instruction": ModeRefineInstruction,
	"instruction":           ModeRefineInstruction,
	"note":                  ModeNote,
	"translate":             ModeTranslate,
}

// ParseMode resolves a wire-level mode name, defaulting empty input to standard.
func ParseMode(raw string) (Mode, error) {
	mode, ok := modeAliases[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return "", fmt.Errorf("unknown mode %q", raw)
	}
	return mode, nil
}

// Modes lists every pipeline mode in a stable order.
func Modes() []Mode {
	return []Mode{ModeStandard, ModeQuestion, ModeRefineSelection, ModeRefineInstruction, ModeNote, ModeTranslate}
}
