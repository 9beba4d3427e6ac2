package history

import (
	"fmt"
	"regexp"
	"strings"
)

// Level orders how much free text is persisted: silent < stats_only < balanced < full.
type Level string

const (
	LevelSilent    Level = "silent"
	LevelStatsOnly Level = "stats_only"
	LevelBalanced  Level = "balanced"
	LevelFull      Level = "full"
)

// Redacted replaces the captured input at LevelBalanced.
const Redacted = "[redacted]"

// ParseLevel accepts the level names plus dashed spellings.
func ParseLevel(raw string) (Level, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "-", "_")
	switch Level(normalized) {
	case LevelSilent, LevelStatsOnly, LevelBalanced, LevelFull:
		return Level(normalized), nil
	case "stats":
		return LevelStatsOnly, nil
	default:
		return "", fmt.Errorf("unknown privacy level %q", raw)
	}
}

// Settings is the privacy gate applied at enqueue time.
type Settings struct {
	Level Level `json:"level"`
	Scrub bool  `json:"scrub"`
}

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phonePattern = regexp.MustCompile(`(?:\+?\d{1,3}[\s.\-]?)?(?:\(\d{3}\)|\d{3})[\s.\-]?\d{3}[\s.\-]?\d{4}\b`)
)

// Scrub replaces email-like and phone-like substrings with placeholders.
func Scrub(text string) string {
	text = emailPattern.ReplaceAllString(text, "[EMAIL]")
	return phonePattern.ReplaceAllString(text, "[PHONE]")
}

// apply gates rec through s. ok is false when nothing should be persisted.
func (s Settings) apply(rec Record) (Record, bool) {
	switch s.Level {
	case LevelSilent:
		return Record{}, false
	case LevelStatsOnly:
		rec.Input, rec.Output, rec.Error = nil, nil, nil
		return rec, true
	case LevelBalanced:
		if rec.Input != nil {
			rec.Input = Text(Redacted)
		}
	case LevelFull:
	default:
		// Unknown levels persist metadata only.
		rec.Input, rec.Output, rec.Error = nil, nil, nil
		return rec, true
	}

	if s.Scrub {
		rec.Input = scrubPtr(rec.Input)
		rec.Output = scrubPtr(rec.Output)
		rec.Error = scrubPtr(rec.Error)
	}
	return rec, true
}

func scrubPtr(v *string) *string {
	if v == nil {
		return nil
	}
	return Text(Scrub(*v))
}

// Text returns a pointer to v for Record text fields.
func Text(v string) *string { return &v }
