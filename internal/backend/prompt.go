package backend

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// PromptData is the value exposed to prompt templates.
type PromptData struct {
	Text        string
	Instruction string
	Selection   string
	Language    string
}

// RenderPrompt executes a text/template prompt against in.
func RenderPrompt(tmpl string, in Input) (string, error) {
	tmpl = strings.TrimSpace(tmpl)
	if tmpl == "" {
		return "", nil
	}

	parsed, err := template.New("prompt").Option("missingkey=zero").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parse prompt template: %w", err)
	}

	var buf bytes.Buffer
	if err := parsed.Execute(&buf, PromptData{
		Text:        in.Text,
		Instruction: in.Instruction,
		Selection:   in.Selection,
		Language:    in.Language,
	}); err != nil {
		return "", fmt.Errorf("render prompt template: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// ValidatePrompt reports template syntax errors without rendering.
func ValidatePrompt(tmpl string) error {
	if strings.TrimSpace(tmpl) == "" {
		return nil
	}
	if _, err := template.New("prompt").Parse(tmpl); err != nil {
		return fmt.Errorf("parse prompt template: %w", err)
	}
	return nil
}
