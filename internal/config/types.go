// Package config resolves, loads, validates, and defaults voxd configuration.
package config

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/rbright/voxd/internal/backend"
	"github.com/rbright/voxd/internal/router"
)

// Config is the fully materialized runtime configuration used by voxd.
type Config struct {
	Routing     RoutingConfig     `yaml:"routing"`
	Privacy     PrivacyConfig     `yaml:"privacy"`
	History     HistoryConfig     `yaml:"history"`
	Transcriber TranscriberConfig `yaml:"transcriber"`
	Audio       AudioConfig       `yaml:"audio"`
	Clipboard   CommandConfig     `yaml:"clipboard_cmd"`
	Paste       PasteConfig       `yaml:"paste"`
	Selection   SelectionConfig   `yaml:"selection"`
	Notes       NotesConfig       `yaml:"notes"`
	Translate   TranslateConfig   `yaml:"translate"`
	Control     ControlConfig     `yaml:"control"`

	// Credentials holds secrets resolved from each provider's credential_ref at load time.
	Credentials map[backend.Provider]string `yaml:"-"`
}

// RoutingConfig is the file form of router.Configuration.
type RoutingConfig struct {
	Mode      router.RoutingMode                           `yaml:"mode" validate:"required,oneof=local remote"`
	Flavor    router.Flavor                                `yaml:"flavor" validate:"omitempty,oneof=standard literal raw"`
	Local     router.LocalModel                            `yaml:"local"`
	Remote    map[string]router.Route                      `yaml:"remote,omitempty"`
	Providers map[backend.Provider]router.ProviderSettings `yaml:"providers,omitempty"`
	Prompts   map[string]string                            `yaml:"prompts,omitempty"`
}

// PrivacyConfig controls what the history logger persists.
type PrivacyConfig struct {
	Level string `yaml:"level" validate:"required"`
	Scrub bool   `yaml:"scrub"`
}

// HistoryConfig locates the history database and rolling metrics log.
type HistoryConfig struct {
	DBPath       string `yaml:"db_path" validate:"required"`
	MetricsPath  string `yaml:"metrics_path" validate:"required"`
	MetricsLimit int    `yaml:"metrics_limit" validate:"gte=0"`
}

// TranscriberConfig points at the speech-to-text server.
type TranscriberConfig struct {
	Endpoint  string `yaml:"endpoint" validate:"required,url"`
	GRPC      string `yaml:"grpc,omitempty" validate:"omitempty,hostname_port"`
	Language  string `yaml:"language,omitempty"`
	TimeoutMS int    `yaml:"timeout_ms" validate:"gte=0"`
}

// AudioConfig controls preferred and fallback input-source selection.
type AudioConfig struct {
	Input    string `yaml:"input"`
	Fallback string `yaml:"fallback"`
	Dir      string `yaml:"dir" validate:"required"`
}

// PasteConfig controls post-delivery paste behavior.
type PasteConfig struct {
	Enable bool          `yaml:"enable"`
	Cmd    CommandConfig `yaml:"cmd"`
}

// SelectionConfig reads the current text selection for refine and QA modes.
type SelectionConfig struct {
	Cmd       CommandConfig `yaml:"cmd"`
	TimeoutMS int           `yaml:"timeout_ms" validate:"gte=0"`
}

// NotesConfig locates the markdown file note mode appends to.
type NotesConfig struct {
	Path string `yaml:"path"`
}

// TranslateConfig holds the target language for translate mode.
type TranslateConfig struct {
	Language string `yaml:"language" validate:"required"`
}

// ControlConfig configures the authenticated unix socket.
type ControlConfig struct {
	Token  string `yaml:"token"`
	Socket string `yaml:"socket" validate:"required"`
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// UnmarshalYAML accepts a shell-like command string.
func (c *CommandConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("line %d: command must be a string", node.Line)
	}
	argv, err := parseArgv(raw)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	c.Raw = raw
	c.Argv = argv
	return nil
}

// MarshalYAML writes the raw command string back out.
func (c CommandConfig) MarshalYAML() (any, error) {
	return c.Raw, nil
}

// Warning is a non-fatal load/validation message.
type Warning struct {
	Line    int
	Message string
}
