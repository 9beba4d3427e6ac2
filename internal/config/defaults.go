package config

import (
	"path/filepath"

	"github.com/adrg/xdg"

	"github.com/rbright/voxd/internal/backend"
	"github.com/rbright/voxd/internal/history"
	"github.com/rbright/voxd/internal/router"
)

const appName = "voxd"

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	clipboard := "wl-copy --trim-newline"
	paste := "wtype -M ctrl v -m ctrl"
	selection := "wl-paste --primary --no-newline"
	state := filepath.Join(xdg.StateHome, appName)

	return Config{
		Routing: RoutingConfig{
			Mode:   router.RoutingLocal,
			Flavor: router.FlavorStandard,
			Local: router.LocalModel{
				ModelID:  "llama3.2:3b",
				Endpoint: "http://127.0.0.1:11434",
			},
			Providers: map[backend.Provider]router.ProviderSettings{
				backend.ProviderOpenAI:    {CredentialRef: "OPENAI_API_KEY"},
				backend.ProviderAnthropic: {CredentialRef: "ANTHROPIC_API_KEY"},
			},
		},
		Privacy: PrivacyConfig{Level: string(history.LevelStatsOnly)},
		History: HistoryConfig{
			DBPath:       filepath.Join(state, "history.db"),
			MetricsPath:  filepath.Join(state, "metrics.json"),
			MetricsLimit: history.DefaultMetricsLimit,
		},
		Transcriber: TranscriberConfig{
			Endpoint:  "http://127.0.0.1:9000/v1/audio/transcriptions",
			TimeoutMS: 30000,
		},
		Audio: AudioConfig{
			Input:    "default",
			Fallback: "default",
			Dir:      filepath.Join(xdg.CacheHome, appName, "audio"),
		},
		Clipboard: CommandConfig{Raw: clipboard, Argv: mustParseArgv(clipboard)},
		Paste: PasteConfig{
			Enable: true,
			Cmd:    CommandConfig{Raw: paste, Argv: mustParseArgv(paste)},
		},
		Selection: SelectionConfig{
			Cmd:       CommandConfig{Raw: selection, Argv: mustParseArgv(selection)},
			TimeoutMS: 750,
		},
		Notes:     NotesConfig{Path: filepath.Join(xdg.DataHome, appName, "notes.md")},
		Translate: TranslateConfig{Language: "English"},
		Control:   ControlConfig{Socket: DefaultSocketPath()},
	}
}

// DefaultSocketPath returns the control socket path under the runtime dir.
func DefaultSocketPath() string {
	return filepath.Join(xdg.RuntimeDir, appName+".sock")
}
