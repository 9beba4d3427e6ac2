package config

import (
	"maps"
	"time"

	"github.com/rbright/voxd/internal/history"
	"github.com/rbright/voxd/internal/router"
)

// RouterConfig builds the router configuration, including resolved credentials.
func (c Config) RouterConfig() router.Configuration {
	flavor := c.Routing.Flavor
	if flavor == "" {
		flavor = router.FlavorStandard
	}
	return router.Configuration{
		RoutingMode: c.Routing.Mode,
		Flavor:      flavor,
		Local:       c.Routing.Local,
		Prompts:     maps.Clone(c.Routing.Prompts),
		Remote:      maps.Clone(c.Routing.Remote),
		Providers:   maps.Clone(c.Routing.Providers),
		Credentials: maps.Clone(c.Credentials),
	}
}

// PrivacySettings returns the history gate. Validate has already checked the level.
func (c Config) PrivacySettings() history.Settings {
	level, err := history.ParseLevel(c.Privacy.Level)
	if err != nil {
		level = history.LevelStatsOnly
	}
	return history.Settings{Level: level, Scrub: c.Privacy.Scrub}
}

// SelectionTimeout returns the selection read budget.
func (c Config) SelectionTimeout() time.Duration {
	return time.Duration(c.Selection.TimeoutMS) * time.Millisecond
}

// TranscriberTimeout returns the transcription request budget.
func (c Config) TranscriberTimeout() time.Duration {
	return time.Duration(c.Transcriber.TimeoutMS) * time.Millisecond
}
