package config

import (
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
)

// ResolvePath applies CLI/XDG fallback rules for the config.yaml location.
func ResolvePath(explicit string) (string, error) {
	if strings.TrimSpace(explicit) != "" {
		return explicit, nil
	}
	return filepath.Join(xdg.ConfigHome, appName, "config.yaml"), nil
}

// envFilePath is the optional .env that sits beside the config file.
func envFilePath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), ".env")
}
