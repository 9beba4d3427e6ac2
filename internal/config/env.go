package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"

	"github.com/rbright/voxd/internal/backend"
	"github.com/rbright/voxd/internal/router"
)

// overrides are environment variables applied on top of the file.
type overrides struct {
	ControlToken  string `env:"VOXD_CONTROL_TOKEN"`
	SocketPath    string `env:"VOXD_SOCKET"`
	RoutingMode   string `env:"VOXD_ROUTING_MODE"`
	Flavor        string `env:"VOXD_FLAVOR"`
	PrivacyLevel  string `env:"VOXD_PRIVACY_LEVEL"`
	LocalModel    string `env:"VOXD_LOCAL_MODEL"`
	LocalEndpoint string `env:"VOXD_LOCAL_ENDPOINT"`
	Transcriber   string `env:"VOXD_TRANSCRIBER_URL"`
}

func loadDotEnv(path string) (bool, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	// godotenv.Load never replaces variables already present in the environment.
	if err := godotenv.Load(path); err != nil {
		return false, fmt.Errorf("load %q: %w", path, err)
	}
	return true, nil
}

func applyEnv(cfg *Config) ([]Warning, error) {
	var o overrides
	if _, err := env.UnmarshalFromEnviron(&o); err != nil {
		return nil, fmt.Errorf("read environment overrides: %w", err)
	}

	var warnings []Warning
	set := func(target *string, value string, name string) {
		value = strings.TrimSpace(value)
		if value == "" {
			return
		}
		*target = value
		warnings = append(warnings, Warning{Message: fmt.Sprintf("%s overrides config file", name)})
	}

	set(&cfg.Control.Token, o.ControlToken, "VOXD_CONTROL_TOKEN")
	set(&cfg.Control.Socket, o.SocketPath, "VOXD_SOCKET")
	set((*string)(&cfg.Routing.Mode), o.RoutingMode, "VOXD_ROUTING_MODE")
	set((*string)(&cfg.Routing.Flavor), o.Flavor, "VOXD_FLAVOR")
	set(&cfg.Privacy.Level, o.PrivacyLevel, "VOXD_PRIVACY_LEVEL")
	set(&cfg.Routing.Local.ModelID, o.LocalModel, "VOXD_LOCAL_MODEL")
	set(&cfg.Routing.Local.Endpoint, o.LocalEndpoint, "VOXD_LOCAL_ENDPOINT")
	set(&cfg.Transcriber.Endpoint, o.Transcriber, "VOXD_TRANSCRIBER_URL")
	return warnings, nil
}

// ResolveCredentials looks up every provider's credential_ref with lookup.
// Providers without a ref use <PROVIDER>_API_KEY.
func ResolveCredentials(providers map[backend.Provider]router.ProviderSettings, lookup func(string) (string, bool)) map[backend.Provider]string {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	out := make(map[backend.Provider]string)
	for _, provider := range []backend.Provider{backend.ProviderOpenAI, backend.ProviderAnthropic} {
		ref := strings.TrimSpace(providers[provider].CredentialRef)
		if ref == "" {
			ref = strings.ToUpper(string(provider)) + "_API_KEY"
		}
		if value, ok := lookup(ref); ok && strings.TrimSpace(value) != "" {
			out[provider] = strings.TrimSpace(value)
		}
	}
	return out
}
