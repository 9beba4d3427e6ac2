package router

import (
	"fmt"
	"maps"
	"reflect"
	"strings"

	"github.com/rbright/voxd/internal/backend"
	"github.com/rbright/voxd/internal/session"
)

// RoutingMode selects between the shared local adapter and per-mode remote routes.
type RoutingMode string

const (
	RoutingLocal  RoutingMode = "local"
	RoutingRemote RoutingMode = "remote"
)

// Flavor picks the default rewrite prompt. FlavorRaw skips transformation entirely.
type Flavor string

const (
	FlavorStandard Flavor = "standard"
	FlavorLiteral  Flavor = "literal"
	FlavorRaw      Flavor = "raw"
)

// ParseFlavor normalizes user input into a Flavor.
func ParseFlavor(raw string) (Flavor, error) {
	switch Flavor(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FlavorStandard:
		return FlavorStandard, nil
	case FlavorLiteral:
		return FlavorLiteral, nil
	case FlavorRaw:
		return FlavorRaw, nil
	default:
		return "", fmt.Errorf("unknown flavor %q", raw)
	}
}

// DefaultRoute is the Remote key used when a mode has no route of its own.
const DefaultRoute = "default"

type LocalModel struct {
	ModelID  string `json:"model_id" yaml:"model_id"`
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
}

type Route struct {
	Provider backend.Provider `json:"provider" yaml:"provider"`
	ModelID  string           `json:"model_id" yaml:"model_id"`
}

type ProviderSettings struct {
	Endpoint      string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	CredentialRef string `json:"credential_ref,omitempty" yaml:"credential_ref,omitempty"`
}

// Configuration is the complete routing input. Router replaces it as a whole.
type Configuration struct {
	Version     uint64                                `json:"version" yaml:"-"`
	RoutingMode RoutingMode                           `json:"routing_mode" yaml:"routing_mode"`
	Flavor      Flavor                                `json:"flavor" yaml:"flavor"`
	Local       LocalModel                            `json:"local" yaml:"local"`
	Prompts     map[string]string                     `json:"prompts,omitempty" yaml:"prompts,omitempty"`
	Remote      map[string]Route                      `json:"remote,omitempty" yaml:"remote,omitempty"`
	Providers   map[backend.Provider]ProviderSettings `json:"providers,omitempty" yaml:"providers,omitempty"`
	Credentials map[backend.Provider]string           `json:"-" yaml:"-"`
}

// Clone returns a deep copy.
func (c Configuration) Clone() Configuration {
	out := c
	out.Prompts = maps.Clone(c.Prompts)
	out.Remote = maps.Clone(c.Remote)
	out.Providers = maps.Clone(c.Providers)
	out.Credentials = maps.Clone(c.Credentials)
	return out
}

// Prompt returns the template for key, falling back to the built-in default.
func (c Configuration) Prompt(key string) string {
	if p, ok := c.Prompts[key]; ok && strings.TrimSpace(p) != "" {
		return p
	}
	return defaultPrompts[key]
}

// ModePrompt returns the per-call prompt for mode, or "" when the flavor prompt applies.
func (c Configuration) ModePrompt(mode session.Mode) string {
	if mode == session.ModeStandard {
		return ""
	}
	return c.Prompt(string(mode))
}

func (c Configuration) flavorPrompt() string {
	if c.Flavor == FlavorLiteral {
		return c.Prompt(string(FlavorLiteral))
	}
	return c.Prompt(string(FlavorStandard))
}

func (c Configuration) route(mode session.Mode) (Route, bool) {
	if r, ok := c.Remote[string(mode)]; ok && r.Provider != "" {
		return r, true
	}
	r, ok := c.Remote[DefaultRoute]
	return r, ok && r.Provider != ""
}

// Validate reports structural problems that make routing impossible.
func (c Configuration) Validate() error {
	switch c.RoutingMode {
	case RoutingLocal, RoutingRemote:
	default:
		return fmt.Errorf("%w: unknown routing mode %q", ErrConfiguration, c.RoutingMode)
	}
	if _, err := ParseFlavor(string(c.Flavor)); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	for key, r := range c.Remote {
		if !r.Provider.Valid() {
			return fmt.Errorf("%w: remote route %q has unknown provider %q", ErrConfiguration, key, r.Provider)
		}
	}
	for key, tmpl := range c.Prompts {
		if err := backend.ValidatePrompt(tmpl); err != nil {
			return fmt.Errorf("%w: prompt %q: %v", ErrConfiguration, key, err)
		}
	}
	return nil
}

// routingEqual reports whether a and b differ only in version or flavor.
func routingEqual(a Configuration, b Configuration) bool {
	a.Version, b.Version = 0, 0
	a.Flavor, b.Flavor = "", ""
	return reflect.DeepEqual(normalizeMaps(a), normalizeMaps(b))
}

func normalizeMaps(c Configuration) Configuration {
	if len(c.Prompts) == 0 {
		c.Prompts = nil
	}
	if len(c.Remote) == 0 {
		c.Remote = nil
	}
	if len(c.Providers) == 0 {
		c.Providers = nil
	}
	if len(c.Credentials) == 0 {
		c.Credentials = nil
	}
	return c
}
