// Package router maps pipeline modes onto cached backend adapters.
package router

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/rbright/voxd/internal/backend"
	"github.com/rbright/voxd/internal/session"
)

// ErrConfiguration marks routing that cannot produce any adapter.
var ErrConfiguration = errors.New("configuration error")

// LocalKey is the cache key of the single shared local adapter.
const LocalKey = "local:global"

// Builder constructs adapters from profiles.
type Builder interface {
	New(profile backend.Profile) (backend.Adapter, error)
}

// Router owns the routing configuration and the adapter cache.
type Router struct {
	builder Builder
	logger  *slog.Logger

	mu    sync.RWMutex
	cfg   Configuration
	cache map[string]backend.Adapter
}

// New returns a Router using cfg. The configuration version starts at 1.
func New(cfg Configuration, builder Builder, logger *slog.Logger) *Router {
	cfg = cfg.Clone()
	cfg.Version = 1
	return &Router{
		builder: builder,
		logger:  logger,
		cfg:     cfg,
		cache:   make(map[string]backend.Adapter),
	}
}

// Key returns the cache key for a provider/model pair.
func Key(provider backend.Provider, modelID string) string {
	if provider == backend.ProviderLocal {
		return LocalKey
	}
	return string(provider) + ":" + modelID
}

// Adapter resolves the adapter serving mode and returns it with its cache key.
func (r *Router) Adapter(mode session.Mode) (backend.Adapter, string, error) {
	r.mu.RLock()
	profile, fallbackReason := r.resolveLocked(mode)
	key := Key(profile.Provider, profile.ModelID)
	if a, ok := r.cache[key]; ok {
		r.mu.RUnlock()
		return a, key, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	// The configuration may have changed between the locks.
	profile, fallbackReason = r.resolveLocked(mode)
	key = Key(profile.Provider, profile.ModelID)
	if a, ok := r.cache[key]; ok {
		return a, key, nil
	}
	if fallbackReason != "" {
		r.logWarn("remote route unavailable; using local adapter", "mode", mode, "reason", fallbackReason)
	}

	if profile.Provider != backend.ProviderLocal {
		a, err := r.builder.New(profile)
		if err == nil {
			r.cache[key] = a
			return a, key, nil
		}
		r.logWarn("remote adapter construction failed; using local adapter",
			"mode", mode,
			"provider", profile.Provider,
			"model", profile.ModelID,
			"error", err.Error(),
		)
		profile = r.localProfileLocked()
		key = LocalKey
		if a, ok := r.cache[key]; ok {
			return a, key, nil
		}
	}

	if strings.TrimSpace(profile.ModelID) == "" {
		return nil, "", fmt.Errorf("%w: local model id is not configured", ErrConfiguration)
	}
	a, err := r.builder.New(profile)
	if err != nil {
		return nil, "", fmt.Errorf("%w: build local adapter: %v", ErrConfiguration, err)
	}
	r.cache[key] = a
	return a, key, nil
}

// resolveLocked picks the profile for mode. A non-empty reason means a remote route fell back to local.
func (r *Router) resolveLocked(mode session.Mode) (backend.Profile, string) {
	if r.cfg.RoutingMode != RoutingRemote {
		return r.localProfileLocked(), ""
	}

	route, ok := r.cfg.route(mode)
	if !ok {
		return r.localProfileLocked(), "no remote route"
	}
	if route.Provider == backend.ProviderLocal {
		return r.localProfileLocked(), ""
	}
	credential := strings.TrimSpace(r.cfg.Credentials[route.Provider])
	if credential == "" {
		return r.localProfileLocked(), "missing credential for " + string(route.Provider)
	}

	settings := r.cfg.Providers[route.Provider]
	return backend.Profile{
		Provider:       route.Provider,
		ModelID:        route.ModelID,
		PromptTemplate: r.cfg.flavorPrompt(),
		CredentialRef:  settings.CredentialRef,
		Credential:     credential,
		Endpoint:       settings.Endpoint,
	}, ""
}

func (r *Router) localProfileLocked() backend.Profile {
	return backend.Profile{
		Provider:       backend.ProviderLocal,
		ModelID:        r.cfg.Local.ModelID,
		PromptTemplate: r.cfg.flavorPrompt(),
		Endpoint:       r.cfg.Local.Endpoint,
	}
}

// Configure replaces the configuration. Anything beyond a flavor change clears the cache.
func (r *Router) Configure(cfg Configuration) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg = cfg.Clone()

	r.mu.Lock()
	defer r.mu.Unlock()

	flavorOnly := routingEqual(r.cfg, cfg)
	cfg.Version = r.cfg.Version + 1
	r.cfg = cfg

	if flavorOnly {
		r.applyPromptLocked()
		r.logDebug("routing flavor updated", "flavor", cfg.Flavor, "version", cfg.Version)
		return nil
	}

	dropped := len(r.cache)
	clear(r.cache)
	r.logInfo("routing configuration replaced",
		"version", cfg.Version,
		"routing_mode", cfg.RoutingMode,
		"dropped_adapters", dropped,
	)
	return nil
}

// SetFlavor changes only the flavor and keeps cached adapters.
func (r *Router) SetFlavor(flavor Flavor) error {
	if _, err := ParseFlavor(string(flavor)); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cfg.Flavor == flavor {
		return nil
	}
	r.cfg.Flavor = flavor
	r.cfg.Version++
	r.applyPromptLocked()
	return nil
}

func (r *Router) applyPromptLocked() {
	prompt := r.cfg.flavorPrompt()
	for _, a := range r.cache {
		a.SetPrompt(prompt)
	}
}

// Invalidate drops every cached adapter.
func (r *Router) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.cache)
}

// Configuration returns a copy of the active configuration.
func (r *Router) Configuration() Configuration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg.Clone()
}

// Flavor returns the active flavor.
func (r *Router) Flavor() Flavor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg.Flavor
}

// ModePrompt returns the per-call prompt template for mode.
func (r *Router) ModePrompt(mode session.Mode) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg.ModePrompt(mode)
}

// CachedKeys lists cached adapter keys in sorted order.
func (r *Router) CachedKeys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.cache))
	for k := range r.cache {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func (r *Router) logInfo(msg string, args ...any) {
	if r.logger == nil {
		return
	}
	r.logger.Info(msg, args...)
}

func (r *Router) logWarn(msg string, args ...any) {
	if r.logger == nil {
		return
	}
	r.logger.Warn(msg, args...)
}

func (r *Router) logDebug(msg string, args ...any) {
	if r.logger == nil {
		return
	}
	r.logger.Debug(msg, args...)
}
