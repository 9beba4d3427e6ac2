package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/rbright/voxd/internal/history"
	"github.com/rbright/voxd/internal/pipeline"
	"github.com/rbright/voxd/internal/protocol"
	"github.com/rbright/voxd/internal/router"
	"github.com/rbright/voxd/internal/session"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
)

type startParams struct {
	Mode     string `json:"mode"`
	DeviceID string `json:"deviceId"`
}

func (d *Daemon) startRecording(ctx context.Context, req protocol.Request) (any, error) {
	var params startParams
	if err := req.Decode(&params); err != nil {
		return nil, err
	}
	mode, err := session.ParseMode(params.Mode)
	if err != nil {
		return nil, protocol.Errorf(protocol.CodeInvalidParams, "%v", err)
	}

	sess, err := d.deps.Runner.Start(ctx, mode, strings.TrimSpace(params.DeviceID))
	if err != nil {
		return nil, err
	}
	return Started{SessionID: sess.ID, Mode: string(sess.Mode), State: string(d.deps.Machine.State())}, nil
}

func (d *Daemon) stopRecording() (any, error) {
	sess, ok, err := d.deps.Runner.Stop()
	if err != nil {
		return nil, err
	}
	out := Stopped{Stopped: ok}
	if sess != nil {
		out.SessionID = sess.ID
	}
	return out, nil
}

func (d *Daemon) cancelRecording() (any, error) {
	return Cancelled{Cancelled: d.deps.Runner.Cancel()}, nil
}

func (d *Daemon) status() Status {
	out := Status{
		State:               string(d.deps.Machine.State()),
		ActivityCount:       d.deps.Machine.Activity(),
		ConsecutiveFailures: d.deps.Runner.ConsecutiveFailures(),
		Version:             d.deps.Version,
	}
	if sess := d.deps.Machine.Current(); sess != nil {
		out.SessionID = sess.ID
		out.Mode = string(sess.Mode)
	}
	if d.deps.Router != nil {
		cfg := d.deps.Router.Configuration()
		out.RoutingMode = string(cfg.RoutingMode)
		out.Flavor = string(cfg.Flavor)
		out.ConfigVersion = cfg.Version
		out.CachedAdapters = d.deps.Router.CachedKeys()
	}
	if d.deps.History != nil {
		settings := d.deps.History.Settings()
		out.Privacy = &settings
	}
	return out
}

type configureParams struct {
	Config json.RawMessage `json:"config"`
}

// configure merges the supplied routing fields over the current configuration.
func (d *Daemon) configure(req protocol.Request) (any, error) {
	var params configureParams
	if err := req.Decode(&params); err != nil {
		return nil, err
	}
	if len(params.Config) == 0 || string(params.Config) == "null" {
		return nil, protocol.Errorf(protocol.CodeInvalidParams, "configure requires a config object")
	}

	next := d.deps.Router.Configuration()
	if err := json.Unmarshal(params.Config, &next); err != nil {
		return nil, protocol.Errorf(protocol.CodeInvalidParams, "invalid config: %v", err)
	}
	if flavor, err := router.ParseFlavor(string(next.Flavor)); err == nil {
		next.Flavor = flavor
	}
	next.Credentials = d.deps.Credentials(next.Providers)

	if err := d.deps.Router.Configure(next); err != nil {
		return nil, err
	}
	applied := d.deps.Router.Configuration()
	d.logInfo("routing configured",
		"version", applied.Version,
		"routing_mode", applied.RoutingMode,
		"flavor", applied.Flavor,
		"cached_adapters", len(d.deps.Router.CachedKeys()),
	)
	return Configured{
		Version:        applied.Version,
		RoutingMode:    string(applied.RoutingMode),
		Flavor:         string(applied.Flavor),
		CachedAdapters: d.deps.Router.CachedKeys(),
	}, nil
}

type injectParams struct {
	Text string `json:"text"`
}

func (d *Daemon) injectText(ctx context.Context, req protocol.Request) (any, error) {
	var params injectParams
	if err := req.Decode(&params); err != nil {
		return nil, err
	}
	if err := d.deps.Runner.Inject(ctx, params.Text); err != nil {
		if errors.Is(err, pipeline.ErrEmptyText) {
			return nil, err
		}
		return nil, protocol.Errorf(protocol.CodeDeliveryFailed, "%v", err)
	}
	return Injected{Delivered: true, Chars: len([]rune(params.Text))}, nil
}

func (d *Daemon) quickWarmup() (any, error) {
	if err := d.deps.Runner.Warmup(); err != nil {
		return nil, err
	}
	return Acknowledged{OK: true}, nil
}

type privacyParams struct {
	Level string `json:"level"`
	Scrub *bool  `json:"scrub"`
}

func (d *Daemon) setPrivacySettings(req protocol.Request) (any, error) {
	if d.deps.History == nil {
		return nil, protocol.Errorf(protocol.CodeConfigurationError, "history logger is not configured")
	}
	var params privacyParams
	if err := req.Decode(&params); err != nil {
		return nil, err
	}

	settings := d.deps.History.Settings()
	if strings.TrimSpace(params.Level) != "" {
		level, err := history.ParseLevel(params.Level)
		if err != nil {
			return nil, protocol.Errorf(protocol.CodeInvalidParams, "%v", err)
		}
		settings.Level = level
	}
	if params.Scrub != nil {
		settings.Scrub = *params.Scrub
	}
	d.deps.History.SetSettings(settings)
	d.logInfo("privacy settings changed", "level", settings.Level, "scrub", settings.Scrub)
	return settings, nil
}

type historyParams struct {
	Limit int `json:"limit"`
}

func (d *Daemon) getHistory(ctx context.Context, req protocol.Request) (any, error) {
	if d.deps.Store == nil {
		return nil, protocol.Errorf(protocol.CodeConfigurationError, "history store is not configured")
	}
	var params historyParams
	if err := req.Decode(&params); err != nil {
		return nil, err
	}
	limit := params.Limit
	switch {
	case limit <= 0:
		limit = defaultHistoryLimit
	case limit > maxHistoryLimit:
		limit = maxHistoryLimit
	}

	records, err := d.deps.Store.Recent(ctx, limit)
	if err != nil {
		return nil, protocol.Errorf(protocol.CodeInternal, "read history: %v", err)
	}
	if records == nil {
		records = []history.Record{}
	}
	return HistoryPage{Records: records}, nil
}
