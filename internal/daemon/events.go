package daemon

import (
	"github.com/rbright/voxd/internal/history"
	"github.com/rbright/voxd/internal/pipeline"
	"github.com/rbright/voxd/internal/protocol"
	"github.com/rbright/voxd/internal/session"
)

type Ready struct {
	Version string `json:"version"`
}

// StateChanged is emitted for every applied transition, in order.
type StateChanged struct {
	State         string `json:"state"`
	Previous      string `json:"previous"`
	Mode          string `json:"mode,omitempty"`
	SessionID     string `json:"session_id,omitempty"`
	ActivityCount uint64 `json:"activity_count"`
}

// StateNotifier forwards machine transitions to events as state-changed.
func StateNotifier(events pipeline.Events) session.Notifier {
	return session.NotifierFunc(func(c session.Change) {
		if events == nil {
			return
		}
		events.Emit(protocol.EventStateChanged, StateChanged{
			State:         string(c.To),
			Previous:      string(c.From),
			Mode:          string(c.Mode),
			SessionID:     c.SessionID,
			ActivityCount: c.Activity,
		})
	})
}

type Acknowledged struct {
	OK bool `json:"ok"`
}

type Started struct {
	SessionID string `json:"session_id"`
	Mode      string `json:"mode"`
	State     string `json:"state"`
}

type Stopped struct {
	Stopped   bool   `json:"stopped"`
	SessionID string `json:"session_id,omitempty"`
}

type Cancelled struct {
	Cancelled bool `json:"cancelled"`
}

type Status struct {
	State               string            `json:"state"`
	Mode                string            `json:"mode,omitempty"`
	SessionID           string            `json:"session_id,omitempty"`
	ActivityCount       uint64            `json:"activity_count"`
	ConsecutiveFailures int64             `json:"consecutive_failures"`
	RoutingMode         string            `json:"routing_mode,omitempty"`
	Flavor              string            `json:"flavor,omitempty"`
	ConfigVersion       uint64            `json:"config_version,omitempty"`
	CachedAdapters      []string          `json:"cached_adapters"`
	Privacy             *history.Settings `json:"privacy,omitempty"`
	Version             string            `json:"version,omitempty"`
}

type Configured struct {
	Version        uint64   `json:"version"`
	RoutingMode    string   `json:"routing_mode"`
	Flavor         string   `json:"flavor"`
	CachedAdapters []string `json:"cached_adapters"`
}

type Injected struct {
	Delivered bool `json:"delivered"`
	Chars     int  `json:"chars"`
}

type HistoryPage struct {
	Records []history.Record `json:"records"`
}
