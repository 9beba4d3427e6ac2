// Package history persists one record per finished session through a single background writer.
package history

import (
	"fmt"
	"time"
)

// Outcome summarizes how a session ended.
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeFallback  Outcome = "fallback"
	OutcomeAnswered  Outcome = "answered"
	OutcomeNoted     Outcome = "noted"
	OutcomeEmpty     Outcome = "empty"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

// Record is an immutable snapshot of one session. Nil text fields mean "not persisted".
type Record struct {
	ID        string           `json:"id"`
	SessionID string           `json:"session_id"`
	Mode      string           `json:"mode"`
	Provider  string           `json:"provider,omitempty"`
	Outcome   Outcome          `json:"outcome"`
	StartedAt time.Time        `json:"started_at"`
	TimingsMS map[string]int64 `json:"timings_ms,omitempty"`
	TotalMS   int64            `json:"total_ms"`
	Input     *string          `json:"input"`
	Output    *string          `json:"output"`
	Error     *string          `json:"error"`
	ErrorCode string           `json:"error_code,omitempty"`
}

// PersistenceError wraps a history write failure. It never affects pipeline outcome.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("history %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
