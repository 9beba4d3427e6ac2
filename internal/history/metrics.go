package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// DefaultMetricsLimit is how many samples the rolling log keeps.
const DefaultMetricsLimit = 500

// Sample is one timing entry in the rolling metrics log.
type Sample struct {
	At        time.Time        `json:"at"`
	SessionID string           `json:"session_id"`
	Mode      string           `json:"mode"`
	Provider  string           `json:"provider,omitempty"`
	Outcome   Outcome          `json:"outcome"`
	TotalMS   int64            `json:"total_ms"`
	TimingsMS map[string]int64 `json:"timings_ms,omitempty"`
}

func sampleOf(rec Record) Sample {
	return Sample{
		At:        rec.StartedAt,
		SessionID: rec.SessionID,
		Mode:      rec.Mode,
		Provider:  rec.Provider,
		Outcome:   rec.Outcome,
		TotalMS:   rec.TotalMS,
		TimingsMS: maps.Clone(rec.TimingsMS),
	}
}

// MetricsLog keeps the latest samples in one JSON file, rewritten through a temp file and rename.
type MetricsLog struct {
	fs    afero.Fs
	path  string
	limit int

	mu sync.Mutex
}

func NewMetricsLog(fsys afero.Fs, path string, limit int) *MetricsLog {
	if limit <= 0 {
		limit = DefaultMetricsLimit
	}
	return &MetricsLog{fs: fsys, path: path, limit: limit}
}

// Append adds sample and drops the oldest entries beyond the limit.
func (m *MetricsLog) Append(sample Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	samples, err := m.readLocked()
	if err != nil {
		return err
	}
	samples = append(samples, sample)
	if over := len(samples) - m.limit; over > 0 {
		samples = samples[over:]
	}

	data, err := json.MarshalIndent(samples, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metrics: %w", err)
	}
	if err := m.fs.MkdirAll(filepath.Dir(m.path), 0o700); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	tmp := m.path + ".tmp"
	if err := afero.WriteFile(m.fs, tmp, data, 0o600); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	if err := m.fs.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("replace metrics: %w", err)
	}
	return nil
}

// Samples returns the persisted samples, oldest first.
func (m *MetricsLog) Samples() ([]Sample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readLocked()
}

func (m *MetricsLog) readLocked() ([]Sample, error) {
	data, err := afero.ReadFile(m.fs, m.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read metrics: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var samples []Sample
	if err := json.Unmarshal(data, &samples); err != nil {
		// A corrupt log restarts from empty rather than blocking new samples.
		return nil, nil
	}
	return samples, nil
}
