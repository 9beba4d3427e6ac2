package daemon

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	healthTimeout     = 5 * time.Second
	healthConcurrency = 4
)

// Check is one named dependency probe.
type Check struct {
	Name string
	Run  func(ctx context.Context) error
}

// CheckResult is the outcome of one probe.
type CheckResult struct {
	Name       string `json:"name"`
	OK         bool   `json:"ok"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// Health is the health_check response body.
type Health struct {
	Healthy bool          `json:"healthy"`
	Checks  []CheckResult `json:"checks"`
	Status
}

// RunChecks runs every check concurrently and reports each result, sorted by name.
func RunChecks(ctx context.Context, checks []Check) []CheckResult {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	var (
		mu      sync.Mutex
		results = make([]CheckResult, 0, len(checks))
		group   errgroup.Group
	)
	group.SetLimit(healthConcurrency)
	for _, check := range checks {
		group.Go(func() error {
			started := time.Now()
			err := check.Run(ctx)
			res := CheckResult{Name: check.Name, OK: err == nil, DurationMS: time.Since(started).Milliseconds()}
			if err != nil {
				res.Error = err.Error()
			}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	_ = group.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	return results
}

func (d *Daemon) healthCheck(ctx context.Context) Health {
	results := RunChecks(ctx, d.deps.Checks)
	healthy := true
	for _, res := range results {
		if !res.OK {
			healthy = false
			d.logWarn("health check failed", "check", res.Name, "error", res.Error)
		}
	}
	return Health{Healthy: healthy, Checks: results, Status: d.status()}
}
