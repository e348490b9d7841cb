package healthcheck

import (
	"context"
	"time"
)

const (
	// StatusOK indicates check passed.
	StatusOK = "ok"
	// StatusWarn indicates check completed with warning.
	StatusWarn = "warn"
	// StatusError indicates check failed.
	StatusError = "error"
)

const defaultCheckTimeout = 3 * time.Second

// CheckResult is one runtime check item produced by a checker.
type CheckResult struct {
	ID       string         `json:"id"`
	Status   string         `json:"status"`
	Summary  string         `json:"summary"`
	Detail   string         `json:"detail,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Checker evaluates one runtime check.
type Checker interface {
	Check(ctx context.Context) CheckResult
}

// Report aggregates check results. Status is the worst item status.
type Report struct {
	Status string        `json:"status"`
	Checks []CheckResult `json:"checks"`
}

// Healthy reports whether no check failed. Warnings are healthy.
func (r Report) Healthy() bool {
	return r.Status != StatusError
}

// Run evaluates checkers in order, each bounded by a timeout.
func Run(ctx context.Context, checkers ...Checker) Report {
	report := Report{Status: StatusOK, Checks: make([]CheckResult, 0, len(checkers))}
	for _, c := range checkers {
		if c == nil {
			continue
		}
		checkCtx, cancel := context.WithTimeout(ctx, defaultCheckTimeout)
		result := c.Check(checkCtx)
		cancel()
		report.Checks = append(report.Checks, result)
		report.Status = worse(report.Status, result.Status)
	}
	return report
}

func worse(a, b string) string {
	if rank(b) > rank(a) {
		return b
	}
	return a
}

func rank(status string) int {
	switch status {
	case StatusOK:
		return 0
	case StatusWarn:
		return 1
	default:
		return 2
	}
}
