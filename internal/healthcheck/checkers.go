package healthcheck

import (
	"context"
	"strconv"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DatabaseChecker pings the database.
type DatabaseChecker struct {
	db Pinger
}

func NewDatabaseChecker(db Pinger) *DatabaseChecker {
	return &DatabaseChecker{db: db}
}

func (c *DatabaseChecker) Check(ctx context.Context) CheckResult {
	result := CheckResult{ID: "database"}
	if c.db == nil {
		result.Status = StatusError
		result.Summary = "database is not configured"
		return result
	}
	if err := c.db.Ping(ctx); err != nil {
		result.Status = StatusError
		result.Summary = "database unreachable"
		result.Detail = err.Error()
		return result
	}
	result.Status = StatusOK
	result.Summary = "database reachable"
	return result
}

// DropChecker warns once a drop counter is non-zero. Dropped notifications
// degrade realtime delivery but never fail the service.
type DropChecker struct {
	id      string
	counter func() int64
}

func NewDropChecker(id string, counter func() int64) *DropChecker {
	return &DropChecker{id: id, counter: counter}
}

func (c *DropChecker) Check(context.Context) CheckResult {
	n := int64(0)
	if c.counter != nil {
		n = c.counter()
	}
	result := CheckResult{
		ID:       c.id,
		Status:   StatusOK,
		Summary:  "no drops",
		Metadata: map[string]any{"dropped": n},
	}
	if n > 0 {
		result.Status = StatusWarn
		result.Summary = strconv.FormatInt(n, 10) + " dropped"
	}
	return result
}
