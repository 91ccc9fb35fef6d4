package health

import (
	"context"
)

// RunChecker reports an error until the first matching run has completed.
type RunChecker struct {
	latest func() error
}

// NewRunChecker wraps a function that returns nil once results are available.
func NewRunChecker(latest func() error) *RunChecker {
	return &RunChecker{latest: latest}
}

// HealthCheck reports whether results are available.
func (c *RunChecker) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.latest()
}
