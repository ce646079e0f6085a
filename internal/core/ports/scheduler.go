package ports

import (
	"context"
	"time"
)

// Scheduler stores delayed tasks
type Scheduler interface {
	// ScheduleRetry makes taskID due after delay. Scheduling an already scheduled task moves it.
	ScheduleRetry(ctx context.Context, taskID string, delay time.Duration) error
	// ClaimDue leases and returns up to limit tasks due at now. A claimed task that is neither
	// rescheduled nor cancelled becomes due again once its lease expires.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]string, error)
	// Cancel removes a task
	Cancel(ctx context.Context, taskID string) error
}
