package domain

import (
	"context"
	"time"
)

type Audit struct {
	ID        int64      `json:"id"`
	OutletID  int64      `json:"outlet_id"`
	StatusID  int64      `json:"status_id"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// AuditInterval is the start/end pair of a completed audit.
type AuditInterval struct {
	AuditID   int64
	StartTime time.Time
	EndTime   time.Time
}

// Hours returns the interval length in hours and whether the interval is well
// formed. Intervals ending before they start are malformed.
func (i AuditInterval) Hours() (float64, bool) {
	if i.EndTime.Before(i.StartTime) {
		return 0, false
	}
	return i.EndTime.Sub(i.StartTime).Hours(), true
}

type AuditRepository interface {
	// ListCompletedBetween returns audits with both times set whose end_time
	// falls in [from, to).
	ListCompletedBetween(ctx context.Context, from, to time.Time) ([]AuditInterval, error)
	CountByStatus(ctx context.Context, statusID int64) (int64, error)
	CountByStatusSince(ctx context.Context, statusIDs []int64, since time.Time) (int64, error)
}
