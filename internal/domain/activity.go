package domain

import (
	"context"
	"time"
)

// ActivityLog is an audit-trail entry shown on the admin dashboard.
type ActivityLog struct {
	ID        int64     `json:"id"`
	UserID    *int64    `json:"user_id,omitempty"`
	UserName  string    `json:"user,omitempty"`
	Details   string    `json:"details"`
	CreatedAt time.Time `json:"created_at"`
}

type ActivityRepository interface {
	Record(ctx context.Context, entry *ActivityLog) error
	// ListRecent returns the newest entries by created_at, newest first.
	ListRecent(ctx context.Context, limit int) ([]*ActivityLog, error)
}
