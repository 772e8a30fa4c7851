package v1

import (
	"context"
	"time"

	"github.com/gosuda/auditdesk/internal/analysis"
	"github.com/gosuda/auditdesk/internal/auth"
	"github.com/gosuda/auditdesk/internal/dashboard"
	"github.com/gosuda/auditdesk/internal/domain"
	"github.com/gosuda/auditdesk/internal/metrics"
	"github.com/gosuda/auditdesk/internal/notify"
	redisstore "github.com/gosuda/auditdesk/internal/store/redis"
)

// DataStore abstracts the repository accessor pattern for handler testing.
// *postgres.Store satisfies this interface.
type DataStore interface {
	Forms() domain.FormRepository
	Issues() domain.IssueRepository
	Activities() domain.ActivityRepository
}

// AuthService abstracts authentication operations for handler testing.
// *auth.Service satisfies this interface.
type AuthService interface {
	Register(ctx context.Context, in auth.NewUser) (*domain.User, error)
	Login(ctx context.Context, email, password string) (accessToken, refreshToken string, err error)
	RefreshToken(ctx context.Context, refreshToken string) (string, error)
}

// EventPublisher fans form events out to websocket clients.
// *redisstore.PubSub satisfies this interface.
type EventPublisher interface {
	PublishForm(ctx context.Context, ev redisstore.FormEvent) error
}

// Locker hands out short-lived exclusive locks.
// *redisstore.PubSub satisfies this interface.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

// SnapshotSource produces the admin dashboard snapshot.
// *dashboard.Aggregator satisfies this interface.
type SnapshotSource interface {
	Snapshot(ctx context.Context) dashboard.Snapshot
}

// Deps bundles what the review and outlet handlers need. Events, Locks,
// Notifier, Metrics and Clock may be left nil.
type Deps struct {
	Store    DataStore
	Events   EventPublisher
	Locks    Locker
	Analyzer analysis.Analyzer
	Notifier notify.Notifier
	Metrics  *metrics.Metrics
	Clock    func() time.Time

	// AnalysisLockTTL bounds how long one generation may hold the form lock.
	AnalysisLockTTL time.Duration
}
