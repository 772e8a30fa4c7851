// Package dashboard computes the administrative compliance snapshot.
package dashboard

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/auditdesk/internal/domain"
	"github.com/gosuda/auditdesk/internal/metrics"
)

const (
	activityFetch = 20
	activityShow  = 5
)

// Repositories are the read models the aggregator draws from.
type Repositories struct {
	Statuses   domain.StatusRepository
	Audits     domain.AuditRepository
	Outlets    domain.OutletRepository
	Users      domain.UserRepository
	Activities domain.ActivityRepository
}

type Aggregator struct {
	repos   Repositories
	clock   func() time.Time
	month   time.Time // zero means the clock's current month
	metrics *metrics.Metrics
}

type Option func(*Aggregator)

func WithClock(clock func() time.Time) Option {
	return func(a *Aggregator) { a.clock = clock }
}

// WithMonth fixes the completion-time reporting window to the month containing t.
func WithMonth(t time.Time) Option {
	return func(a *Aggregator) { a.month = t }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Aggregator) { a.metrics = m }
}

func New(repos Repositories, opts ...Option) *Aggregator {
	a := &Aggregator{repos: repos, clock: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// MonthStart returns midnight UTC on the first day of t's month.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Window returns the completion-time reporting window as [start, end).
func (a *Aggregator) Window() (time.Time, time.Time) {
	ref := a.month
	if ref.IsZero() {
		ref = a.clock()
	}
	start := MonthStart(ref)
	return start, start.AddDate(0, 1, 0)
}

// Snapshot computes the whole dashboard. Any failure yields Degraded().
func (a *Aggregator) Snapshot(ctx context.Context) Snapshot {
	start := time.Now()
	defer func() { a.metrics.DashboardDuration(time.Since(start)) }()

	snap, err := a.build(ctx)
	if err != nil {
		log.Error().Err(err).Msg("dashboard snapshot degraded")
		a.metrics.DashboardDegraded()
		return Degraded()
	}
	return snap
}

func (a *Aggregator) build(ctx context.Context) (Snapshot, error) {
	now := a.clock()

	statuses, err := a.repos.Statuses.List(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("dashboard.build: %w", err)
	}
	idx := domain.NewStatusIndex(statuses)

	stats, err := a.statistics(ctx, idx)
	if err != nil {
		return Snapshot{}, err
	}

	compliance, err := a.compliance(ctx, idx, MonthStart(now))
	if err != nil {
		return Snapshot{}, err
	}

	activities, err := a.recentActivities(ctx, now)
	if err != nil {
		return Snapshot{}, err
	}

	return Snapshot{
		Statistics:       stats,
		ComplianceData:   compliance,
		RecentActivities: activities,
	}, nil
}

func (a *Aggregator) statistics(ctx context.Context, idx domain.StatusIndex) (*Statistics, error) {
	pending, err := idx.IDs(domain.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("dashboard.statistics: %w", err)
	}

	outlets, err := a.repos.Outlets.CountActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("dashboard.statistics: %w", err)
	}

	users, err := a.repos.Users.CountVerified(ctx)
	if err != nil {
		return nil, fmt.Errorf("dashboard.statistics: %w", err)
	}

	from, to := a.Window()
	intervals, err := a.repos.Audits.ListCompletedBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("dashboard.statistics: %w", err)
	}

	reviews, err := a.repos.Audits.CountByStatus(ctx, pending[0])
	if err != nil {
		return nil, fmt.Errorf("dashboard.statistics: %w", err)
	}

	return &Statistics{
		TotalOutlets:          outlets,
		ActiveUsers:           users,
		AverageCompletionTime: AverageHours(intervals),
		PendingReviews:        reviews,
	}, nil
}

// AverageHours is the mean length of the well-formed intervals, or 0.
func AverageHours(intervals []domain.AuditInterval) float64 {
	var sum float64
	var n int
	for _, iv := range intervals {
		h, ok := iv.Hours()
		if !ok {
			continue
		}
		sum += h
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func (a *Aggregator) compliance(ctx context.Context, idx domain.StatusIndex, since time.Time) (*Compliance, error) {
	ids, err := idx.IDs(domain.StatusApproved, domain.StatusPending, domain.StatusRejected, domain.StatusDraft)
	if err != nil {
		return nil, fmt.Errorf("dashboard.compliance: %w", err)
	}
	approved, pending, rejected, draft := ids[0], ids[1], ids[2], ids[3]

	fully, err := a.repos.Audits.CountByStatusSince(ctx, []int64{approved}, since)
	if err != nil {
		return nil, fmt.Errorf("dashboard.compliance: %w", err)
	}
	partially, err := a.repos.Audits.CountByStatusSince(ctx, []int64{pending, rejected}, since)
	if err != nil {
		return nil, fmt.Errorf("dashboard.compliance: %w", err)
	}
	non, err := a.repos.Audits.CountByStatusSince(ctx, []int64{draft}, since)
	if err != nil {
		return nil, fmt.Errorf("dashboard.compliance: %w", err)
	}

	c := NewCompliance(fully, partially, non)
	return &c, nil
}

func (a *Aggregator) recentActivities(ctx context.Context, now time.Time) ([]Activity, error) {
	logs, err := a.repos.Activities.ListRecent(ctx, activityFetch)
	if err != nil {
		return nil, fmt.Errorf("dashboard.recentActivities: %w", err)
	}

	OrderActivities(logs)
	if len(logs) > activityShow {
		logs = logs[:activityShow]
	}

	out := make([]Activity, 0, len(logs))
	for _, l := range logs {
		out = append(out, Activity{
			ID:          l.ID,
			Description: l.Details,
			User:        l.UserName,
			Time:        humanize.RelTime(l.CreatedAt, now, "ago", "from now"),
		})
	}
	return out, nil
}

// activityPriority ranks entries logged in the same second so that an
// assignment reads before the creation it follows.
func activityPriority(details string) int {
	switch {
	case strings.Contains(details, "was assigned to outlet"):
		return 1
	case strings.Contains(details, "was created"):
		return 2
	default:
		return 3
	}
}

// OrderActivities sorts newest first by second, then by priority, then by id
// descending.
func OrderActivities(logs []*domain.ActivityLog) {
	sort.SliceStable(logs, func(i, j int) bool {
		ti, tj := logs[i].CreatedAt.Truncate(time.Second), logs[j].CreatedAt.Truncate(time.Second)
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		pi, pj := activityPriority(logs[i].Details), activityPriority(logs[j].Details)
		if pi != pj {
			return pi < pj
		}
		return logs[i].ID > logs[j].ID
	})
}
