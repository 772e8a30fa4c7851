package dashboard_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/auditdesk/internal/dashboard"
	"github.com/gosuda/auditdesk/internal/domain"
	"github.com/gosuda/auditdesk/internal/metrics"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeStatuses struct {
	statuses []*domain.Status
	err      error
}

func (f *fakeStatuses) List(context.Context) ([]*domain.Status, error) { return f.statuses, f.err }

type fakeAudits struct {
	intervals  []domain.AuditInterval
	byStatus   map[int64]int64
	since      map[int64]int64
	gotFrom    time.Time
	gotTo      time.Time
	gotSince   time.Time
	listErr    error
	countError error
}

func (f *fakeAudits) ListCompletedBetween(_ context.Context, from, to time.Time) ([]domain.AuditInterval, error) {
	f.gotFrom, f.gotTo = from, to
	return f.intervals, f.listErr
}

func (f *fakeAudits) CountByStatus(_ context.Context, id int64) (int64, error) {
	return f.byStatus[id], f.countError
}

func (f *fakeAudits) CountByStatusSince(_ context.Context, ids []int64, since time.Time) (int64, error) {
	f.gotSince = since
	var n int64
	for _, id := range ids {
		n += f.since[id]
	}
	return n, f.countError
}

type fakeOutlets struct{ n int64 }

func (f *fakeOutlets) CountActive(context.Context) (int64, error) { return f.n, nil }

type fakeUsers struct{ n int64 }

func (f *fakeUsers) Create(context.Context, *domain.User) error { return nil }
func (f *fakeUsers) GetByID(context.Context, int64) (*domain.User, error) {
	return nil, domain.ErrNotFound
}
func (f *fakeUsers) GetByEmail(context.Context, string) (*domain.User, error) {
	return nil, domain.ErrNotFound
}
func (f *fakeUsers) CountVerified(context.Context) (int64, error) { return f.n, nil }

type fakeActivities struct {
	logs []*domain.ActivityLog
	err  error
}

func (f *fakeActivities) Record(context.Context, *domain.ActivityLog) error { return nil }
func (f *fakeActivities) ListRecent(_ context.Context, limit int) ([]*domain.ActivityLog, error) {
	if len(f.logs) > limit {
		return f.logs[:limit], f.err
	}
	return f.logs, f.err
}

func allStatuses() []*domain.Status {
	return []*domain.Status{
		{ID: domain.StatusIDDraft, Name: domain.StatusDraft},
		{ID: domain.StatusIDPending, Name: domain.StatusPending},
		{ID: domain.StatusIDRevising, Name: domain.StatusRevising},
		{ID: domain.StatusIDRejected, Name: domain.StatusRejected},
		{ID: domain.StatusIDApproved, Name: domain.StatusApproved},
	}
}

var fixedNow = time.Date(2025, 6, 20, 15, 0, 0, 0, time.UTC)

type fixture struct {
	statuses   *fakeStatuses
	audits     *fakeAudits
	activities *fakeActivities
}

func newFixture() *fixture {
	start := time.Date(2025, 6, 3, 10, 0, 0, 0, time.UTC)
	return &fixture{
		statuses: &fakeStatuses{statuses: allStatuses()},
		audits: &fakeAudits{
			intervals: []domain.AuditInterval{
				{AuditID: 1, StartTime: start, EndTime: start.Add(150 * time.Minute)},
				{AuditID: 2, StartTime: start, EndTime: start.Add(90 * time.Minute)},
				{AuditID: 3, StartTime: start, EndTime: start.Add(-time.Hour)},
			},
			byStatus: map[int64]int64{domain.StatusIDPending: 4},
			since: map[int64]int64{
				domain.StatusIDApproved: 1,
				domain.StatusIDPending:  1,
				domain.StatusIDRejected: 0,
				domain.StatusIDDraft:    1,
			},
		},
		activities: &fakeActivities{},
	}
}

func (f *fixture) aggregator(opts ...dashboard.Option) *dashboard.Aggregator {
	repos := dashboard.Repositories{
		Statuses:   f.statuses,
		Audits:     f.audits,
		Outlets:    &fakeOutlets{n: 12},
		Users:      &fakeUsers{n: 30},
		Activities: f.activities,
	}
	opts = append([]dashboard.Option{dashboard.WithClock(func() time.Time { return fixedNow })}, opts...)
	return dashboard.New(repos, opts...)
}

// ---------------------------------------------------------------------------
// 1. Snapshot
// ---------------------------------------------------------------------------

func TestAggregator_Snapshot(t *testing.T) {
	t.Parallel()

	f := newFixture()
	snap := f.aggregator().Snapshot(context.Background())

	require.False(t, snap.IsDegraded())
	assert.Equal(t, int64(12), snap.Statistics.TotalOutlets)
	assert.Equal(t, int64(30), snap.Statistics.ActiveUsers)
	assert.Equal(t, int64(4), snap.Statistics.PendingReviews)
	assert.InDelta(t, 2.0, snap.Statistics.AverageCompletionTime, 1e-9, "malformed interval excluded")

	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), f.audits.gotFrom)
	assert.Equal(t, time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC), f.audits.gotTo)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), f.audits.gotSince)

	c := snap.ComplianceData
	assert.Equal(t, dashboard.Bucket{Count: 1, Percentage: 33}, c.FullyCompliant)
	assert.Equal(t, dashboard.Bucket{Count: 1, Percentage: 33}, c.PartiallyCompliant)
	assert.Equal(t, dashboard.Bucket{Count: 1, Percentage: 33}, c.NonCompliant)
}

func TestAggregator_WithMonth(t *testing.T) {
	t.Parallel()

	f := newFixture()
	a := f.aggregator(dashboard.WithMonth(time.Date(2025, 2, 14, 0, 0, 0, 0, time.UTC)))

	from, to := a.Window()
	assert.Equal(t, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), to)

	a.Snapshot(context.Background())
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), f.audits.gotSince,
		"compliance always uses the current month")
}

func TestAggregator_NoCompletedAudits(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.audits.intervals = nil
	f.audits.since = map[int64]int64{}

	snap := f.aggregator().Snapshot(context.Background())

	require.False(t, snap.IsDegraded())
	assert.Zero(t, snap.Statistics.AverageCompletionTime)
	assert.Zero(t, snap.ComplianceData.FullyCompliant.Percentage)
	assert.Zero(t, snap.ComplianceData.NonCompliant.Percentage)
}

// ---------------------------------------------------------------------------
// 2. Degradation
// ---------------------------------------------------------------------------

func TestAggregator_Degraded(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		setup func(f *fixture)
	}{
		{name: "status query fails", setup: func(f *fixture) { f.statuses.err = errors.New("db down") }},
		{name: "missing draft status", setup: func(f *fixture) {
			f.statuses.statuses = []*domain.Status{
				{ID: domain.StatusIDPending, Name: domain.StatusPending},
				{ID: domain.StatusIDRejected, Name: domain.StatusRejected},
				{ID: domain.StatusIDApproved, Name: domain.StatusApproved},
			}
		}},
		{name: "audit query fails", setup: func(f *fixture) { f.audits.listErr = errors.New("timeout") }},
		{name: "activity query fails", setup: func(f *fixture) { f.activities.err = errors.New("timeout") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture()
			tt.setup(f)
			m := metrics.New(prometheus.NewRegistry())

			snap := f.aggregator(dashboard.WithMetrics(m)).Snapshot(context.Background())

			assert.True(t, snap.IsDegraded())
			data, err := json.Marshal(snap)
			require.NoError(t, err)
			assert.JSONEq(t, `{"statistics":{},"complianceData":{},"recentActivities":[]}`, string(data))
		})
	}
}

// ---------------------------------------------------------------------------
// 3. Compliance rounding
// ---------------------------------------------------------------------------

func TestNewCompliance(t *testing.T) {
	t.Parallel()

	c := dashboard.NewCompliance(2, 1, 0)
	assert.Equal(t, 67, c.FullyCompliant.Percentage)
	assert.Equal(t, 33, c.PartiallyCompliant.Percentage)
	assert.Equal(t, 0, c.NonCompliant.Percentage)

	// 1/8 = 12.5 rounds away from zero.
	c = dashboard.NewCompliance(1, 7, 0)
	assert.Equal(t, 13, c.FullyCompliant.Percentage)
	assert.Equal(t, 88, c.PartiallyCompliant.Percentage)

	c = dashboard.NewCompliance(0, 0, 0)
	assert.Equal(t, dashboard.Compliance{}, c)
}

// ---------------------------------------------------------------------------
// 4. Recent activity
// ---------------------------------------------------------------------------

func TestAggregator_RecentActivities(t *testing.T) {
	t.Parallel()

	sameSecond := fixedNow.Add(-3 * time.Hour)
	f := newFixture()
	f.activities.logs = []*domain.ActivityLog{
		{ID: 10, Details: "Audit form Kitchen was updated", CreatedAt: sameSecond.Add(400 * time.Millisecond)},
		{ID: 11, Details: "Audit #4 was created", CreatedAt: sameSecond.Add(200 * time.Millisecond)},
		{ID: 12, Details: "Audit #4 was assigned to outlet Bangsar", UserName: "Aina", CreatedAt: sameSecond},
		{ID: 9, Details: "older 1", CreatedAt: fixedNow.Add(-26 * time.Hour)},
		{ID: 8, Details: "older 2", CreatedAt: fixedNow.Add(-27 * time.Hour)},
		{ID: 7, Details: "older 3", CreatedAt: fixedNow.Add(-28 * time.Hour)},
		{ID: 13, Details: "Form approved", CreatedAt: fixedNow.Add(-time.Minute)},
	}

	snap := f.aggregator().Snapshot(context.Background())
	require.False(t, snap.IsDegraded())

	acts := snap.RecentActivities
	require.Len(t, acts, 5)

	ids := make([]int64, 0, len(acts))
	for _, a := range acts {
		ids = append(ids, a.ID)
	}
	assert.Equal(t, []int64{13, 12, 11, 10, 9}, ids)

	assert.Equal(t, "1 minute ago", acts[0].Time)
	assert.Equal(t, "3 hours ago", acts[1].Time)
	assert.Equal(t, "Aina", acts[1].User)
	assert.Equal(t, "1 day ago", acts[4].Time)
}

func TestOrderActivities_FallsBackToID(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	logs := []*domain.ActivityLog{
		{ID: 1, Details: "a", CreatedAt: at},
		{ID: 2, Details: "b", CreatedAt: at},
	}
	dashboard.OrderActivities(logs)
	assert.Equal(t, int64(2), logs[0].ID)
}

func TestAverageHours(t *testing.T) {
	t.Parallel()

	assert.Zero(t, dashboard.AverageHours(nil))

	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	got := dashboard.AverageHours([]domain.AuditInterval{
		{StartTime: start, EndTime: start.Add(150 * time.Minute)},
	})
	assert.InDelta(t, 2.5, got, 1e-9)
}
