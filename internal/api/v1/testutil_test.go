package v1_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gosuda/auditdesk/internal/analysis"
	v1 "github.com/gosuda/auditdesk/internal/api/v1"
	"github.com/gosuda/auditdesk/internal/auth"
	"github.com/gosuda/auditdesk/internal/dashboard"
	"github.com/gosuda/auditdesk/internal/domain"
	"github.com/gosuda/auditdesk/internal/server/middleware"
	redisstore "github.com/gosuda/auditdesk/internal/store/redis"
)

// fixedNow is the clock every handler test runs against.
var fixedNow = time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

// ---------------------------------------------------------------------------
// Context helpers: inject the caller identity for DoCtx
// ---------------------------------------------------------------------------

func managerCtx() context.Context {
	return middleware.WithIdentity(context.Background(), 10, domain.RoleManager, nil)
}

func adminCtx() context.Context {
	return middleware.WithIdentity(context.Background(), 1, domain.RoleAdmin, nil)
}

func outletCtx(outletID int64) context.Context {
	return middleware.WithIdentity(context.Background(), 20, domain.RoleOutlet, &outletID)
}

// ---------------------------------------------------------------------------
// Mock DataStore
// ---------------------------------------------------------------------------

type mockDataStore struct {
	forms      domain.FormRepository
	issues     domain.IssueRepository
	activities domain.ActivityRepository
}

func (m *mockDataStore) Forms() domain.FormRepository          { return m.forms }
func (m *mockDataStore) Issues() domain.IssueRepository        { return m.issues }
func (m *mockDataStore) Activities() domain.ActivityRepository { return m.activities }

// ---------------------------------------------------------------------------
// Mock FormRepository
// ---------------------------------------------------------------------------

type mockFormRepo struct {
	getByIDFunc      func(ctx context.Context, id int64) (*domain.AuditForm, error)
	getTemplateFunc  func(ctx context.Context, id int64) (*domain.FormTemplate, error)
	updateStatusFunc func(ctx context.Context, id, statusID int64) error
	rejectFunc       func(ctx context.Context, id int64, issue *domain.Issue) error
	setAnalysisFunc  func(ctx context.Context, id int64, analysis json.RawMessage) error
	resubmitFunc     func(ctx context.Context, id int64, value map[string]any) (int, error)
}

func (m *mockFormRepo) GetByID(ctx context.Context, id int64) (*domain.AuditForm, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockFormRepo) GetTemplate(ctx context.Context, id int64) (*domain.FormTemplate, error) {
	return m.getTemplateFunc(ctx, id)
}

func (m *mockFormRepo) UpdateStatus(ctx context.Context, id, statusID int64) error {
	return m.updateStatusFunc(ctx, id, statusID)
}

func (m *mockFormRepo) Reject(ctx context.Context, id int64, issue *domain.Issue) error {
	return m.rejectFunc(ctx, id, issue)
}

func (m *mockFormRepo) SetAnalysis(ctx context.Context, id int64, analysis json.RawMessage) error {
	return m.setAnalysisFunc(ctx, id, analysis)
}

func (m *mockFormRepo) Resubmit(ctx context.Context, id int64, value map[string]any) (int, error) {
	return m.resubmitFunc(ctx, id, value)
}

// formByID returns a getByIDFunc serving a copy of form for its own id only.
func formByID(form *domain.AuditForm) func(context.Context, int64) (*domain.AuditForm, error) {
	return func(_ context.Context, id int64) (*domain.AuditForm, error) {
		if id != form.ID {
			return nil, domain.ErrNotFound
		}
		cp := *form
		return &cp, nil
	}
}

// ---------------------------------------------------------------------------
// Mock IssueRepository
// ---------------------------------------------------------------------------

type mockIssueRepo struct {
	getByIDFunc                func(ctx context.Context, id int64) (*domain.Issue, error)
	listByRevisionFunc         func(ctx context.Context, formID int64, revision int) ([]*domain.Issue, error)
	updateIfUnlockedFunc       func(ctx context.Context, issue *domain.Issue) error
	deleteIfUnlockedFunc       func(ctx context.Context, id int64) error
	countCorrectiveActionsFunc func(ctx context.Context, issueIDs []int64) (map[int64]int, error)
	listCorrectiveActionsFunc  func(ctx context.Context, issueID int64) ([]*domain.CorrectiveAction, error)
	createCorrectiveActionFunc func(ctx context.Context, action *domain.CorrectiveAction) error
}

func (m *mockIssueRepo) GetByID(ctx context.Context, id int64) (*domain.Issue, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockIssueRepo) ListByRevision(ctx context.Context, formID int64, revision int) ([]*domain.Issue, error) {
	return m.listByRevisionFunc(ctx, formID, revision)
}

func (m *mockIssueRepo) UpdateIfUnlocked(ctx context.Context, issue *domain.Issue) error {
	return m.updateIfUnlockedFunc(ctx, issue)
}

func (m *mockIssueRepo) DeleteIfUnlocked(ctx context.Context, id int64) error {
	return m.deleteIfUnlockedFunc(ctx, id)
}

func (m *mockIssueRepo) CountCorrectiveActions(ctx context.Context, issueIDs []int64) (map[int64]int, error) {
	return m.countCorrectiveActionsFunc(ctx, issueIDs)
}

func (m *mockIssueRepo) ListCorrectiveActions(ctx context.Context, issueID int64) ([]*domain.CorrectiveAction, error) {
	return m.listCorrectiveActionsFunc(ctx, issueID)
}

func (m *mockIssueRepo) CreateCorrectiveAction(ctx context.Context, action *domain.CorrectiveAction) error {
	return m.createCorrectiveActionFunc(ctx, action)
}

// ---------------------------------------------------------------------------
// Recording fakes for side effects
// ---------------------------------------------------------------------------

type recordingActivities struct {
	mu      sync.Mutex
	entries []*domain.ActivityLog
}

func (r *recordingActivities) Record(_ context.Context, entry *domain.ActivityLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *recordingActivities) ListRecent(context.Context, int) ([]*domain.ActivityLog, error) {
	return nil, nil
}

func (r *recordingActivities) details() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Details)
	}
	return out
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []redisstore.FormEvent
}

func (p *recordingPublisher) PublishForm(_ context.Context, ev redisstore.FormEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type mockLocker struct {
	acquireFunc func(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

func (m *mockLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	return m.acquireFunc(ctx, key, ttl)
}

type mockAnalyzer struct {
	analyzeFunc func(ctx context.Context, form *domain.AuditForm, items []domain.CombinedItem) (*analysis.Result, error)
}

func (m *mockAnalyzer) Analyze(ctx context.Context, form *domain.AuditForm, items []domain.CombinedItem) (*analysis.Result, error) {
	return m.analyzeFunc(ctx, form, items)
}

type mockNotifier struct {
	mu       sync.Mutex
	rejected []int64
	approved []int64
}

func (m *mockNotifier) FormRejected(_ context.Context, form *domain.AuditForm, _ *domain.Issue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejected = append(m.rejected, form.ID)
	return nil
}

func (m *mockNotifier) FormApproved(_ context.Context, form *domain.AuditForm) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.approved = append(m.approved, form.ID)
	return nil
}

// ---------------------------------------------------------------------------
// Mock AuthService
// ---------------------------------------------------------------------------

type mockAuthService struct {
	registerFunc     func(ctx context.Context, in auth.NewUser) (*domain.User, error)
	loginFunc        func(ctx context.Context, email, password string) (string, string, error)
	refreshTokenFunc func(ctx context.Context, refreshToken string) (string, error)
}

func (m *mockAuthService) Register(ctx context.Context, in auth.NewUser) (*domain.User, error) {
	return m.registerFunc(ctx, in)
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (accessToken, refreshToken string, err error) {
	return m.loginFunc(ctx, email, password)
}

func (m *mockAuthService) RefreshToken(ctx context.Context, refreshToken string) (string, error) {
	return m.refreshTokenFunc(ctx, refreshToken)
}

// ---------------------------------------------------------------------------
// Snapshot source
// ---------------------------------------------------------------------------

type staticSnapshot dashboard.Snapshot

func (s staticSnapshot) Snapshot(context.Context) dashboard.Snapshot { return dashboard.Snapshot(s) }

// ---------------------------------------------------------------------------
// Harness
// ---------------------------------------------------------------------------

// harness wires mocks into a v1.Deps. Tests fill in the repo funcs they need;
// calling an unset func panics, which flags an unexpected store access.
type harness struct {
	forms      *mockFormRepo
	issues     *mockIssueRepo
	activities *recordingActivities
	events     *recordingPublisher
	notifier   *mockNotifier
	deps       *v1.Deps
}

func newHarness() *harness {
	h := &harness{
		forms:      &mockFormRepo{},
		issues:     &mockIssueRepo{},
		activities: &recordingActivities{},
		events:     &recordingPublisher{},
		notifier:   &mockNotifier{},
	}
	h.deps = &v1.Deps{
		Store: &mockDataStore{
			forms:      h.forms,
			issues:     h.issues,
			activities: h.activities,
		},
		Events:   h.events,
		Notifier: h.notifier,
		Analyzer: analysis.Disabled{},
		Clock:    fixedClock,
	}
	return h
}

// stripSchema drops the "$schema" link huma adds to response bodies.
func stripSchema(t *testing.T, body []byte) string {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(body, &m))
	delete(m, "$schema")
	out, err := json.Marshal(m)
	require.NoError(t, err)
	return string(out)
}
