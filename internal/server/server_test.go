package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/auditdesk/internal/analysis"
	"github.com/gosuda/auditdesk/internal/auth"
	"github.com/gosuda/auditdesk/internal/config"
	"github.com/gosuda/auditdesk/internal/dashboard"
	"github.com/gosuda/auditdesk/internal/domain"
	"github.com/gosuda/auditdesk/internal/metrics"
	redisstore "github.com/gosuda/auditdesk/internal/store/redis"
)

const testSecret = "server-test-secret-at-least-32-chars"

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type nilStore struct{}

func (nilStore) Forms() domain.FormRepository          { return nil }
func (nilStore) Issues() domain.IssueRepository        { return nil }
func (nilStore) Activities() domain.ActivityRepository { return nil }

type nopPubSub struct{}

func (nopPubSub) PublishForm(context.Context, redisstore.FormEvent) error { return nil }

func (nopPubSub) Acquire(context.Context, string, time.Duration) (func(context.Context) error, error) {
	return func(context.Context) error { return nil }, nil
}

func (nopPubSub) Subscribe(context.Context, string) (<-chan []byte, func(), error) {
	ch := make(chan []byte)
	close(ch)
	return ch, func() {}, nil
}

type nopAuth struct{}

func (nopAuth) Register(context.Context, auth.NewUser) (*domain.User, error) {
	return nil, auth.ErrUserAlreadyExists
}

func (nopAuth) Login(context.Context, string, string) (string, string, error) {
	return "", "", auth.ErrInvalidCredentials
}

func (nopAuth) RefreshToken(context.Context, string) (string, error) {
	return "", auth.ErrInvalidCredentials
}

type fixedSnapshot struct{}

func (fixedSnapshot) Snapshot(context.Context) dashboard.Snapshot { return dashboard.Degraded() }

func testConfig() *config.Config {
	return &config.Config{
		JWT: config.JWTConfig{Secret: testSecret},
		Server: config.ServerConfig{
			Addr:           ":0",
			ReadTimeout:    time.Second,
			WriteTimeout:   time.Second,
			CORSOrigins:    []string{"http://localhost:5173"},
			RateLimitRPS:   100,
			RateLimitBurst: 100,
		},
		AI: config.AIConfig{Timeout: time.Second},
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return New(t.Context(), testConfig(), Dependencies{
		Store:     nilStore{},
		PubSub:    nopPubSub{},
		Auth:      nopAuth{},
		Analyzer:  analysis.Disabled{},
		Metrics:   metrics.NewDefault(),
		Snapshots: fixedSnapshot{},
		WebAssets: fstest.MapFS{
			"index.html":    {Data: []byte("<html>review</html>")},
			"assets/app.js": {Data: []byte("console.log(1)")},
		},
	})
}

func bearer(t *testing.T, role string, outletID *int64) string {
	t.Helper()
	tok, err := auth.IssueAccessToken(testSecret, auth.Identity{UserID: 7, Role: role, OutletID: outletID}, time.Hour)
	require.NoError(t, err)
	return "Bearer " + tok
}

func jsonBody(s string) *strings.Reader { return strings.NewReader(s) }

func do(t *testing.T, s *Server, method, path, authz string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

// ---------------------------------------------------------------------------
// Routing
// ---------------------------------------------------------------------------

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	rec := do(t, newTestServer(t), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServer_AccessGroups(t *testing.T) {
	t.Parallel()

	outlet := int64(3)
	s := newTestServer(t)

	tests := []struct {
		name  string
		path  string
		authz string
		want  int
	}{
		{name: "manager route without token", path: "/api/manager/issues/corrective-actions-count?issueIds=", want: http.StatusUnauthorized},
		{name: "manager route as outlet", path: "/api/manager/issues/corrective-actions-count?issueIds=", authz: bearer(t, domain.RoleOutlet, &outlet), want: http.StatusForbidden},
		{name: "admin route as manager", path: "/api/admin/dashboard", authz: bearer(t, domain.RoleManager, nil), want: http.StatusForbidden},
		{name: "admin route as admin", path: "/api/admin/dashboard", authz: bearer(t, domain.RoleAdmin, nil), want: http.StatusOK},
		{name: "outlet route as manager", path: "/api/outlet/forms/1/issues", authz: bearer(t, domain.RoleManager, nil), want: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := do(t, s, http.MethodGet, tt.path, tt.authz)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestServer_AuthRoutesArePublic(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
		jsonBody(`{"email":"a@example.com","password":"wrong-password"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	newTestServer(t).Handler().ServeHTTP(rec, req)

	// Reaches the handler: the credentials are rejected rather than the token.
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid")
}

func TestServer_OpenAPIDocument(t *testing.T) {
	t.Parallel()

	rec := do(t, newTestServer(t), http.MethodGet, "/api/openapi.json", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/auth/login")
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	rec := do(t, newTestServer(t), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestServer_WebsocketRequiresToken(t *testing.T) {
	t.Parallel()

	rec := do(t, newTestServer(t), http.MethodGet, "/ws/forms/1", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_SPAFallback(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/forms/12/review", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "review")

	rec = do(t, s, http.MethodGet, "/assets/app.js", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "console.log")

	rec = do(t, s, http.MethodGet, "/assets/missing.js", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
