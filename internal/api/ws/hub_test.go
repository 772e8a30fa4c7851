package ws_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/auditdesk/internal/api/ws"
	"github.com/gosuda/auditdesk/internal/domain"
	"github.com/gosuda/auditdesk/internal/server/middleware"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeSubscriber struct {
	channel chan string
	msgs    chan []byte
}

func (f *fakeSubscriber) Subscribe(_ context.Context, channel string) (<-chan []byte, func(), error) {
	f.channel <- channel
	return f.msgs, func() {}, nil
}

type fakeForms struct {
	domain.FormRepository
	forms map[int64]*domain.AuditForm
}

func (f *fakeForms) GetByID(_ context.Context, id int64) (*domain.AuditForm, error) {
	form, ok := f.forms[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return form, nil
}

func newServer(t *testing.T, sub *fakeSubscriber, role string, outletID *int64) *httptest.Server {
	t.Helper()

	hub := ws.NewHub(sub, &fakeForms{forms: map[int64]*domain.AuditForm{
		7: {ID: 7, OutletID: 3},
	}}, nil)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := middleware.WithIdentity(req.Context(), 1, role, outletID)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Get("/ws/forms/{formID}", hub.ServeForm)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func int64Ptr(v int64) *int64 { return &v }

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestServeForm_ForwardsEvents(t *testing.T) {
	t.Parallel()

	sub := &fakeSubscriber{channel: make(chan string, 1), msgs: make(chan []byte, 1)}
	srv := newServer(t, sub, domain.RoleManager, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(srv, "/ws/forms/7"), nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	select {
	case ch := <-sub.channel:
		assert.Equal(t, "form:7", ch)
	case <-ctx.Done():
		t.Fatal("subscription not opened")
	}

	sub.msgs <- []byte(`{"type":"status_changed","form_id":7}`)

	typ, data, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, websocket.MessageText, typ)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "status_changed", got["type"])

	close(sub.msgs)
	_, _, err = conn.Read(ctx)
	assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
}

func TestServeForm_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		path       string
		role       string
		outletID   *int64
		wantStatus int
	}{
		{name: "bad id", path: "/ws/forms/abc", role: domain.RoleManager, wantStatus: http.StatusBadRequest},
		{name: "unknown form", path: "/ws/forms/99", role: domain.RoleManager, wantStatus: http.StatusNotFound},
		{name: "other outlet", path: "/ws/forms/7", role: domain.RoleOutlet, outletID: int64Ptr(4), wantStatus: http.StatusForbidden},
		{name: "outlet without outlet id", path: "/ws/forms/7", role: domain.RoleOutlet, wantStatus: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sub := &fakeSubscriber{channel: make(chan string, 1), msgs: make(chan []byte)}
			srv := newServer(t, sub, tt.role, tt.outletID)

			resp, err := http.Get(srv.URL + tt.path)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}

func TestServeForm_OwnOutletAccepted(t *testing.T) {
	t.Parallel()

	sub := &fakeSubscriber{channel: make(chan string, 1), msgs: make(chan []byte)}
	srv := newServer(t, sub, domain.RoleOutlet, int64Ptr(3))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(srv, "/ws/forms/7"), nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	select {
	case ch := <-sub.channel:
		assert.Equal(t, "form:7", ch)
	case <-ctx.Done():
		t.Fatal("subscription not opened")
	}
}
