package ws

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/gosuda/auditdesk/internal/domain"
	"github.com/gosuda/auditdesk/internal/metrics"
	"github.com/gosuda/auditdesk/internal/server/middleware"
	redisstore "github.com/gosuda/auditdesk/internal/store/redis"
)

// Subscriber is the part of the redis pub/sub the hub needs.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error)
}

// Hub manages WebSocket connections backed by Redis pub/sub.
type Hub struct {
	pubsub  Subscriber
	forms   domain.FormRepository
	metrics *metrics.Metrics
}

// NewHub creates a new WebSocket hub. m may be nil.
func NewHub(pubsub Subscriber, forms domain.FormRepository, m *metrics.Metrics) *Hub {
	return &Hub{pubsub: pubsub, forms: forms, metrics: m}
}

// ServeForm streams the events of one audit form to the client.
// Subscribes to Redis channel "form:<formID>". Outlet users may only watch
// their own outlet's forms.
func (h *Hub) ServeForm(w http.ResponseWriter, r *http.Request) {
	formID, err := strconv.ParseInt(chi.URLParam(r, "formID"), 10, 64)
	if err != nil || formID <= 0 {
		http.Error(w, "invalid form id", http.StatusBadRequest)
		return
	}

	form, err := h.forms.GetByID(r.Context(), formID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "form not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Int64("form_id", formID).Msg("websocket form lookup")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if role, _ := middleware.RoleFromContext(r.Context()); role == domain.RoleOutlet {
		outletID, ok := middleware.OutletIDFromContext(r.Context())
		if !ok || outletID != form.OutletID {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket accept")
		return
	}
	defer conn.CloseNow()

	done := h.metrics.WebsocketOpened()
	defer done()

	// Reads are ignored; CloseRead cancels ctx when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	messages, cleanup, err := h.pubsub.Subscribe(ctx, redisstore.FormChannel(formID))
	if err != nil {
		log.Error().Err(err).Msg("websocket subscribe")
		_ = conn.Close(websocket.StatusInternalError, "subscribe failed")
		return
	}
	defer cleanup()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "connection closed")
			return
		case msg, msgOK := <-messages:
			if !msgOK {
				_ = conn.Close(websocket.StatusNormalClosure, "channel closed")
				return
			}
			if writeErr := conn.Write(ctx, websocket.MessageText, msg); writeErr != nil {
				log.Debug().Err(writeErr).Int64("form_id", formID).Msg("websocket write")
				return
			}
		}
	}
}
