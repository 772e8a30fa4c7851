package middleware

import (
	"net/http"
	"strings"

	"github.com/gosuda/auditdesk/internal/auth"
)

// Auth accepts a Bearer access token. Websocket upgrades may pass the token
// as the access_token query parameter since browsers cannot set headers on
// them.
func Auth(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := extractBearer(r)
			if tok == "" && isWebsocketUpgrade(r) {
				tok = r.URL.Query().Get("access_token")
			}

			if tok != "" {
				claims, err := auth.ValidateToken(jwtSecret, tok)
				if err == nil && claims.IsAccess() && claims.UserID > 0 {
					ctx := WithIdentity(r.Context(), claims.UserID, claims.Role, claims.OutletID)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}

			http.Error(w, `{"title":"Unauthorized","status":401,"detail":"missing or invalid credentials"}`, http.StatusUnauthorized)
		})
	}
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return h[7:]
	}
	return ""
}

func isWebsocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}
