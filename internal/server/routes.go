package server

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	v1 "github.com/gosuda/auditdesk/internal/api/v1"
	"github.com/gosuda/auditdesk/internal/api/ws"
)

func registerAuthRoutes(api huma.API, authSvc v1.AuthService) {
	v1.RegisterAuthRoutes(api, authSvc)
}

func registerManagerRoutes(api huma.API, d *v1.Deps) {
	v1.RegisterFormRoutes(api, d)
	v1.RegisterIssueRoutes(api, d)
}

func registerOutletRoutes(api huma.API, d *v1.Deps) {
	v1.RegisterOutletRoutes(api, d)
}

func registerAdminRoutes(api huma.API, d *v1.Deps, authSvc v1.AuthService, snapshots v1.SnapshotSource) {
	v1.RegisterDashboardRoutes(api, snapshots)
	v1.RegisterUserRoutes(api, d, authSvc)
}

func registerWSRoutes(r chi.Router, hub *ws.Hub) {
	r.Get("/forms/{formID}", hub.ServeForm)
}
