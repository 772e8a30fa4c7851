package v1

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

type GetDashboardOutput struct {
	// Body is pre-encoded so the degraded form keeps its empty sections;
	// see dashboard.Snapshot.MarshalJSON.
	Body json.RawMessage `doc:"Dashboard snapshot: statistics, complianceData, recentActivities"`
}

// RegisterDashboardRoutes registers the admin dashboard snapshot. The snapshot
// never fails; a degraded one carries empty sections.
func RegisterDashboardRoutes(api huma.API, src SnapshotSource) {
	huma.Register(api, huma.Operation{
		OperationID: "get-dashboard",
		Method:      http.MethodGet,
		Path:        "/admin/dashboard",
		Summary:     "Compliance dashboard snapshot",
		Tags:        []string{"Dashboard"},
	}, func(ctx context.Context, _ *struct{}) (*GetDashboardOutput, error) {
		body, err := json.Marshal(src.Snapshot(ctx))
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to encode dashboard", err)
		}
		return &GetDashboardOutput{Body: body}, nil
	})
}
