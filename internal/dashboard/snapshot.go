package dashboard

import (
	"encoding/json"
	"math"
)

type Statistics struct {
	TotalOutlets          int64   `json:"totalOutlets"`
	ActiveUsers           int64   `json:"activeUsers"`
	AverageCompletionTime float64 `json:"averageCompletionTime"` // hours
	PendingReviews        int64   `json:"pendingReviews"`
}

type Bucket struct {
	Count      int64 `json:"count"`
	Percentage int   `json:"percentage"`
}

type Compliance struct {
	FullyCompliant     Bucket `json:"fullyCompliant"`
	PartiallyCompliant Bucket `json:"partiallyCompliant"`
	NonCompliant       Bucket `json:"nonCompliant"`
}

// NewCompliance fills in the percentages. Each bucket is rounded on its own,
// half away from zero, so the three may not add up to 100.
func NewCompliance(fully, partially, non int64) Compliance {
	total := fully + partially + non
	pct := func(n int64) int {
		if total == 0 {
			return 0
		}
		return int(math.Round(float64(n) / float64(total) * 100))
	}

	return Compliance{
		FullyCompliant:     Bucket{Count: fully, Percentage: pct(fully)},
		PartiallyCompliant: Bucket{Count: partially, Percentage: pct(partially)},
		NonCompliant:       Bucket{Count: non, Percentage: pct(non)},
	}
}

type Activity struct {
	ID          int64  `json:"id"`
	Description string `json:"description"`
	User        string `json:"user,omitempty"`
	Time        string `json:"time"`
}

// Snapshot is the dashboard payload. A degraded snapshot carries no data and
// encodes as {"statistics":{},"complianceData":{},"recentActivities":[]}.
type Snapshot struct {
	Statistics       *Statistics `json:"statistics"`
	ComplianceData   *Compliance `json:"complianceData"`
	RecentActivities []Activity  `json:"recentActivities"`
}

// Degraded returns the empty snapshot served when any part fails.
func Degraded() Snapshot {
	return Snapshot{RecentActivities: []Activity{}}
}

func (s Snapshot) IsDegraded() bool {
	return s.Statistics == nil || s.ComplianceData == nil
}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	if s.IsDegraded() {
		return []byte(`{"statistics":{},"complianceData":{},"recentActivities":[]}`), nil
	}

	type plain Snapshot
	p := plain(s)
	if p.RecentActivities == nil {
		p.RecentActivities = []Activity{}
	}
	return json.Marshal(p)
}
