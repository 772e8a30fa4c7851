// Package analysis holds the AI compliance analysis of a submitted form: the
// canonical result shape, the parser for stored payloads and the generator.
package analysis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
)

// ErrFormat reports a stored analysis payload that is neither an analysis
// object nor a string containing one.
var ErrFormat = errors.New("analysis: unrecognized payload format")

// Risk levels.
const (
	RiskLow    = "Low"
	RiskMedium = "Medium"
	RiskHigh   = "High"
)

type Result struct {
	ComplianceScore int      `json:"compliance_score"`
	RiskLevel       string   `json:"risk_level"`
	KeyFindings     []string `json:"key_findings"`
	Recommendations []string `json:"recommendations"`
	AreasOfConcern  []string `json:"areas_of_concern"`
	PositiveAspects []string `json:"positive_aspects"`
}

// Clone returns a deep copy of r. It returns nil for a nil r.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	out := *r
	out.KeyFindings = slices.Clone(r.KeyFindings)
	out.Recommendations = slices.Clone(r.Recommendations)
	out.AreasOfConcern = slices.Clone(r.AreasOfConcern)
	out.PositiveAspects = slices.Clone(r.PositiveAspects)
	return &out
}

// Section is one titled list of the result.
type Section struct {
	Title string
	Items []string
}

// Sections returns the non-empty lists in display order.
func (r *Result) Sections() []Section {
	all := []Section{
		{Title: "Key Findings", Items: r.KeyFindings},
		{Title: "Recommendations", Items: r.Recommendations},
		{Title: "Areas of Concern", Items: r.AreasOfConcern},
		{Title: "Positive Aspects", Items: r.PositiveAspects},
	}

	out := make([]Section, 0, len(all))
	for _, s := range all {
		if len(s.Items) > 0 {
			out = append(out, s)
		}
	}
	return out
}

// ScoreBand buckets the compliance score: "good" from 80, "fair" from 60,
// "poor" below.
func (r *Result) ScoreBand() string {
	switch {
	case r.ComplianceScore >= 80:
		return "good"
	case r.ComplianceScore >= 60:
		return "fair"
	default:
		return "poor"
	}
}

// Normalize clamps the score to 0..100 and maps an unknown risk level to High.
func (r *Result) Normalize() {
	r.ComplianceScore = max(0, min(100, r.ComplianceScore))
	switch r.RiskLevel {
	case RiskLow, RiskMedium, RiskHigh:
	default:
		r.RiskLevel = RiskHigh
	}
}

// Parse decodes a stored payload. Both an analysis object and a JSON string
// holding a serialized object are accepted. The result is normalized. An empty
// or null payload returns (nil, nil).
func Parse(raw json.RawMessage) (*Result, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	if trimmed[0] == '"' {
		var inner string
		if err := json.Unmarshal(trimmed, &inner); err != nil {
			return nil, fmt.Errorf("analysis.Parse: %w: %w", ErrFormat, err)
		}
		if inner == "" {
			return nil, nil
		}
		trimmed = bytes.TrimSpace([]byte(inner))
	}

	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("analysis.Parse: %w", ErrFormat)
	}

	var r Result
	if err := json.Unmarshal(trimmed, &r); err != nil {
		return nil, fmt.Errorf("analysis.Parse: %w: %w", ErrFormat, err)
	}
	r.Normalize()
	return &r, nil
}

// UnmarshalJSON accepts any JSON number as the score. Models and older stored
// payloads write 72.0 or 85.5; the score is rounded to the nearest integer.
func (r *Result) UnmarshalJSON(data []byte) error {
	type plain Result
	aux := struct {
		*plain
		ComplianceScore float64 `json:"compliance_score"`
	}{plain: (*plain)(r)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.ComplianceScore = int(math.Round(max(0, min(100, aux.ComplianceScore))))
	return nil
}
