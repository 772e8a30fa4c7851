package domain

import (
	"bytes"
	"context"
	"encoding/json"
	"time"
)

// FormField is one question of a form template.
type FormField struct {
	ID      string   `json:"id"`
	Label   string   `json:"label"`
	Type    string   `json:"type"` // text, textarea, checkbox, checkbox-group, file, select, date, radio
	Options []string `json:"options,omitempty"`
}

type FormTemplate struct {
	ID        int64       `json:"id"`
	Name      string      `json:"name"`
	Structure []FormField `json:"structure"`
}

// AuditForm is a submitted form instance within an audit.
type AuditForm struct {
	ID         int64          `json:"id"`
	TemplateID int64          `json:"form_id"`
	Name       string         `json:"name"`
	Value      map[string]any `json:"value"`
	StatusID   int64          `json:"status_id"`
	Status     StatusName     `json:"status"`
	OutletID   int64          `json:"outlet_id,omitempty"`
	OutletName string         `json:"outlet,omitempty"`
	// AIAnalysis is stored verbatim; older rows hold a JSON-encoded string
	// instead of an object.
	AIAnalysis json.RawMessage `json:"ai_analysis,omitempty"`
	Revision   int             `json:"revision"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// HasAnalysis reports whether a stored analysis payload is present.
func (f *AuditForm) HasAnalysis() bool {
	trimmed := bytes.TrimSpace(f.AIAnalysis)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) && !bytes.Equal(trimmed, []byte(`""`))
}

// CombinedItem is a template question paired with the submitted answer.
type CombinedItem struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Type  string `json:"type"`
	Value any    `json:"value"`
}

// CombineAnswers merges a template structure with answers, in template order.
// Questions without an answer carry a nil value.
func CombineAnswers(tmpl *FormTemplate, answers map[string]any) []CombinedItem {
	if tmpl == nil {
		return []CombinedItem{}
	}

	items := make([]CombinedItem, 0, len(tmpl.Structure))
	for _, field := range tmpl.Structure {
		items = append(items, CombinedItem{
			ID:    field.ID,
			Label: field.Label,
			Type:  field.Type,
			Value: answers[field.ID],
		})
	}
	return items
}

type FormRepository interface {
	GetByID(ctx context.Context, id int64) (*AuditForm, error)
	GetTemplate(ctx context.Context, id int64) (*FormTemplate, error)
	UpdateStatus(ctx context.Context, id, statusID int64) error
	// Reject sets the rejected status and creates the issue in the form's
	// current revision, atomically. The issue's ID, FormID, Revision and
	// CreatedAt are filled in.
	Reject(ctx context.Context, id int64, issue *Issue) error
	SetAnalysis(ctx context.Context, id int64, analysis json.RawMessage) error
	// Resubmit replaces the answers, bumps the revision and returns the new
	// revision number.
	Resubmit(ctx context.Context, id int64, value map[string]any) (int, error)
}
