package redis

import (
	"encoding/json"
	"fmt"
	"time"
)

// Form event types.
const (
	EventStatusChanged          = "status_changed"
	EventIssueUpdated           = "issue_updated"
	EventIssueDeleted           = "issue_deleted"
	EventAnalysisReady          = "analysis_ready"
	EventResubmitted            = "resubmitted"
	EventCorrectiveActionLogged = "corrective_action_created"
)

// FormEvent tells open review views that a form changed and should be
// re-fetched.
type FormEvent struct {
	Type     string    `json:"type"`
	FormID   int64     `json:"form_id"`
	IssueID  int64     `json:"issue_id,omitempty"`
	Status   string    `json:"status,omitempty"`
	Revision int       `json:"revision,omitempty"`
	At       time.Time `json:"at"`
}

func (e FormEvent) Encode() ([]byte, error) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("redis.FormEvent.Encode: %w", err)
	}
	return data, nil
}

func DecodeFormEvent(data []byte) (FormEvent, error) {
	var e FormEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return FormEvent{}, fmt.Errorf("redis.DecodeFormEvent: %w", err)
	}
	return e, nil
}
