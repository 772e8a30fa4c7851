package domain

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type Severity string

const (
	SeverityLow      Severity = "Low"
	SeverityMedium   Severity = "Medium"
	SeverityHigh     Severity = "High"
	SeverityCritical Severity = "Critical"
)

// Severities lists the defined levels, lowest first.
func Severities() []Severity {
	return []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}
}

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	default:
		return false
	}
}

// IssueVersion selects one of the two issue snapshots of a form.
type IssueVersion string

const (
	IssueVersionCurrent  IssueVersion = "current"
	IssueVersionPrevious IssueVersion = "previous"
)

func (v IssueVersion) Valid() bool {
	return v == IssueVersionCurrent || v == IssueVersionPrevious
}

// Revision returns the form revision holding this version's issues.
func (v IssueVersion) Revision(formRevision int) int {
	if v == IssueVersionPrevious {
		return formRevision - 1
	}
	return formRevision
}

type Issue struct {
	ID          int64     `json:"id"`
	FormID      int64     `json:"audit_form_id"`
	Description string    `json:"description"`
	Severity    Severity  `json:"severity"`
	DueDate     time.Time `json:"due_date"`
	Revision    int       `json:"revision"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type CorrectiveAction struct {
	ID               int64      `json:"id"`
	IssueID          int64      `json:"issue_id"`
	Description      string     `json:"description"`
	CompletionDate   *time.Time `json:"completion_date,omitempty"`
	VerificationDate *time.Time `json:"verification_date,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// DateLayout is the wire format of date-only fields.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD string into midnight UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("domain.ParseDate: %w", err)
	}
	return t, nil
}

// Day returns the calendar date of t as midnight UTC, discarding the time of day.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// IssueDraft holds reviewer input for a new or edited issue.
type IssueDraft struct {
	Description string
	Severity    Severity
	DueDate     *time.Time
}

// Validate checks every field and reports all failures together. today is
// compared by calendar date only; a due date equal to today is accepted.
func (d IssueDraft) Validate(today time.Time) error {
	return d.validate(today, nil)
}

// ValidateEdit validates changes to an existing issue whose due date is
// current. Keeping that date is accepted even after it has passed; only a new
// due date must not lie in the past.
func (d IssueDraft) ValidateEdit(today, current time.Time) error {
	return d.validate(today, &current)
}

func (d IssueDraft) validate(today time.Time, current *time.Time) error {
	errs := ValidationErrors{}

	if strings.TrimSpace(d.Description) == "" {
		errs["description"] = "Issue description is required"
	}

	if d.Severity == "" {
		errs["severity"] = "Severity level is required"
	} else if !d.Severity.Valid() {
		errs["severity"] = "Severity must be one of Low, Medium, High, Critical"
	}

	if d.DueDate == nil {
		errs["due_date"] = "Due date is required"
	} else if Day(*d.DueDate).Before(Day(today)) && (current == nil || !Day(*d.DueDate).Equal(Day(*current))) {
		errs["due_date"] = "Due date must be in the future"
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

type IssueRepository interface {
	GetByID(ctx context.Context, id int64) (*Issue, error)
	ListByRevision(ctx context.Context, formID int64, revision int) ([]*Issue, error)
	// UpdateIfUnlocked and DeleteIfUnlocked only touch issues without
	// corrective actions; otherwise they return ErrConflict.
	UpdateIfUnlocked(ctx context.Context, issue *Issue) error
	DeleteIfUnlocked(ctx context.Context, id int64) error

	CountCorrectiveActions(ctx context.Context, issueIDs []int64) (map[int64]int, error)
	ListCorrectiveActions(ctx context.Context, issueID int64) ([]*CorrectiveAction, error)
	CreateCorrectiveAction(ctx context.Context, action *CorrectiveAction) error
}
