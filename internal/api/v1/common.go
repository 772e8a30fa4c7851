package v1

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/auditdesk/internal/domain"
	"github.com/gosuda/auditdesk/internal/server/middleware"
	redisstore "github.com/gosuda/auditdesk/internal/store/redis"
)

const defaultAnalysisLockTTL = 2 * time.Minute

// IssueBody is the wire form of an issue. Dates are YYYY-MM-DD.
type IssueBody struct {
	ID          int64           `json:"id"`
	FormID      int64           `json:"audit_form_id"`
	Description string          `json:"description"`
	Severity    domain.Severity `json:"severity" enum:"Low,Medium,High,Critical"`
	DueDate     string          `json:"due_date" format:"date"`
	Revision    int             `json:"revision"`
	CreatedAt   time.Time       `json:"created_at"`
}

func toIssueBody(i *domain.Issue) IssueBody {
	return IssueBody{
		ID:          i.ID,
		FormID:      i.FormID,
		Description: i.Description,
		Severity:    i.Severity,
		DueDate:     i.DueDate.Format(domain.DateLayout),
		Revision:    i.Revision,
		CreatedAt:   i.CreatedAt,
	}
}

func toIssueBodies(issues []*domain.Issue) []IssueBody {
	out := make([]IssueBody, 0, len(issues))
	for _, i := range issues {
		out = append(out, toIssueBody(i))
	}
	return out
}

type CorrectiveActionBody struct {
	ID               int64     `json:"id"`
	IssueID          int64     `json:"issue_id"`
	Description      string    `json:"description"`
	CompletionDate   *string   `json:"completion_date,omitempty" format:"date"`
	VerificationDate *string   `json:"verification_date,omitempty" format:"date"`
	CreatedAt        time.Time `json:"created_at"`
}

func toCorrectiveActionBody(a *domain.CorrectiveAction) CorrectiveActionBody {
	return CorrectiveActionBody{
		ID:               a.ID,
		IssueID:          a.IssueID,
		Description:      a.Description,
		CompletionDate:   formatDate(a.CompletionDate),
		VerificationDate: formatDate(a.VerificationDate),
		CreatedAt:        a.CreatedAt,
	}
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(domain.DateLayout)
	return &s
}

// parseOptionalDate parses s into a date. An empty string yields nil.
func parseOptionalDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	d, err := domain.ParseDate(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// buildDraft turns raw issue input into a draft and reports every failing
// field. An unparseable due date is reported instead of the missing one.
// current is the due date of the issue being edited, nil for a new issue.
func buildDraft(description, severity, dueDate string, today time.Time, current *time.Time) (domain.IssueDraft, domain.ValidationErrors) {
	draft := domain.IssueDraft{
		Description: strings.TrimSpace(description),
		Severity:    domain.Severity(severity),
	}
	errs := domain.ValidationErrors{}

	due, err := parseOptionalDate(dueDate)
	if err != nil {
		errs["due_date"] = "Due date must be a valid date (YYYY-MM-DD)"
	}
	draft.DueDate = due

	verr := draft.Validate(today)
	if current != nil {
		verr = draft.ValidateEdit(today, *current)
	}
	var verrs domain.ValidationErrors
	if errors.As(verr, &verrs) {
		for f, msg := range verrs {
			if _, seen := errs[f]; !seen {
				errs[f] = msg
			}
		}
	}
	return draft, errs
}

// validationError reports every failing field in one 422 response. prefix
// maps domain field names onto the request body names.
func validationError(errs domain.ValidationErrors, prefix string) error {
	details := make([]error, 0, len(errs))
	for _, f := range errs.Fields() {
		details = append(details, &huma.ErrorDetail{
			Message:  errs[f],
			Location: "body." + prefix + f,
		})
	}
	return huma.Error422UnprocessableEntity("validation failed", details...)
}

func (d *Deps) now() time.Time {
	if d.Clock != nil {
		return d.Clock()
	}
	return time.Now()
}

func (d *Deps) lockTTL() time.Duration {
	if d.AnalysisLockTTL > 0 {
		return d.AnalysisLockTTL
	}
	return defaultAnalysisLockTTL
}

// getForm loads a form and maps a missing row to 404.
func (d *Deps) getForm(ctx context.Context, id int64) (*domain.AuditForm, error) {
	form, err := d.Store.Forms().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, huma.Error404NotFound("form not found")
		}
		return nil, huma.Error500InternalServerError("failed to get form", err)
	}
	return form, nil
}

func (d *Deps) getIssue(ctx context.Context, id int64) (*domain.Issue, error) {
	issue, err := d.Store.Issues().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, huma.Error404NotFound("issue not found")
		}
		return nil, huma.Error500InternalServerError("failed to get issue", err)
	}
	return issue, nil
}

// record writes an activity log entry for the calling user. The mutation has
// already committed, so a failure is logged and swallowed.
func (d *Deps) record(ctx context.Context, details string) {
	entry := &domain.ActivityLog{Details: details}
	if uid, ok := middleware.UserIDFromContext(ctx); ok {
		entry.UserID = &uid
	}
	if err := d.Store.Activities().Record(ctx, entry); err != nil {
		log.Warn().Err(err).Str("details", details).Msg("failed to record activity")
	}
}

func (d *Deps) publish(ctx context.Context, ev redisstore.FormEvent) {
	if d.Events == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = d.now().UTC()
	}
	if err := d.Events.PublishForm(ctx, ev); err != nil {
		log.Warn().Err(err).Int64("form_id", ev.FormID).Str("event", ev.Type).Msg("failed to publish form event")
	}
}
