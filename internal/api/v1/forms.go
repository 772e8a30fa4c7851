package v1

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/auditdesk/internal/analysis"
	"github.com/gosuda/auditdesk/internal/domain"
	"github.com/gosuda/auditdesk/internal/metrics"
	redisstore "github.com/gosuda/auditdesk/internal/store/redis"
)

type FormIDInput struct {
	ID int64 `path:"id" minimum:"1" doc:"Audit form ID"`
}

type FormSummary struct {
	ID         int64             `json:"id"`
	FormName   string            `json:"formName"`
	Status     domain.StatusName `json:"status"`
	Revision   int               `json:"revision"`
	UpdatedAt  time.Time         `json:"updatedAt"`
	AIAnalysis json.RawMessage   `json:"aiAnalysis" doc:"Stored analysis, either an object or a JSON-encoded string; null when absent"`
}

type GetFormDetailsOutput struct {
	Body struct {
		Form         FormSummary           `json:"form"`
		CombinedForm []domain.CombinedItem `json:"combinedForm"`
	}
}

type ListIssuesOutput struct {
	Body struct {
		Data []IssueBody `json:"data"`
	}
}

type UpdateFormStatusInput struct {
	ID   int64 `path:"id" minimum:"1" doc:"Audit form ID"`
	Body struct {
		StatusID         int64  `json:"status_id" doc:"4 to reject, 5 to approve"`
		IssueDescription string `json:"issue_description,omitempty" doc:"Required when rejecting"`
		IssueSeverity    string `json:"issue_severity,omitempty" doc:"Required when rejecting: Low, Medium, High or Critical"`
		IssueDueDate     string `json:"issue_due_date,omitempty" doc:"Required when rejecting, YYYY-MM-DD, not in the past"`
	}
}

type UpdateFormStatusOutput struct {
	Body struct {
		ID       int64             `json:"id"`
		Status   domain.StatusName `json:"status"`
		Revision int               `json:"revision"`
		Issue    *IssueBody        `json:"issue,omitempty"`
	}
}

type GenerateAnalysisOutput struct {
	Body struct {
		Success  bool             `json:"success"`
		Analysis *analysis.Result `json:"analysis,omitempty"`
		Error    string           `json:"error,omitempty"`
	}
}

// RegisterFormRoutes registers the reviewer form endpoints under /manager.
func RegisterFormRoutes(api huma.API, d *Deps) {
	huma.Register(api, huma.Operation{
		OperationID: "get-form-details",
		Method:      http.MethodGet,
		Path:        "/manager/forms/{id}/details",
		Summary:     "Get an audit form with its answers and stored analysis",
		Tags:        []string{"Forms"},
	}, func(ctx context.Context, input *FormIDInput) (*GetFormDetailsOutput, error) {
		form, err := d.getForm(ctx, input.ID)
		if err != nil {
			return nil, err
		}

		tmpl, err := d.Store.Forms().GetTemplate(ctx, form.TemplateID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, huma.Error500InternalServerError("failed to get form template", err)
		}

		out := &GetFormDetailsOutput{}
		out.Body.Form = FormSummary{
			ID:        form.ID,
			FormName:  form.Name,
			Status:    form.Status,
			Revision:  form.Revision,
			UpdatedAt: form.UpdatedAt,
		}
		if form.HasAnalysis() {
			out.Body.Form.AIAnalysis = form.AIAnalysis
		}
		out.Body.CombinedForm = domain.CombineAnswers(tmpl, form.Value)
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-current-issues",
		Method:      http.MethodGet,
		Path:        "/manager/forms/{id}/issues",
		Summary:     "List issues of the form's current revision",
		Tags:        []string{"Issues"},
	}, func(ctx context.Context, input *FormIDInput) (*ListIssuesOutput, error) {
		return d.listIssues(ctx, input.ID, domain.IssueVersionCurrent)
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-previous-issues",
		Method:      http.MethodGet,
		Path:        "/manager/forms/{id}/previous-issues",
		Summary:     "List issues of the form's previous revision",
		Tags:        []string{"Issues"},
	}, func(ctx context.Context, input *FormIDInput) (*ListIssuesOutput, error) {
		return d.listIssues(ctx, input.ID, domain.IssueVersionPrevious)
	})

	huma.Register(api, huma.Operation{
		OperationID:   "update-form-status",
		Method:        http.MethodPost,
		Path:          "/manager/forms/{id}/status",
		Summary:       "Approve or reject an audit form",
		Description:   "Rejection validates every issue field together and creates the issue atomically with the status change.",
		Tags:          []string{"Forms"},
		DefaultStatus: http.StatusOK,
	}, func(ctx context.Context, input *UpdateFormStatusInput) (*UpdateFormStatusOutput, error) {
		return d.updateStatus(ctx, input)
	})

	huma.Register(api, huma.Operation{
		OperationID:   "generate-form-analysis",
		Method:        http.MethodPost,
		Path:          "/manager/forms/{id}/generate-analysis",
		Summary:       "Return the stored analysis or generate one",
		Description:   "Generation runs at most once per form at a time; a concurrent request gets 409.",
		Tags:          []string{"Forms"},
		DefaultStatus: http.StatusOK,
	}, func(ctx context.Context, input *FormIDInput) (*GenerateAnalysisOutput, error) {
		return d.generateAnalysis(ctx, input.ID)
	})
}

func (d *Deps) listIssues(ctx context.Context, formID int64, version domain.IssueVersion) (*ListIssuesOutput, error) {
	form, err := d.getForm(ctx, formID)
	if err != nil {
		return nil, err
	}

	out := &ListIssuesOutput{}
	out.Body.Data = []IssueBody{}

	revision := version.Revision(form.Revision)
	if revision < 1 {
		return out, nil
	}

	issues, err := d.Store.Issues().ListByRevision(ctx, form.ID, revision)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list issues", err)
	}

	out.Body.Data = toIssueBodies(issues)
	return out, nil
}

func (d *Deps) updateStatus(ctx context.Context, input *UpdateFormStatusInput) (*UpdateFormStatusOutput, error) {
	status, ok := domain.ReviewDecision(input.Body.StatusID)
	if !ok {
		return nil, huma.Error422UnprocessableEntity("validation failed", &huma.ErrorDetail{
			Message:  "Status must be approved or rejected",
			Location: "body.status_id",
			Value:    input.Body.StatusID,
		})
	}

	var draft domain.IssueDraft
	if status == domain.StatusRejected {
		var errs domain.ValidationErrors
		draft, errs = buildDraft(input.Body.IssueDescription, input.Body.IssueSeverity, input.Body.IssueDueDate, d.now(), nil)
		if len(errs) > 0 {
			return nil, validationError(errs, "issue_")
		}
	}

	form, err := d.getForm(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	out := &UpdateFormStatusOutput{}
	out.Body.ID = form.ID
	out.Body.Status = status

	var issue *domain.Issue
	switch status {
	case domain.StatusRejected:
		issue = &domain.Issue{
			Description: draft.Description,
			Severity:    draft.Severity,
			DueDate:     domain.Day(*draft.DueDate),
		}
		if err := d.Store.Forms().Reject(ctx, form.ID, issue); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("form not found")
			}
			return nil, huma.Error500InternalServerError("failed to reject form", err)
		}
		body := toIssueBody(issue)
		out.Body.Issue = &body
	default:
		if err := d.Store.Forms().UpdateStatus(ctx, form.ID, domain.StatusIDApproved); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("form not found")
			}
			return nil, huma.Error500InternalServerError("failed to approve form", err)
		}
	}
	out.Body.Revision = form.Revision

	log.Info().Int64("form_id", form.ID).Str("status", string(status)).Msg("form reviewed")

	d.record(ctx, fmt.Sprintf("Audit form '%s' was %s", form.Name, status))
	ev := redisstore.FormEvent{
		Type:     redisstore.EventStatusChanged,
		FormID:   form.ID,
		Status:   string(status),
		Revision: form.Revision,
	}
	if issue != nil {
		ev.IssueID = issue.ID
	}
	d.publish(ctx, ev)
	d.Metrics.Review(string(status))

	if d.Notifier != nil {
		form.Status = status
		var nerr error
		if issue != nil {
			nerr = d.Notifier.FormRejected(ctx, form, issue)
		} else {
			nerr = d.Notifier.FormApproved(ctx, form)
		}
		if nerr != nil {
			log.Warn().Err(nerr).Int64("form_id", form.ID).Msg("review notification failed")
		}
	}

	return out, nil
}

func (d *Deps) generateAnalysis(ctx context.Context, formID int64) (*GenerateAnalysisOutput, error) {
	form, err := d.getForm(ctx, formID)
	if err != nil {
		return nil, err
	}
	if form.HasAnalysis() {
		return d.storedAnalysis(form), nil
	}

	if d.Locks != nil {
		release, err := d.Locks.Acquire(ctx, redisstore.AnalysisLockKey(form.ID), d.lockTTL())
		if err != nil {
			if errors.Is(err, redisstore.ErrLocked) {
				d.Metrics.Analysis(metrics.AnalysisInFlight)
				return nil, huma.Error409Conflict("analysis generation already in progress")
			}
			return nil, huma.Error500InternalServerError("failed to lock form", err)
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				log.Warn().Err(err).Int64("form_id", form.ID).Msg("failed to release analysis lock")
			}
		}()

		// Another replica may have finished while we waited for the lock.
		form, err = d.getForm(ctx, formID)
		if err != nil {
			return nil, err
		}
		if form.HasAnalysis() {
			return d.storedAnalysis(form), nil
		}
	}

	tmpl, err := d.Store.Forms().GetTemplate(ctx, form.TemplateID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, huma.Error500InternalServerError("failed to get form template", err)
	}

	out := &GenerateAnalysisOutput{}

	start := time.Now()
	result, err := d.Analyzer.Analyze(ctx, form, domain.CombineAnswers(tmpl, form.Value))
	d.Metrics.AnalysisDuration(time.Since(start))
	if err != nil {
		log.Warn().Err(err).Int64("form_id", form.ID).Msg("analysis generation failed")
		d.Metrics.Analysis(metrics.AnalysisFailed)
		out.Body.Error = "Failed to generate analysis. Please try again."
		return out, nil
	}
	result.Normalize()

	raw, err := json.Marshal(result)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to encode analysis", err)
	}
	if err := d.Store.Forms().SetAnalysis(ctx, form.ID, raw); err != nil {
		return nil, huma.Error500InternalServerError("failed to store analysis", err)
	}

	d.record(ctx, fmt.Sprintf("AI analysis generated for audit form '%s'", form.Name))
	d.publish(ctx, redisstore.FormEvent{Type: redisstore.EventAnalysisReady, FormID: form.ID, Revision: form.Revision})
	d.Metrics.Analysis(metrics.AnalysisGenerated)

	out.Body.Success = true
	out.Body.Analysis = result
	return out, nil
}

func (d *Deps) storedAnalysis(form *domain.AuditForm) *GenerateAnalysisOutput {
	out := &GenerateAnalysisOutput{}

	result, err := analysis.Parse(form.AIAnalysis)
	if err != nil || result == nil {
		log.Warn().Err(err).Int64("form_id", form.ID).Msg("stored analysis unreadable")
		out.Body.Error = "Stored analysis has an invalid format."
		return out
	}

	d.Metrics.Analysis(metrics.AnalysisStored)
	out.Body.Success = true
	out.Body.Analysis = result
	return out
}
