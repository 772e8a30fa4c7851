package v1

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/auditdesk/internal/domain"
	"github.com/gosuda/auditdesk/internal/server/middleware"
	redisstore "github.com/gosuda/auditdesk/internal/store/redis"
)

type ResubmitFormInput struct {
	ID   int64 `path:"id" minimum:"1" doc:"Audit form ID"`
	Body struct {
		Value map[string]any `json:"value" doc:"Answers keyed by template field ID"`
	}
}

type ResubmitFormOutput struct {
	Body struct {
		ID       int64             `json:"id"`
		Status   domain.StatusName `json:"status"`
		Revision int               `json:"revision"`
	}
}

type CreateCorrectiveActionInput struct {
	ID   int64 `path:"id" minimum:"1" doc:"Issue ID"`
	Body struct {
		Description      string `json:"description,omitempty" doc:"What was done"`
		CompletionDate   string `json:"completion_date,omitempty" doc:"YYYY-MM-DD"`
		VerificationDate string `json:"verification_date,omitempty" doc:"YYYY-MM-DD"`
	}
}

type CreateCorrectiveActionOutput struct {
	Body CorrectiveActionBody
}

// RegisterOutletRoutes registers the endpoints outlets use to answer a
// rejection.
func RegisterOutletRoutes(api huma.API, d *Deps) {
	huma.Register(api, huma.Operation{
		OperationID: "outlet-list-issues",
		Method:      http.MethodGet,
		Path:        "/outlet/forms/{id}/issues",
		Summary:     "List the current issues of one of the outlet's forms",
		Tags:        []string{"Outlet"},
	}, func(ctx context.Context, input *FormIDInput) (*ListIssuesOutput, error) {
		if _, err := d.ownForm(ctx, input.ID); err != nil {
			return nil, err
		}
		return d.listIssues(ctx, input.ID, domain.IssueVersionCurrent)
	})

	huma.Register(api, huma.Operation{
		OperationID:   "resubmit-form",
		Method:        http.MethodPost,
		Path:          "/outlet/forms/{id}/resubmit",
		Summary:       "Resubmit a rejected form",
		Description:   "Replaces the answers and starts a new revision; the issues raised so far become the previous revision.",
		Tags:          []string{"Outlet"},
		DefaultStatus: http.StatusOK,
	}, func(ctx context.Context, input *ResubmitFormInput) (*ResubmitFormOutput, error) {
		form, err := d.ownForm(ctx, input.ID)
		if err != nil {
			return nil, err
		}
		if form.StatusID != domain.StatusIDRejected && form.StatusID != domain.StatusIDRevising {
			return nil, huma.Error409Conflict("only rejected forms can be resubmitted")
		}

		revision, err := d.Store.Forms().Resubmit(ctx, form.ID, input.Body.Value)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("form not found")
			}
			return nil, huma.Error500InternalServerError("failed to resubmit form", err)
		}

		log.Info().Int64("form_id", form.ID).Int("revision", revision).Msg("form resubmitted")

		d.record(ctx, fmt.Sprintf("Audit form '%s' was resubmitted as revision %d", form.Name, revision))
		d.publish(ctx, redisstore.FormEvent{
			Type:     redisstore.EventResubmitted,
			FormID:   form.ID,
			Status:   string(domain.StatusPending),
			Revision: revision,
		})
		d.Metrics.Resubmission()

		out := &ResubmitFormOutput{}
		out.Body.ID = form.ID
		out.Body.Status = domain.StatusPending
		out.Body.Revision = revision
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-corrective-action",
		Method:        http.MethodPost,
		Path:          "/outlet/issues/{id}/corrective-actions",
		Summary:       "Record a corrective action for an issue",
		Description:   "Once an issue has a corrective action, reviewers can no longer edit or delete it.",
		Tags:          []string{"Outlet"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *CreateCorrectiveActionInput) (*CreateCorrectiveActionOutput, error) {
		errs := domain.ValidationErrors{}
		description := strings.TrimSpace(input.Body.Description)
		if description == "" {
			errs["description"] = "Corrective action description is required"
		}
		completed, err := parseOptionalDate(input.Body.CompletionDate)
		if err != nil {
			errs["completion_date"] = "Completion date must be a valid date (YYYY-MM-DD)"
		}
		verified, err := parseOptionalDate(input.Body.VerificationDate)
		if err != nil {
			errs["verification_date"] = "Verification date must be a valid date (YYYY-MM-DD)"
		}
		if completed != nil && verified != nil && verified.Before(*completed) {
			errs["verification_date"] = "Verification date cannot be before the completion date"
		}
		if len(errs) > 0 {
			return nil, validationError(errs, "")
		}

		issue, err := d.getIssue(ctx, input.ID)
		if err != nil {
			return nil, err
		}
		form, err := d.ownForm(ctx, issue.FormID)
		if err != nil {
			return nil, err
		}

		action := &domain.CorrectiveAction{
			IssueID:          issue.ID,
			Description:      description,
			CompletionDate:   completed,
			VerificationDate: verified,
		}
		if err := d.Store.Issues().CreateCorrectiveAction(ctx, action); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("issue not found")
			}
			return nil, huma.Error500InternalServerError("failed to create corrective action", err)
		}

		log.Info().Int64("form_id", form.ID).Int64("issue_id", issue.ID).Msg("corrective action created")

		d.record(ctx, fmt.Sprintf("Corrective action for issue #%d on audit form '%s' was created", issue.ID, form.Name))
		d.publish(ctx, redisstore.FormEvent{
			Type:     redisstore.EventCorrectiveActionLogged,
			FormID:   form.ID,
			IssueID:  issue.ID,
			Revision: form.Revision,
		})
		d.Metrics.CorrectiveActionCreated()

		return &CreateCorrectiveActionOutput{Body: toCorrectiveActionBody(action)}, nil
	})
}

// ownForm loads a form that belongs to the caller's outlet. Forms of other
// outlets are reported as missing.
func (d *Deps) ownForm(ctx context.Context, id int64) (*domain.AuditForm, error) {
	outletID, ok := middleware.OutletIDFromContext(ctx)
	if !ok {
		return nil, huma.Error403Forbidden("missing outlet context")
	}

	form, err := d.getForm(ctx, id)
	if err != nil {
		return nil, err
	}
	if form.OutletID != outletID {
		return nil, huma.Error404NotFound("form not found")
	}
	return form, nil
}
