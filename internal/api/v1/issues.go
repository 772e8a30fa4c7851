package v1

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/auditdesk/internal/domain"
	redisstore "github.com/gosuda/auditdesk/internal/store/redis"
)

type CountCorrectiveActionsInput struct {
	IssueIDs string `query:"issueIds" doc:"Comma-separated issue IDs"`
}

type CountCorrectiveActionsOutput struct {
	Body struct {
		Data map[string]int `json:"data" doc:"Corrective action count keyed by issue ID"`
	}
}

type IssueIDInput struct {
	ID int64 `path:"id" minimum:"1" doc:"Issue ID"`
}

type ListCorrectiveActionsOutput struct {
	Body struct {
		Data []CorrectiveActionBody `json:"data"`
	}
}

type UpdateIssueInput struct {
	ID   int64 `path:"id" minimum:"1" doc:"Issue ID"`
	Body struct {
		Description string `json:"description,omitempty" doc:"What is wrong"`
		Severity    string `json:"severity,omitempty" doc:"Low, Medium, High or Critical"`
		DueDate     string `json:"due_date,omitempty" doc:"YYYY-MM-DD, not in the past"`
	}
}

type UpdateIssueOutput struct {
	Body IssueBody
}

// RegisterIssueRoutes registers the reviewer issue endpoints under /manager.
func RegisterIssueRoutes(api huma.API, d *Deps) {
	huma.Register(api, huma.Operation{
		OperationID: "count-corrective-actions",
		Method:      http.MethodGet,
		Path:        "/manager/issues/corrective-actions-count",
		Summary:     "Count corrective actions for a batch of issues",
		Tags:        []string{"Issues"},
	}, func(ctx context.Context, input *CountCorrectiveActionsInput) (*CountCorrectiveActionsOutput, error) {
		ids, err := parseIDList(input.IssueIDs)
		if err != nil {
			return nil, huma.Error422UnprocessableEntity("validation failed", &huma.ErrorDetail{
				Message:  err.Error(),
				Location: "query.issueIds",
				Value:    input.IssueIDs,
			})
		}

		out := &CountCorrectiveActionsOutput{}
		out.Body.Data = make(map[string]int, len(ids))
		if len(ids) == 0 {
			return out, nil
		}

		counts, err := d.Store.Issues().CountCorrectiveActions(ctx, ids)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to count corrective actions", err)
		}

		for _, id := range ids {
			out.Body.Data[strconv.FormatInt(id, 10)] = counts[id]
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-corrective-actions",
		Method:      http.MethodGet,
		Path:        "/manager/issues/{id}/corrective-actions",
		Summary:     "List the corrective actions of an issue",
		Tags:        []string{"Issues"},
	}, func(ctx context.Context, input *IssueIDInput) (*ListCorrectiveActionsOutput, error) {
		if _, err := d.getIssue(ctx, input.ID); err != nil {
			return nil, err
		}

		actions, err := d.Store.Issues().ListCorrectiveActions(ctx, input.ID)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list corrective actions", err)
		}

		out := &ListCorrectiveActionsOutput{}
		out.Body.Data = make([]CorrectiveActionBody, 0, len(actions))
		for _, a := range actions {
			out.Body.Data = append(out.Body.Data, toCorrectiveActionBody(a))
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-issue",
		Method:      http.MethodPut,
		Path:        "/manager/issues/{id}",
		Summary:     "Edit an issue",
		Description: "Only issues of the current revision without corrective actions can be edited.",
		Tags:        []string{"Issues"},
	}, func(ctx context.Context, input *UpdateIssueInput) (*UpdateIssueOutput, error) {
		issue, form, err := d.mutableIssue(ctx, input.ID)
		if err != nil {
			return nil, err
		}

		draft, errs := buildDraft(input.Body.Description, input.Body.Severity, input.Body.DueDate, d.now(), &issue.DueDate)
		if len(errs) > 0 {
			return nil, validationError(errs, "")
		}

		issue.Description = draft.Description
		issue.Severity = draft.Severity
		issue.DueDate = domain.Day(*draft.DueDate)

		if err := d.Store.Issues().UpdateIfUnlocked(ctx, issue); err != nil {
			return nil, issueWriteError(err, "update")
		}

		log.Info().Int64("form_id", form.ID).Int64("issue_id", issue.ID).Msg("issue updated")

		d.record(ctx, fmt.Sprintf("Issue #%d on audit form '%s' was updated", issue.ID, form.Name))
		d.publish(ctx, redisstore.FormEvent{Type: redisstore.EventIssueUpdated, FormID: form.ID, IssueID: issue.ID, Revision: form.Revision})
		d.Metrics.IssueMutation("update")

		return &UpdateIssueOutput{Body: toIssueBody(issue)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-issue",
		Method:      http.MethodDelete,
		Path:        "/manager/issues/{id}",
		Summary:     "Delete an issue",
		Description: "Only issues of the current revision without corrective actions can be deleted.",
		Tags:        []string{"Issues"},
	}, func(ctx context.Context, input *IssueIDInput) (*struct{}, error) {
		issue, form, err := d.mutableIssue(ctx, input.ID)
		if err != nil {
			return nil, err
		}

		if err := d.Store.Issues().DeleteIfUnlocked(ctx, issue.ID); err != nil {
			return nil, issueWriteError(err, "delete")
		}

		log.Info().Int64("form_id", form.ID).Int64("issue_id", issue.ID).Msg("issue deleted")

		d.record(ctx, fmt.Sprintf("Issue #%d on audit form '%s' was deleted", issue.ID, form.Name))
		d.publish(ctx, redisstore.FormEvent{Type: redisstore.EventIssueDeleted, FormID: form.ID, IssueID: issue.ID, Revision: form.Revision})
		d.Metrics.IssueMutation("delete")

		return nil, nil
	})
}

// mutableIssue loads an issue and its form and rejects issues that belong to
// an earlier revision. The corrective action guard runs in the store.
func (d *Deps) mutableIssue(ctx context.Context, id int64) (*domain.Issue, *domain.AuditForm, error) {
	issue, err := d.getIssue(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	form, err := d.getForm(ctx, issue.FormID)
	if err != nil {
		return nil, nil, err
	}

	if issue.Revision != form.Revision {
		return nil, nil, huma.Error409Conflict("issue belongs to a previous revision")
	}
	return issue, form, nil
}

func issueWriteError(err error, op string) error {
	switch {
	case errors.Is(err, domain.ErrConflict):
		return huma.Error409Conflict("issue has corrective actions and can no longer be changed")
	case errors.Is(err, domain.ErrNotFound):
		return huma.Error404NotFound("issue not found")
	default:
		return huma.Error500InternalServerError("failed to "+op+" issue", err)
	}
}

// parseIDList parses "1,2,3". Blank entries are skipped and duplicates
// collapse.
func parseIDList(s string) ([]int64, error) {
	seen := make(map[int64]struct{})
	ids := []int64{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid issue id %q", part)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}
