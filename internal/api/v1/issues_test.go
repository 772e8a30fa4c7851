package v1_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/gosuda/auditdesk/internal/api/v1"
	"github.com/gosuda/auditdesk/internal/domain"
	redisstore "github.com/gosuda/auditdesk/internal/store/redis"
)

func currentIssue() *domain.Issue {
	return &domain.Issue{
		ID:          5,
		FormID:      1,
		Description: "Dirty floor",
		Severity:    domain.SeverityMedium,
		DueDate:     time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		Revision:    2,
	}
}

func issueByID(issue *domain.Issue) func(context.Context, int64) (*domain.Issue, error) {
	return func(_ context.Context, id int64) (*domain.Issue, error) {
		if id != issue.ID {
			return nil, domain.ErrNotFound
		}
		cp := *issue
		return &cp, nil
	}
}

// ---------------------------------------------------------------------------
// GET /manager/issues/corrective-actions-count
// ---------------------------------------------------------------------------

func TestCountCorrectiveActions(t *testing.T) {
	t.Parallel()

	t.Run("every_requested_id_present", func(t *testing.T) {
		t.Parallel()

		h := newHarness()
		var calls int
		h.issues.countCorrectiveActionsFunc = func(_ context.Context, ids []int64) (map[int64]int, error) {
			calls++
			assert.Equal(t, []int64{5, 6, 9}, ids)
			return map[int64]int{5: 2}, nil
		}

		_, api := humatest.New(t)
		v1.RegisterIssueRoutes(api, h.deps)

		resp := api.GetCtx(managerCtx(), "/manager/issues/corrective-actions-count?issueIds=5,6,,9,5")
		require.Equal(t, http.StatusOK, resp.Code)
		assert.Equal(t, 1, calls, "one batch query")

		body := decode[struct {
			Data map[string]int `json:"data"`
		}](t, resp.Body.Bytes())
		assert.Equal(t, map[string]int{"5": 2, "6": 0, "9": 0}, body.Data)
	})

	t.Run("empty_list_skips_query", func(t *testing.T) {
		t.Parallel()

		h := newHarness()
		_, api := humatest.New(t)
		v1.RegisterIssueRoutes(api, h.deps)

		resp := api.GetCtx(managerCtx(), "/manager/issues/corrective-actions-count?issueIds=")
		require.Equal(t, http.StatusOK, resp.Code)
		assert.JSONEq(t, `{"data":{}}`, stripSchema(t, resp.Body.Bytes()))
	})

	t.Run("invalid_id", func(t *testing.T) {
		t.Parallel()

		h := newHarness()
		_, api := humatest.New(t)
		v1.RegisterIssueRoutes(api, h.deps)

		resp := api.GetCtx(managerCtx(), "/manager/issues/corrective-actions-count?issueIds=5,abc")
		require.Equal(t, http.StatusUnprocessableEntity, resp.Code)
		assert.Equal(t, []string{"query.issueIds"}, decode[problem](t, resp.Body.Bytes()).locations())
	})
}

// ---------------------------------------------------------------------------
// GET /manager/issues/{id}/corrective-actions
// ---------------------------------------------------------------------------

func TestListCorrectiveActions(t *testing.T) {
	t.Parallel()

	completed := time.Date(2025, 6, 20, 0, 0, 0, 0, time.UTC)

	h := newHarness()
	h.issues.getByIDFunc = issueByID(currentIssue())
	h.issues.listCorrectiveActionsFunc = func(_ context.Context, issueID int64) ([]*domain.CorrectiveAction, error) {
		assert.Equal(t, int64(5), issueID)
		return []*domain.CorrectiveAction{
			{ID: 1, IssueID: 5, Description: "Mopped", CompletionDate: &completed},
		}, nil
	}

	_, api := humatest.New(t)
	v1.RegisterIssueRoutes(api, h.deps)

	resp := api.GetCtx(managerCtx(), "/manager/issues/5/corrective-actions")
	require.Equal(t, http.StatusOK, resp.Code)

	body := decode[struct {
		Data []map[string]any `json:"data"`
	}](t, resp.Body.Bytes())
	require.Len(t, body.Data, 1)
	assert.Equal(t, "2025-06-20", body.Data[0]["completion_date"])
	assert.NotContains(t, body.Data[0], "verification_date")

	resp = api.GetCtx(managerCtx(), "/manager/issues/404/corrective-actions")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

// ---------------------------------------------------------------------------
// PUT /manager/issues/{id}
// ---------------------------------------------------------------------------

func TestUpdateIssue(t *testing.T) {
	t.Parallel()

	validBody := map[string]any{
		"description": "Floor still sticky",
		"severity":    "High",
		"due_date":    "2025-06-30",
	}

	t.Run("happy_path", func(t *testing.T) {
		t.Parallel()

		h := newHarness()
		h.issues.getByIDFunc = issueByID(currentIssue())
		h.forms.getByIDFunc = formByID(pendingForm())
		h.issues.updateIfUnlockedFunc = func(_ context.Context, issue *domain.Issue) error {
			assert.Equal(t, int64(5), issue.ID)
			assert.Equal(t, "Floor still sticky", issue.Description)
			assert.Equal(t, domain.SeverityHigh, issue.Severity)
			assert.Equal(t, time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC), issue.DueDate)
			return nil
		}

		_, api := humatest.New(t)
		v1.RegisterIssueRoutes(api, h.deps)

		resp := api.PutCtx(managerCtx(), "/manager/issues/5", validBody)
		require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

		body := decode[v1.IssueBody](t, resp.Body.Bytes())
		assert.Equal(t, "2025-06-30", body.DueDate)
		assert.Equal(t, []string{redisstore.EventIssueUpdated}, h.events.types())
		assert.Equal(t, []string{"Issue #5 on audit form 'Kitchen hygiene' was updated"}, h.activities.details())
	})

	t.Run("validation_reports_all_fields", func(t *testing.T) {
		t.Parallel()

		h := newHarness()
		h.issues.getByIDFunc = issueByID(currentIssue())
		h.forms.getByIDFunc = formByID(pendingForm())

		_, api := humatest.New(t)
		v1.RegisterIssueRoutes(api, h.deps)

		resp := api.PutCtx(managerCtx(), "/manager/issues/5", map[string]any{"due_date": "2025-06-01"})
		require.Equal(t, http.StatusUnprocessableEntity, resp.Code)
		assert.Equal(t,
			[]string{"body.description", "body.due_date", "body.severity"},
			decode[problem](t, resp.Body.Bytes()).locations())
	})

	t.Run("overdue_issue_keeps_its_due_date", func(t *testing.T) {
		t.Parallel()

		overdue := currentIssue()
		overdue.DueDate = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

		h := newHarness()
		h.issues.getByIDFunc = issueByID(overdue)
		h.forms.getByIDFunc = formByID(pendingForm())
		h.issues.updateIfUnlockedFunc = func(_ context.Context, issue *domain.Issue) error {
			assert.Equal(t, "Floor sticky near the sink", issue.Description)
			assert.Equal(t, overdue.DueDate, issue.DueDate)
			return nil
		}

		_, api := humatest.New(t)
		v1.RegisterIssueRoutes(api, h.deps)

		resp := api.PutCtx(managerCtx(), "/manager/issues/5", map[string]any{
			"description": "Floor sticky near the sink",
			"severity":    "Medium",
			"due_date":    "2025-06-01",
		})
		require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	})

	t.Run("moving_due_date_into_the_past", func(t *testing.T) {
		t.Parallel()

		overdue := currentIssue()
		overdue.DueDate = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

		h := newHarness()
		h.issues.getByIDFunc = issueByID(overdue)
		h.forms.getByIDFunc = formByID(pendingForm())

		_, api := humatest.New(t)
		v1.RegisterIssueRoutes(api, h.deps)

		resp := api.PutCtx(managerCtx(), "/manager/issues/5", map[string]any{
			"description": "Floor sticky near the sink",
			"severity":    "Medium",
			"due_date":    "2025-06-10",
		})
		require.Equal(t, http.StatusUnprocessableEntity, resp.Code)
		assert.Equal(t, []string{"body.due_date"}, decode[problem](t, resp.Body.Bytes()).locations())
	})

	t.Run("previous_revision_conflict", func(t *testing.T) {
		t.Parallel()

		old := currentIssue()
		old.Revision = 1

		h := newHarness()
		h.issues.getByIDFunc = issueByID(old)
		h.forms.getByIDFunc = formByID(pendingForm())

		_, api := humatest.New(t)
		v1.RegisterIssueRoutes(api, h.deps)

		resp := api.PutCtx(managerCtx(), "/manager/issues/5", validBody)
		assert.Equal(t, http.StatusConflict, resp.Code)
		assert.Empty(t, h.activities.details())
	})

	t.Run("corrective_action_conflict", func(t *testing.T) {
		t.Parallel()

		h := newHarness()
		h.issues.getByIDFunc = issueByID(currentIssue())
		h.forms.getByIDFunc = formByID(pendingForm())
		h.issues.updateIfUnlockedFunc = func(context.Context, *domain.Issue) error {
			return fmt.Errorf("issueRepo.UpdateIfUnlocked: %w", domain.ErrConflict)
		}

		_, api := humatest.New(t)
		v1.RegisterIssueRoutes(api, h.deps)

		resp := api.PutCtx(managerCtx(), "/manager/issues/5", validBody)
		assert.Equal(t, http.StatusConflict, resp.Code)
		assert.Empty(t, h.events.types())
	})

	t.Run("not_found", func(t *testing.T) {
		t.Parallel()

		h := newHarness()
		h.issues.getByIDFunc = issueByID(currentIssue())

		_, api := humatest.New(t)
		v1.RegisterIssueRoutes(api, h.deps)

		resp := api.PutCtx(managerCtx(), "/manager/issues/6", validBody)
		assert.Equal(t, http.StatusNotFound, resp.Code)
	})
}

// ---------------------------------------------------------------------------
// DELETE /manager/issues/{id}
// ---------------------------------------------------------------------------

func TestDeleteIssue(t *testing.T) {
	t.Parallel()

	t.Run("happy_path", func(t *testing.T) {
		t.Parallel()

		h := newHarness()
		h.issues.getByIDFunc = issueByID(currentIssue())
		h.forms.getByIDFunc = formByID(pendingForm())
		var deleted int64
		h.issues.deleteIfUnlockedFunc = func(_ context.Context, id int64) error {
			deleted = id
			return nil
		}

		_, api := humatest.New(t)
		v1.RegisterIssueRoutes(api, h.deps)

		resp := api.DeleteCtx(managerCtx(), "/manager/issues/5")
		require.Equal(t, http.StatusNoContent, resp.Code)
		assert.Equal(t, int64(5), deleted)
		assert.Equal(t, []string{redisstore.EventIssueDeleted}, h.events.types())
	})

	t.Run("locked", func(t *testing.T) {
		t.Parallel()

		h := newHarness()
		h.issues.getByIDFunc = issueByID(currentIssue())
		h.forms.getByIDFunc = formByID(pendingForm())
		h.issues.deleteIfUnlockedFunc = func(context.Context, int64) error {
			return fmt.Errorf("issueRepo.DeleteIfUnlocked: %w", domain.ErrConflict)
		}

		_, api := humatest.New(t)
		v1.RegisterIssueRoutes(api, h.deps)

		resp := api.DeleteCtx(managerCtx(), "/manager/issues/5")
		assert.Equal(t, http.StatusConflict, resp.Code)
	})

	t.Run("previous_revision", func(t *testing.T) {
		t.Parallel()

		old := currentIssue()
		old.Revision = 1

		h := newHarness()
		h.issues.getByIDFunc = issueByID(old)
		h.forms.getByIDFunc = formByID(pendingForm())

		_, api := humatest.New(t)
		v1.RegisterIssueRoutes(api, h.deps)

		resp := api.DeleteCtx(managerCtx(), "/manager/issues/5")
		assert.Equal(t, http.StatusConflict, resp.Code)
	})
}
