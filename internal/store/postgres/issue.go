package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/auditdesk/internal/domain"
)

type IssueRepo struct {
	pool *pgxpool.Pool
}

func NewIssueRepo(pool *pgxpool.Pool) *IssueRepo {
	return &IssueRepo{pool: pool}
}

const issueColumns = `id, audit_form_id, description, severity, due_date, revision, created_at, updated_at`

func (r *IssueRepo) GetByID(ctx context.Context, id int64) (*domain.Issue, error) {
	var i domain.Issue

	err := r.pool.QueryRow(ctx,
		`SELECT `+issueColumns+` FROM issues WHERE id = $1`,
		id,
	).Scan(&i.ID, &i.FormID, &i.Description, &i.Severity, &i.DueDate, &i.Revision, &i.CreatedAt, &i.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("issueRepo.GetByID: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("issueRepo.GetByID: %w", err)
	}

	return &i, nil
}

func (r *IssueRepo) ListByRevision(ctx context.Context, formID int64, revision int) ([]*domain.Issue, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+issueColumns+`
		 FROM issues WHERE audit_form_id = $1 AND revision = $2
		 ORDER BY created_at, id
		 LIMIT 500`,
		formID, revision,
	)
	if err != nil {
		return nil, fmt.Errorf("issueRepo.ListByRevision: %w", err)
	}
	defer rows.Close()

	return scanIssues(rows, "issueRepo.ListByRevision")
}

// UpdateIfUnlocked writes description, severity and due date. The row is left
// untouched when a corrective action references it.
func (r *IssueRepo) UpdateIfUnlocked(ctx context.Context, i *domain.Issue) error {
	err := r.pool.QueryRow(ctx,
		`UPDATE issues SET description = $1, severity = $2, due_date = $3, updated_at = now()
		 WHERE id = $4 AND NOT EXISTS (SELECT 1 FROM corrective_actions WHERE issue_id = $4)
		 RETURNING updated_at`,
		i.Description, i.Severity, i.DueDate, i.ID,
	).Scan(&i.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return r.lockedOrMissing(ctx, i.ID, "issueRepo.UpdateIfUnlocked")
	}
	if err != nil {
		return fmt.Errorf("issueRepo.UpdateIfUnlocked: %w", err)
	}

	return nil
}

func (r *IssueRepo) DeleteIfUnlocked(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM issues
		 WHERE id = $1 AND NOT EXISTS (SELECT 1 FROM corrective_actions WHERE issue_id = $1)`,
		id,
	)
	// The RESTRICT foreign key catches an action inserted after the check.
	if isForeignKeyViolation(err) {
		return fmt.Errorf("issueRepo.DeleteIfUnlocked: %w", domain.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("issueRepo.DeleteIfUnlocked: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.lockedOrMissing(ctx, id, "issueRepo.DeleteIfUnlocked")
	}

	return nil
}

func (r *IssueRepo) lockedOrMissing(ctx context.Context, id int64, caller string) error {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM issues WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("%s: %w", caller, err)
	}
	if exists {
		return fmt.Errorf("%s: %w", caller, domain.ErrConflict)
	}
	return fmt.Errorf("%s: %w", caller, domain.ErrNotFound)
}

// CountCorrectiveActions returns a count for every requested id, zero
// included, in one query.
func (r *IssueRepo) CountCorrectiveActions(ctx context.Context, issueIDs []int64) (map[int64]int, error) {
	counts := make(map[int64]int, len(issueIDs))
	for _, id := range issueIDs {
		counts[id] = 0
	}
	if len(issueIDs) == 0 {
		return counts, nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT issue_id, count(*) FROM corrective_actions
		 WHERE issue_id = ANY($1)
		 GROUP BY issue_id`,
		issueIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("issueRepo.CountCorrectiveActions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("issueRepo.CountCorrectiveActions: scan: %w", err)
		}
		counts[id] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("issueRepo.CountCorrectiveActions: rows: %w", err)
	}

	return counts, nil
}

func (r *IssueRepo) ListCorrectiveActions(ctx context.Context, issueID int64) ([]*domain.CorrectiveAction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, issue_id, description, completion_date, verification_date, created_at
		 FROM corrective_actions WHERE issue_id = $1
		 ORDER BY created_at, id`,
		issueID,
	)
	if err != nil {
		return nil, fmt.Errorf("issueRepo.ListCorrectiveActions: %w", err)
	}
	defer rows.Close()

	var actions []*domain.CorrectiveAction
	for rows.Next() {
		var a domain.CorrectiveAction
		if err := rows.Scan(&a.ID, &a.IssueID, &a.Description, &a.CompletionDate, &a.VerificationDate, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("issueRepo.ListCorrectiveActions: scan: %w", err)
		}
		actions = append(actions, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("issueRepo.ListCorrectiveActions: rows: %w", err)
	}

	return actions, nil
}

func (r *IssueRepo) CreateCorrectiveAction(ctx context.Context, a *domain.CorrectiveAction) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO corrective_actions (issue_id, description, completion_date, verification_date)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		a.IssueID, a.Description, a.CompletionDate, a.VerificationDate,
	).Scan(&a.ID, &a.CreatedAt)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("issueRepo.CreateCorrectiveAction: %w", domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("issueRepo.CreateCorrectiveAction: %w", err)
	}

	return nil
}

func scanIssues(rows pgx.Rows, caller string) ([]*domain.Issue, error) {
	issues := []*domain.Issue{}
	for rows.Next() {
		var i domain.Issue
		if err := rows.Scan(&i.ID, &i.FormID, &i.Description, &i.Severity, &i.DueDate, &i.Revision, &i.CreatedAt, &i.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", caller, err)
		}
		issues = append(issues, &i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", caller, err)
	}

	return issues, nil
}
