package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/auditdesk/internal/domain"
)

type FormRepo struct {
	pool *pgxpool.Pool
}

func NewFormRepo(pool *pgxpool.Pool) *FormRepo {
	return &FormRepo{pool: pool}
}

func (r *FormRepo) GetByID(ctx context.Context, id int64) (*domain.AuditForm, error) {
	var (
		f        domain.AuditForm
		value    []byte
		analysis []byte
		outlet   *int64
		name     *string
	)

	err := r.pool.QueryRow(ctx,
		`SELECT f.id, f.form_id, f.name, f.value, f.status_id, s.name, f.ai_analysis,
		        f.revision, f.created_at, f.updated_at, o.id, o.name
		 FROM audit_form f
		 JOIN statuses s ON s.id = f.status_id
		 LEFT JOIN LATERAL (
		     SELECT ot.id, ot.name
		     FROM audit_audit_form aaf
		     JOIN audits a ON a.id = aaf.audit_id
		     JOIN outlets ot ON ot.id = a.outlet_id
		     WHERE aaf.audit_form_id = f.id
		     ORDER BY a.id
		     LIMIT 1
		 ) o ON TRUE
		 WHERE f.id = $1`,
		id,
	).Scan(&f.ID, &f.TemplateID, &f.Name, &value, &f.StatusID, &f.Status, &analysis,
		&f.Revision, &f.CreatedAt, &f.UpdatedAt, &outlet, &name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("formRepo.GetByID: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("formRepo.GetByID: %w", err)
	}

	if len(value) > 0 {
		if err := json.Unmarshal(value, &f.Value); err != nil {
			return nil, fmt.Errorf("formRepo.GetByID: unmarshal value: %w", err)
		}
	}
	if len(analysis) > 0 {
		f.AIAnalysis = json.RawMessage(analysis)
	}
	if outlet != nil {
		f.OutletID = *outlet
	}
	f.OutletName = derefStr(name)

	return &f, nil
}

func (r *FormRepo) GetTemplate(ctx context.Context, id int64) (*domain.FormTemplate, error) {
	var t domain.FormTemplate
	var structure []byte

	err := r.pool.QueryRow(ctx,
		`SELECT id, name, structure FROM form_templates WHERE id = $1`,
		id,
	).Scan(&t.ID, &t.Name, &structure)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("formRepo.GetTemplate: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("formRepo.GetTemplate: %w", err)
	}

	if err := json.Unmarshal(structure, &t.Structure); err != nil {
		return nil, fmt.Errorf("formRepo.GetTemplate: unmarshal structure: %w", err)
	}

	return &t, nil
}

func (r *FormRepo) UpdateStatus(ctx context.Context, id, statusID int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE audit_form SET status_id = $1, updated_at = now() WHERE id = $2`,
		statusID, id,
	)
	if err != nil {
		return fmt.Errorf("formRepo.UpdateStatus: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("formRepo.UpdateStatus: %w", domain.ErrNotFound)
	}

	return nil
}

func (r *FormRepo) Reject(ctx context.Context, id int64, issue *domain.Issue) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("formRepo.Reject: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var revision int
	err = tx.QueryRow(ctx,
		`UPDATE audit_form SET status_id = $1, updated_at = now() WHERE id = $2 RETURNING revision`,
		domain.StatusIDRejected, id,
	).Scan(&revision)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("formRepo.Reject: %w", domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("formRepo.Reject: update status: %w", err)
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO issues (audit_form_id, description, severity, due_date, revision)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at, updated_at`,
		id, issue.Description, issue.Severity, issue.DueDate, revision,
	).Scan(&issue.ID, &issue.CreatedAt, &issue.UpdatedAt)
	if err != nil {
		return fmt.Errorf("formRepo.Reject: insert issue: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("formRepo.Reject: commit: %w", err)
	}

	issue.FormID = id
	issue.Revision = revision

	return nil
}

func (r *FormRepo) SetAnalysis(ctx context.Context, id int64, analysis json.RawMessage) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE audit_form SET ai_analysis = $1, updated_at = now() WHERE id = $2`,
		[]byte(analysis), id,
	)
	if err != nil {
		return fmt.Errorf("formRepo.SetAnalysis: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("formRepo.SetAnalysis: %w", domain.ErrNotFound)
	}

	return nil
}

// Resubmit clears the stored analysis since it describes the replaced answers.
func (r *FormRepo) Resubmit(ctx context.Context, id int64, value map[string]any) (int, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return 0, fmt.Errorf("formRepo.Resubmit: marshal value: %w", err)
	}

	var revision int
	err = r.pool.QueryRow(ctx,
		`UPDATE audit_form
		 SET value = $1, revision = revision + 1, status_id = $2, ai_analysis = NULL, updated_at = now()
		 WHERE id = $3
		 RETURNING revision`,
		data, domain.StatusIDPending, id,
	).Scan(&revision)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("formRepo.Resubmit: %w", domain.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("formRepo.Resubmit: %w", err)
	}

	return revision, nil
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
