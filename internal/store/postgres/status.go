package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/auditdesk/internal/domain"
)

type StatusRepo struct {
	pool *pgxpool.Pool
}

func NewStatusRepo(pool *pgxpool.Pool) *StatusRepo {
	return &StatusRepo{pool: pool}
}

func (r *StatusRepo) List(ctx context.Context) ([]*domain.Status, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name FROM statuses ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("statusRepo.List: %w", err)
	}
	defer rows.Close()

	var statuses []*domain.Status
	for rows.Next() {
		var s domain.Status
		if err := rows.Scan(&s.ID, &s.Name); err != nil {
			return nil, fmt.Errorf("statusRepo.List: scan: %w", err)
		}
		statuses = append(statuses, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("statusRepo.List: rows: %w", err)
	}

	return statuses, nil
}
