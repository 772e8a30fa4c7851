package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/auditdesk/internal/domain"
)

type AuditRepo struct {
	pool *pgxpool.Pool
}

func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

func (r *AuditRepo) ListCompletedBetween(ctx context.Context, from, to time.Time) ([]domain.AuditInterval, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, start_time, end_time
		 FROM audits
		 WHERE start_time IS NOT NULL AND end_time IS NOT NULL
		   AND end_time >= $1 AND end_time < $2
		 ORDER BY end_time`,
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("auditRepo.ListCompletedBetween: %w", err)
	}
	defer rows.Close()

	var intervals []domain.AuditInterval
	for rows.Next() {
		var iv domain.AuditInterval
		if err := rows.Scan(&iv.AuditID, &iv.StartTime, &iv.EndTime); err != nil {
			return nil, fmt.Errorf("auditRepo.ListCompletedBetween: scan: %w", err)
		}
		intervals = append(intervals, iv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("auditRepo.ListCompletedBetween: rows: %w", err)
	}

	return intervals, nil
}

func (r *AuditRepo) CountByStatus(ctx context.Context, statusID int64) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM audits WHERE status_id = $1`,
		statusID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("auditRepo.CountByStatus: %w", err)
	}
	return n, nil
}

func (r *AuditRepo) CountByStatusSince(ctx context.Context, statusIDs []int64, since time.Time) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM audits WHERE status_id = ANY($1) AND created_at >= $2`,
		statusIDs, since,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("auditRepo.CountByStatusSince: %w", err)
	}
	return n, nil
}
