package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/auditdesk/internal/domain"
)

type ActivityRepo struct {
	pool *pgxpool.Pool
}

func NewActivityRepo(pool *pgxpool.Pool) *ActivityRepo {
	return &ActivityRepo{pool: pool}
}

func (r *ActivityRepo) Record(ctx context.Context, entry *domain.ActivityLog) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO activity_logs (user_id, details) VALUES ($1, $2) RETURNING id, created_at`,
		entry.UserID, entry.Details,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("activityRepo.Record: %w", err)
	}

	return nil
}

func (r *ActivityRepo) ListRecent(ctx context.Context, limit int) ([]*domain.ActivityLog, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT l.id, l.user_id, COALESCE(u.name, ''), l.details, l.created_at
		 FROM activity_logs l
		 LEFT JOIN users u ON u.id = l.user_id
		 ORDER BY l.created_at DESC, l.id DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("activityRepo.ListRecent: %w", err)
	}
	defer rows.Close()

	var entries []*domain.ActivityLog
	for rows.Next() {
		var e domain.ActivityLog
		if err := rows.Scan(&e.ID, &e.UserID, &e.UserName, &e.Details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("activityRepo.ListRecent: scan: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("activityRepo.ListRecent: rows: %w", err)
	}

	return entries, nil
}
