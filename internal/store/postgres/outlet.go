package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type OutletRepo struct {
	pool *pgxpool.Pool
}

func NewOutletRepo(pool *pgxpool.Pool) *OutletRepo {
	return &OutletRepo{pool: pool}
}

func (r *OutletRepo) CountActive(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM outlets WHERE is_active`).Scan(&n); err != nil {
		return 0, fmt.Errorf("outletRepo.CountActive: %w", err)
	}
	return n, nil
}
