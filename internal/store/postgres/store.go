package postgres

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/auditdesk/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	pool       *pgxpool.Pool
	statuses   *StatusRepo
	audits     *AuditRepo
	outlets    *OutletRepo
	users      *UserRepo
	forms      *FormRepo
	issues     *IssueRepo
	activities *ActivityRepo
}

func New(ctx context.Context, dsn string, maxConns int32) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: parse config: %w", err)
	}

	cfg.MaxConns = maxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: connect: %w", err)
	}

	err = pool.Ping(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres.New: ping: %w", err)
	}

	return &Store{
		pool:       pool,
		statuses:   NewStatusRepo(pool),
		audits:     NewAuditRepo(pool),
		outlets:    NewOutletRepo(pool),
		users:      NewUserRepo(pool),
		forms:      NewFormRepo(pool),
		issues:     NewIssueRepo(pool),
		activities: NewActivityRepo(pool),
	}, nil
}

// Migrate creates the schema and seeds the status reference rows. It is
// idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("postgres.Migrate: %w", err)
	}
	return nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Statuses() domain.StatusRepository     { return s.statuses }
func (s *Store) Audits() domain.AuditRepository        { return s.audits }
func (s *Store) Outlets() domain.OutletRepository      { return s.outlets }
func (s *Store) Users() domain.UserRepository          { return s.users }
func (s *Store) Forms() domain.FormRepository          { return s.forms }
func (s *Store) Issues() domain.IssueRepository        { return s.issues }
func (s *Store) Activities() domain.ActivityRepository { return s.activities }
