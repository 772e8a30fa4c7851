package domain

import (
	"context"
	"time"
)

// Roles.
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleOutlet  = "outlet"
)

type User struct {
	ID              int64      `json:"id"`
	Name            string     `json:"name"`
	Email           string     `json:"email"`
	PasswordHash    string     `json:"-"` // argon2id
	Role            string     `json:"role"`
	OutletID        *int64     `json:"outlet_id,omitempty"`
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	CountVerified(ctx context.Context) (int64, error)
}

type Outlet struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

type OutletRepository interface {
	CountActive(ctx context.Context) (int64, error)
}
