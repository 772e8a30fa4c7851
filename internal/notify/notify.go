// Package notify delivers review outcomes to a chat channel.
package notify

import (
	"context"

	"github.com/gosuda/auditdesk/internal/domain"
)

// Notifier announces review decisions.
type Notifier interface {
	FormRejected(ctx context.Context, form *domain.AuditForm, issue *domain.Issue) error
	FormApproved(ctx context.Context, form *domain.AuditForm) error
}

// Nop discards every notification. It is used when no chat integration is
// configured.
type Nop struct{}

func (Nop) FormRejected(context.Context, *domain.AuditForm, *domain.Issue) error { return nil }
func (Nop) FormApproved(context.Context, *domain.AuditForm) error                { return nil }
