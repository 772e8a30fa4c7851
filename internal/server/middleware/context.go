package middleware

import "context"

type contextKey string

const (
	ContextKeyUserID   contextKey = "user_id"
	ContextKeyUserRole contextKey = "role"
	ContextKeyOutletID contextKey = "outlet_id"
)

// WithIdentity stores the authenticated caller in ctx. outletID may be nil.
func WithIdentity(ctx context.Context, userID int64, role string, outletID *int64) context.Context {
	ctx = context.WithValue(ctx, ContextKeyUserID, userID)
	ctx = context.WithValue(ctx, ContextKeyUserRole, role)
	if outletID != nil {
		ctx = context.WithValue(ctx, ContextKeyOutletID, *outletID)
	}
	return ctx
}

func UserIDFromContext(ctx context.Context) (int64, bool) {
	v, ok := ctx.Value(ContextKeyUserID).(int64)
	return v, ok
}

func RoleFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ContextKeyUserRole).(string)
	return v, ok
}

func OutletIDFromContext(ctx context.Context) (int64, bool) {
	v, ok := ctx.Value(ContextKeyOutletID).(int64)
	return v, ok
}
