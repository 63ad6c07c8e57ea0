package auth

import "context"

type ctxKey string

const (
	ctxKeySub  ctxKey = "sub"
	ctxKeyRole ctxKey = "role"
)

func WithSubject(ctx context.Context, sub string) context.Context {
	return context.WithValue(ctx, ctxKeySub, sub)
}

func SubjectFromContext(ctx context.Context) string {
	s, _ := ctx.Value(ctxKeySub).(string)
	return s
}

// WithRole stores the caller's effective role. JWTMiddleware sets the token
// role; AttachRoleFromDB replaces it with the stored one.
func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, ctxKeyRole, role)
}

func RoleFromContext(ctx context.Context) string {
	s, _ := ctx.Value(ctxKeyRole).(string)
	return s
}

// Caller returns the authenticated subject and its effective role.
func Caller(ctx context.Context) (id, role string) {
	return SubjectFromContext(ctx), RoleFromContext(ctx)
}
