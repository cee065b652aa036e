package auth

import (
	"context"
	"strings"

	"medidesk.org/internal/clinic"
)

type ctxKey string

const principalKey ctxKey = "auth_principal"

// ContextWithPrincipal stores the authenticated caller in the context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	p.ID = strings.TrimSpace(p.ID)
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext extracts the authenticated caller from the context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	if !ok || p.ID == "" {
		return Principal{}, false
	}
	return p, true
}

// IsStaff reports whether the context carries a staff principal.
func IsStaff(ctx context.Context) bool {
	p, ok := PrincipalFromContext(ctx)
	return ok && clinic.StaffRole(p.Role)
}
