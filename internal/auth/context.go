package auth

import "context"

type contextKey string

const (
	contextKeyBranch  contextKey = "auth.branch_id"
	contextKeyRole    contextKey = "auth.role"
	contextKeySubject contextKey = "auth.subject"
)

// WithIdentity stores auth identity details in context.
func WithIdentity(ctx context.Context, branchID string, role Role, subject string) context.Context {
	ctx = context.WithValue(ctx, contextKeyBranch, branchID)
	ctx = context.WithValue(ctx, contextKeyRole, role)
	ctx = context.WithValue(ctx, contextKeySubject, subject)
	return ctx
}

// BranchIDFromContext extracts the caller's branch id from context.
func BranchIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value := ctx.Value(contextKeyBranch)
	if branchID, ok := value.(string); ok {
		return branchID
	}
	return ""
}

// RoleFromContext extracts role from context.
func RoleFromContext(ctx context.Context) Role {
	if ctx == nil {
		return ""
	}
	value := ctx.Value(contextKeyRole)
	if role, ok := value.(Role); ok {
		return role
	}
	if role, ok := value.(string); ok {
		if normalized, valid := NormalizeRole(role); valid {
			return normalized
		}
	}
	return ""
}

// SubjectFromContext extracts subject from context.
func SubjectFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value := ctx.Value(contextKeySubject)
	if subject, ok := value.(string); ok {
		return subject
	}
	return ""
}

// CanActOnBranch reports whether the caller may operate on the given branch.
// Admins act on any branch; everyone else only on their own.
func CanActOnBranch(ctx context.Context, branchID string) bool {
	if RoleFromContext(ctx) == RoleAdmin {
		return true
	}
	caller := BranchIDFromContext(ctx)
	return caller != "" && caller == branchID
}
