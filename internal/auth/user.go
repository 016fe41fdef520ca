package auth

import (
	"context"
	"slices"
)

const (
	PermissionManagePayments = "manage_payments"
	PermissionAdmin          = "admin"
)

type ctxKey string

const contextUserKey ctxKey = "authUser"

type User struct {
	ID          int64    `json:"id"`
	Email       string   `json:"email"`
	Permissions []string `json:"permissions,omitempty"`
}

func (u *User) HasPermission(permission string) bool {
	return slices.Contains(u.Permissions, permission)
}

// HasAnyPermission reports whether u holds one of permissions. Admins hold
// every permission.
func (u *User) HasAnyPermission(permissions ...string) bool {
	if u.HasPermission(PermissionAdmin) {
		return true
	}
	for _, p := range permissions {
		if u.HasPermission(p) {
			return true
		}
	}
	return false
}

func ContextWithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, contextUserKey, user)
}

func UserFromContext(ctx context.Context) (*User, bool) {
	user, ok := ctx.Value(contextUserKey).(*User)
	return user, ok && user != nil
}
