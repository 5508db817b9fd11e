package common

import (
	"context"
	"slices"
)

type identityKey struct{}

// identity is the authenticated caller as seen by handlers.
type identity struct {
	userID string
	roles  []string
}

func identityFrom(ctx context.Context) identity {
	id, _ := ctx.Value(identityKey{}).(identity)
	return id
}

// WithUserID records the authenticated caller, keeping any roles already set.
func WithUserID(ctx context.Context, userID string) context.Context {
	id := identityFrom(ctx)
	id.userID = userID
	return context.WithValue(ctx, identityKey{}, id)
}

// UserID returns the authenticated caller. ok is false for anonymous requests.
func UserID(ctx context.Context) (userID string, ok bool) {
	id := identityFrom(ctx)
	return id.userID, id.userID != ""
}

// WithRoles records the caller's roles, keeping the user id already set.
func WithRoles(ctx context.Context, roles []string) context.Context {
	id := identityFrom(ctx)
	id.roles = slices.Clone(roles)
	return context.WithValue(ctx, identityKey{}, id)
}

func HasRole(ctx context.Context, role string) bool {
	return slices.Contains(identityFrom(ctx).roles, role)
}
