package auth

import (
	"context"
)

type contextKey string

const permissionsKey contextKey = "permissions"

// Permissions describes what the calling client may do with catalog
// records. The zero value denies everything; DefaultPermissions is
// attached by middleware when no explicit grant is present.
type Permissions struct {
	Read  bool
	Write bool
	Batch bool
}

// DefaultPermissions grants full access. Deployments that front the
// service with an authenticating proxy swap these per request.
func DefaultPermissions() Permissions {
	return Permissions{Read: true, Write: true, Batch: true}
}

// ContextWithPermissions returns a new context carrying the caller's grant.
func ContextWithPermissions(ctx context.Context, perms Permissions) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, permissionsKey, perms)
}

// PermissionsFromContext retrieves the caller's grant. Falls back to the
// default grant when the middleware did not run.
func PermissionsFromContext(ctx context.Context) Permissions {
	if ctx == nil {
		return DefaultPermissions()
	}
	value := ctx.Value(permissionsKey)
	perms, ok := value.(Permissions)
	if !ok {
		return DefaultPermissions()
	}
	return perms
}
