package common

import (
	"context"

	"github.com/teemow/lifeassist/internal/server"
)

// UserArg is the tool argument naming the user to act for.
const UserArg = "user"

// ResolveUser returns the user a tool call acts for.
//
// Priority order:
//  1. Signed-in user from context (set by the HTTP cookie middleware)
//  2. Explicit "user" argument in request
//  3. The server's default user (stdio --user)
//
// An empty result means no user could be determined.
func ResolveUser(ctx context.Context, sc *server.ServerContext, args map[string]interface{}) string {
	if id, ok := server.IdentityFromContext(ctx); ok {
		return id.UserID
	}

	if userVal, ok := args[UserArg].(string); ok && userVal != "" {
		return userVal
	}
	if sc != nil {
		return sc.DefaultUser()
	}
	return ""
}

// ResolveEmail returns the email of the signed-in user, if known.
func ResolveEmail(ctx context.Context) string {
	if id, ok := server.IdentityFromContext(ctx); ok {
		return id.Email
	}
	return ""
}
