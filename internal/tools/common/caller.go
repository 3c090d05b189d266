package common

import (
	"context"

	"github.com/teemow/calsync/internal/server"
)

// ResolveCaller returns the user a tool call acts for.
//
// Priority order:
//  1. Authenticated caller from context (set by the JWT middleware)
//  2. The server's default user (stdio transport)
func ResolveCaller(ctx context.Context, sc *server.ServerContext) string {
	if caller := server.CallerFromContext(ctx); caller != "" {
		return caller
	}
	return sc.DefaultUser()
}
