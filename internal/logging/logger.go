// Package logging is the structured logger every component receives. Calls
// take the request context first so handlers can pick up request-scoped
// values; components derive a child with With("module", name).
package logging

import "context"

// Logger is a context-aware structured logger. Args are key/value pairs:
//
//	log.Info(ctx, "signature request created", "token", token, "anchor", anchorID)
type Logger interface {
	// Debug is for per-request detail such as access logs and cache misses.
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	// Error is for failures an operator has to look at.
	Error(ctx context.Context, msg string, args ...any)

	With(args ...any) Logger
}
