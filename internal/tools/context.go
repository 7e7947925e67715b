package tools

import "context"

// RunScope identifies the session and run a tool call serves. Tools read
// it to tag notifications and log lines with their origin.
type RunScope struct {
	SessionID string
	RunID     string
}

type runScopeKey struct{}

// WithRunScope returns ctx carrying scope.
func WithRunScope(ctx context.Context, scope RunScope) context.Context {
	return context.WithValue(ctx, runScopeKey{}, scope)
}

// RunScopeFromContext returns the scope on ctx and whether one was set.
func RunScopeFromContext(ctx context.Context) (RunScope, bool) {
	scope, ok := ctx.Value(runScopeKey{}).(RunScope)
	return scope, ok
}

// SessionIDFromContext returns the session ID on ctx, or "default".
func SessionIDFromContext(ctx context.Context) string {
	if scope, _ := RunScopeFromContext(ctx); scope.SessionID != "" {
		return scope.SessionID
	}
	return "default"
}

// RunIDFromContext returns the run ID on ctx, or "".
func RunIDFromContext(ctx context.Context) string {
	scope, _ := RunScopeFromContext(ctx)
	return scope.RunID
}
