package catalog

import "context"

type callerKey struct{}

// WithCaller tags ctx with the identity of whoever asked for the execution.
// Transports set it; pipelines and stateful tools read it to pick the right
// user bucket.
func WithCaller(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, callerKey{}, userID)
}

// CallerFrom returns the calling user id, or "" when the transport did not
// set one.
func CallerFrom(ctx context.Context) string {
	userID, _ := ctx.Value(callerKey{}).(string)
	return userID
}
