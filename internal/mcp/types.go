package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/toolrack/toolrack/internal/catalog"
)

// RequestContext carries transport facts into tool execution and into the
// audit trail attached to error payloads.
type RequestContext struct {
	UserID    string
	SessionID string
	Transport string
}

type requestContextKey struct{}

// WithRequestContext attaches rc to ctx for the duration of a call.
func WithRequestContext(ctx context.Context, rc RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// RequestContextFrom returns the attached RequestContext, or a zero value
// when the transport did not set one.
func RequestContextFrom(ctx context.Context) RequestContext {
	rc, _ := ctx.Value(requestContextKey{}).(RequestContext)
	return rc
}

// Invoker is the slice of the catalog the protocol core needs.
type Invoker interface {
	List() []*catalog.ToolSpec
	ExecuteWithTimeout(ctx context.Context, name string, args json.RawMessage, timeout time.Duration) (any, error)
}

// HandlerConfig tunes a Handler. Zero values fall back to the package
// defaults. Expose holds glob patterns limiting which tools the listing
// shows; empty exposes everything.
type HandlerConfig struct {
	ServerName    string
	ServerVersion string
	ExecTimeout   time.Duration
	Expose        []string
}
