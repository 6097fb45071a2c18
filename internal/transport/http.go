// Package transport serves the catalog over HTTP and SSE. Every call path
// funnels through the protocol core so wire behavior stays identical across
// surfaces.
package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/toolrack/toolrack/internal/catalog"
	"github.com/toolrack/toolrack/internal/convert"
	"github.com/toolrack/toolrack/internal/logger"
	"github.com/toolrack/toolrack/internal/mcp"
	"github.com/toolrack/toolrack/pkg/protocol"
)

var log = logger.ForComponent("transport")

const (
	maxBodyBytes = 4 << 20

	// userHeader carries caller identity on plain JSON-RPC posts, where the
	// body has no user field.
	userHeader = "X-Toolrack-User"
)

// Options configures the HTTP surface.
type Options struct {
	Catalog     *catalog.Catalog
	ServerName  string
	ExecTimeout time.Duration

	// Retry applies to /invoke and /invoke/stream only. RPC-style paths
	// leave retries to the client.
	Retry catalog.RetryPolicy

	Expose      []string
	MaxSessions int
	Metrics     bool
}

// Server carries the HTTP handlers. Build one with NewServer and mount
// Handler on an http.Server.
type Server struct {
	catalog  *catalog.Catalog
	rpc      *mcp.Handler
	invoke   *mcp.Handler
	sessions *sessionTable
	expose   []string
	metrics  bool
}

func NewServer(opts Options) *Server {
	cfg := mcp.HandlerConfig{
		ServerName:  opts.ServerName,
		ExecTimeout: opts.ExecTimeout,
		Expose:      opts.Expose,
	}
	return &Server{
		catalog:  opts.Catalog,
		rpc:      mcp.NewHandler(opts.Catalog, cfg),
		invoke:   mcp.NewHandler(retryInvoker{c: opts.Catalog, policy: opts.Retry}, cfg),
		sessions: newSessionTable(opts.MaxSessions),
		expose:   opts.Expose,
		metrics:  opts.Metrics,
	}
}

// Handler returns the route table:
//
//	GET  /health              liveness plus tool count
//	GET  /tools               catalog listing (?format=openai)
//	POST /invoke              one tool call with retries
//	POST /invoke/stream       one tool call as an event stream
//	POST /rpc                 raw JSON-RPC one-shot
//	GET  /sse                 session event stream
//	POST /messages/{session}  JSON-RPC onto an open session
//	GET  /metrics             prometheus scrape, when enabled
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.addHTTPRoutes(mux)
	s.addSSERoutes(mux)
	return mux
}

// HTTPHandler returns only the request/response routes: health, tools,
// invoke, rpc, and metrics when enabled.
func (s *Server) HTTPHandler() http.Handler {
	mux := http.NewServeMux()
	s.addHTTPRoutes(mux)
	return mux
}

// SSEHandler returns only the streaming routes: sse, messages, and
// invoke/stream.
func (s *Server) SSEHandler() http.Handler {
	mux := http.NewServeMux()
	s.addSSERoutes(mux)
	return mux
}

func (s *Server) addHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /tools", s.handleTools)
	mux.HandleFunc("POST /invoke", s.handleInvoke)
	mux.HandleFunc("POST /rpc", s.handleRPC)
	if s.metrics {
		mux.Handle("GET /metrics", promhttp.Handler())
	}
}

func (s *Server) addSSERoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /sse", s.handleSSE)
	mux.HandleFunc("POST /messages/{session}", s.handleMessage)
	mux.HandleFunc("POST /invoke/stream", s.handleInvokeStream)
}

// ListenAndServe runs h on addr until ctx is canceled, then drains with a
// five second grace period.
func ListenAndServe(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"tools":  len(s.catalog.List()),
	})
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	switch format := r.URL.Query().Get("format"); format {
	case "", "mcp":
		writeJSON(w, http.StatusOK, map[string]any{
			"tools": convert.MCPTools(s.catalog, s.expose...),
		})
	case "openai":
		writeJSON(w, http.StatusOK, map[string]any{
			"tools": convert.OpenAITools(s.catalog, s.expose...),
		})
	default:
		http.Error(w, "unknown format "+format, http.StatusBadRequest)
	}
}

// invokeRequest is the body of /invoke and /invoke/stream.
type invokeRequest struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	UserID    string          `json:"user_id,omitempty"`
}

// dispatchInvoke funnels an invoke body through the protocol core as a
// synthesized tools/call.
func (s *Server) dispatchInvoke(ctx context.Context, req invokeRequest) *protocol.Response {
	params, _ := json.Marshal(protocol.ToolCallParams{
		Name:      req.Name,
		Arguments: req.Arguments,
	})
	rpcReq := &protocol.Request{
		JSONRPC: protocol.Version,
		ID:      protocol.IntID(1),
		Method:  "tools/call",
		Params:  params,
	}
	ctx = mcp.WithRequestContext(ctx, mcp.RequestContext{
		UserID:    req.UserID,
		Transport: "http",
	})
	return s.invoke.Handle(ctx, rpcReq)
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	var req invokeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "decode request: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	resp := s.dispatchInvoke(r.Context(), req)
	if resp.Error != nil {
		writeJSON(w, httpStatusFor(resp.Error.Code), map[string]any{"error": resp.Error})
		return
	}
	writeJSON(w, http.StatusOK, resp.Result)
}

// handleRPC answers a single JSON-RPC request over plain HTTP. Notifications
// get 204 since there is nothing to send back.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req protocol.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusOK, protocol.NewErrorResponse(nil, protocol.CodeParseError, "Parse error", nil))
		return
	}

	ctx := mcp.WithRequestContext(r.Context(), mcp.RequestContext{
		UserID:    r.Header.Get(userHeader),
		Transport: "http",
	})
	resp := s.rpc.Handle(ctx, &req)
	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// httpStatusFor maps JSON-RPC error codes onto REST-ish statuses for the
// /invoke surface.
func httpStatusFor(code int) int {
	switch code {
	case protocol.CodeInvalidParams:
		return http.StatusBadRequest
	case protocol.CodeToolNotFound:
		return http.StatusNotFound
	case protocol.CodeToolExecFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn("encode response", "error", err)
	}
}

// retryInvoker re-runs failed executions per the configured policy before
// the protocol core maps the outcome onto the wire.
type retryInvoker struct {
	c      *catalog.Catalog
	policy catalog.RetryPolicy
}

func (r retryInvoker) List() []*catalog.ToolSpec { return r.c.List() }

func (r retryInvoker) ExecuteWithTimeout(ctx context.Context, name string, args json.RawMessage, timeout time.Duration) (any, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return r.c.ExecuteWithRetry(ctx, name, args, r.policy)
}
