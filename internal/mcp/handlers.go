package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/toolrack/toolrack/internal/catalog"
	"github.com/toolrack/toolrack/internal/convert"
	"github.com/toolrack/toolrack/internal/logger"
	"github.com/toolrack/toolrack/pkg/protocol"
	"github.com/toolrack/toolrack/pkg/version"
)

var log = logger.ForComponent("mcp")

const defaultExecTimeout = 4 * time.Minute

// Handler dispatches decoded JSON-RPC requests against the catalog. A single
// handler serves every transport; per-session facts travel in the request
// context, not in handler state.
type Handler struct {
	invoker Invoker

	serverName    string
	serverVersion string
	execTimeout   time.Duration
	expose        []string

	mu          sync.Mutex
	initialized bool
	clientInfo  protocol.ClientInfo
}

func NewHandler(invoker Invoker, cfg HandlerConfig) *Handler {
	h := &Handler{
		invoker:       invoker,
		serverName:    cfg.ServerName,
		serverVersion: cfg.ServerVersion,
		execTimeout:   cfg.ExecTimeout,
		expose:        cfg.Expose,
	}
	if h.serverName == "" {
		h.serverName = "toolrack"
	}
	if h.serverVersion == "" {
		h.serverVersion = version.Version
	}
	if h.execTimeout <= 0 {
		h.execTimeout = defaultExecTimeout
	}
	return h
}

// Initialized reports whether the client has sent notifications/initialized.
func (h *Handler) Initialized() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.initialized
}

// Handle processes one request and returns the response to send, or nil for
// notifications. Notifications never produce output, no matter how they
// fail; their failures are logged instead.
func (h *Handler) Handle(ctx context.Context, req *protocol.Request) *protocol.Response {
	if req.JSONRPC != protocol.Version || req.Method == "" || !req.ValidID() {
		if req.IsNotification() {
			log.Warn("dropping malformed notification", "method", req.Method)
			return nil
		}
		id := req.ID
		if !req.ValidID() {
			id = nil
		}
		return protocol.NewErrorResponse(id, protocol.CodeInvalidRequest, "Invalid Request", nil)
	}

	var (
		result any
		rpcErr *protocol.Error
	)

	switch req.Method {
	case "initialize":
		result, rpcErr = h.handleInitialize(req.Params)
	case "ping":
		result = map[string]any{}
	case "tools/list":
		result = h.handleListTools()
	case "tools/call":
		result, rpcErr = h.handleToolCall(ctx, req.Params)
	case "notifications/initialized":
		h.markInitialized()
	default:
		rpcErr = &protocol.Error{
			Code:    protocol.CodeMethodNotFound,
			Message: fmt.Sprintf("Method not found: %s", req.Method),
		}
	}

	if req.IsNotification() {
		if rpcErr != nil {
			log.Warn("notification failed", "method", req.Method, "code", rpcErr.Code, "error", rpcErr.Message)
		}
		return nil
	}
	if rpcErr != nil {
		return &protocol.Response{JSONRPC: protocol.Version, ID: req.ID, Error: rpcErr}
	}
	return protocol.NewResponse(req.ID, result)
}

func (h *Handler) handleInitialize(params json.RawMessage) (any, *protocol.Error) {
	var init protocol.InitializeParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &init); err != nil {
			return nil, &protocol.Error{
				Code:    protocol.CodeInvalidParams,
				Message: fmt.Sprintf("invalid initialize params: %v", err),
			}
		}
	}

	h.mu.Lock()
	h.clientInfo = init.ClientInfo
	h.mu.Unlock()

	negotiated := negotiateProtocolVersion(init.ProtocolVersion)
	log.Info("client connected",
		"client", init.ClientInfo.Name,
		"client_version", init.ClientInfo.Version,
		"protocol_version", negotiated)

	return protocol.InitializeResult{
		ProtocolVersion: negotiated,
		Capabilities:    map[string]any{"tools": map[string]any{}},
		ServerInfo: protocol.ServerInfo{
			Name:    h.serverName,
			Version: h.serverVersion,
		},
	}, nil
}

// negotiateProtocolVersion returns the client's requested revision when the
// server speaks it, otherwise the server's preferred one.
func negotiateProtocolVersion(clientVersion string) string {
	for _, v := range version.SupportedProtocolVersions {
		if clientVersion == v {
			return v
		}
	}
	return version.ProtocolVersion
}

func (h *Handler) handleListTools() any {
	return map[string]any{"tools": convert.MCPTools(h.invoker, h.expose...)}
}

func (h *Handler) handleToolCall(ctx context.Context, params json.RawMessage) (result any, rpcErr *protocol.Error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("tool call panic", "panic", r, "stack", string(debug.Stack()))
			result = nil
			rpcErr = &protocol.Error{
				Code:    protocol.CodeInternal,
				Message: fmt.Sprintf("internal error: %v", r),
			}
		}
	}()

	if len(params) == 0 {
		return nil, &protocol.Error{Code: protocol.CodeInvalidParams, Message: "missing tool call parameters"}
	}
	var call protocol.ToolCallParams
	if err := json.Unmarshal(params, &call); err != nil {
		return nil, &protocol.Error{
			Code:    protocol.CodeInvalidParams,
			Message: fmt.Sprintf("invalid tool call parameters: %v", err),
		}
	}
	if call.Name == "" {
		return nil, &protocol.Error{Code: protocol.CodeInvalidParams, Message: "tool name is required"}
	}

	ctx = catalog.WithCaller(ctx, RequestContextFrom(ctx).UserID)
	out, err := h.invoker.ExecuteWithTimeout(ctx, call.Name, call.Arguments, h.execTimeout)
	if err != nil {
		return nil, h.callError(ctx, call, err)
	}
	return NewCallResult(out), nil
}

// callError maps catalog failures onto the protocol error space. Argument
// values in error payloads go through masking first. Execution failures are
// checked before lookup failures so a pipeline whose step went missing
// reports as a failed execution, not as an unknown pipeline.
func (h *Handler) callError(ctx context.Context, call protocol.ToolCallParams, err error) *protocol.Error {
	rc := RequestContextFrom(ctx)
	audit := NewAuditRecord(call.Name, rc.UserID, call.Arguments)

	var invalid *catalog.InvalidArgumentsError
	if errors.As(err, &invalid) {
		return &protocol.Error{
			Code:    protocol.CodeInvalidParams,
			Message: err.Error(),
			Data: map[string]any{
				"tool":  call.Name,
				"audit": audit,
			},
		}
	}

	var execFailed *catalog.ExecutionError
	if errors.As(err, &execFailed) {
		log.Warn("tool execution failed", "tool", call.Name, "user", audit.User, "error", err)
		return &protocol.Error{
			Code:    protocol.CodeToolExecFailed,
			Message: err.Error(),
			Data: map[string]any{
				"message":   execFailed.Err.Error(),
				"arguments": audit.Args,
				"audit":     audit,
			},
		}
	}

	var notFound *catalog.NotFoundError
	if errors.As(err, &notFound) {
		return &protocol.Error{
			Code:    protocol.CodeToolNotFound,
			Message: err.Error(),
			Data:    map[string]any{"tool": call.Name},
		}
	}

	log.Error("tool call failed", "tool", call.Name, "error", err)
	return &protocol.Error{Code: protocol.CodeInternal, Message: err.Error()}
}

func (h *Handler) markInitialized() {
	h.mu.Lock()
	already := h.initialized
	h.initialized = true
	client := h.clientInfo
	h.mu.Unlock()
	if !already {
		log.Debug("session initialized", "client", client.Name)
	}
}
