package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/toolrack/toolrack/internal/mcp"
	"github.com/toolrack/toolrack/pkg/protocol"
	"github.com/toolrack/toolrack/pkg/version"
)

const defaultRequestTimeout = 30 * time.Second

// Client talks to a running daemon over its socket. The wire format is
// newline-delimited JSON-RPC, the same the stdio transport speaks.
type Client struct {
	conn    *jsonrpc2.Conn
	timeout time.Duration
}

// Dial connects to the daemon socket.
func Dial(ctx context.Context, socketPath string) (*Client, error) {
	netConn, err := NewSocketConnector(socketPath, 2*time.Second).Connect()
	if err != nil {
		return nil, fmt.Errorf("dial daemon at %s: %w", socketPath, err)
	}

	stream := jsonrpc2.NewBufferedStream(netConn, jsonrpc2.PlainObjectCodec{})
	conn := jsonrpc2.NewConn(ctx, stream, noopHandler{})
	return &Client{conn: conn, timeout: defaultRequestTimeout}, nil
}

// noopHandler drops server-initiated traffic; the daemon never sends any.
type noopHandler struct{}

func (noopHandler) Handle(context.Context, *jsonrpc2.Conn, *jsonrpc2.Request) {}

func (c *Client) call(ctx context.Context, method string, params, result any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.conn.Call(ctx, method, params, result)
}

// Initialize performs the protocol handshake.
func (c *Client) Initialize(ctx context.Context, clientName string) (*protocol.InitializeResult, error) {
	params := protocol.InitializeParams{
		ProtocolVersion: version.ProtocolVersion,
		ClientInfo: protocol.ClientInfo{
			Name:    clientName,
			Version: version.Version,
		},
	}
	var result protocol.InitializeResult
	if err := c.call(ctx, "initialize", params, &result); err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}
	if err := c.conn.Notify(ctx, "notifications/initialized", struct{}{}); err != nil {
		return nil, fmt.Errorf("initialized notification: %w", err)
	}
	return &result, nil
}

// ListTools fetches the visible tool contracts.
func (c *Client) ListTools(ctx context.Context) ([]protocol.Tool, error) {
	var result struct {
		Tools []protocol.Tool `json:"tools"`
	}
	if err := c.call(ctx, "tools/list", struct{}{}, &result); err != nil {
		return nil, fmt.Errorf("tools/list: %w", err)
	}
	return result.Tools, nil
}

// CallTool runs one tool and returns its content envelope.
func (c *Client) CallTool(ctx context.Context, name string, args json.RawMessage) (*mcp.CallResult, error) {
	params := protocol.ToolCallParams{Name: name, Arguments: args}
	var result mcp.CallResult
	if err := c.call(ctx, "tools/call", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Ping checks liveness end to end.
func (c *Client) Ping(ctx context.Context) error {
	var result map[string]any
	if err := c.call(ctx, "ping", struct{}{}, &result); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}
