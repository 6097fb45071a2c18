package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"

	"github.com/toolrack/toolrack/pkg/protocol"
)

// maxLineBytes bounds a single request line on the stream transport.
const maxLineBytes = 1 << 20

// Server speaks line-delimited JSON-RPC over a reader/writer pair, one
// request per line. It backs the stdio transport and the daemon socket.
type Server struct {
	handler *Handler
}

func NewServer(handler *Handler) *Server {
	return &Server{handler: handler}
}

func (s *Server) Handler() *Handler {
	return s.handler
}

// ProcessStream reads requests line by line until EOF or ctx cancellation.
// Unparseable lines get a parse error response with a null id; notifications
// produce no output at all.
func (s *Server) ProcessStream(ctx context.Context, reader io.Reader, writer io.Writer) error {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	encoder := json.NewEncoder(writer)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		var req protocol.Request
		if err := json.Unmarshal(line, &req); err != nil {
			resp := protocol.NewErrorResponse(nil, protocol.CodeParseError, "Parse error", nil)
			if err := encoder.Encode(resp); err != nil {
				return err
			}
			continue
		}

		resp := s.handler.Handle(ctx, &req)
		if resp == nil {
			continue
		}
		if err := encoder.Encode(resp); err != nil {
			return err
		}
	}

	return scanner.Err()
}
