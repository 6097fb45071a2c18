package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/toolrack/toolrack/pkg/protocol"
)

func TestProcessStreamLineProtocol(t *testing.T) {
	s := NewServer(newTestHandler(t))

	input := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","clientInfo":{"name":"cli","version":"0.1"}}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		``,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
		`this is not json`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"calculator.add","arguments":{"a":1,"b":2}}}`,
	}, "\n") + "\n"

	var out strings.Builder
	if err := s.ProcessStream(context.Background(), strings.NewReader(input), &out); err != nil {
		t.Fatalf("ProcessStream failed: %v", err)
	}

	var responses []protocol.Response
	scanner := bufio.NewScanner(strings.NewReader(out.String()))
	for scanner.Scan() {
		var resp protocol.Response
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			t.Fatalf("response line is not valid JSON: %v", err)
		}
		responses = append(responses, resp)
	}

	// The notification and the blank line produce nothing; the garbage line
	// produces a parse error.
	if len(responses) != 4 {
		t.Fatalf("expected 4 response lines, got %d: %s", len(responses), out.String())
	}

	wantIDs := []string{"1", "2", "null", "3"}
	for i, want := range wantIDs {
		if string(responses[i].ID) != want {
			t.Errorf("response %d: expected id %s, got %s", i, want, responses[i].ID)
		}
	}

	if responses[2].Error == nil || responses[2].Error.Code != protocol.CodeParseError {
		t.Errorf("expected parse error on garbage line, got %+v", responses[2].Error)
	}
	if responses[0].Error != nil || responses[1].Error != nil || responses[3].Error != nil {
		t.Errorf("unexpected errors in stream: %s", out.String())
	}
}

func TestProcessStreamCanceledContext(t *testing.T) {
	s := NewServer(newTestHandler(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out strings.Builder
	err := s.ProcessStream(ctx, strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`+"\n"), &out)
	if err == nil {
		t.Fatal("expected context error")
	}
	if out.Len() != 0 {
		t.Errorf("expected no output after cancellation, got %s", out.String())
	}
}

func TestProcessStreamMarksInitialized(t *testing.T) {
	h := newTestHandler(t)
	s := NewServer(h)

	input := `{"jsonrpc":"2.0","method":"notifications/initialized"}` + "\n"
	var out strings.Builder
	if err := s.ProcessStream(context.Background(), strings.NewReader(input), &out); err != nil {
		t.Fatalf("ProcessStream failed: %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("expected no output for a lone notification, got %s", out.String())
	}
	if !h.Initialized() {
		t.Error("expected initialization to be recorded")
	}
}
