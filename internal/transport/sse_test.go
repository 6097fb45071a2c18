package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/toolrack/toolrack/pkg/protocol"
)

type frame struct {
	event string
	data  string
}

// readFrame consumes one SSE frame, joining multi-line data fields.
func readFrame(t *testing.T, r *bufio.Reader) frame {
	t.Helper()
	var f frame
	var data []string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read frame: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		if line == "" {
			if f.event != "" || len(data) > 0 {
				f.data = strings.Join(data, "\n")
				return f
			}
			continue
		}
		if v, ok := strings.CutPrefix(line, "event: "); ok {
			f.event = v
		} else if v, ok := strings.CutPrefix(line, "data: "); ok {
			data = append(data, v)
		}
	}
}

func TestSSESessionFlow(t *testing.T) {
	s := newTestServer(t, Options{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/sse")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	ready := readFrame(t, reader)
	if ready.event != "transport/ready" {
		t.Fatalf("first event = %q, want transport/ready", ready.event)
	}
	var payload readyPayload
	if err := json.Unmarshal([]byte(ready.data), &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Session == "" || !strings.HasSuffix(payload.MessageEndpoint, payload.Session) {
		t.Fatalf("unexpected ready payload: %+v", payload)
	}

	post, err := http.Post(srv.URL+payload.MessageEndpoint, "application/json",
		strings.NewReader(`{"jsonrpc":"2.0","id":7,"method":"tools/list"}`))
	if err != nil {
		t.Fatal(err)
	}
	post.Body.Close()
	if post.StatusCode != http.StatusAccepted {
		t.Fatalf("post status = %d, want 202", post.StatusCode)
	}

	msg := readFrame(t, reader)
	if msg.event != "message" {
		t.Fatalf("event = %q, want message", msg.event)
	}
	var rpcResp protocol.Response
	if err := json.Unmarshal([]byte(msg.data), &rpcResp); err != nil {
		t.Fatal(err)
	}
	if string(rpcResp.ID) != "7" {
		t.Errorf("id = %s, want 7", rpcResp.ID)
	}
	if rpcResp.Error != nil {
		t.Errorf("unexpected error: %v", rpcResp.Error)
	}
}

func TestSSEParseErrorGoesToStream(t *testing.T) {
	s := newTestServer(t, Options{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/sse")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	reader := bufio.NewReader(resp.Body)
	ready := readFrame(t, reader)
	var payload readyPayload
	if err := json.Unmarshal([]byte(ready.data), &payload); err != nil {
		t.Fatal(err)
	}

	post, err := http.Post(srv.URL+payload.MessageEndpoint, "application/json",
		strings.NewReader(`{not json`))
	if err != nil {
		t.Fatal(err)
	}
	post.Body.Close()
	if post.StatusCode != http.StatusAccepted {
		t.Fatalf("post status = %d, want 202", post.StatusCode)
	}

	msg := readFrame(t, reader)
	var rpcResp protocol.Response
	if err := json.Unmarshal([]byte(msg.data), &rpcResp); err != nil {
		t.Fatal(err)
	}
	if rpcResp.Error == nil || rpcResp.Error.Code != protocol.CodeParseError {
		t.Errorf("expected parse error on stream, got %+v", rpcResp)
	}
}

func TestInvokeStreamEventOrder(t *testing.T) {
	s := newTestServer(t, Options{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/invoke/stream", "application/json",
		strings.NewReader(`{"name":"calculator.add","arguments":{"a":20,"b":22}}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	progress := readFrame(t, reader)
	if progress.event != "progress" {
		t.Fatalf("first event = %q, want progress", progress.event)
	}
	result := readFrame(t, reader)
	if result.event != "result" {
		t.Fatalf("second event = %q, want result", result.event)
	}
	if !strings.Contains(result.data, "42") {
		t.Errorf("result data = %s, want the sum in it", result.data)
	}
	done := readFrame(t, reader)
	if done.event != "done" {
		t.Fatalf("third event = %q, want done", done.event)
	}
}

func TestInvokeStreamErrorPath(t *testing.T) {
	s := newTestServer(t, Options{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/invoke/stream", "application/json",
		strings.NewReader(`{"name":"calculator.sub","arguments":{}}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	if f := readFrame(t, reader); f.event != "progress" {
		t.Fatalf("first event = %q, want progress", f.event)
	}
	failure := readFrame(t, reader)
	if failure.event != "error" {
		t.Fatalf("second event = %q, want error", failure.event)
	}
	var rpcErr protocol.Error
	if err := json.Unmarshal([]byte(failure.data), &rpcErr); err != nil {
		t.Fatal(err)
	}
	if rpcErr.Code != protocol.CodeToolNotFound {
		t.Errorf("code = %d, want %d", rpcErr.Code, protocol.CodeToolNotFound)
	}
	if f := readFrame(t, reader); f.event != "done" {
		t.Fatalf("third event = %q, want done", f.event)
	}
}

func TestSessionTableEvictsOldest(t *testing.T) {
	table := newSessionTable(1)

	ctx1, cancel1 := context.WithCancel(context.Background())
	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel1()
	defer cancel2()

	table.add(&session{id: "first", ctx: ctx1, cancel: cancel1})
	table.add(&session{id: "second", ctx: ctx2, cancel: cancel2})

	select {
	case <-ctx1.Done():
	case <-time.After(time.Second):
		t.Fatal("oldest session should have been canceled on eviction")
	}
	if ctx2.Err() != nil {
		t.Error("newest session should stay open")
	}
	if _, ok := table.get("first"); ok {
		t.Error("evicted session still resolvable")
	}
	if table.len() != 1 {
		t.Errorf("table len = %d, want 1", table.len())
	}
}
