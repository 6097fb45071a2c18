package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/toolrack/toolrack/internal/catalog"
	"github.com/toolrack/toolrack/internal/mcp"
)

type sumArgs struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
}

func startTestDaemon(t *testing.T) (string, context.CancelFunc) {
	t.Helper()

	c := catalog.New()
	_, err := catalog.RegisterFunc(c, "calculator.add", "Adds two numbers.", catalog.Metadata{},
		func(ctx context.Context, in sumArgs) (map[string]float64, error) {
			return map[string]float64{"sum": in.A + in.B}, nil
		})
	if err != nil {
		t.Fatal(err)
	}

	socketPath := filepath.Join(t.TempDir(), "d.sock")
	d := NewDaemon(socketPath, mcp.NewHandler(c, mcp.HandlerConfig{ServerName: "toolrack-test"}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("daemon did not stop")
		}
	})

	waitForSocket(t, socketPath)
	return socketPath, cancel
}

func waitForSocket(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("unix", path, 100*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("daemon socket never came up")
}

func TestDaemonServesClient(t *testing.T) {
	socketPath, _ := startTestDaemon(t)
	ctx := context.Background()

	client, err := Dial(ctx, socketPath)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	init, err := client.Initialize(ctx, "daemon-test")
	if err != nil {
		t.Fatal(err)
	}
	if init.ServerInfo.Name != "toolrack-test" {
		t.Errorf("server name = %q", init.ServerInfo.Name)
	}
	if init.ProtocolVersion == "" {
		t.Error("no protocol version negotiated")
	}

	tools, err := client.ListTools(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(tools) != 1 || tools[0].Name != "calculator.add" {
		t.Fatalf("unexpected tools: %+v", tools)
	}

	result, err := client.CallTool(ctx, "calculator.add", json.RawMessage(`{"a":19,"b":23}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Content) != 1 || !strings.Contains(result.Content[0].Text, "42") {
		t.Errorf("unexpected call result: %+v", result)
	}

	if err := client.Ping(ctx); err != nil {
		t.Errorf("ping: %v", err)
	}
}

func TestDaemonMapsToolErrors(t *testing.T) {
	socketPath, _ := startTestDaemon(t)
	ctx := context.Background()

	client, err := Dial(ctx, socketPath)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	_, err = client.CallTool(ctx, "calculator.divide", nil)
	if err == nil {
		t.Fatal("expected an error for an unknown tool")
	}
	var rpcErr *jsonrpc2.Error
	if !errors.As(err, &rpcErr) {
		t.Fatalf("error type = %T, want *jsonrpc2.Error", err)
	}
	if rpcErr.Code != -32001 {
		t.Errorf("code = %d, want -32001", rpcErr.Code)
	}
}

func TestDaemonShutdownDropsClients(t *testing.T) {
	socketPath, cancel := startTestDaemon(t)
	ctx := context.Background()

	client, err := Dial(ctx, socketPath)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	if err := client.Ping(ctx); err != nil {
		t.Fatal(err)
	}

	cancel()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if err := client.Ping(ctx); err != nil {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Error("client still reaches the daemon after shutdown")
}

func TestDaemonConcurrentClients(t *testing.T) {
	socketPath, _ := startTestDaemon(t)
	ctx := context.Background()

	const n = 4
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			client, err := Dial(ctx, socketPath)
			if err != nil {
				errs <- err
				return
			}
			defer client.Close()
			_, err = client.CallTool(ctx, "calculator.add", json.RawMessage(`{"a":1,"b":2}`))
			errs <- err
		}()
	}
	for i := 0; i < n; i++ {
		if err := <-errs; err != nil {
			t.Errorf("client %d: %v", i, err)
		}
	}
}
