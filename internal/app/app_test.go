package app

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/toolrack/toolrack/internal/catalog"
	"github.com/toolrack/toolrack/internal/config"
	"github.com/toolrack/toolrack/internal/pipeline"
	"github.com/toolrack/toolrack/internal/reliability"
)

func testConfig() *config.Config {
	cfg := config.Default()
	// The prometheus exporter registers globally; tests stay off it.
	cfg.Metrics.Enabled = false
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestNewRegistersBuiltins(t *testing.T) {
	a := newTestApp(t, testConfig())

	names := a.Catalog().Names()
	want := map[string]bool{"system.ping": false, "catalog.search": false}
	for _, n := range names {
		if _, ok := want[n]; ok {
			want[n] = true
		}
	}
	for n, seen := range want {
		if !seen {
			t.Errorf("expected builtin %s, have %v", n, names)
		}
	}

	if a.Handler() == nil {
		t.Error("expected a protocol handler")
	}

	a.States().Set("u1", "greeting", "hello")
	if v, ok := a.States().Get("u1", "greeting"); !ok || v != "hello" {
		t.Errorf("state round trip = %v, %v", v, ok)
	}

	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestSearchToolFindsRegisteredTools(t *testing.T) {
	a := newTestApp(t, testConfig())

	_, err := catalog.RegisterFunc(a.Catalog(), "files.read", "Read a file from disk.",
		catalog.Metadata{Tags: []string{"files"}},
		func(ctx context.Context, _ struct{}) (string, error) { return "", nil })
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	out, err := a.Catalog().Execute(context.Background(), "catalog.search",
		json.RawMessage(`{"query":"read files"}`))
	if err != nil {
		t.Fatalf("search execute: %v", err)
	}
	raw, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("marshal reply: %v", err)
	}
	if !strings.Contains(string(raw), "files.read") {
		t.Errorf("expected files.read in search reply, got %s", raw)
	}
}

func TestRegisterPipelineRunsSteps(t *testing.T) {
	a := newTestApp(t, testConfig())

	type textArgs struct {
		Text string `json:"text"`
	}
	_, err := catalog.RegisterFunc(a.Catalog(), "text.upper", "Uppercase text.",
		catalog.Metadata{},
		func(ctx context.Context, in textArgs) (string, error) {
			return strings.ToUpper(in.Text), nil
		})
	if err != nil {
		t.Fatalf("register upper: %v", err)
	}
	_, err = catalog.RegisterFunc(a.Catalog(), "text.exclaim", "Append an exclamation mark.",
		catalog.Metadata{},
		func(ctx context.Context, in textArgs) (string, error) {
			return in.Text + "!", nil
		})
	if err != nil {
		t.Fatalf("register exclaim: %v", err)
	}

	err = a.RegisterPipeline(pipeline.Spec{
		Name:        "text.shout",
		Description: "Uppercase then punctuate.",
		Steps: []pipeline.Step{
			{Tool: "text.upper", SaveAs: "up"},
			{Tool: "text.exclaim", BuildArgs: func(run *pipeline.Context) (json.RawMessage, error) {
				up, _ := run.Value("up")
				return json.Marshal(textArgs{Text: up.(string)})
			}},
		},
	})
	if err != nil {
		t.Fatalf("RegisterPipeline: %v", err)
	}

	ctx := catalog.WithCaller(context.Background(), "u1")
	out, err := a.Catalog().Execute(ctx, "text.shout", json.RawMessage(`{"text":"hello"}`))
	if err != nil {
		t.Fatalf("pipeline execute: %v", err)
	}
	if out != "HELLO!" {
		t.Errorf("pipeline result = %v, want HELLO!", out)
	}
}

func TestReliabilityStoreSurvivesRestart(t *testing.T) {
	cfg := testConfig()
	cfg.Reliability.Store = config.StoreFile
	cfg.Reliability.Path = filepath.Join(t.TempDir(), "events.jsonl")

	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a.Catalog().Reliability().Record("net.flaky", reliability.OutcomeFailure, time.Now())
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	b := newTestApp(t, cfg)
	if score := b.Catalog().Reliability().FailureScore("net.flaky", time.Now()); score <= 0 {
		t.Errorf("expected persisted failure to survive restart, score = %v", score)
	}
}

func TestNewRejectsUnknownStoreKind(t *testing.T) {
	cfg := testConfig()
	cfg.Reliability.Store = config.StoreKind("bolt")
	cfg.Reliability.Path = filepath.Join(t.TempDir(), "events.db")

	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatal("expected an error for an unknown store kind")
	}
}

func TestReloadAppliesTunables(t *testing.T) {
	a := newTestApp(t, testConfig())

	next := testConfig()
	next.Reliability.DecayBase = 0.5
	next.Search.FailureWeight = 5
	a.Reload(next)

	if got := a.Catalog().Reliability().Params().DecayBase; got != 0.5 {
		t.Errorf("DecayBase after Reload = %v, want 0.5", got)
	}
}
