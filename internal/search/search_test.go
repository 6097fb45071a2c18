package search

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/toolrack/toolrack/internal/catalog"
	"github.com/toolrack/toolrack/internal/reliability"
)

func addTool(t *testing.T, c *catalog.Catalog, spec catalog.ToolSpec) {
	t.Helper()
	err := c.Register(&spec, func(ctx context.Context, args json.RawMessage) (any, error) {
		return nil, nil
	})
	if err != nil {
		t.Fatalf("register %s: %v", spec.Name, err)
	}
}

func names(results []Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Spec.Name
	}
	return out
}

func TestRuleBasedFiltersByPrefix(t *testing.T) {
	c := catalog.New()
	addTool(t, c, catalog.ToolSpec{Name: "files.read", Description: "Read a file."})
	addTool(t, c, catalog.ToolSpec{Name: "files.write", Description: "Write a file."})
	addTool(t, c, catalog.ToolSpec{Name: "net.fetch", Description: "Fetch a URL."})

	f := NewFacade(c)
	results, err := f.Search(context.Background(), Options{Prefix: "files."})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	got := names(results)
	if len(got) != 2 || got[0] != "files.read" || got[1] != "files.write" {
		t.Errorf("expected the two files tools, got %v", got)
	}
}

func TestRuleBasedFiltersByTags(t *testing.T) {
	c := catalog.New()
	addTool(t, c, catalog.ToolSpec{
		Name:     "files.read",
		Metadata: catalog.Metadata{Tags: []string{"files", "read"}},
	})
	addTool(t, c, catalog.ToolSpec{
		Name:     "net.fetch",
		Metadata: catalog.Metadata{Tags: []string{"net"}},
	})

	f := NewFacade(c)
	results, err := f.Search(context.Background(), Options{Tags: []string{"files"}})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if got := names(results); len(got) != 1 || got[0] != "files.read" {
		t.Errorf("expected single tagged match, got %v", got)
	}

	results, err = f.Search(context.Background(), Options{Tags: []string{"files", "write"}})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no tool to carry both tags, got %v", names(results))
	}
}

func TestConstraintsExcludeOnlyDeclaredViolations(t *testing.T) {
	c := catalog.New()
	addTool(t, c, catalog.ToolSpec{
		Name:     "known.cheap",
		Metadata: catalog.Metadata{Cost: catalog.Float(1)},
	})
	addTool(t, c, catalog.ToolSpec{
		Name:     "known.pricey",
		Metadata: catalog.Metadata{Cost: catalog.Float(9)},
	})
	addTool(t, c, catalog.ToolSpec{Name: "unknown.cost"})

	f := NewFacade(c)
	results, err := f.Search(context.Background(), Options{MaxCost: catalog.Float(5)})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	got := names(results)
	if len(got) != 2 {
		t.Fatalf("expected budget to exclude only the declared violator, got %v", got)
	}
	for _, name := range got {
		if name == "known.pricey" {
			t.Errorf("expected known.pricey to be excluded, got %v", got)
		}
	}
}

func TestSideEffectAndCategoryConstraints(t *testing.T) {
	c := catalog.New()
	addTool(t, c, catalog.ToolSpec{
		Name:     "writer.tool",
		Metadata: catalog.Metadata{SideEffect: catalog.Bool(true), Category: "files"},
	})
	addTool(t, c, catalog.ToolSpec{
		Name:     "reader.tool",
		Metadata: catalog.Metadata{SideEffect: catalog.Bool(false), Category: "net"},
	})
	addTool(t, c, catalog.ToolSpec{Name: "mystery.tool"})

	f := NewFacade(c)
	results, err := f.Search(context.Background(), Options{AllowSideEffects: catalog.Bool(false)})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	got := names(results)
	if len(got) != 2 {
		t.Fatalf("expected side-effect filter to keep reader and mystery, got %v", got)
	}

	results, err = f.Search(context.Background(), Options{Categories: []string{"net"}})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	got = names(results)
	if len(got) != 2 || got[0] != "mystery.tool" || got[1] != "reader.tool" {
		t.Errorf("expected uncategorized tools to pass the category filter, got %v", got)
	}
}

func TestLatencyBudgetConstraint(t *testing.T) {
	c := catalog.New()
	addTool(t, c, catalog.ToolSpec{
		Name:     "fast.tool",
		Metadata: catalog.Metadata{LatencyHintMS: catalog.Int(20)},
	})
	addTool(t, c, catalog.ToolSpec{
		Name:     "slow.tool",
		Metadata: catalog.Metadata{LatencyHintMS: catalog.Int(5000)},
	})

	f := NewFacade(c)
	results, err := f.Search(context.Background(), Options{LatencyBudgetMS: catalog.Int(100)})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if got := names(results); len(got) != 1 || got[0] != "fast.tool" {
		t.Errorf("expected latency budget to drop slow.tool, got %v", got)
	}
}

func TestFailedToolRanksBelowFreshOnEqualRelevance(t *testing.T) {
	c := catalog.New()
	addTool(t, c, catalog.ToolSpec{Name: "alpha.echo", Description: "Echo text back."})
	addTool(t, c, catalog.ToolSpec{Name: "beta.echo", Description: "Echo text back."})

	now := time.Now()
	c.Reliability().Record("alpha.echo", reliability.OutcomeFailure, now)
	c.Reliability().Record("alpha.echo", reliability.OutcomeFailure, now)

	f := NewFacade(c)
	results, err := f.Search(context.Background(), Options{Query: "echo"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	got := names(results)
	if len(got) != 2 || got[0] != "beta.echo" || got[1] != "alpha.echo" {
		t.Fatalf("expected never-failed tool first, got %v", got)
	}
	if results[1].FailureScore <= 0 {
		t.Errorf("expected failure score on alpha.echo, got %v", results[1].FailureScore)
	}
	if results[0].Relevance != results[1].Relevance {
		t.Errorf("expected equal relevance, got %v and %v", results[0].Relevance, results[1].Relevance)
	}
}

func TestIgnoreFailuresRestoresRelevanceOrder(t *testing.T) {
	c := catalog.New()
	addTool(t, c, catalog.ToolSpec{Name: "alpha.echo", Description: "Echo text back."})
	addTool(t, c, catalog.ToolSpec{Name: "beta.echo", Description: "Echo text back."})
	c.Reliability().Record("alpha.echo", reliability.OutcomeFailure, time.Now())

	f := NewFacade(c)
	results, err := f.Search(context.Background(), Options{Query: "echo", IgnoreFailures: true})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if got := names(results); got[0] != "alpha.echo" {
		t.Errorf("expected alphabetical order with failures ignored, got %v", got)
	}
	if results[0].FailureScore != 0 {
		t.Errorf("expected no failure penalty, got %v", results[0].FailureScore)
	}
}

func TestSetConfigAppliesAtRuntime(t *testing.T) {
	c := catalog.New()
	addTool(t, c, catalog.ToolSpec{Name: "alpha.echo", Description: "Echo text back."})
	addTool(t, c, catalog.ToolSpec{Name: "beta.mirror", Description: "Mirror text back."})
	c.Reliability().Record("alpha.echo", reliability.OutcomeFailure, time.Now())

	// A tiny weight cannot overcome alpha's exact query match.
	f := NewFacadeWith(c, FacadeConfig{FailureWeight: 0.05})
	results, err := f.Search(context.Background(), Options{Query: "echo"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if got := names(results); len(got) != 2 || got[0] != "alpha.echo" {
		t.Fatalf("expected relevance to dominate at low weight, got %v", got)
	}

	f.SetConfig(FacadeConfig{FailureWeight: 5, DefaultTopK: 1})
	results, err = f.Search(context.Background(), Options{Query: "echo"})
	if err != nil {
		t.Fatalf("search after SetConfig: %v", err)
	}
	if got := names(results); len(got) != 1 || got[0] != "beta.mirror" {
		t.Errorf("expected penalty and top_k to apply after SetConfig, got %v", got)
	}
}

func TestMetadataRankingBreaksTiesByCost(t *testing.T) {
	c := catalog.New()
	addTool(t, c, catalog.ToolSpec{
		Name:     "a.pricey",
		Metadata: catalog.Metadata{Cost: catalog.Float(5)},
	})
	addTool(t, c, catalog.ToolSpec{
		Name:     "z.cheap",
		Metadata: catalog.Metadata{Cost: catalog.Float(1)},
	})

	f := NewFacade(c)

	results, err := f.Search(context.Background(), Options{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if got := names(results); got[0] != "a.pricey" {
		t.Errorf("expected name order without metadata ranking, got %v", got)
	}

	results, err = f.Search(context.Background(), Options{MaxCost: catalog.Float(10)})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if got := names(results); got[0] != "z.cheap" {
		t.Errorf("expected cost order once a budget enables metadata ranking, got %v", got)
	}
}

func TestTopKDefaultsToTen(t *testing.T) {
	c := catalog.New()
	toolNames := []string{
		"t.a", "t.b", "t.c", "t.d", "t.e", "t.f",
		"t.g", "t.h", "t.i", "t.j", "t.k", "t.l",
	}
	for _, name := range toolNames {
		addTool(t, c, catalog.ToolSpec{Name: name})
	}

	f := NewFacade(c)
	results, err := f.Search(context.Background(), Options{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 10 {
		t.Errorf("expected default top-k of 10, got %d", len(results))
	}

	results, err = f.Search(context.Background(), Options{TopK: 3})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("expected explicit top-k of 3, got %d", len(results))
	}
}

func TestEmptyCatalogSearch(t *testing.T) {
	f := NewFacade(catalog.New())
	results, err := f.Search(context.Background(), Options{Query: "anything"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected empty results, got %v", names(results))
	}
}

func TestUnknownStrategyRejected(t *testing.T) {
	f := NewFacade(catalog.New())
	_, err := f.Search(context.Background(), Options{Strategy: "ml-magic"})
	if err == nil {
		t.Fatal("expected unknown strategy to be rejected")
	}
}

func TestLexicalScore(t *testing.T) {
	weather := &catalog.ToolSpec{
		Name:        "weather.query",
		Description: "Look up the current weather for a city.",
		Metadata:    catalog.Metadata{Tags: []string{"weather", "net"}},
	}
	calc := &catalog.ToolSpec{Name: "calculator.add", Description: "Add two integers."}

	lex := Lexical{}
	if got := lex.Score("weather", weather); got != 1.0 {
		t.Errorf("expected substring match to score 1.0, got %v", got)
	}
	if got := lex.Score("", weather); got != 1.0 {
		t.Errorf("expected empty query to score 1.0, got %v", got)
	}
	if got := lex.Score("WEATHER", weather); got != 1.0 {
		t.Errorf("expected case-folded match to score 1.0, got %v", got)
	}

	fuzzy := lex.Score("wether", weather)
	if fuzzy <= 0.7 || fuzzy >= 1.0 {
		t.Errorf("expected near-miss to score in (0.7, 1.0), got %v", fuzzy)
	}
	if unrelated := lex.Score("wether", calc); unrelated >= fuzzy {
		t.Errorf("expected unrelated tool to score below %v, got %v", fuzzy, unrelated)
	}
}

func TestHybridPrefersFullTextMatch(t *testing.T) {
	c := catalog.New()
	addTool(t, c, catalog.ToolSpec{
		Name:        "weather.query",
		Description: "Look up the current weather forecast for a city.",
	})
	addTool(t, c, catalog.ToolSpec{Name: "calculator.add", Description: "Add two integers."})
	addTool(t, c, catalog.ToolSpec{Name: "files.read", Description: "Read a file from disk."})

	f := NewFacade(c)
	defer f.Close()

	results, err := f.Search(context.Background(), Options{Query: "forecast city", Strategy: StrategyHybrid})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) == 0 || results[0].Spec.Name != "weather.query" {
		t.Errorf("expected weather.query first for a description match, got %v", names(results))
	}
}

func TestHybridEmptyQueryFallsBack(t *testing.T) {
	c := catalog.New()
	addTool(t, c, catalog.ToolSpec{Name: "a.tool"})
	addTool(t, c, catalog.ToolSpec{Name: "b.tool"})

	f := NewFacade(c)
	defer f.Close()

	results, err := f.Search(context.Background(), Options{Strategy: StrategyHybrid})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if got := names(results); len(got) != 2 || got[0] != "a.tool" {
		t.Errorf("expected all tools in name order, got %v", got)
	}
}

func TestFingerprintTracksContent(t *testing.T) {
	a := []*catalog.ToolSpec{{Name: "x", Description: "one"}}
	b := []*catalog.ToolSpec{{Name: "x", Description: "one"}}
	if fingerprint(a) != fingerprint(b) {
		t.Error("expected identical specs to share a fingerprint")
	}

	b[0] = &catalog.ToolSpec{Name: "x", Description: "two"}
	if fingerprint(a) == fingerprint(b) {
		t.Error("expected description change to change the fingerprint")
	}

	tagged := []*catalog.ToolSpec{{Name: "x", Metadata: catalog.Metadata{Tags: []string{"b", "a"}}}}
	reordered := []*catalog.ToolSpec{{Name: "x", Metadata: catalog.Metadata{Tags: []string{"a", "b"}}}}
	if fingerprint(tagged) != fingerprint(reordered) {
		t.Error("expected tag order to be irrelevant to the fingerprint")
	}
}

func TestSearchToolEndToEnd(t *testing.T) {
	c := catalog.New()
	if err := catalog.RegisterBuiltins(c); err != nil {
		t.Fatalf("builtins: %v", err)
	}
	f := NewFacade(c)
	if err := RegisterSearchTool(c, f); err != nil {
		t.Fatalf("register search tool: %v", err)
	}

	result, err := c.Execute(context.Background(), "catalog.search", json.RawMessage(`{"query":"ping"}`))
	if err != nil {
		t.Fatalf("execute catalog.search: %v", err)
	}
	reply, ok := result.(searchReply)
	if !ok {
		t.Fatalf("unexpected result type %T", result)
	}
	if reply.Count < 1 || reply.Tools[0].Name != "system.ping" {
		t.Errorf("expected system.ping as top hit, got %+v", reply)
	}

	_, err = c.Execute(context.Background(), "catalog.search", json.RawMessage(`{"strategy":"bogus"}`))
	if err == nil {
		t.Fatal("expected unknown strategy to fail the tool call")
	}
}
