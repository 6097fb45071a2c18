package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/toolrack/toolrack/internal/config"
	"github.com/toolrack/toolrack/internal/daemon"
	"github.com/toolrack/toolrack/internal/mcp"
	"github.com/toolrack/toolrack/pkg/protocol"
)

// clientFlags are shared by every subcommand that talks to the daemon.
type clientFlags struct {
	socket  *string
	timeout *time.Duration
}

func addClientFlags(fs *flag.FlagSet) clientFlags {
	return clientFlags{
		socket:  fs.String("socket", config.DefaultSocketPath(), "daemon socket path"),
		timeout: fs.Duration("timeout", 30*time.Second, "request timeout"),
	}
}

func withClient(cf clientFlags, fn func(ctx context.Context, c *daemon.Client, info *protocol.InitializeResult) error) int {
	ctx, cancel := context.WithTimeout(context.Background(), *cf.timeout)
	defer cancel()

	c, err := daemon.Dial(ctx, *cf.socket)
	if err != nil {
		fmt.Fprintf(os.Stderr, "toolrack: no daemon at %s (start one with \"toolrack daemon start\"): %v\n", *cf.socket, err)
		return 1
	}
	defer c.Close()

	info, err := c.Initialize(ctx, "toolrack-cli")
	if err != nil {
		return fail(fmt.Errorf("initialize: %w", err))
	}
	if err := fn(ctx, c, info); err != nil {
		return fail(err)
	}
	return 0
}

func cmdTools(args []string) int {
	fs := flag.NewFlagSet("tools", flag.ContinueOnError)
	cf := addClientFlags(fs)
	asJSON := fs.Bool("json", false, "print the raw listing")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	return withClient(cf, func(ctx context.Context, c *daemon.Client, _ *protocol.InitializeResult) error {
		tools, err := c.ListTools(ctx)
		if err != nil {
			return err
		}
		if *asJSON {
			return printJSON(tools)
		}
		for _, t := range tools {
			fmt.Printf("%-28s %s\n", t.Name, t.Description)
		}
		return nil
	})
}

func cmdCall(args []string) int {
	fs := flag.NewFlagSet("call", flag.ContinueOnError)
	cf := addClientFlags(fs)
	rawArgs := fs.String("args", "", "tool arguments as a JSON object")
	asJSON := fs.Bool("json", false, "print the full result envelope")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: toolrack call <tool> [--args '{...}']")
		return 2
	}

	var callArgs json.RawMessage
	if *rawArgs != "" {
		if !json.Valid([]byte(*rawArgs)) {
			return fail(fmt.Errorf("--args is not valid JSON: %s", *rawArgs))
		}
		callArgs = json.RawMessage(*rawArgs)
	}

	return withClient(cf, func(ctx context.Context, c *daemon.Client, _ *protocol.InitializeResult) error {
		res, err := c.CallTool(ctx, fs.Arg(0), callArgs)
		if err != nil {
			return toolCallError(err)
		}
		if *asJSON {
			return printJSON(res)
		}
		fmt.Println(contentText(res))
		return nil
	})
}

// searchRequest mirrors the catalog.search argument contract.
type searchRequest struct {
	Query            string   `json:"query,omitempty"`
	Tags             []string `json:"tags,omitempty"`
	Prefix           string   `json:"prefix,omitempty"`
	TopK             int      `json:"top_k,omitempty"`
	MaxCost          *float64 `json:"max_cost,omitempty"`
	LatencyBudgetMS  *int     `json:"latency_budget_ms,omitempty"`
	AllowSideEffects *bool    `json:"allow_side_effects,omitempty"`
	Categories       []string `json:"categories,omitempty"`
	Strategy         string   `json:"strategy,omitempty"`
	IgnoreFailures   bool     `json:"ignore_failures,omitempty"`
}

type searchResponse struct {
	Tools []struct {
		Name          string   `json:"name"`
		Description   string   `json:"description"`
		Tags          []string `json:"tags"`
		Cost          *float64 `json:"cost"`
		LatencyHintMS *int     `json:"latency_hint_ms"`
		Score         float64  `json:"score"`
	} `json:"tools"`
	Count int `json:"count"`
}

func cmdSearch(args []string) int {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	cf := addClientFlags(fs)
	tags := fs.String("tags", "", "comma-separated tags every result must carry")
	prefix := fs.String("prefix", "", "keep only tools whose name starts with this")
	topK := fs.Int("top-k", 0, "cap the result count (default 10)")
	maxCost := fs.Float64("max-cost", -1, "exclude tools declaring a higher cost")
	latencyBudget := fs.Int("latency-budget-ms", -1, "exclude tools declaring a higher latency hint")
	noSideEffects := fs.Bool("no-side-effects", false, "exclude side-effecting tools")
	categories := fs.String("category", "", "comma-separated category filter")
	strategy := fs.String("strategy", "", "selection strategy: rule-based or hybrid")
	ignoreFailures := fs.Bool("ignore-failures", false, "rank by relevance only")
	asJSON := fs.Bool("json", false, "print the raw reply")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	req := searchRequest{
		Query:          strings.Join(fs.Args(), " "),
		Tags:           splitList(*tags),
		Prefix:         *prefix,
		TopK:           *topK,
		Categories:     splitList(*categories),
		Strategy:       *strategy,
		IgnoreFailures: *ignoreFailures,
	}
	if *maxCost >= 0 {
		req.MaxCost = maxCost
	}
	if *latencyBudget >= 0 {
		req.LatencyBudgetMS = latencyBudget
	}
	if *noSideEffects {
		allow := false
		req.AllowSideEffects = &allow
	}

	raw, err := json.Marshal(req)
	if err != nil {
		return fail(err)
	}

	return withClient(cf, func(ctx context.Context, c *daemon.Client, _ *protocol.InitializeResult) error {
		res, err := c.CallTool(ctx, "catalog.search", raw)
		if err != nil {
			return toolCallError(err)
		}
		if *asJSON {
			fmt.Println(contentText(res))
			return nil
		}

		var reply searchResponse
		if err := json.Unmarshal([]byte(contentText(res)), &reply); err != nil {
			return fmt.Errorf("decode search reply: %w", err)
		}
		if reply.Count == 0 {
			fmt.Println("no tools matched")
			return nil
		}
		for _, t := range reply.Tools {
			fmt.Printf("%6.3f  %-28s %s\n", t.Score, t.Name, t.Description)
		}
		return nil
	})
}

func cmdPing(args []string) int {
	fs := flag.NewFlagSet("ping", flag.ContinueOnError)
	cf := addClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	return withClient(cf, func(ctx context.Context, c *daemon.Client, info *protocol.InitializeResult) error {
		start := time.Now()
		if err := c.Ping(ctx); err != nil {
			return err
		}
		fmt.Printf("%s %s answered in %s\n",
			info.ServerInfo.Name, info.ServerInfo.Version, time.Since(start).Round(time.Microsecond))
		return nil
	})
}

// toolCallError unwraps JSON-RPC errors into the short form users see.
func toolCallError(err error) error {
	var rpcErr *jsonrpc2.Error
	if errors.As(err, &rpcErr) {
		return fmt.Errorf("%s (code %d)", rpcErr.Message, rpcErr.Code)
	}
	return err
}

func contentText(res *mcp.CallResult) string {
	parts := make([]string, 0, len(res.Content))
	for _, item := range res.Content {
		parts = append(parts, item.Text)
	}
	return strings.Join(parts, "\n")
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
