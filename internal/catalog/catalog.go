// Package catalog holds the registry of callable tools: their contracts,
// metadata, and invocation path. Every execute call validates arguments
// against the tool's contract and records an outcome in the reliability log.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/toolrack/toolrack/internal/logger"
	"github.com/toolrack/toolrack/internal/observe"
	"github.com/toolrack/toolrack/internal/reliability"
	"github.com/toolrack/toolrack/internal/schema"
)

// Invocable runs a tool against raw JSON arguments that already passed
// contract validation.
type Invocable func(ctx context.Context, args json.RawMessage) (any, error)

type entry struct {
	spec   *ToolSpec
	invoke Invocable
}

type Catalog struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string

	rel     *reliability.Log
	metrics *observe.Metrics
	log     *slog.Logger
}

type Option func(*Catalog)

func WithReliability(l *reliability.Log) Option {
	return func(c *Catalog) {
		if l != nil {
			c.rel = l
		}
	}
}

func WithMetrics(m *observe.Metrics) Option {
	return func(c *Catalog) { c.metrics = m }
}

func New(opts ...Option) *Catalog {
	c := &Catalog{
		entries: make(map[string]*entry),
		log:     logger.ForComponent("catalog"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.rel == nil {
		c.rel = reliability.NewLog(reliability.DefaultParams(), nil)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the process-wide catalog, created on first use.
func Default() *Catalog {
	defaultOnce.Do(func() {
		defaultCatalog = New()
	})
	return defaultCatalog
}

// Reliability exposes the log backing this catalog's outcome history.
func (c *Catalog) Reliability() *reliability.Log {
	return c.rel
}

// Register adds a tool under its spec name. The spec is copied and its
// metadata normalized, so the caller's struct stays untouched.
func (c *Catalog) Register(spec *ToolSpec, invoke Invocable) error {
	if spec == nil || invoke == nil {
		return errors.New("catalog: spec and invocable are required")
	}
	if err := ValidateName(spec.Name); err != nil {
		return err
	}

	s := *spec
	if s.Kind == "" {
		s.Kind = KindTool
	}
	s.Metadata = s.Metadata.Normalize()

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[s.Name]; exists {
		return &DuplicateNameError{Name: s.Name}
	}
	c.entries[s.Name] = &entry{spec: &s, invoke: invoke}
	c.order = append(c.order, s.Name)
	return nil
}

func (c *Catalog) Get(name string) (*ToolSpec, Invocable, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[name]
	if !ok {
		return nil, nil, &NotFoundError{Name: name}
	}
	return e.spec, e.invoke, nil
}

// List returns specs in registration order. The slice is a snapshot;
// registrations made after the call do not appear in it.
func (c *Catalog) List() []*ToolSpec {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*ToolSpec, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.entries[name].spec)
	}
	return out
}

func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.order...)
}

func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Execute validates args against the tool's input contract, invokes it, and
// records exactly one reliability event for the attempt. Calls against an
// unknown name record nothing since there is no tool to attribute the
// failure to. Concurrent executes of the same tool run in parallel; only
// the outcome bookkeeping is serialized.
func (c *Catalog) Execute(ctx context.Context, name string, args json.RawMessage) (any, error) {
	spec, invoke, err := c.Get(name)
	if err != nil {
		return nil, err
	}

	if verr := schema.ValidateArguments(spec.InputContract, args); verr != nil {
		c.rel.Record(name, reliability.OutcomeFailure, time.Now())
		c.metrics.RecordToolCall(ctx, name, "invalid", 0)
		return nil, &InvalidArgumentsError{Tool: name, Err: verr}
	}

	start := time.Now()
	result, err := c.safeInvoke(ctx, name, invoke, args)
	elapsed := time.Since(start)

	if err != nil {
		c.rel.Record(name, reliability.OutcomeFailure, time.Now())
		c.log.Warn("tool execution failed", "tool", name, "duration", elapsed, "error", err)

		var invalid *InvalidArgumentsError
		if errors.As(err, &invalid) {
			c.metrics.RecordToolCall(ctx, name, "invalid", elapsed.Seconds())
			return nil, err
		}
		c.metrics.RecordToolCall(ctx, name, "error", elapsed.Seconds())
		var execErr *ExecutionError
		if errors.As(err, &execErr) {
			return nil, err
		}
		return nil, &ExecutionError{Tool: name, Err: err}
	}

	c.rel.Record(name, reliability.OutcomeSuccess, time.Now())
	c.metrics.RecordToolCall(ctx, name, "ok", elapsed.Seconds())
	return result, nil
}

func (c *Catalog) safeInvoke(ctx context.Context, name string, invoke Invocable, args json.RawMessage) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("panic during tool execution",
				"tool", name,
				"panic", r,
				"stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return invoke(ctx, args)
}
