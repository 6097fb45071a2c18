// Package pipeline composes registered tools into multi-step invocables
// that live in the catalog under the same name space as plain tools.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/toolrack/toolrack/internal/catalog"
	"github.com/toolrack/toolrack/internal/schema"
	"github.com/toolrack/toolrack/internal/state"
)

// Context carries one run's scratch values plus a handle on the calling
// user's durable bucket. A Context lives for a single invocation and steps
// run sequentially, so access is unsynchronized.
type Context struct {
	UserID string

	state  *state.Manager
	values map[string]any
}

func newContext(userID string, st *state.Manager, input json.RawMessage) *Context {
	c := &Context{UserID: userID, state: st, values: make(map[string]any)}
	if len(input) > 0 {
		var in any
		if json.Unmarshal(input, &in) == nil && in != nil {
			c.values["input"] = in
		}
	}
	return c
}

// Value returns a scratch value saved by an earlier step. The pipeline's
// own arguments are available under "input".
func (c *Context) Value(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// SetValue stores a scratch value for later steps.
func (c *Context) SetValue(key string, value any) {
	c.values[key] = value
}

// UserGet reads from the calling user's durable bucket.
func (c *Context) UserGet(key string) (any, bool) {
	if c.state == nil {
		return nil, false
	}
	return c.state.Get(c.UserID, key)
}

// UserSet writes to the calling user's durable bucket.
func (c *Context) UserSet(key string, value any) {
	if c.state != nil {
		c.state.Set(c.UserID, key, value)
	}
}

// Step is one catalog call inside a pipeline. Arguments come from BuildArgs
// when set, else from the static Arguments, else the pipeline's own input
// is forwarded. A non-empty SaveAs stores the step result as a scratch
// value for later steps.
type Step struct {
	Tool      string
	Arguments json.RawMessage
	BuildArgs func(*Context) (json.RawMessage, error)
	SaveAs    string
}

func (s *Step) args(run *Context, input json.RawMessage) (json.RawMessage, error) {
	if s.BuildArgs != nil {
		return s.BuildArgs(run)
	}
	if len(s.Arguments) > 0 {
		return s.Arguments, nil
	}
	return input, nil
}

// Spec describes a pipeline: catalog identity and metadata plus the step
// list.
type Spec struct {
	Name        string
	Description string
	Metadata    catalog.Metadata
	Steps       []Step
}

// Build compiles spec into a catalog entry. The registered invocable runs
// the steps in order against a fresh Context and returns the final step's
// result. Any step failure aborts the run carrying the originating error.
func Build(c *catalog.Catalog, st *state.Manager, spec Spec) error {
	if c == nil {
		c = catalog.Default()
	}
	if len(spec.Steps) == 0 {
		return fmt.Errorf("pipeline %s: no steps", spec.Name)
	}
	for i, step := range spec.Steps {
		if step.Tool == "" {
			return fmt.Errorf("pipeline %s: step %d names no tool", spec.Name, i)
		}
	}

	steps := make([]Step, len(spec.Steps))
	copy(steps, spec.Steps)

	invoke := func(ctx context.Context, args json.RawMessage) (any, error) {
		run := newContext(catalog.CallerFrom(ctx), st, args)
		var last any
		for i := range steps {
			step := &steps[i]
			stepArgs, err := step.args(run, args)
			if err != nil {
				return nil, fmt.Errorf("pipeline %s: step %d (%s): %w", spec.Name, i, step.Tool, err)
			}
			out, err := c.Execute(ctx, step.Tool, stepArgs)
			if err != nil {
				return nil, fmt.Errorf("pipeline %s: step %d (%s): %w", spec.Name, i, step.Tool, err)
			}
			if step.SaveAs != "" {
				run.SetValue(step.SaveAs, out)
			}
			last = out
		}
		return last, nil
	}

	return c.Register(&catalog.ToolSpec{
		Name:          spec.Name,
		Description:   spec.Description,
		Kind:          catalog.KindPipeline,
		InputContract: &schema.Contract{Type: schema.TypeObject},
		Metadata:      spec.Metadata,
	}, invoke)
}
