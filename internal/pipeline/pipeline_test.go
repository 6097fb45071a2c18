package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/toolrack/toolrack/internal/catalog"
	"github.com/toolrack/toolrack/internal/state"
)

type mathArgs struct {
	N float64 `json:"n"`
}

type mathResult struct {
	Result float64 `json:"result"`
}

func newMathCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c := catalog.New()
	_, err := catalog.RegisterFunc(c, "math.double", "Doubles a number.", catalog.Metadata{},
		func(ctx context.Context, in mathArgs) (mathResult, error) {
			return mathResult{Result: in.N * 2}, nil
		})
	if err != nil {
		t.Fatalf("register math.double: %v", err)
	}
	_, err = catalog.RegisterFunc(c, "math.inc", "Adds one.", catalog.Metadata{},
		func(ctx context.Context, in mathArgs) (mathResult, error) {
			return mathResult{Result: in.N + 1}, nil
		})
	if err != nil {
		t.Fatalf("register math.inc: %v", err)
	}
	return c
}

func TestPipelineRunsStepsInOrder(t *testing.T) {
	c := newMathCatalog(t)

	spec := Spec{
		Name:        "math.double_then_inc",
		Description: "Doubles the input then adds one.",
		Steps: []Step{
			{Tool: "math.double", SaveAs: "doubled"},
			{Tool: "math.inc", BuildArgs: func(run *Context) (json.RawMessage, error) {
				prev, ok := run.Value("doubled")
				if !ok {
					return nil, errors.New("missing doubled value")
				}
				return json.RawMessage(fmt.Sprintf(`{"n":%g}`, prev.(mathResult).Result)), nil
			}},
		},
	}
	if err := Build(c, nil, spec); err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	out, err := c.Execute(context.Background(), "math.double_then_inc", json.RawMessage(`{"n":5}`))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	result, ok := out.(mathResult)
	if !ok {
		t.Fatalf("expected mathResult, got %T", out)
	}
	if result.Result != 11 {
		t.Errorf("expected 11, got %v", result.Result)
	}
}

func TestPipelineIsListedAsPipelineKind(t *testing.T) {
	c := newMathCatalog(t)

	err := Build(c, nil, Spec{
		Name:  "math.noop",
		Steps: []Step{{Tool: "math.inc", Arguments: json.RawMessage(`{"n":0}`)}},
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	for _, spec := range c.List() {
		if spec.Name != "math.noop" {
			continue
		}
		if spec.Kind != catalog.KindPipeline {
			t.Errorf("expected kind %s, got %s", catalog.KindPipeline, spec.Kind)
		}
		if spec.InputContract == nil {
			t.Error("expected a permissive input contract")
		}
		return
	}
	t.Fatal("pipeline not listed")
}

func TestStaticArgumentsIgnorePipelineInput(t *testing.T) {
	c := newMathCatalog(t)

	err := Build(c, nil, Spec{
		Name:  "math.fixed",
		Steps: []Step{{Tool: "math.double", Arguments: json.RawMessage(`{"n":3}`)}},
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	out, err := c.Execute(context.Background(), "math.fixed", json.RawMessage(`{"n":100}`))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if got := out.(mathResult).Result; got != 6 {
		t.Errorf("expected static args to win, got %v", got)
	}
}

func TestStepFailureAbortsRun(t *testing.T) {
	c := newMathCatalog(t)

	ran := false
	_, err := catalog.RegisterFunc(c, "math.boom", "Always fails.", catalog.Metadata{},
		func(ctx context.Context, in mathArgs) (mathResult, error) {
			return mathResult{}, errors.New("numeric overflow")
		})
	if err != nil {
		t.Fatalf("register math.boom: %v", err)
	}
	_, err = catalog.RegisterFunc(c, "math.after", "Marks execution.", catalog.Metadata{},
		func(ctx context.Context, in mathArgs) (mathResult, error) {
			ran = true
			return mathResult{}, nil
		})
	if err != nil {
		t.Fatalf("register math.after: %v", err)
	}

	err = Build(c, nil, Spec{
		Name: "math.fragile",
		Steps: []Step{
			{Tool: "math.boom"},
			{Tool: "math.after"},
		},
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	_, err = c.Execute(context.Background(), "math.fragile", json.RawMessage(`{"n":1}`))
	if err == nil {
		t.Fatal("expected the run to fail")
	}
	var execErr *catalog.ExecutionError
	if !errors.As(err, &execErr) {
		t.Errorf("expected ExecutionError, got %T", err)
	}
	if !strings.Contains(err.Error(), "math.boom") {
		t.Errorf("expected the failing step named in the error, got %v", err)
	}
	if ran {
		t.Error("expected steps after the failure to be skipped")
	}
}

func TestUnknownStepToolSurfacesLookupFailure(t *testing.T) {
	c := newMathCatalog(t)

	err := Build(c, nil, Spec{
		Name:  "math.ghostly",
		Steps: []Step{{Tool: "ghost.tool"}},
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	_, err = c.Execute(context.Background(), "math.ghostly", json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("expected the run to fail")
	}
	var notFound *catalog.NotFoundError
	if !errors.As(err, &notFound) {
		t.Errorf("expected the step lookup failure preserved in the chain, got %v", err)
	}
}

func TestPipelineContextReachesUserState(t *testing.T) {
	c := newMathCatalog(t)
	st := state.NewManager(8)

	err := Build(c, st, Spec{
		Name: "math.remember",
		Steps: []Step{
			{Tool: "math.double", BuildArgs: func(run *Context) (json.RawMessage, error) {
				run.UserSet("last_run", "double")
				return json.RawMessage(`{"n":2}`), nil
			}},
		},
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	ctx := catalog.WithCaller(context.Background(), "alice")
	if _, err := c.Execute(ctx, "math.remember", nil); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if v, _ := st.Get("alice", "last_run"); v != "double" {
		t.Errorf("expected alice's bucket updated, got %v", v)
	}
	if _, ok := st.Get("bob", "last_run"); ok {
		t.Error("expected bob's bucket untouched")
	}
}

func TestBuildRejectsEmptySpecs(t *testing.T) {
	c := newMathCatalog(t)

	if err := Build(c, nil, Spec{Name: "math.empty"}); err == nil {
		t.Error("expected an error for a pipeline without steps")
	}
	if err := Build(c, nil, Spec{Name: "math.unnamed", Steps: []Step{{}}}); err == nil {
		t.Error("expected an error for a step without a tool")
	}
}

func TestPipelineInputAvailableToSteps(t *testing.T) {
	c := newMathCatalog(t)

	err := Build(c, nil, Spec{
		Name: "math.echo_input",
		Steps: []Step{
			{Tool: "math.inc", BuildArgs: func(run *Context) (json.RawMessage, error) {
				in, ok := run.Value("input")
				if !ok {
					return nil, errors.New("input missing")
				}
				n := in.(map[string]any)["n"].(float64)
				return json.RawMessage(fmt.Sprintf(`{"n":%g}`, n*10)), nil
			}},
		},
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	out, err := c.Execute(context.Background(), "math.echo_input", json.RawMessage(`{"n":4}`))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if got := out.(mathResult).Result; got != 41 {
		t.Errorf("expected 41, got %v", got)
	}
}
