package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/toolrack/toolrack/internal/logger"
	"github.com/toolrack/toolrack/internal/schema"
)

// RegisterFunc derives an input contract from In, wraps fn as an Invocable,
// and registers it on c under name. In must be a struct; its exported fields
// become the tool's parameters. The function is returned unchanged so call
// sites can keep invoking it directly. A nil catalog registers on Default().
func RegisterFunc[In, Out any](c *Catalog, name, description string, meta Metadata, fn func(context.Context, In) (Out, error)) (func(context.Context, In) (Out, error), error) {
	if fn == nil {
		return nil, errors.New("catalog: fn is required")
	}
	if c == nil {
		c = Default()
	}

	inType := reflect.TypeOf((*In)(nil)).Elem()
	if inType.Kind() != reflect.Struct {
		return nil, fmt.Errorf("catalog: argument type for %s must be a struct, got %s", name, inType.Kind())
	}

	input, degraded, err := schema.Derive(inType)
	if err != nil {
		return nil, fmt.Errorf("derive contract for %s: %w", name, err)
	}
	if len(degraded) > 0 {
		logger.ForComponent("catalog").Warn("contract fields degraded to free-form strings",
			"tool", name, "fields", degraded)
	}

	var output *schema.Contract
	if outType := reflect.TypeOf((*Out)(nil)).Elem(); outType.Kind() != reflect.Interface {
		if out, _, derr := schema.Derive(outType); derr == nil {
			output = out
		}
	}

	spec := &ToolSpec{
		Name:           name,
		Description:    description,
		Kind:           KindTool,
		InputContract:  input,
		OutputContract: output,
		Metadata:       meta,
	}

	invoke := func(ctx context.Context, args json.RawMessage) (any, error) {
		var in In
		if len(args) > 0 {
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, &InvalidArgumentsError{Tool: name, Err: err}
			}
		}
		return fn(ctx, in)
	}

	if err := c.Register(spec, invoke); err != nil {
		return nil, err
	}
	return fn, nil
}
