package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
)

// ValidationError reports the first contract violation found in a set of
// arguments, with the dotted path of the offending value.
type ValidationError struct {
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return "arguments: " + e.Reason
	}
	return fmt.Sprintf("argument %q: %s", e.Path, e.Reason)
}

func violation(path, format string, args ...any) error {
	return &ValidationError{Path: path, Reason: fmt.Sprintf(format, args...)}
}

// ValidateArguments checks raw JSON arguments against an object contract
// before any invocable runs. Missing required fields, wrong primitive types,
// enumeration misses, and unknown top-level keys all fail.
func ValidateArguments(c *Contract, raw json.RawMessage) error {
	if c == nil {
		return nil
	}
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return &ValidationError{Reason: "not a JSON object"}
	}
	return validate(c, value, "")
}

func validate(c *Contract, value any, path string) error {
	if c == nil {
		return nil
	}

	if value == nil {
		if c.Nullable {
			return nil
		}
		return violation(path, "null is not allowed")
	}

	if len(c.Enum) > 0 {
		for _, allowed := range c.Enum {
			if jsonEqual(allowed, value) {
				return nil
			}
		}
		return violation(path, "value %v is not one of the allowed literals", value)
	}

	if len(c.OneOf) > 0 {
		for _, branch := range c.OneOf {
			if validate(branch, value, path) == nil {
				return nil
			}
		}
		return violation(path, "value matches no allowed variant")
	}

	switch c.Type {
	case "":
		return nil
	case TypeString:
		if _, ok := value.(string); !ok {
			return violation(path, "expected string, got %s", jsonTypeOf(value))
		}
	case TypeBoolean:
		if _, ok := value.(bool); !ok {
			return violation(path, "expected boolean, got %s", jsonTypeOf(value))
		}
	case TypeNumber:
		if _, ok := value.(float64); !ok {
			return violation(path, "expected number, got %s", jsonTypeOf(value))
		}
	case TypeInteger:
		f, ok := value.(float64)
		if !ok {
			return violation(path, "expected integer, got %s", jsonTypeOf(value))
		}
		if math.Trunc(f) != f {
			return violation(path, "expected integer, got fractional number")
		}
	case TypeArray:
		items, ok := value.([]any)
		if !ok {
			return violation(path, "expected array, got %s", jsonTypeOf(value))
		}
		for i, item := range items {
			if err := validate(c.Items, item, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
	case TypeObject:
		obj, ok := value.(map[string]any)
		if !ok {
			return violation(path, "expected object, got %s", jsonTypeOf(value))
		}
		return validateObject(c, obj, path)
	default:
		return nil
	}

	return nil
}

func validateObject(c *Contract, obj map[string]any, path string) error {
	for _, name := range c.Required {
		if _, ok := obj[name]; !ok {
			return violation(joinPath(path, name), "required but missing")
		}
	}

	for name, value := range obj {
		prop, known := c.Properties[name]
		switch {
		case known:
			if err := validate(prop, value, joinPath(path, name)); err != nil {
				return err
			}
		case c.AdditionalProperties != nil:
			if err := validate(c.AdditionalProperties, value, joinPath(path, name)); err != nil {
				return err
			}
		case c.Properties != nil:
			return violation(joinPath(path, name), "unexpected argument")
		}
	}
	return nil
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func jsonTypeOf(value any) string {
	switch value.(type) {
	case string:
		return TypeString
	case bool:
		return TypeBoolean
	case float64:
		return TypeNumber
	case []any:
		return TypeArray
	case map[string]any:
		return TypeObject
	default:
		return "null"
	}
}

// jsonEqual compares an enum literal (a Go value, possibly of a named type)
// with a decoded JSON value, bridging the numeric widening and type erasure
// json.Unmarshal applies.
func jsonEqual(literal, value any) bool {
	if literal == nil {
		return value == nil
	}

	lv := reflect.ValueOf(literal)
	switch lv.Kind() {
	case reflect.String:
		s, ok := value.(string)
		return ok && lv.String() == s
	case reflect.Bool:
		b, ok := value.(bool)
		return ok && lv.Bool() == b
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		f, ok := value.(float64)
		return ok && float64(lv.Int()) == f
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		f, ok := value.(float64)
		return ok && float64(lv.Uint()) == f
	case reflect.Float32, reflect.Float64:
		f, ok := value.(float64)
		return ok && lv.Float() == f
	}
	return reflect.DeepEqual(literal, value)
}
