package schema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// Enumer marks a named type whose value set is closed. The derived contract
// becomes an enum of the returned literals; when every literal shares one
// primitive type that type is attached for stricter validation.
type Enumer interface {
	Enum() []any
}

// Engine turns Go types into call contracts through an ordered table of
// converters, each matching one type shape. Unmatched shapes fall back to a
// free-form string contract and are reported as degraded rather than
// failing registration.
type Engine struct {
	converters []converter
}

type converter struct {
	name    string
	matches func(reflect.Type) bool
	convert func(*Engine, reflect.Type, *deriveState, string) (*Contract, error)
}

type deriveState struct {
	degraded []string
	visiting map[reflect.Type]bool
}

var (
	enumerType = reflect.TypeOf((*Enumer)(nil)).Elem()
	timeType   = reflect.TypeOf(time.Time{})
	rawMsgType = reflect.TypeOf(json.RawMessage{})
	defaultEng = NewEngine()
)

// NewEngine builds the converter table. Order matters: named shapes (enums,
// time, raw JSON) are tried before the structural kinds they are built on.
func NewEngine() *Engine {
	e := &Engine{}
	e.converters = []converter{
		{name: "enum", matches: implementsEnumer, convert: convertEnum},
		{name: "time", matches: isType(timeType), convert: convertTime},
		{name: "raw", matches: isType(rawMsgType), convert: convertFallback},
		{name: "bytes", matches: isByteSlice, convert: convertBytes},
		{name: "primitive", matches: isPrimitive, convert: convertPrimitive},
		{name: "sequence", matches: isSequence, convert: convertSequence},
		{name: "mapping", matches: isStringKeyedMap, convert: convertMapping},
		{name: "optional", matches: isPointer, convert: convertOptional},
		{name: "struct", matches: isStruct, convert: convertStruct},
	}
	return e
}

// Derive maps a Go type to its call contract using the default engine.
func Derive(t reflect.Type) (*Contract, []string, error) {
	return defaultEng.Derive(t)
}

// Derive maps a Go type to its call contract. The second return value lists
// the paths (dotted, root written as the type name) where no converter
// matched and the free-form fallback was used.
func (e *Engine) Derive(t reflect.Type) (*Contract, []string, error) {
	if t == nil {
		return nil, nil, fmt.Errorf("schema: cannot derive contract for nil type")
	}
	st := &deriveState{visiting: make(map[reflect.Type]bool)}
	c, err := e.derive(t, st, t.String())
	if err != nil {
		return nil, nil, err
	}
	return c, st.degraded, nil
}

func (e *Engine) derive(t reflect.Type, st *deriveState, path string) (*Contract, error) {
	for _, conv := range e.converters {
		if conv.matches(t) {
			return conv.convert(e, t, st, path)
		}
	}
	return convertFallback(e, t, st, path)
}

func isType(want reflect.Type) func(reflect.Type) bool {
	return func(t reflect.Type) bool { return t == want }
}

func implementsEnumer(t reflect.Type) bool {
	return t.Implements(enumerType) || reflect.PointerTo(t).Implements(enumerType)
}

func isByteSlice(t reflect.Type) bool {
	return t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8
}

func isPrimitive(t reflect.Type) bool {
	return primitiveTypeName(t) != ""
}

func isSequence(t reflect.Type) bool {
	return t.Kind() == reflect.Slice || t.Kind() == reflect.Array
}

func isStringKeyedMap(t reflect.Type) bool {
	return t.Kind() == reflect.Map && t.Key().Kind() == reflect.String
}

func isPointer(t reflect.Type) bool {
	return t.Kind() == reflect.Pointer
}

func isStruct(t reflect.Type) bool {
	return t.Kind() == reflect.Struct
}

func primitiveTypeName(t reflect.Type) string {
	switch t.Kind() {
	case reflect.Bool:
		return TypeBoolean
	case reflect.String:
		return TypeString
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return TypeInteger
	case reflect.Float32, reflect.Float64:
		return TypeNumber
	}
	return ""
}

func convertEnum(e *Engine, t reflect.Type, st *deriveState, path string) (*Contract, error) {
	var values []any
	if t.Implements(enumerType) {
		values = reflect.Zero(t).Interface().(Enumer).Enum()
	} else {
		values = reflect.New(t).Interface().(Enumer).Enum()
	}

	c := &Contract{Enum: values}
	if common := commonPrimitive(values); common != "" {
		c.Type = common
	}
	return c, nil
}

// commonPrimitive returns the shared JSON type of the literals, or "" when
// they are heterogeneous.
func commonPrimitive(values []any) string {
	common := ""
	for _, v := range values {
		if v == nil {
			return ""
		}
		name := primitiveTypeName(reflect.TypeOf(v))
		if name == "" {
			return ""
		}
		if common == "" {
			common = name
		} else if common != name {
			return ""
		}
	}
	return common
}

func convertTime(e *Engine, t reflect.Type, st *deriveState, path string) (*Contract, error) {
	return &Contract{Type: TypeString, Format: "date-time"}, nil
}

func convertBytes(e *Engine, t reflect.Type, st *deriveState, path string) (*Contract, error) {
	return &Contract{Type: TypeString}, nil
}

func convertPrimitive(e *Engine, t reflect.Type, st *deriveState, path string) (*Contract, error) {
	return &Contract{Type: primitiveTypeName(t)}, nil
}

func convertSequence(e *Engine, t reflect.Type, st *deriveState, path string) (*Contract, error) {
	items, err := e.derive(t.Elem(), st, path+"[]")
	if err != nil {
		return nil, err
	}
	return &Contract{Type: TypeArray, Items: items}, nil
}

func convertMapping(e *Engine, t reflect.Type, st *deriveState, path string) (*Contract, error) {
	values, err := e.derive(t.Elem(), st, path+".*")
	if err != nil {
		return nil, err
	}
	return &Contract{Type: TypeObject, AdditionalProperties: values}, nil
}

// convertOptional maps a pointer to its element contract with the nullable
// flag set, so null/absence stays distinguishable from the typed branch.
func convertOptional(e *Engine, t reflect.Type, st *deriveState, path string) (*Contract, error) {
	elem, err := e.derive(t.Elem(), st, path)
	if err != nil {
		return nil, err
	}
	out := *elem
	out.Nullable = true
	return &out, nil
}

func convertStruct(e *Engine, t reflect.Type, st *deriveState, path string) (*Contract, error) {
	if st.visiting[t] {
		return convertFallback(e, t, st, path)
	}
	st.visiting[t] = true
	defer delete(st.visiting, t)

	c := &Contract{
		Type:       TypeObject,
		Properties: make(map[string]*Contract),
	}

	for _, field := range reflect.VisibleFields(t) {
		if field.PkgPath != "" || field.Anonymous {
			continue
		}
		name, opts := parseJSONTag(field)
		if name == "" {
			continue
		}

		prop, err := e.derive(field.Type, st, path+"."+name)
		if err != nil {
			return nil, err
		}
		if desc := field.Tag.Get("description"); desc != "" {
			withDesc := *prop
			withDesc.Description = desc
			prop = &withDesc
		}
		c.Properties[name] = prop

		optional := opts.omitempty || field.Type.Kind() == reflect.Pointer
		if !optional {
			c.Required = append(c.Required, name)
		}
	}

	return c, nil
}

// convertFallback is the fixed last resort: a free-form string contract,
// recorded so registration tooling can warn about the degradation.
func convertFallback(e *Engine, t reflect.Type, st *deriveState, path string) (*Contract, error) {
	st.degraded = append(st.degraded, path)
	return &Contract{Type: TypeString}, nil
}

type tagOptions struct {
	omitempty bool
}

func parseJSONTag(field reflect.StructField) (string, tagOptions) {
	tag := field.Tag.Get("json")
	if tag == "-" {
		return "", tagOptions{}
	}

	name := field.Name
	var opts tagOptions
	if tag != "" {
		parts := strings.Split(tag, ",")
		if parts[0] != "" {
			name = parts[0]
		}
		for _, opt := range parts[1:] {
			if opt == "omitempty" {
				opts.omitempty = true
			}
		}
	}
	return name, opts
}
