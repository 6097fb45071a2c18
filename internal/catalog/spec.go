package catalog

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/toolrack/toolrack/internal/schema"
)

type Kind string

const (
	KindTool     Kind = "tool"
	KindPipeline Kind = "pipeline"
)

// Metadata carries optional ranking and filtering hints for a tool. Nil
// pointer fields mean unknown, which constraint filters treat as passing.
type Metadata struct {
	Cost          *float64       `json:"cost,omitempty"`
	LatencyHintMS *int           `json:"latency_hint_ms,omitempty"`
	SideEffect    *bool          `json:"side_effect,omitempty"`
	Category      string         `json:"category,omitempty"`
	Tags          []string       `json:"tags,omitempty"`
	Extra         map[string]any `json:"extra,omitempty"`
}

// Normalize returns a detached copy with trimmed category, tags deduplicated
// in first-occurrence order, and pointer values copied so later caller
// mutations cannot reach the registered spec.
func (m Metadata) Normalize() Metadata {
	out := Metadata{Category: strings.TrimSpace(m.Category)}
	if m.Cost != nil {
		v := *m.Cost
		out.Cost = &v
	}
	if m.LatencyHintMS != nil {
		v := *m.LatencyHintMS
		out.LatencyHintMS = &v
	}
	if m.SideEffect != nil {
		v := *m.SideEffect
		out.SideEffect = &v
	}
	if len(m.Tags) > 0 {
		seen := make(map[string]bool, len(m.Tags))
		for _, tag := range m.Tags {
			tag = strings.TrimSpace(tag)
			if tag == "" || seen[tag] {
				continue
			}
			seen[tag] = true
			out.Tags = append(out.Tags, tag)
		}
	}
	if len(m.Extra) > 0 {
		out.Extra = make(map[string]any, len(m.Extra))
		for k, v := range m.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

func (m Metadata) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Float, Int and Bool build pointer literals for Metadata fields.
func Float(v float64) *float64 { return &v }
func Int(v int) *int           { return &v }
func Bool(v bool) *bool        { return &v }

// ToolSpec describes a registered tool or pipeline. Specs handed out by the
// catalog are shared and must be treated as read-only.
type ToolSpec struct {
	Name           string
	Description    string
	Kind           Kind
	InputContract  *schema.Contract
	OutputContract *schema.Contract
	Metadata       Metadata
}

var nameRx = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.-]*$`)

// ValidateName enforces the dotted-segment naming convention. Underscore
// names like __ping__ stay valid for internal tools.
func ValidateName(name string) error {
	if name == "" {
		return errors.New("tool name must not be empty")
	}
	if !nameRx.MatchString(name) {
		return fmt.Errorf("invalid tool name %q", name)
	}
	return nil
}
