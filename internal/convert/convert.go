// Package convert renders catalog contracts in the formats model providers
// consume: the flat OpenAI function-calling shape and the MCP tool listing.
package convert

import (
	"github.com/bmatcuk/doublestar/v4"

	"github.com/toolrack/toolrack/internal/catalog"
	"github.com/toolrack/toolrack/pkg/protocol"
)

// Lister is the catalog slice the exporters need.
type Lister interface {
	List() []*catalog.ToolSpec
}

type OpenAIFunction struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  any    `json:"parameters"`
}

type OpenAITool struct {
	Type     string         `json:"type"`
	Function OpenAIFunction `json:"function"`
}

// OpenAITools renders the exposed catalog entries for function-calling
// clients.
func OpenAITools(l Lister, expose ...string) []OpenAITool {
	specs := Exposed(l.List(), expose)
	out := make([]OpenAITool, 0, len(specs))
	for _, spec := range specs {
		out = append(out, OpenAITool{
			Type: "function",
			Function: OpenAIFunction{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  inputSchema(spec),
			},
		})
	}
	return out
}

// MCPTools renders the exposed catalog entries as the tools/list wire shape.
func MCPTools(l Lister, expose ...string) []protocol.Tool {
	specs := Exposed(l.List(), expose)
	out := make([]protocol.Tool, 0, len(specs))
	for _, spec := range specs {
		out = append(out, protocol.Tool{
			Name:        spec.Name,
			Description: spec.Description,
			InputSchema: inputSchema(spec),
		})
	}
	return out
}

// Exposed filters specs down to the names matching at least one glob
// pattern. No patterns means everything is exposed. Tool names use dots,
// not slashes, so `*` spans whole names and `weather.*` pins a family.
func Exposed(specs []*catalog.ToolSpec, patterns []string) []*catalog.ToolSpec {
	if len(patterns) == 0 {
		return specs
	}
	out := make([]*catalog.ToolSpec, 0, len(specs))
	for _, spec := range specs {
		if matchAny(patterns, spec.Name) {
			out = append(out, spec)
		}
	}
	return out
}

func matchAny(patterns []string, name string) bool {
	for _, pattern := range patterns {
		ok, err := doublestar.Match(pattern, name)
		if err == nil && ok {
			return true
		}
	}
	return false
}

func inputSchema(spec *catalog.ToolSpec) any {
	if spec.InputContract == nil {
		return map[string]any{"type": "object"}
	}
	return spec.InputContract
}
