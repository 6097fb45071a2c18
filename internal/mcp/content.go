package mcp

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// maxContentBytes caps the text payload of a single call result. Oversized
// results are cut and flagged rather than rejected, so a chatty tool cannot
// blow past the transport line limits.
const maxContentBytes = 512 << 10

type ContentItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type CallMeta struct {
	ContentType string `json:"contentType"`
	Truncated   bool   `json:"truncated,omitempty"`
}

// CallResult is the tools/call result envelope: a single text content item
// plus meta describing how to read it.
type CallResult struct {
	Content []ContentItem `json:"content"`
	Meta    *CallMeta     `json:"meta,omitempty"`
}

// NewCallResult renders a tool's return value into the content envelope.
// Structured values (maps, slices, structs) are serialized as JSON and
// tagged application/json; strings and scalars pass through as text/plain.
func NewCallResult(result any) CallResult {
	text, contentType := renderResult(result)
	truncated := false
	if len(text) > maxContentBytes {
		text = strings.ToValidUTF8(text[:maxContentBytes], "")
		truncated = true
	}
	return CallResult{
		Content: []ContentItem{{Type: "text", Text: text}},
		Meta:    &CallMeta{ContentType: contentType, Truncated: truncated},
	}
}

func renderResult(result any) (text, contentType string) {
	switch v := result.(type) {
	case nil:
		return "null", "application/json"
	case string:
		return v, "text/plain"
	case []byte:
		return string(v), "text/plain"
	case json.RawMessage:
		return string(v), "application/json"
	case error:
		return v.Error(), "text/plain"
	}

	switch reflect.TypeOf(result).Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return fmt.Sprint(result), "text/plain"
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprint(result), "text/plain"
	}
	return string(data), "application/json"
}
