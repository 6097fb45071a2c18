// Package schema derives call contracts from Go types and validates
// arguments against them. Derivation runs once at registration time and is a
// pure function of the type's shape: deriving the same type twice yields
// structurally equal trees and byte-identical JSON.
package schema

import "encoding/json"

// Contract is one node of a JSON-Schema-like tree describing acceptable
// arguments. Contracts are immutable once derived.
type Contract struct {
	Type                 string               `json:"type,omitempty"`
	Description          string               `json:"description,omitempty"`
	Properties           map[string]*Contract `json:"properties,omitempty"`
	Required             []string             `json:"required,omitempty"`
	AdditionalProperties *Contract            `json:"additionalProperties,omitempty"`
	Items                *Contract            `json:"items,omitempty"`
	Enum                 []any                `json:"enum,omitempty"`
	OneOf                []*Contract          `json:"oneOf,omitempty"`
	Nullable             bool                 `json:"nullable,omitempty"`
	Format               string               `json:"format,omitempty"`
	Default              any                  `json:"default,omitempty"`
}

const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeInteger = "integer"
	TypeBoolean = "boolean"
	TypeArray   = "array"
	TypeObject  = "object"
)

// JSON renders the contract in its wire form. Map keys marshal sorted, so
// the bytes are stable across derivations.
func (c *Contract) JSON() json.RawMessage {
	raw, err := json.Marshal(c)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return raw
}

// IsObject reports whether the contract describes a JSON object, which is
// what every tool input contract must be.
func (c *Contract) IsObject() bool {
	return c != nil && c.Type == TypeObject
}
