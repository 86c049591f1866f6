package schema

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Kind is the declared shape of a single field.
type Kind string

const (
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindInteger Kind = "integer"
	KindBoolean Kind = "boolean"
	KindEnum    Kind = "enum"
	KindObject  Kind = "object"
	KindArray   Kind = "array"
)

// Contract describes the expected structure of a value. A contract is built once
// with the New* constructors and chained With*/Add* methods and must not be
// modified after it has been handed to the pipeline.
type Contract struct {
	Kind        Kind   `json:"kind"`
	Description string `json:"description,omitempty"`
	Nullable    bool   `json:"nullable,omitempty"`

	// Object
	Properties           map[string]*Contract `json:"properties,omitempty"`
	Required             []string             `json:"required,omitempty"`
	AdditionalProperties bool                 `json:"additional_properties,omitempty"`

	// Array
	Items    *Contract `json:"items,omitempty"`
	MinItems *int      `json:"min_items,omitempty"`
	MaxItems *int      `json:"max_items,omitempty"`

	// String
	MinLength *int `json:"min_length,omitempty"`
	MaxLength *int `json:"max_length,omitempty"`

	// Enum
	Enum []string `json:"enum,omitempty"`

	order []string
}

// NewString creates a string contract.
func NewString() *Contract { return &Contract{Kind: KindString} }

// NewNumber creates a number contract.
func NewNumber() *Contract { return &Contract{Kind: KindNumber} }

// NewInteger creates an integer contract.
func NewInteger() *Contract { return &Contract{Kind: KindInteger} }

// NewBoolean creates a boolean contract.
func NewBoolean() *Contract { return &Contract{Kind: KindBoolean} }

// NewEnum creates a closed-set string contract.
func NewEnum(values ...string) *Contract {
	return &Contract{Kind: KindEnum, Enum: append([]string(nil), values...)}
}

// NewObject creates an object contract that rejects undeclared properties.
func NewObject() *Contract {
	return &Contract{Kind: KindObject, Properties: make(map[string]*Contract)}
}

// NewArray creates an array contract whose elements satisfy items.
func NewArray(items *Contract) *Contract {
	return &Contract{Kind: KindArray, Items: items}
}

// AddProperty declares a property. Declaration order is kept and drives the
// order in which violations are reported.
func (c *Contract) AddProperty(name string, prop *Contract) *Contract {
	if c.Properties == nil {
		c.Properties = make(map[string]*Contract)
	}
	if _, exists := c.Properties[name]; !exists {
		c.order = append(c.order, name)
	}
	c.Properties[name] = prop
	return c
}

// AddRequired marks properties as required.
func (c *Contract) AddRequired(names ...string) *Contract {
	for _, n := range names {
		if !c.IsRequired(n) {
			c.Required = append(c.Required, n)
		}
	}
	return c
}

// WithDescription sets the description rendered into prompts.
func (c *Contract) WithDescription(desc string) *Contract {
	c.Description = desc
	return c
}

// WithNullable allows an explicit null in place of the value.
func (c *Contract) WithNullable() *Contract {
	c.Nullable = true
	return c
}

// WithAdditionalProperties controls whether undeclared properties are allowed.
func (c *Contract) WithAdditionalProperties(allow bool) *Contract {
	c.AdditionalProperties = allow
	return c
}

// WithMinLength sets the minimum string length in runes.
func (c *Contract) WithMinLength(n int) *Contract {
	c.MinLength = &n
	return c
}

// WithMaxLength sets the maximum string length in runes.
func (c *Contract) WithMaxLength(n int) *Contract {
	c.MaxLength = &n
	return c
}

// WithMinItems sets the minimum array length.
func (c *Contract) WithMinItems(n int) *Contract {
	c.MinItems = &n
	return c
}

// WithMaxItems sets the maximum array length.
func (c *Contract) WithMaxItems(n int) *Contract {
	c.MaxItems = &n
	return c
}

// IsRequired reports whether name is a required property.
func (c *Contract) IsRequired(name string) bool {
	for _, r := range c.Required {
		if r == name {
			return true
		}
	}
	return false
}

// PropertyNames returns declared property names in declaration order. Properties
// assigned directly to the map without AddProperty follow in sorted order.
func (c *Contract) PropertyNames() []string {
	names := make([]string, 0, len(c.Properties))
	seen := make(map[string]bool, len(c.Properties))
	for _, n := range c.order {
		if _, ok := c.Properties[n]; ok && !seen[n] {
			names = append(names, n)
			seen[n] = true
		}
	}
	var rest []string
	for n := range c.Properties {
		if !seen[n] {
			rest = append(rest, n)
		}
	}
	sort.Strings(rest)
	return append(names, rest...)
}

// At returns the sub-contract governing the value at path, or nil when the path
// leaves the declared structure.
func (c *Contract) At(path string) *Contract {
	segs, err := ParsePath(path)
	if err != nil {
		return nil
	}
	cur := c
	for _, s := range segs {
		if cur == nil {
			return nil
		}
		if s.IsIndex {
			if cur.Kind != KindArray {
				return nil
			}
			cur = cur.Items
			continue
		}
		if cur.Kind != KindObject {
			return nil
		}
		cur = cur.Properties[s.Key]
	}
	return cur
}

// Label is the short human-readable form of the contract used in violations.
func (c *Contract) Label() string {
	if c == nil {
		return "any"
	}
	switch c.Kind {
	case KindEnum:
		return "one of [" + strings.Join(c.Enum, ", ") + "]"
	case KindArray:
		if c.Items != nil {
			return "array of " + c.Items.Label()
		}
		return "array"
	default:
		return string(c.Kind)
	}
}

// JSONSchema renders the contract as a JSON Schema document.
func (c *Contract) JSONSchema() map[string]any {
	if c == nil {
		return map[string]any{}
	}
	out := make(map[string]any)
	switch c.Kind {
	case KindEnum:
		out["type"] = "string"
		out["enum"] = append([]string(nil), c.Enum...)
	default:
		out["type"] = string(c.Kind)
	}
	if c.Nullable {
		out["type"] = []string{out["type"].(string), "null"}
	}
	if c.Description != "" {
		out["description"] = c.Description
	}
	switch c.Kind {
	case KindObject:
		props := make(map[string]any, len(c.Properties))
		for name, p := range c.Properties {
			props[name] = p.JSONSchema()
		}
		out["properties"] = props
		if len(c.Required) > 0 {
			out["required"] = append([]string(nil), c.Required...)
		}
		out["additionalProperties"] = c.AdditionalProperties
	case KindArray:
		if c.Items != nil {
			out["items"] = c.Items.JSONSchema()
		}
		setInt(out, "minItems", c.MinItems)
		setInt(out, "maxItems", c.MaxItems)
	case KindString:
		setInt(out, "minLength", c.MinLength)
		setInt(out, "maxLength", c.MaxLength)
	}
	return out
}

// Describe renders the contract for inclusion in an LLM prompt.
func (c *Contract) Describe() string {
	data, err := json.MarshalIndent(c.JSONSchema(), "", "  ")
	if err != nil {
		return c.Label()
	}
	return string(data)
}

func setInt(m map[string]any, key string, v *int) {
	if v != nil {
		m[key] = *v
	}
}

// jsonSchemaDoc is the subset of JSON Schema accepted by FromJSONSchema.
type jsonSchemaDoc struct {
	Type                 json.RawMessage           `json:"type"`
	Description          string                    `json:"description"`
	Properties           map[string]*jsonSchemaDoc `json:"properties"`
	Required             []string                  `json:"required"`
	AdditionalProperties *bool                     `json:"additionalProperties"`
	Items                *jsonSchemaDoc            `json:"items"`
	MinItems             *int                      `json:"minItems"`
	MaxItems             *int                      `json:"maxItems"`
	MinLength            *int                      `json:"minLength"`
	MaxLength            *int                      `json:"maxLength"`
	Enum                 []any                     `json:"enum"`
}

// FromJSONSchema builds a contract from a JSON Schema document. Only the
// keywords a contract can express are accepted; property order follows the
// sorted property names.
func FromJSONSchema(data []byte) (*Contract, error) {
	var doc jsonSchemaDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode json schema: %w", err)
	}
	return fromDoc(&doc, "")
}

func fromDoc(doc *jsonSchemaDoc, path string) (*Contract, error) {
	typ, nullable, err := docType(doc.Type)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", displayPath(path), err)
	}
	var c *Contract
	switch {
	case len(doc.Enum) > 0:
		values := make([]string, 0, len(doc.Enum))
		for _, e := range doc.Enum {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("%s: enum values must be strings, got %T", displayPath(path), e)
			}
			values = append(values, s)
		}
		c = NewEnum(values...)
	case typ == "object" || (typ == "" && doc.Properties != nil):
		c = NewObject()
		names := make([]string, 0, len(doc.Properties))
		for n := range doc.Properties {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			prop, err := fromDoc(doc.Properties[n], JoinKey(path, n))
			if err != nil {
				return nil, err
			}
			c.AddProperty(n, prop)
		}
		c.AddRequired(doc.Required...)
		if doc.AdditionalProperties != nil {
			c.AdditionalProperties = *doc.AdditionalProperties
		}
	case typ == "array":
		var items *Contract
		if doc.Items != nil {
			items, err = fromDoc(doc.Items, JoinIndex(path, 0))
			if err != nil {
				return nil, err
			}
		}
		c = NewArray(items)
		c.MinItems, c.MaxItems = doc.MinItems, doc.MaxItems
	case typ == "string":
		c = NewString()
		c.MinLength, c.MaxLength = doc.MinLength, doc.MaxLength
	case typ == "number":
		c = NewNumber()
	case typ == "integer":
		c = NewInteger()
	case typ == "boolean":
		c = NewBoolean()
	default:
		return nil, fmt.Errorf("%s: unsupported type %q", displayPath(path), typ)
	}
	c.Description = doc.Description
	c.Nullable = nullable
	return c, nil
}

func docType(raw json.RawMessage) (string, bool, error) {
	if len(raw) == 0 {
		return "", false, nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return single, false, nil
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err != nil {
		return "", false, fmt.Errorf("invalid type keyword: %s", string(raw))
	}
	var typ string
	nullable := false
	for _, t := range many {
		if t == "null" {
			nullable = true
			continue
		}
		if typ != "" {
			return "", false, fmt.Errorf("union types are not supported: %s", string(raw))
		}
		typ = t
	}
	return typ, nullable, nil
}
