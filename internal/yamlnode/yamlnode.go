// Package yamlnode holds small helpers over yaml.v3 node trees shared by every
// resolution stage.
package yamlnode

import (
	"bytes"

	"gopkg.in/yaml.v3"
)

// Parse decodes YAML bytes into the document's root node. An empty document
// yields an empty mapping.
func Parse(data []byte) (*yaml.Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return NewMapping(), nil
	}
	if doc.Kind == yaml.DocumentNode {
		return doc.Content[0], nil
	}
	return &doc, nil
}

// NewMapping returns an empty mapping node.
func NewMapping() *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
}

// NewString returns a plain string scalar.
func NewString(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}

// NewSequence returns a sequence holding items.
func NewSequence(items ...*yaml.Node) *yaml.Node {
	return &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq", Content: items}
}

// IsMapping reports whether n is a mapping node.
func IsMapping(n *yaml.Node) bool { return n != nil && n.Kind == yaml.MappingNode }

// IsSequence reports whether n is a sequence node.
func IsSequence(n *yaml.Node) bool { return n != nil && n.Kind == yaml.SequenceNode }

// IsScalar reports whether n is a scalar node.
func IsScalar(n *yaml.Node) bool { return n != nil && n.Kind == yaml.ScalarNode }

// IsNull reports whether n is absent or an explicit null.
func IsNull(n *yaml.Node) bool {
	return n == nil || (n.Kind == yaml.ScalarNode && n.Tag == "!!null")
}

// Pair is one key/value entry of a mapping.
type Pair struct {
	Key   *yaml.Node
	Value *yaml.Node
}

// Pairs returns the entries of mapping m in order.
func Pairs(m *yaml.Node) []Pair {
	if !IsMapping(m) {
		return nil
	}
	out := make([]Pair, 0, len(m.Content)/2)
	for i := 0; i+1 < len(m.Content); i += 2 {
		out = append(out, Pair{Key: m.Content[i], Value: m.Content[i+1]})
	}
	return out
}

// Keys returns the scalar keys of mapping m in order.
func Keys(m *yaml.Node) []string {
	var keys []string
	for _, p := range Pairs(m) {
		if p.Key.Kind == yaml.ScalarNode {
			keys = append(keys, p.Key.Value)
		}
	}
	return keys
}

// Get returns the value stored under key in mapping m, or nil.
func Get(m *yaml.Node, key string) *yaml.Node {
	if !IsMapping(m) {
		return nil
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if k := m.Content[i]; k.Kind == yaml.ScalarNode && k.Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

// Has reports whether mapping m defines key.
func Has(m *yaml.Node, key string) bool {
	return Get(m, key) != nil
}

// Set replaces the value under key in place, or appends a new entry.
func Set(m *yaml.Node, key string, value *yaml.Node) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if k := m.Content[i]; k.Kind == yaml.ScalarNode && k.Value == key {
			m.Content[i+1] = value
			return
		}
	}
	m.Content = append(m.Content, NewString(key), value)
}

// Delete removes key from mapping m.
func Delete(m *yaml.Node, key string) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if k := m.Content[i]; k.Kind == yaml.ScalarNode && k.Value == key {
			m.Content = append(m.Content[:i], m.Content[i+2:]...)
			return
		}
	}
}

// Clone returns a deep copy of n. Alias targets are shared, not copied.
func Clone(n *yaml.Node) *yaml.Node {
	if n == nil {
		return nil
	}
	c := *n
	if len(n.Content) > 0 {
		c.Content = make([]*yaml.Node, len(n.Content))
		for i, child := range n.Content {
			c.Content[i] = Clone(child)
		}
	}
	return &c
}

// Strings returns the values of a scalar or a sequence of scalars. ok is false
// for any other shape.
func Strings(n *yaml.Node) (out []string, ok bool) {
	switch {
	case IsScalar(n):
		return []string{n.Value}, true
	case IsSequence(n):
		for _, item := range n.Content {
			if !IsScalar(item) {
				return nil, false
			}
			out = append(out, item.Value)
		}
		return out, true
	}
	return nil, false
}

// Encode renders n as YAML text.
func Encode(n *yaml.Node) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(n); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode converts n into a plain Go value (maps, slices, scalars).
func Decode(n *yaml.Node) (any, error) {
	var v any
	if err := n.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
