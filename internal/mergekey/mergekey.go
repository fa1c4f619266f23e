// Package mergekey expands YAML anchors, aliases, and "<<" merge keys into
// literal content so later stages never see shared nodes.
package mergekey

import (
	"gopkg.in/yaml.v3"

	"github.com/lucasnoah/ciresolve/internal/cierr"
)

const mergeTag = "!!merge"

// Resolve returns a deep copy of n with every alias replaced by its anchor's
// content and every merge key spliced into its parent mapping. Explicit keys of
// a mapping win over merged-in keys; among several merge sources the earlier
// source wins. n is not modified.
func Resolve(n *yaml.Node) (*yaml.Node, error) {
	r := &resolver{expanding: map[*yaml.Node]bool{}}
	return r.resolve(n)
}

type resolver struct {
	// anchors whose alias expansion is in progress
	expanding map[*yaml.Node]bool
}

func (r *resolver) resolve(n *yaml.Node) (*yaml.Node, error) {
	if n == nil {
		return nil, nil
	}
	switch n.Kind {
	case yaml.DocumentNode:
		out := shallow(n)
		for _, c := range n.Content {
			rc, err := r.resolve(c)
			if err != nil {
				return nil, err
			}
			out.Content = append(out.Content, rc)
		}
		return out, nil

	case yaml.AliasNode:
		target := n.Alias
		if target == nil {
			return nil, cierr.New(cierr.ErrUnresolvedAlias, "alias *%s has no matching anchor", n.Value).InFile("", n.Line)
		}
		if r.expanding[target] {
			return nil, cierr.New(cierr.ErrUnresolvedAlias, "alias *%s refers to an enclosing anchor", n.Value).InFile("", n.Line)
		}
		r.expanding[target] = true
		defer delete(r.expanding, target)
		return r.resolve(target)

	case yaml.SequenceNode:
		out := shallow(n)
		for _, c := range n.Content {
			rc, err := r.resolve(c)
			if err != nil {
				return nil, err
			}
			out.Content = append(out.Content, rc)
		}
		return out, nil

	case yaml.MappingNode:
		return r.resolveMapping(n)
	}
	return shallow(n), nil
}

func (r *resolver) resolveMapping(n *yaml.Node) (*yaml.Node, error) {
	explicit := map[string]bool{}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if k := n.Content[i]; !isMergeKey(k) {
			explicit[keyID(k)] = true
		}
	}

	out := shallow(n)
	seen := map[string]bool{}
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if !isMergeKey(k) {
			rk, err := r.resolve(k)
			if err != nil {
				return nil, err
			}
			rv, err := r.resolve(v)
			if err != nil {
				return nil, err
			}
			seen[keyID(k)] = true
			out.Content = append(out.Content, rk, rv)
			continue
		}

		sources, err := r.mergeSources(v)
		if err != nil {
			return nil, err
		}
		for _, src := range sources {
			for j := 0; j+1 < len(src.Content); j += 2 {
				id := keyID(src.Content[j])
				if explicit[id] || seen[id] {
					continue
				}
				seen[id] = true
				out.Content = append(out.Content, src.Content[j], src.Content[j+1])
			}
		}
	}
	return out, nil
}

// mergeSources resolves the value of a merge key into the mappings it splices,
// in precedence order.
func (r *resolver) mergeSources(v *yaml.Node) ([]*yaml.Node, error) {
	rv, err := r.resolve(v)
	if err != nil {
		return nil, err
	}
	switch rv.Kind {
	case yaml.MappingNode:
		return []*yaml.Node{rv}, nil
	case yaml.SequenceNode:
		for _, item := range rv.Content {
			if item.Kind != yaml.MappingNode {
				return nil, cierr.New(cierr.ErrMalformedMerge, "merge sequence item must be a mapping").InFile("", item.Line)
			}
		}
		return rv.Content, nil
	}
	return nil, cierr.New(cierr.ErrMalformedMerge, "merge value must be a mapping or a sequence of mappings").InFile("", v.Line)
}

func isMergeKey(k *yaml.Node) bool {
	if k.Kind != yaml.ScalarNode || k.Value != "<<" {
		return false
	}
	// A quoted "<<" is an ordinary string key.
	return k.Tag == mergeTag || k.Style&(yaml.DoubleQuotedStyle|yaml.SingleQuotedStyle) == 0
}

// keyID identifies a mapping key for precedence checks.
func keyID(k *yaml.Node) string {
	if k.Kind == yaml.ScalarNode {
		return k.Value
	}
	if k.Kind == yaml.AliasNode && k.Alias != nil {
		return keyID(k.Alias)
	}
	data, err := yaml.Marshal(k)
	if err != nil {
		return k.Value
	}
	return string(data)
}

// shallow copies n without children, anchor, or alias.
func shallow(n *yaml.Node) *yaml.Node {
	c := *n
	c.Anchor = ""
	c.Alias = nil
	c.Content = nil
	if c.Kind == yaml.AliasNode {
		c.Kind = yaml.ScalarNode
	}
	return &c
}
