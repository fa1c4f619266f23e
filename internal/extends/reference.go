package extends

import (
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lucasnoah/ciresolve/internal/cierr"
	"github.com/lucasnoah/ciresolve/internal/yamlnode"
)

const (
	referenceTag = "!reference"
	// maxReferenceDepth bounds references that resolve to more references.
	maxReferenceDepth = 10
)

func isReference(n *yaml.Node) bool {
	return n != nil && n.Tag == referenceTag
}

// expandReferences returns a copy of n with every !reference tag replaced by
// the content it points to. A reference inside a sequence that yields a
// sequence is spliced into it. owner is the top-level key n belongs to.
func (s *state) expandReferences(owner string, n *yaml.Node, depth int) (*yaml.Node, error) {
	if isReference(n) {
		target, err := s.lookup(owner, n, depth)
		if err != nil {
			return nil, err
		}
		return s.expandReferences(owner, target, depth+1)
	}

	switch n.Kind {
	case yaml.SequenceNode:
		out := yamlnode.Clone(n)
		out.Content = nil
		for _, c := range n.Content {
			rc, err := s.expandReferences(owner, c, depth)
			if err != nil {
				return nil, err
			}
			if isReference(c) && yamlnode.IsSequence(rc) {
				out.Content = append(out.Content, rc.Content...)
				continue
			}
			out.Content = append(out.Content, rc)
		}
		return out, nil

	case yaml.MappingNode:
		out := yamlnode.Clone(n)
		for i := 1; i < len(out.Content); i += 2 {
			rc, err := s.expandReferences(owner, n.Content[i], depth)
			if err != nil {
				return nil, err
			}
			out.Content[i] = rc
		}
		return out, nil
	}
	return yamlnode.Clone(n), nil
}

// lookup resolves a !reference [key, path...] node against the effective
// configuration.
func (s *state) lookup(owner string, ref *yaml.Node, depth int) (*yaml.Node, error) {
	path, ok := yamlnode.Strings(ref)
	if !ok || !yamlnode.IsSequence(ref) || len(path) == 0 {
		return nil, s.fail(cierr.ErrInvalidJobShape, owner, "!reference must be a list of keys").InFile(s.unified.Origin(owner), ref.Line)
	}
	name := strings.Join(path, ".")
	if depth >= maxReferenceDepth {
		return nil, s.fail(cierr.ErrUnknownReference, owner, "!reference [%s] nests more than %d levels", name, maxReferenceDepth)
	}

	cur, ok := s.memo[path[0]]
	if !ok {
		cur = yamlnode.Get(s.unified.Root, path[0])
	}
	for _, seg := range path[1:] {
		cur = yamlnode.Get(cur, seg)
	}
	if cur == nil {
		return nil, s.fail(cierr.ErrUnknownReference, owner, "!reference [%s] does not exist", name).InFile(s.unified.Origin(owner), ref.Line)
	}
	return cur, nil
}
