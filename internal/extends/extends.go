// Package extends computes the effective definition of every job and template
// by merging the mappings named in its extends chain beneath its own.
package extends

import (

	"github.com/charmbracelet/log"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/lucasnoah/ciresolve/internal/cierr"
	"github.com/lucasnoah/ciresolve/internal/logging"
	"github.com/lucasnoah/ciresolve/internal/merge"
	"github.com/lucasnoah/ciresolve/internal/yamlnode"
)

// MaxDepth is the deepest extends chain accepted.
const MaxDepth = 11

// Result is the outcome of extends resolution.
type Result struct {
	// Effective is the unified mapping with every job and template replaced
	// by its flattened definition. No extends keys or !reference tags remain.
	Effective *yaml.Node
	// Parents holds each key's declared extends targets in order.
	Parents map[string][]string
	// Ancestry holds every transitive ancestor of a key in merge order.
	Ancestry map[string][]string
}

// Resolver resolves extends chains over a unified configuration.
type Resolver struct {
	Logger *log.Logger
}

// Resolve flattens every job and template of u. Keys are visited in mapping
// order so the first failure reported is stable across runs.
func (r *Resolver) Resolve(u *merge.Unified) (*Result, error) {
	s := newState(u, r.Logger)

	for _, key := range yamlnode.Keys(u.Root) {
		if !merge.IsJobKey(key) || !yamlnode.IsMapping(yamlnode.Get(u.Root, key)) {
			continue
		}
		if _, err := s.effective(key); err != nil {
			return nil, err
		}
	}

	out := yamlnode.NewMapping()
	for _, p := range yamlnode.Pairs(u.Root) {
		key := p.Key.Value
		value := p.Value
		if eff, ok := s.memo[key]; ok {
			value = eff
		}
		expanded, err := s.expandReferences(key, value, 0)
		if err != nil {
			return nil, err
		}
		out.Content = append(out.Content, yamlnode.Clone(p.Key), expanded)
	}

	return &Result{Effective: out, Parents: s.parents, Ancestry: s.ancestry}, nil
}

type state struct {
	unified  *merge.Unified
	log      *log.Logger
	memo     map[string]*yaml.Node
	parents  map[string][]string
	ancestry map[string][]string
	// length of the longest extends chain below each key
	depth map[string]int
	// keys currently being resolved, outermost first
	stack []string
	// evaluations counts effective mapping computations per key
	evaluations map[string]int
}

func newState(u *merge.Unified, logger *log.Logger) *state {
	if logger == nil {
		logger = logging.Discard()
	}
	return &state{
		unified:     u,
		log:         logger,
		memo:        map[string]*yaml.Node{},
		parents:     map[string][]string{},
		ancestry:    map[string][]string{},
		depth:       map[string]int{},
		evaluations: map[string]int{},
	}
}

func (s *state) fail(kind error, key, format string, args ...any) *cierr.ResolveError {
	own := yamlnode.Get(s.unified.Root, key)
	line := 0
	if own != nil {
		line = own.Line
	}
	return cierr.New(kind, format, args...).InFile(s.unified.Origin(key), line).ForKey(key)
}

// effective returns the memoized effective mapping of key.
func (s *state) effective(key string) (*yaml.Node, error) {
	if eff, ok := s.memo[key]; ok {
		return eff, nil
	}
	if lo.Contains(s.stack, key) {
		chain := append(s.stack[lo.IndexOf(s.stack, key):], key)
		return nil, s.fail(cierr.ErrExtendsCycle, key, "%q extends itself", key).Via(chain)
	}

	own := yamlnode.Get(s.unified.Root, key)
	refs, err := s.refs(key, own)
	if err != nil {
		return nil, err
	}

	s.stack = append(s.stack, key)
	defer func() { s.stack = s.stack[:len(s.stack)-1] }()

	result := yamlnode.NewMapping()
	var ancestry []string
	depth := 0
	for _, parent := range refs {
		target := yamlnode.Get(s.unified.Root, parent)
		if target == nil || !merge.IsJobKey(parent) {
			return nil, s.fail(cierr.ErrUnknownExtendsTarget, key, "%q extends unknown %q", key, parent).
				Via(append(s.stack, parent))
		}
		if !yamlnode.IsMapping(target) {
			return nil, s.fail(cierr.ErrInvalidJobShape, key, "extends target %q is not a mapping", parent).
				Via(append(s.stack, parent))
		}
		peff, err := s.effective(parent)
		if err != nil {
			return nil, err
		}
		result = deepMerge(result, peff)
		ancestry = append(ancestry, s.ancestry[parent]...)
		ancestry = append(ancestry, parent)
		depth = max(depth, s.depth[parent]+1)
	}
	if depth > MaxDepth {
		return nil, s.fail(cierr.ErrExtendsTooDeep, key, "more than %d levels of extends", MaxDepth).
			Via(append(lo.Uniq(ancestry), key))
	}

	literal := yamlnode.Clone(own)
	yamlnode.Delete(literal, "extends")
	result = deepMerge(result, literal)

	s.evaluations[key]++
	s.memo[key] = result
	s.parents[key] = refs
	s.ancestry[key] = lo.Uniq(ancestry)
	s.depth[key] = depth
	if len(refs) > 0 {
		s.log.Debug("resolved extends", "key", key, "parents", refs)
	}
	return result, nil
}

// refs normalizes the extends value of a job into an ordered list.
func (s *state) refs(key string, own *yaml.Node) ([]string, error) {
	ext := yamlnode.Get(own, "extends")
	if yamlnode.IsNull(ext) {
		return nil, nil
	}
	names, ok := yamlnode.Strings(ext)
	if !ok {
		return nil, s.fail(cierr.ErrInvalidJobShape, key, "extends must be a name or a list of names")
	}
	for _, n := range names {
		if n == "" {
			return nil, s.fail(cierr.ErrInvalidJobShape, key, "extends names an empty key")
		}
	}
	return names, nil
}

// deepMerge returns dst with src laid over it. Mappings merge recursively;
// sequences and scalars in src replace what dst holds. Neither input is
// modified.
func deepMerge(dst, src *yaml.Node) *yaml.Node {
	if !yamlnode.IsMapping(dst) || !yamlnode.IsMapping(src) {
		return yamlnode.Clone(src)
	}
	out := yamlnode.Clone(dst)
	for _, p := range yamlnode.Pairs(src) {
		if prev := yamlnode.Get(out, p.Key.Value); prev != nil && yamlnode.IsMapping(prev) && yamlnode.IsMapping(p.Value) {
			yamlnode.Set(out, p.Key.Value, deepMerge(prev, p.Value))
			continue
		}
		yamlnode.Set(out, p.Key.Value, yamlnode.Clone(p.Value))
	}
	return out
}
