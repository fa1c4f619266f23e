package pipeline

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lucasnoah/ciresolve/internal/yamlnode"
)

// shapeError is a field-level problem; the builder attaches the job context.
type shapeError struct {
	field string
	line  int
	msg   string
}

func (e *shapeError) Error() string { return e.field + ": " + e.msg }

func badShape(field string, n *yaml.Node, format string, args ...any) *shapeError {
	line := 0
	if n != nil {
		line = n.Line
	}
	return &shapeError{field: field, line: line, msg: fmt.Sprintf(format, args...)}
}

// lines reads a script-like field: a string, or a list of strings where
// nested lists are flattened one level.
func lines(field string, n *yaml.Node) ([]string, error) {
	if yamlnode.IsNull(n) {
		return nil, nil
	}
	if yamlnode.IsScalar(n) {
		return []string{n.Value}, nil
	}
	if !yamlnode.IsSequence(n) {
		return nil, badShape(field, n, "must be a string or a list of strings")
	}
	out := []string{}
	for _, item := range n.Content {
		switch {
		case yamlnode.IsScalar(item):
			out = append(out, item.Value)
		case yamlnode.IsSequence(item):
			nested, ok := yamlnode.Strings(item)
			if !ok {
				return nil, badShape(field, item, "nested lists may only hold strings")
			}
			out = append(out, nested...)
		default:
			return nil, badShape(field, item, "must be a string or a list of strings")
		}
	}
	return out, nil
}

// stringList reads a list of strings; a single string is accepted as a
// one-element list.
func stringList(field string, n *yaml.Node) ([]string, error) {
	if yamlnode.IsNull(n) {
		return nil, nil
	}
	out, ok := yamlnode.Strings(n)
	if !ok {
		return nil, badShape(field, n, "must be a list of strings")
	}
	return out, nil
}

func scalar(field string, n *yaml.Node) (string, error) {
	if yamlnode.IsNull(n) {
		return "", nil
	}
	if !yamlnode.IsScalar(n) {
		return "", badShape(field, n, "must be a string")
	}
	return n.Value, nil
}

func boolean(field string, n *yaml.Node) (bool, error) {
	if yamlnode.IsNull(n) {
		return false, nil
	}
	var b bool
	if !yamlnode.IsScalar(n) || n.Decode(&b) != nil {
		return false, badShape(field, n, "must be true or false")
	}
	return b, nil
}

func integer(field string, n *yaml.Node) (int, error) {
	var i int
	if !yamlnode.IsScalar(n) || n.Decode(&i) != nil {
		return 0, badShape(field, n, "must be an integer")
	}
	return i, nil
}

func variables(field string, n *yaml.Node) (map[string]Variable, error) {
	out := map[string]Variable{}
	if yamlnode.IsNull(n) {
		return out, nil
	}
	if !yamlnode.IsMapping(n) {
		return nil, badShape(field, n, "must be a mapping")
	}
	for _, p := range yamlnode.Pairs(n) {
		name := p.Key.Value
		v := Variable{Expand: true}
		switch {
		case yamlnode.IsNull(p.Value):
		case yamlnode.IsScalar(p.Value):
			v.Value = p.Value.Value
		case yamlnode.IsMapping(p.Value):
			var err error
			if v.Value, err = scalar(field+"."+name+".value", yamlnode.Get(p.Value, "value")); err != nil {
				return nil, err
			}
			if v.Description, err = scalar(field+"."+name+".description", yamlnode.Get(p.Value, "description")); err != nil {
				return nil, err
			}
			if e := yamlnode.Get(p.Value, "expand"); e != nil {
				if v.Expand, err = boolean(field+"."+name+".expand", e); err != nil {
					return nil, err
				}
			}
		default:
			return nil, badShape(field+"."+name, p.Value, "must be a string or a mapping with value")
		}
		out[name] = v
	}
	return out, nil
}

var whenValues = map[string]bool{
	"on_success": true,
	"on_failure": true,
	"always":     true,
	"manual":     true,
	"delayed":    true,
	"never":      true,
}

func when(field string, n *yaml.Node) (string, error) {
	w, err := scalar(field, n)
	if err != nil || w == "" {
		return w, err
	}
	if !whenValues[w] {
		return "", badShape(field, n, "unknown value %q", w)
	}
	return w, nil
}

// allowFailure accepts a boolean or an exit_codes mapping.
func allowFailure(field string, n *yaml.Node) (bool, error) {
	if yamlnode.IsMapping(n) {
		return yamlnode.Has(n, "exit_codes"), nil
	}
	return boolean(field, n)
}

// paths reads changes/exists, given as a list or as {paths: [...]}.
func paths(field string, n *yaml.Node) ([]string, error) {
	if yamlnode.IsMapping(n) {
		return stringList(field+".paths", yamlnode.Get(n, "paths"))
	}
	return stringList(field, n)
}

func rules(field string, n *yaml.Node) ([]Rule, error) {
	if yamlnode.IsNull(n) {
		return nil, nil
	}
	if !yamlnode.IsSequence(n) {
		return nil, badShape(field, n, "must be a list of rules")
	}
	var out []Rule
	for i, item := range n.Content {
		f := fmt.Sprintf("%s[%d]", field, i)
		if !yamlnode.IsMapping(item) {
			return nil, badShape(f, item, "must be a mapping")
		}
		var r Rule
		var err error
		if r.If, err = scalar(f+".if", yamlnode.Get(item, "if")); err != nil {
			return nil, err
		}
		if r.Changes, err = paths(f+".changes", yamlnode.Get(item, "changes")); err != nil {
			return nil, err
		}
		if r.Exists, err = paths(f+".exists", yamlnode.Get(item, "exists")); err != nil {
			return nil, err
		}
		if r.When, err = when(f+".when", yamlnode.Get(item, "when")); err != nil {
			return nil, err
		}
		if r.AllowFailure, err = allowFailure(f+".allow_failure", yamlnode.Get(item, "allow_failure")); err != nil {
			return nil, err
		}
		if v := yamlnode.Get(item, "variables"); v != nil {
			if r.Variables, err = variables(f+".variables", v); err != nil {
				return nil, err
			}
		}
		out = append(out, r)
	}
	return out, nil
}

func image(field string, n *yaml.Node) (*Image, error) {
	switch {
	case yamlnode.IsNull(n):
		return nil, nil
	case yamlnode.IsScalar(n):
		return &Image{Name: n.Value}, nil
	case yamlnode.IsMapping(n):
		name, err := scalar(field+".name", yamlnode.Get(n, "name"))
		if err != nil {
			return nil, err
		}
		if name == "" {
			return nil, badShape(field+".name", n, "is required")
		}
		entry, err := stringList(field+".entrypoint", yamlnode.Get(n, "entrypoint"))
		if err != nil {
			return nil, err
		}
		return &Image{Name: name, Entrypoint: entry}, nil
	}
	return nil, badShape(field, n, "must be a name or a mapping")
}

func services(field string, n *yaml.Node) ([]Image, error) {
	if yamlnode.IsNull(n) {
		return nil, nil
	}
	if !yamlnode.IsSequence(n) {
		return nil, badShape(field, n, "must be a list")
	}
	var out []Image
	for i, item := range n.Content {
		img, err := image(fmt.Sprintf("%s[%d]", field, i), item)
		if err != nil {
			return nil, err
		}
		if img != nil {
			out = append(out, *img)
		}
	}
	return out, nil
}

// need is one needs entry; optional needs may name jobs that do not exist.
type need struct {
	job      string
	optional bool
	line     int
}

func needs(field string, n *yaml.Node) ([]need, error) {
	if yamlnode.IsNull(n) {
		return nil, nil
	}
	if !yamlnode.IsSequence(n) {
		return nil, badShape(field, n, "must be a list")
	}
	var out []need
	for i, item := range n.Content {
		f := fmt.Sprintf("%s[%d]", field, i)
		switch {
		case yamlnode.IsScalar(item):
			out = append(out, need{job: item.Value, line: item.Line})
		case yamlnode.IsMapping(item):
			if yamlnode.Has(item, "project") || yamlnode.Has(item, "pipeline") {
				// cross-pipeline needs are not part of this pipeline
				continue
			}
			job, err := scalar(f+".job", yamlnode.Get(item, "job"))
			if err != nil {
				return nil, err
			}
			if job == "" {
				return nil, badShape(f+".job", item, "is required")
			}
			opt, err := boolean(f+".optional", yamlnode.Get(item, "optional"))
			if err != nil {
				return nil, err
			}
			out = append(out, need{job: job, optional: opt, line: item.Line})
		default:
			return nil, badShape(f, item, "must be a job name or a mapping")
		}
	}
	return out, nil
}

func artifacts(field string, n *yaml.Node) (*Artifacts, error) {
	if yamlnode.IsNull(n) {
		return nil, nil
	}
	if !yamlnode.IsMapping(n) {
		return nil, badShape(field, n, "must be a mapping")
	}
	a := &Artifacts{}
	var err error
	if a.Paths, err = stringList(field+".paths", yamlnode.Get(n, "paths")); err != nil {
		return nil, err
	}
	if a.Exclude, err = stringList(field+".exclude", yamlnode.Get(n, "exclude")); err != nil {
		return nil, err
	}
	if a.ExpireIn, err = scalar(field+".expire_in", yamlnode.Get(n, "expire_in")); err != nil {
		return nil, err
	}
	if a.When, err = scalar(field+".when", yamlnode.Get(n, "when")); err != nil {
		return nil, err
	}
	if a.Name, err = scalar(field+".name", yamlnode.Get(n, "name")); err != nil {
		return nil, err
	}
	return a, nil
}

func environment(field string, n *yaml.Node) (*Environment, error) {
	switch {
	case yamlnode.IsNull(n):
		return nil, nil
	case yamlnode.IsScalar(n):
		return &Environment{Name: n.Value}, nil
	case yamlnode.IsMapping(n):
		e := &Environment{}
		var err error
		if e.Name, err = scalar(field+".name", yamlnode.Get(n, "name")); err != nil {
			return nil, err
		}
		if e.URL, err = scalar(field+".url", yamlnode.Get(n, "url")); err != nil {
			return nil, err
		}
		if e.Action, err = scalar(field+".action", yamlnode.Get(n, "action")); err != nil {
			return nil, err
		}
		return e, nil
	}
	return nil, badShape(field, n, "must be a name or a mapping")
}

// retry accepts an integer or {max: n}; GitLab allows 0 to 2.
func retry(field string, n *yaml.Node) (int, error) {
	if yamlnode.IsNull(n) {
		return 0, nil
	}
	if yamlnode.IsMapping(n) {
		m := yamlnode.Get(n, "max")
		if m == nil {
			return 0, nil
		}
		n, field = m, field+".max"
	}
	r, err := integer(field, n)
	if err != nil {
		return 0, err
	}
	if r < 0 || r > 2 {
		return 0, badShape(field, n, "must be between 0 and 2")
	}
	return r, nil
}

// trigger returns the downstream project, or "child" for a child pipeline.
func trigger(field string, n *yaml.Node) (string, error) {
	switch {
	case yamlnode.IsNull(n):
		return "", nil
	case yamlnode.IsScalar(n):
		return strings.TrimSpace(n.Value), nil
	case yamlnode.IsMapping(n):
		if p := yamlnode.Get(n, "project"); p != nil {
			return scalar(field+".project", p)
		}
		if yamlnode.Has(n, "include") {
			return "child", nil
		}
	}
	return "", badShape(field, n, "must name a project or include a child pipeline")
}
