package include

import (
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lucasnoah/ciresolve/internal/cierr"
	"github.com/lucasnoah/ciresolve/internal/yamlnode"
)

// DefaultProjectFile is the file included from a sibling project when the
// include entry names none.
const DefaultProjectFile = ".gitlab-ci.yml"

// SourceKind tells where an include entry points.
type SourceKind int

const (
	Local SourceKind = iota
	SiblingProject
)

func (k SourceKind) String() string {
	if k == SiblingProject {
		return "project"
	}
	return "local"
}

// Path is one normalized include entry.
type Path struct {
	Kind    SourceKind
	Local   string // Local
	Project string // SiblingProject: project path as written
	File    string // SiblingProject: file inside the project
	Line    int
}

// ProjectDir returns the sibling checkout directory name: the last segment of
// the project path.
func (p Path) ProjectDir() string {
	return path.Base(strings.Trim(p.Project, "/"))
}

func (p Path) String() string {
	if p.Kind == SiblingProject {
		return p.Project + ":" + p.File
	}
	return p.Local
}

// keys allowed next to local/project that carry no meaning for path resolution
var ignoredKeys = map[string]bool{"ref": true, "rules": true, "inputs": true}

// unsupported sources that would need network access
var remoteKeys = []string{"remote", "template", "component"}

// ParseSpecs normalizes an include directive into an ordered list of entries.
// A nil or null node yields no entries.
func ParseSpecs(n *yaml.Node) ([]Path, error) {
	if yamlnode.IsNull(n) {
		return nil, nil
	}
	if yamlnode.IsSequence(n) {
		var out []Path
		for _, item := range n.Content {
			if yamlnode.IsSequence(item) {
				return nil, invalid(item, "nested include lists are not allowed")
			}
			paths, err := parseEntry(item)
			if err != nil {
				return nil, err
			}
			out = append(out, paths...)
		}
		return out, nil
	}
	return parseEntry(n)
}

func parseEntry(n *yaml.Node) ([]Path, error) {
	switch {
	case yamlnode.IsScalar(n):
		return parseString(n)
	case yamlnode.IsMapping(n):
		return parseMapping(n)
	}
	return nil, invalid(n, "include entry must be a path or a mapping")
}

func parseString(n *yaml.Node) ([]Path, error) {
	v := strings.TrimSpace(n.Value)
	if v == "" {
		return nil, invalid(n, "include path is empty")
	}
	if strings.HasPrefix(v, "http://") || strings.HasPrefix(v, "https://") {
		return nil, invalid(n, "remote include %q is not supported", v)
	}
	return []Path{{Kind: Local, Local: v, Line: n.Line}}, nil
}

func parseMapping(n *yaml.Node) ([]Path, error) {
	for _, k := range remoteKeys {
		if yamlnode.Has(n, k) {
			return nil, invalid(n, "%s includes are not supported", k)
		}
	}
	local, project := yamlnode.Get(n, "local"), yamlnode.Get(n, "project")
	for _, k := range yamlnode.Keys(n) {
		if k != "local" && k != "project" && k != "file" && !ignoredKeys[k] {
			return nil, invalid(n, "unknown include key %q", k)
		}
	}

	switch {
	case local != nil && project != nil:
		return nil, invalid(n, "include entry cannot set both local and project")
	case local != nil:
		if yamlnode.Has(n, "file") {
			return nil, invalid(n, "file is only valid with project")
		}
		if !yamlnode.IsScalar(local) {
			return nil, invalid(local, "local must be a path")
		}
		return parseString(local)
	case project != nil:
		if !yamlnode.IsScalar(project) || strings.Trim(project.Value, "/ ") == "" {
			return nil, invalid(project, "project must be a non-empty path")
		}
		files := []string{DefaultProjectFile}
		if f := yamlnode.Get(n, "file"); f != nil {
			var ok bool
			if files, ok = yamlnode.Strings(f); !ok || len(files) == 0 {
				return nil, invalid(f, "file must be a path or a list of paths")
			}
		}
		out := make([]Path, 0, len(files))
		for _, f := range files {
			if strings.TrimSpace(f) == "" {
				return nil, invalid(n, "file path is empty")
			}
			out = append(out, Path{Kind: SiblingProject, Project: project.Value, File: f, Line: n.Line})
		}
		return out, nil
	}
	return nil, invalid(n, "include mapping needs local or project")
}

func invalid(n *yaml.Node, format string, args ...any) *cierr.ResolveError {
	return cierr.New(cierr.ErrInvalidIncludeSpec, format, args...).InFile("", n.Line)
}
