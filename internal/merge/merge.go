// Package merge folds the ordered documents of an include closure into one
// unified configuration mapping.
package merge

import (
	"slices"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"

	"github.com/lucasnoah/ciresolve/internal/cierr"
	"github.com/lucasnoah/ciresolve/internal/include"
	"github.com/lucasnoah/ciresolve/internal/logging"
	"github.com/lucasnoah/ciresolve/internal/yamlnode"
)

// ReservedKeys are top-level keywords that never name a job.
var ReservedKeys = map[string]bool{
	"default":       true,
	"include":       true,
	"stages":        true,
	"types":         true,
	"variables":     true,
	"workflow":      true,
	"image":         true,
	"services":      true,
	"cache":         true,
	"before_script": true,
	"after_script":  true,
	"spec":          true,
}

// IsJobKey reports whether a top-level key names a job or template.
func IsJobKey(key string) bool {
	return !ReservedKeys[key]
}

// IsHidden reports whether key names a template that is never scheduled.
func IsHidden(key string) bool {
	return len(key) > 0 && key[0] == '.'
}

// shallow-merged top-level maps
var mapKeys = map[string]bool{"variables": true, "default": true}

// Unified is the single configuration mapping produced from all documents.
type Unified struct {
	Root *yaml.Node
	// Origins maps each top-level key to the document that last defined it,
	// for diagnostics only.
	Origins map[string]string
}

// Origin returns the document a top-level key came from.
func (u *Unified) Origin(key string) string {
	return u.Origins[key]
}

// Merger folds documents left to right.
type Merger struct {
	// Strict turns stage-order and job redefinitions across documents into
	// errors instead of silent overrides.
	Strict bool
	Logger *log.Logger
}

// Merge returns the unified mapping of docs. Later documents override earlier
// ones key by key; variables and default entries are merged one level deep;
// the include directive is dropped. docs are not modified.
func (m *Merger) Merge(docs []include.Document) (*Unified, error) {
	logger := m.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	unified := yamlnode.NewMapping()
	// document each key was last defined in
	origin := map[string]string{}

	for _, doc := range docs {
		logger.Debug("merging document", "path", doc.Path)
		for _, p := range yamlnode.Pairs(doc.Root) {
			if p.Key.Kind != yaml.ScalarNode {
				return nil, cierr.New(cierr.ErrMalformedDocument, "top-level keys must be strings").InFile(doc.Path, p.Key.Line)
			}
			key := p.Key.Value
			if key == "include" {
				continue
			}

			prev := yamlnode.Get(unified, key)
			value := yamlnode.Clone(p.Value)

			switch {
			case prev == nil:
				yamlnode.Set(unified, key, value)
			case yamlnode.IsNull(value) && (mapKeys[key] || key == "stages"):
				// an empty declaration leaves earlier entries in place
				logger.Debug("ignoring empty key", "key", key, "path", doc.Path)
				continue
			case mapKeys[key] && yamlnode.IsMapping(prev) && yamlnode.IsMapping(value):
				merged := yamlnode.Clone(prev)
				for _, e := range yamlnode.Pairs(value) {
					yamlnode.Set(merged, e.Key.Value, e.Value)
				}
				yamlnode.Set(unified, key, merged)
			case key == "stages":
				if m.Strict && !sameStrings(prev, value) {
					return nil, cierr.New(cierr.ErrConflictingStageOrder, "stages redefined with a different order").
						InFile(doc.Path, p.Key.Line).ForKey(key).Via([]string{origin[key], doc.Path})
				}
				yamlnode.Set(unified, key, value)
			default:
				if m.Strict && IsJobKey(key) {
					return nil, cierr.New(cierr.ErrConflictingJobDefinition, "job redefined").
						InFile(doc.Path, p.Key.Line).ForKey(key).Via([]string{origin[key], doc.Path})
				}
				logger.Debug("overriding key", "key", key, "previous", origin[key], "path", doc.Path)
				yamlnode.Set(unified, key, value)
			}
			origin[key] = doc.Path
		}
	}
	return &Unified{Root: unified, Origins: origin}, nil
}

func sameStrings(a, b *yaml.Node) bool {
	as, aok := yamlnode.Strings(a)
	bs, bok := yamlnode.Strings(b)
	return aok && bok && slices.Equal(as, bs)
}
