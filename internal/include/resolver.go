// Package include expands a root CI document and everything it includes into
// an ordered list of normalized documents: includes first, root last.
package include

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/lucasnoah/ciresolve/internal/cierr"
	"github.com/lucasnoah/ciresolve/internal/logging"
	"github.com/lucasnoah/ciresolve/internal/mergekey"
	"github.com/lucasnoah/ciresolve/internal/yamlnode"
)

// DefaultWorkers bounds concurrent reads of sibling include entries.
const DefaultWorkers = 4

// Document is one merge-key-resolved document and where it came from.
type Document struct {
	Path        string
	ProjectRoot string
	Root        *yaml.Node
}

// Options configures a Resolver.
type Options struct {
	// SiblingRoot is the directory holding sibling checkouts. Empty means the
	// parent of the root document's project root.
	SiblingRoot string
	Workers     int
	Reader      Reader
	Logger      *log.Logger
}

// Resolver walks the include closure of a root document. A Resolver may be
// reused; each Resolve call has its own visited set.
type Resolver struct {
	siblingRoot string
	workers     int
	reader      Reader
	log         *log.Logger
}

// NewResolver creates a Resolver, filling unset options with defaults.
func NewResolver(opts Options) *Resolver {
	r := &Resolver{
		siblingRoot: opts.SiblingRoot,
		workers:     opts.Workers,
		reader:      opts.Reader,
		log:         opts.Logger,
	}
	if r.workers <= 0 {
		r.workers = DefaultWorkers
	}
	if r.reader == nil {
		r.reader = NewAFSReader()
	}
	if r.log == nil {
		r.log = logging.Discard()
	}
	return r
}

// frame is the document currently being expanded.
type frame struct {
	path        string
	projectRoot string
	chain       []string
}

type target struct {
	path        string
	projectRoot string
	spec        Path
}

type fetched struct {
	data []byte
	err  error
}

// run holds the state of one Resolve call.
type run struct {
	*Resolver
	siblingRoot string
	visited     map[string]bool
}

// Resolve expands rootPath. Paths are made absolute against the working
// directory.
func (r *Resolver) Resolve(ctx context.Context, rootPath string) ([]Document, error) {
	root, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve path %s", rootPath)
	}

	data, err := r.reader.Read(ctx, root)
	if err != nil {
		return nil, notFound(err, "root document does not exist").InFile(root, 0)
	}

	projectRoot := r.projectRoot(ctx, filepath.Dir(root))
	siblingRoot := r.siblingRoot
	if siblingRoot == "" {
		siblingRoot = filepath.Dir(projectRoot)
	} else if siblingRoot, err = filepath.Abs(siblingRoot); err != nil {
		return nil, errors.Wrapf(err, "resolve sibling root %s", r.siblingRoot)
	}
	r.log.Debug("resolving includes", "root", root, "project_root", projectRoot, "sibling_root", siblingRoot)

	st := &run{Resolver: r, siblingRoot: siblingRoot, visited: map[string]bool{root: true}}
	return st.expand(ctx, frame{path: root, projectRoot: projectRoot, chain: []string{root}}, data)
}

// projectRoot returns the nearest ancestor of dir holding a .git entry, or
// dir itself when there is none.
func (r *Resolver) projectRoot(ctx context.Context, dir string) string {
	for d := dir; ; {
		if ok, err := r.reader.Exists(ctx, filepath.Join(d, ".git")); err == nil && ok {
			return d
		}
		parent := filepath.Dir(d)
		if parent == d {
			return dir
		}
		d = parent
	}
}

func (st *run) expand(ctx context.Context, f frame, data []byte) ([]Document, error) {
	raw, err := yamlnode.Parse(data)
	if err != nil {
		return nil, parseError(err, f)
	}
	resolved, err := mergekey.Resolve(raw)
	if err != nil {
		return nil, locate(err, f)
	}
	if !yamlnode.IsMapping(resolved) {
		return nil, cierr.New(cierr.ErrMalformedDocument, "top level must be a mapping").InFile(f.path, resolved.Line).Via(f.chain)
	}

	specs, err := ParseSpecs(yamlnode.Get(resolved, "include"))
	if err != nil {
		return nil, locate(err, f)
	}

	var targets []target
	for _, spec := range specs {
		ts, err := st.targets(ctx, f, spec)
		if err != nil {
			return nil, err
		}
		targets = append(targets, ts...)
	}

	contents := st.prefetch(ctx, targets)

	var docs []Document
	for i, t := range targets {
		chain := append(append([]string(nil), f.chain...), t.path)
		if st.visited[t.path] {
			msg := "file is included more than once"
			if lo.Contains(f.chain, t.path) {
				msg = "file includes itself"
			}
			return nil, cierr.New(cierr.ErrIncludeCycle, "%s", msg).InFile(f.path, t.spec.Line).ForKey(t.spec.String()).Via(chain)
		}
		if err := contents[i].err; err != nil {
			e := notFound(err, "cannot read included file %s", t.path).InFile(f.path, t.spec.Line).ForKey(t.spec.String()).Via(chain)
			if t.spec.Kind == SiblingProject {
				return nil, e.Hint("sibling checkouts are expected under " + st.siblingRoot)
			}
			return nil, e
		}

		st.visited[t.path] = true
		st.log.Debug("including document", "path", t.path, "from", f.path)
		nested, err := st.expand(ctx, frame{path: t.path, projectRoot: t.projectRoot, chain: chain}, contents[i].data)
		if err != nil {
			return nil, err
		}
		docs = append(docs, nested...)
	}

	return append(docs, Document{Path: f.path, ProjectRoot: f.projectRoot, Root: resolved}), nil
}

// targets maps one include entry to absolute file paths. A local path with a
// leading slash is taken from the including document's project root; any other
// local path is taken from the including document's directory, not the project
// root as GitLab does.
func (st *run) targets(ctx context.Context, f frame, spec Path) ([]target, error) {
	if spec.Kind == SiblingProject {
		projectRoot := filepath.Join(st.siblingRoot, spec.ProjectDir())
		p := filepath.Join(projectRoot, spec.File)
		return []target{{path: p, projectRoot: projectRoot, spec: spec}}, nil
	}

	var p string
	if strings.HasPrefix(spec.Local, "/") {
		p = filepath.Join(f.projectRoot, spec.Local)
	} else {
		p = filepath.Join(filepath.Dir(f.path), spec.Local)
	}
	if !isGlob(spec.Local) {
		return []target{{path: p, projectRoot: f.projectRoot, spec: spec}}, nil
	}

	matches, err := st.reader.Glob(ctx, p)
	if err != nil {
		return nil, cierr.New(cierr.ErrInvalidIncludeSpec, "bad include pattern").InFile(f.path, spec.Line).ForKey(spec.Local).Via(f.chain).Wrap(err)
	}
	if len(matches) == 0 {
		return nil, cierr.New(cierr.ErrIncludeNotFound, "pattern matched no files").InFile(f.path, spec.Line).ForKey(spec.Local).Via(f.chain)
	}
	return lo.Map(matches, func(m string, _ int) target {
		return target{path: m, projectRoot: f.projectRoot, spec: spec}
	}), nil
}

// prefetch reads every target concurrently. Failures are kept per target so
// the sequential pass reports them in declared order.
func (st *run) prefetch(ctx context.Context, targets []target) []fetched {
	out := make([]fetched, len(targets))
	var g errgroup.Group
	g.SetLimit(st.workers)
	for i, t := range targets {
		if st.visited[t.path] {
			continue
		}
		g.Go(func() error {
			data, err := st.reader.Read(ctx, t.path)
			out[i] = fetched{data: data, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func isGlob(p string) bool {
	return strings.ContainsAny(p, "*?[{")
}

func notFound(err error, format string, args ...any) *cierr.ResolveError {
	e := cierr.New(cierr.ErrIncludeNotFound, format, args...)
	if !errors.Is(err, fs.ErrNotExist) {
		e.Wrap(err)
	}
	return e
}

// locate fills in the document path and chain on errors raised without them.
// parseError classifies a parser failure. The parser rejects an alias with
// no anchor before any node exists, so that case is reported here.
func parseError(err error, f frame) error {
	if _, rest, ok := strings.Cut(err.Error(), "unknown anchor '"); ok {
		name, _, _ := strings.Cut(rest, "'")
		return cierr.New(cierr.ErrUnresolvedAlias, "alias *%s has no matching anchor", name).
			InFile(f.path, 0).ForKey(name).Via(f.chain)
	}
	return cierr.New(cierr.ErrMalformedDocument, "cannot parse YAML").InFile(f.path, 0).Via(f.chain).Wrap(err)
}

func locate(err error, f frame) error {
	var re *cierr.ResolveError
	if errors.As(err, &re) && re.Path == "" {
		re.Path = f.path
		re.Chain = append([]string(nil), f.chain...)
	}
	return err
}
