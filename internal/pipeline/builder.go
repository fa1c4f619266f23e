package pipeline

import (

	"dario.cat/mergo"
	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/lucasnoah/ciresolve/internal/cierr"
	"github.com/lucasnoah/ciresolve/internal/extends"
	"github.com/lucasnoah/ciresolve/internal/logging"
	"github.com/lucasnoah/ciresolve/internal/merge"
	"github.com/lucasnoah/ciresolve/internal/yamlnode"
)

// DefaultStages is used when the configuration declares no stages.
var DefaultStages = []string{"build", "test", "deploy"}

// DefaultStage is assigned to jobs that do not name one.
const DefaultStage = "test"

const (
	preStage  = ".pre"
	postStage = ".post"
)

// defaultKeys are the job fields a default: block may supply.
var defaultKeys = []string{
	"image", "services", "before_script", "after_script",
	"tags", "timeout", "retry", "interruptible", "artifacts",
}

// legacyDefaultKeys may still appear at the top level instead of under default:.
var legacyDefaultKeys = []string{"image", "services", "before_script", "after_script"}

// Builder converts an extends-resolved configuration into a Pipeline.
type Builder struct {
	Logger *log.Logger
}

// Build creates the Pipeline from the effective mappings in res. u supplies
// the document each key came from for error reports.
func (b *Builder) Build(u *merge.Unified, res *extends.Result) (*Pipeline, error) {
	logger := b.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	bs := &build{unified: u, result: res, root: res.Effective}

	stages, err := bs.stages()
	if err != nil {
		return nil, err
	}
	p := &Pipeline{Stages: stages, Jobs: map[string]*Job{}}

	if p.Variables, err = variables("variables", yamlnode.Get(bs.root, "variables")); err != nil {
		return nil, bs.shape("variables", err)
	}
	if wf := yamlnode.Get(bs.root, "workflow"); !yamlnode.IsNull(wf) {
		if !yamlnode.IsMapping(wf) {
			return nil, bs.shape("workflow", &shapeError{field: "workflow", line: wf.Line, msg: "must be a mapping"})
		}
		if p.Workflow, err = rules("workflow.rules", yamlnode.Get(wf, "rules")); err != nil {
			return nil, bs.shape("workflow", err)
		}
	}
	if bs.defaults, err = bs.defaultBlock(); err != nil {
		return nil, err
	}

	jobNeeds := map[string][]need{}
	for _, pair := range yamlnode.Pairs(bs.root) {
		name := pair.Key.Value
		if !merge.IsJobKey(name) || merge.IsHidden(name) {
			continue
		}
		if !yamlnode.IsMapping(pair.Value) {
			return nil, bs.fail(cierr.ErrInvalidJobShape, name, pair.Value.Line, "job %q must be a mapping", name)
		}
		job, ns, err := bs.job(p, name, pair.Value)
		if err != nil {
			return nil, err
		}
		p.Jobs[name] = job
		p.JobOrder = append(p.JobOrder, name)
		jobNeeds[name] = ns
	}

	if err := bs.link(p, jobNeeds); err != nil {
		return nil, err
	}

	logger.Debug("built pipeline", "stages", len(p.Stages), "jobs", len(p.Jobs))
	return p, nil
}

type build struct {
	unified  *merge.Unified
	result   *extends.Result
	root     *yaml.Node
	defaults *yaml.Node
}

func (b *build) fail(kind error, key string, line int, format string, args ...any) *cierr.ResolveError {
	return cierr.New(kind, format, args...).InFile(b.unified.Origin(key), line).ForKey(key)
}

// shape converts a field-level error into a resolve error for key.
func (b *build) shape(key string, err error) error {
	var se *shapeError
	if errors.As(err, &se) {
		return b.fail(cierr.ErrInvalidJobShape, key, se.line, "%s", se.Error())
	}
	return err
}

// stages returns the declared stage list wrapped in .pre and .post.
func (b *build) stages() ([]Stage, error) {
	names := DefaultStages
	key := "stages"
	n := yamlnode.Get(b.root, key)
	if n == nil {
		key = "types"
		n = yamlnode.Get(b.root, key)
	}
	if !yamlnode.IsNull(n) {
		declared, ok := yamlnode.Strings(n)
		if !ok || !yamlnode.IsSequence(n) {
			return nil, b.fail(cierr.ErrInvalidJobShape, key, n.Line, "%s must be a list of names", key)
		}
		names = declared
	}

	names = lo.Without(lo.Uniq(names), preStage, postStage)
	names = append(append([]string{preStage}, names...), postStage)

	out := make([]Stage, len(names))
	for i, name := range names {
		out[i] = Stage{Name: name, Index: i}
	}
	return out, nil
}

// defaultBlock merges default: with the legacy top-level keys it lacks.
func (b *build) defaultBlock() (*yaml.Node, error) {
	out := yamlnode.NewMapping()
	if d := yamlnode.Get(b.root, "default"); !yamlnode.IsNull(d) {
		if !yamlnode.IsMapping(d) {
			return nil, b.fail(cierr.ErrInvalidJobShape, "default", d.Line, "default must be a mapping")
		}
		for _, key := range defaultKeys {
			if v := yamlnode.Get(d, key); v != nil {
				yamlnode.Set(out, key, v)
			}
		}
	}
	for _, key := range legacyDefaultKeys {
		if v := yamlnode.Get(b.root, key); v != nil && !yamlnode.Has(out, key) {
			yamlnode.Set(out, key, v)
		}
	}
	return out, nil
}

// inherit reads a job's inherit: block. Each of default and variables is
// true, false, or a list of names to keep.
type inherit struct {
	defaults  func(string) bool
	variables func(string) bool
}

func parseInherit(n *yaml.Node) (inherit, error) {
	all := func(string) bool { return true }
	in := inherit{defaults: all, variables: all}
	if yamlnode.IsNull(n) {
		return in, nil
	}
	if !yamlnode.IsMapping(n) {
		return in, badShape("inherit", n, "must be a mapping")
	}
	var err error
	if in.defaults, err = inheritFilter("inherit.default", yamlnode.Get(n, "default")); err != nil {
		return in, err
	}
	if in.variables, err = inheritFilter("inherit.variables", yamlnode.Get(n, "variables")); err != nil {
		return in, err
	}
	return in, nil
}

func inheritFilter(field string, n *yaml.Node) (func(string) bool, error) {
	if yamlnode.IsNull(n) {
		return func(string) bool { return true }, nil
	}
	if yamlnode.IsSequence(n) {
		names, err := stringList(field, n)
		if err != nil {
			return nil, err
		}
		return func(name string) bool { return lo.Contains(names, name) }, nil
	}
	on, err := boolean(field, n)
	if err != nil {
		return nil, err
	}
	return func(string) bool { return on }, nil
}

// job types one non-hidden job. needs are returned unvalidated; link checks
// them once every job exists.
func (b *build) job(p *Pipeline, name string, n *yaml.Node) (*Job, []need, error) {
	in, err := parseInherit(yamlnode.Get(n, "inherit"))
	if err != nil {
		return nil, nil, b.shape(name, err)
	}
	n = yamlnode.Clone(n)
	for _, pair := range yamlnode.Pairs(b.defaults) {
		if !yamlnode.Has(n, pair.Key.Value) && in.defaults(pair.Key.Value) {
			yamlnode.Set(n, pair.Key.Value, yamlnode.Clone(pair.Value))
		}
	}

	job := &Job{Name: name}
	if parents := b.result.Parents[name]; len(parents) > 0 {
		job.Parents = parents
		job.Ancestry = b.result.Ancestry[name]
	}
	ns, err := b.fields(job, n)
	if err != nil {
		return nil, nil, b.shape(name, err)
	}

	if job.Trigger == "" && len(job.Script) == 0 {
		return nil, nil, b.fail(cierr.ErrInvalidJobShape, name, n.Line, "job %q has no script", name)
	}

	stage := yamlnode.Get(n, "stage")
	job.Stage = DefaultStage
	if !yamlnode.IsNull(stage) {
		if !yamlnode.IsScalar(stage) {
			return nil, nil, b.fail(cierr.ErrInvalidJobShape, name, stage.Line, "stage must be a name")
		}
		job.Stage = stage.Value
	}
	if _, ok := p.Stage(job.Stage); !ok {
		line := n.Line
		if stage != nil {
			line = stage.Line
		}
		return nil, nil, b.fail(cierr.ErrUnknownStage, name, line, "job %q uses undeclared stage %q", name, job.Stage).
			Hint("declare the stage under stages: or fix the job's stage")
	}

	vars := lo.PickBy(p.Variables, func(k string, _ Variable) bool { return in.variables(k) })
	if err := mergo.Merge(&job.Variables, vars); err != nil {
		return nil, nil, err
	}
	if len(job.Variables) == 0 {
		job.Variables = nil
	}
	return job, ns, nil
}

// fields fills the typed attributes of job from its effective mapping.
func (b *build) fields(job *Job, n *yaml.Node) ([]need, error) {
	var err error
	get := func(key string) *yaml.Node { return yamlnode.Get(n, key) }

	if job.Script, err = lines("script", get("script")); err != nil {
		return nil, err
	}
	if job.BeforeScript, err = lines("before_script", get("before_script")); err != nil {
		return nil, err
	}
	if job.AfterScript, err = lines("after_script", get("after_script")); err != nil {
		return nil, err
	}
	if job.Variables, err = variables("variables", get("variables")); err != nil {
		return nil, err
	}
	if job.Rules, err = rules("rules", get("rules")); err != nil {
		return nil, err
	}
	if job.Image, err = image("image", get("image")); err != nil {
		return nil, err
	}
	if job.Services, err = services("services", get("services")); err != nil {
		return nil, err
	}
	if job.Tags, err = stringList("tags", get("tags")); err != nil {
		return nil, err
	}
	if job.Dependencies, err = stringList("dependencies", get("dependencies")); err != nil {
		return nil, err
	}
	if job.When, err = when("when", get("when")); err != nil {
		return nil, err
	}
	if job.AllowFailure, err = allowFailure("allow_failure", get("allow_failure")); err != nil {
		return nil, err
	}
	if job.Artifacts, err = artifacts("artifacts", get("artifacts")); err != nil {
		return nil, err
	}
	if job.Environment, err = environment("environment", get("environment")); err != nil {
		return nil, err
	}
	if job.Timeout, err = scalar("timeout", get("timeout")); err != nil {
		return nil, err
	}
	if job.Retry, err = retry("retry", get("retry")); err != nil {
		return nil, err
	}
	if job.Interruptible, err = boolean("interruptible", get("interruptible")); err != nil {
		return nil, err
	}
	if job.Trigger, err = trigger("trigger", get("trigger")); err != nil {
		return nil, err
	}
	return needs("needs", get("needs"))
}

// link checks that needs and dependencies name jobs of p.
func (b *build) link(p *Pipeline, jobNeeds map[string][]need) error {
	for _, name := range p.JobOrder {
		job := p.Jobs[name]
		for _, nd := range jobNeeds[name] {
			if _, ok := p.Jobs[nd.job]; !ok {
				if nd.optional {
					continue
				}
				return b.fail(cierr.ErrInvalidJobShape, name, nd.line, "job %q needs unknown job %q", name, nd.job)
			}
			job.Needs = append(job.Needs, nd.job)
		}
		for _, dep := range job.Dependencies {
			if _, ok := p.Jobs[dep]; !ok {
				return b.fail(cierr.ErrInvalidJobShape, name, 0, "job %q depends on unknown job %q", name, dep)
			}
		}
	}
	return nil
}
