package pipeline

// Pipeline is the fully resolved CI configuration handed to a runner. It is
// built once and never modified afterwards.
type Pipeline struct {
	Stages    []Stage             `json:"stages" yaml:"stages"`
	Jobs      map[string]*Job     `json:"jobs" yaml:"jobs"`
	JobOrder  []string            `json:"job_order" yaml:"job_order"` // job names in definition order
	Variables map[string]Variable `json:"variables,omitempty" yaml:"variables,omitempty"`
	Workflow  []Rule              `json:"workflow,omitempty" yaml:"workflow,omitempty"`
}

// Stage groups jobs that run together. Index is the stage's position.
type Stage struct {
	Name  string `json:"name" yaml:"name"`
	Index int    `json:"index" yaml:"index"`
}

// Job is one schedulable unit with every inherited attribute applied.
type Job struct {
	Name          string              `json:"name" yaml:"name"`
	Stage         string              `json:"stage" yaml:"stage"`
	Script        []string            `json:"script,omitempty" yaml:"script,omitempty"`
	BeforeScript  []string            `json:"before_script,omitempty" yaml:"before_script,omitempty"`
	AfterScript   []string            `json:"after_script,omitempty" yaml:"after_script,omitempty"`
	Variables     map[string]Variable `json:"variables,omitempty" yaml:"variables,omitempty"`
	Rules         []Rule              `json:"rules,omitempty" yaml:"rules,omitempty"`
	Image         *Image              `json:"image,omitempty" yaml:"image,omitempty"`
	Services      []Image             `json:"services,omitempty" yaml:"services,omitempty"`
	Tags          []string            `json:"tags,omitempty" yaml:"tags,omitempty"`
	Needs         []string            `json:"needs,omitempty" yaml:"needs,omitempty"`
	Dependencies  []string            `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	When          string              `json:"when,omitempty" yaml:"when,omitempty"` // "on_success", "manual", "always", ...
	AllowFailure  bool                `json:"allow_failure,omitempty" yaml:"allow_failure,omitempty"`
	Artifacts     *Artifacts          `json:"artifacts,omitempty" yaml:"artifacts,omitempty"`
	Environment   *Environment        `json:"environment,omitempty" yaml:"environment,omitempty"`
	Timeout       string              `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Retry         int                 `json:"retry,omitempty" yaml:"retry,omitempty"`
	Interruptible bool                `json:"interruptible,omitempty" yaml:"interruptible,omitempty"`
	Trigger       string              `json:"trigger,omitempty" yaml:"trigger,omitempty"`

	// Parents are the declared extends targets; Ancestry is every template
	// merged into this job, in merge order.
	Parents  []string `json:"parents,omitempty" yaml:"parents,omitempty"`
	Ancestry []string `json:"ancestry,omitempty" yaml:"ancestry,omitempty"`
}

// Variable is a CI variable with optional metadata.
type Variable struct {
	Value       string `json:"value" yaml:"value"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Expand      bool   `json:"expand" yaml:"expand"`
}

// Rule decides whether and how a job is added to a pipeline.
type Rule struct {
	If           string              `json:"if,omitempty" yaml:"if,omitempty"`
	Changes      []string            `json:"changes,omitempty" yaml:"changes,omitempty"`
	Exists       []string            `json:"exists,omitempty" yaml:"exists,omitempty"`
	When         string              `json:"when,omitempty" yaml:"when,omitempty"`
	AllowFailure bool                `json:"allow_failure,omitempty" yaml:"allow_failure,omitempty"`
	Variables    map[string]Variable `json:"variables,omitempty" yaml:"variables,omitempty"`
}

// Image is a container image reference.
type Image struct {
	Name       string   `json:"name" yaml:"name"`
	Entrypoint []string `json:"entrypoint,omitempty" yaml:"entrypoint,omitempty"`
}

// Artifacts describes files a job keeps after it finishes.
type Artifacts struct {
	Paths    []string `json:"paths,omitempty" yaml:"paths,omitempty"`
	Exclude  []string `json:"exclude,omitempty" yaml:"exclude,omitempty"`
	ExpireIn string   `json:"expire_in,omitempty" yaml:"expire_in,omitempty"`
	When     string   `json:"when,omitempty" yaml:"when,omitempty"`
	Name     string   `json:"name,omitempty" yaml:"name,omitempty"`
}

// Environment is the deployment target of a job.
type Environment struct {
	Name   string `json:"name" yaml:"name"`
	URL    string `json:"url,omitempty" yaml:"url,omitempty"`
	Action string `json:"action,omitempty" yaml:"action,omitempty"`
}

// Stage returns the stage with the given name.
func (p *Pipeline) Stage(name string) (Stage, bool) {
	for _, s := range p.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return Stage{}, false
}

// JobsInStage returns the jobs of a stage in definition order.
func (p *Pipeline) JobsInStage(stage string) []*Job {
	var out []*Job
	for _, name := range p.JobOrder {
		if j := p.Jobs[name]; j.Stage == stage {
			out = append(out, j)
		}
	}
	return out
}
