package config

// Config holds the tool settings. Every field can be set from a config file
// or a CIRESOLVE_* environment variable; command-line flags override both.
type Config struct {
	// SiblingRoot is the directory holding sibling project checkouts used by
	// project includes. Empty means the parent of the root project.
	SiblingRoot    string  `mapstructure:"sibling_root" yaml:"sibling_root"`
	Strict         bool    `mapstructure:"strict" yaml:"strict"`
	LogLevel       string  `mapstructure:"log_level" yaml:"log_level"`
	IncludeWorkers int     `mapstructure:"include_workers" yaml:"include_workers"`
	History        History `mapstructure:"history" yaml:"history"`

	// Source is the file the config was read from, empty for built-in defaults.
	Source string `mapstructure:"-" yaml:"-"`
}

// History controls the run history database.
type History struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}
