package cli

import (
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/lucasnoah/ciresolve/internal/config"
	"github.com/lucasnoah/ciresolve/internal/logging"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var (
	configFile  string
	logLevel    string
	strict      bool
	siblingRoot string
)

var rootCmd = &cobra.Command{
	Use:   "ciresolve",
	Short: "Resolve GitLab CI configuration into a pipeline",
	Long: `ciresolve loads a .gitlab-ci.yml, follows its local and sibling-project
includes, merges the documents, flattens extends chains and prints the
resulting pipeline of stages and jobs.

Settings come from ./.ciresolve.yaml or ~/.ciresolve/config.yaml and can be
overridden with CIRESOLVE_* environment variables or flags. Each resolution
is recorded in ~/.ciresolve/history.db unless history is disabled.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads the tool config and applies command-line overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if configFile != "" {
		cfg, err = config.Load(configFile)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("strict") {
		cfg.Strict = strict
	}
	if flags.Changed("sibling-root") {
		cfg.SiblingRoot = siblingRoot
	}
	return cfg, nil
}

// setup loads the config and builds a logger writing to the command's
// error stream.
func setup(cmd *cobra.Command) (*config.Config, *log.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cmd.ErrOrStderr(), cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "path to a ciresolve config file")
	pf.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.BoolVar(&strict, "strict", false, "fail on conflicting stage lists and job redefinitions across files")
	pf.StringVar(&siblingRoot, "sibling-root", "", "directory holding sibling project checkouts")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(jobCmd)
	rootCmd.AddCommand(unifiedCmd)
	rootCmd.AddCommand(includesCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(dbCmd)
}
