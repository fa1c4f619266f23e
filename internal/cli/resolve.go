package cli

import (
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/lucasnoah/ciresolve/internal/cierr"
	"github.com/lucasnoah/ciresolve/internal/config"
	"github.com/lucasnoah/ciresolve/internal/db"
	"github.com/lucasnoah/ciresolve/internal/pipeline"
	"github.com/lucasnoah/ciresolve/internal/resolve"
	"github.com/lucasnoah/ciresolve/internal/yamlnode"
)

const defaultRoot = ".gitlab-ci.yml"

var (
	outputFormat string
	outputFile   string
)

// rootArg returns the root document argument at index i, or the default.
func rootArg(args []string, i int) string {
	if len(args) > i {
		return args[i]
	}
	return defaultRoot
}

// runResolution resolves path with the effective settings and records the
// run in the history database.
func runResolution(cmd *cobra.Command, path string) (*resolve.Result, error) {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	logger = logger.With("run", runID[:8])

	start := time.Now()
	res, err := resolve.Run(cmd.Context(), resolve.Options{
		RootPath:    path,
		SiblingRoot: cfg.SiblingRoot,
		Strict:      cfg.Strict,
		Workers:     cfg.IncludeWorkers,
		Logger:      logger,
	})
	recordRun(cfg, logger, db.Run{RunID: runID, RootPath: path, DurationMs: time.Since(start).Milliseconds()}, res, err)
	return res, err
}

// recordRun stores the outcome of a resolution. Failures to record are
// logged and never fail the command.
func recordRun(cfg *config.Config, logger *log.Logger, run db.Run, res *resolve.Result, runErr error) {
	if !cfg.History.Enabled {
		return
	}
	if abs, err := filepath.Abs(run.RootPath); err == nil {
		run.RootPath = abs
	}

	run.Status = db.StatusOK
	if runErr != nil {
		run.Status = db.StatusFailed
		run.ErrorKind = cierr.KindName(runErr)
		run.Error = runErr.Error()
	} else {
		run.Documents = len(res.Documents)
		run.StageCount = len(res.Pipeline.Stages)
		run.JobCount = len(res.Pipeline.Jobs)
	}

	store, err := db.Open(cfg.History.Path)
	if err != nil {
		logger.Warn("history unavailable", "path", cfg.History.Path, "err", err)
		return
	}
	defer store.Close()
	if err := store.Migrate(); err != nil {
		logger.Warn("history unavailable", "path", cfg.History.Path, "err", err)
		return
	}
	if _, err := store.RecordRun(run); err != nil {
		logger.Warn("recording run failed", "err", err)
	}
}

var resolveCmd = &cobra.Command{
	Use:   "resolve [path]",
	Short: "Resolve a CI configuration and print its pipeline",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := runResolution(cmd, rootArg(args, 0))
		if err != nil {
			return err
		}
		p := res.Pipeline

		if outputFormat == "" && outputFile == "" {
			printPipeline(cmd, p)
			return nil
		}

		format := pipeline.FormatJSON
		if outputFormat != "" {
			if format, err = pipeline.ParseFormat(outputFormat); err != nil {
				return err
			}
		}
		if outputFile != "" {
			if err := pipeline.WriteFile(outputFile, p, format); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d jobs to %s\n", len(p.Jobs), outputFile)
			return nil
		}
		data, err := pipeline.Render(p, format)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), string(data))
		return nil
	},
}

func printPipeline(cmd *cobra.Command, p *pipeline.Pipeline) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STAGE\tJOB\tEXTENDS")
	for _, s := range p.Stages {
		for _, j := range p.JobsInStage(s.Name) {
			fmt.Fprintf(w, "%s\t%s\t%s\n", s.Name, j.Name, dash(strings.Join(j.Parents, ", ")))
		}
	}
	w.Flush()
	fmt.Fprintf(cmd.OutOrStdout(), "\n%d stages, %d jobs\n", len(p.Stages), len(p.Jobs))
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

var jobsCmd = &cobra.Command{
	Use:   "jobs [path]",
	Short: "List jobs in definition order with their stage and ancestry",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := runResolution(cmd, rootArg(args, 0))
		if err != nil {
			return err
		}
		p := res.Pipeline

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "JOB\tSTAGE\tWHEN\tANCESTRY")
		for _, name := range p.JobOrder {
			j := p.Jobs[name]
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", j.Name, j.Stage, dash(j.When), dash(strings.Join(j.Ancestry, " -> ")))
		}
		return w.Flush()
	},
}

var jobCmd = &cobra.Command{
	Use:   "job NAME [path]",
	Short: "Print the effective definition of a job or template",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		res, err := runResolution(cmd, rootArg(args, 1))
		if err != nil {
			return err
		}

		def := yamlnode.Get(res.Extends.Effective, name)
		if def == nil || !yamlnode.IsMapping(def) {
			return errors.WithHint(
				errors.Newf("no job or template named %q", name),
				"run `ciresolve jobs` to list job names",
			)
		}
		if parents := res.Parents(name); len(parents) > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "# extends: %s\n", strings.Join(parents, ", "))
			fmt.Fprintf(cmd.OutOrStdout(), "# ancestry: %s\n", strings.Join(res.Extends.Ancestry[name], " -> "))
		}
		if origin := res.Unified.Origin(name); origin != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "# defined in: %s\n", origin)
		}

		out := yamlnode.NewMapping()
		yamlnode.Set(out, name, def)
		data, err := yamlnode.Encode(out)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var unifiedCmd = &cobra.Command{
	Use:   "unified [path]",
	Short: "Print the merged configuration before extends is applied",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := runResolution(cmd, rootArg(args, 0))
		if err != nil {
			return err
		}
		data, err := yamlnode.Encode(res.Unified.Root)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var includesCmd = &cobra.Command{
	Use:   "includes [path]",
	Short: "List documents of the include closure in merge order",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := runResolution(cmd, rootArg(args, 0))
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "#\tDOCUMENT\tPROJECT")
		for i, d := range res.Documents {
			fmt.Fprintf(w, "%d\t%s\t%s\n", i+1, d.Path, d.ProjectRoot)
		}
		return w.Flush()
	},
}

func init() {
	resolveCmd.Flags().StringVar(&outputFormat, "format", "", "output format: json or yaml (default: table)")
	resolveCmd.Flags().StringVarP(&outputFile, "output", "o", "", "write the pipeline to a file (json unless --format yaml)")
}
