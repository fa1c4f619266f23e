// Package resolve runs the full resolution of a root CI document: includes,
// document merging, extends and the typed pipeline model.
package resolve

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/lucasnoah/ciresolve/internal/extends"
	"github.com/lucasnoah/ciresolve/internal/include"
	"github.com/lucasnoah/ciresolve/internal/logging"
	"github.com/lucasnoah/ciresolve/internal/merge"
	"github.com/lucasnoah/ciresolve/internal/pipeline"
)

// Options configures one resolution run.
type Options struct {
	RootPath    string
	SiblingRoot string
	Strict      bool
	Workers     int
	Reader      include.Reader
	Logger      *log.Logger
}

// Result holds the pipeline and the intermediate artifacts kept for
// diagnostics.
type Result struct {
	Pipeline  *pipeline.Pipeline
	Documents []include.Document
	Unified   *merge.Unified
	Extends   *extends.Result
	Duration  time.Duration
}

// Parents returns the declared extends targets of key.
func (r *Result) Parents(key string) []string {
	return r.Extends.Parents[key]
}

// Run resolves opts.RootPath. Any failure aborts the run; no partial result
// is returned.
func Run(ctx context.Context, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	start := time.Now()

	docs, err := include.NewResolver(include.Options{
		SiblingRoot: opts.SiblingRoot,
		Workers:     opts.Workers,
		Reader:      opts.Reader,
		Logger:      logger,
	}).Resolve(ctx, opts.RootPath)
	if err != nil {
		return nil, err
	}

	unified, err := (&merge.Merger{Strict: opts.Strict, Logger: logger}).Merge(docs)
	if err != nil {
		return nil, err
	}

	ext, err := (&extends.Resolver{Logger: logger}).Resolve(unified)
	if err != nil {
		return nil, err
	}

	p, err := (&pipeline.Builder{Logger: logger}).Build(unified, ext)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Pipeline:  p,
		Documents: docs,
		Unified:   unified,
		Extends:   ext,
		Duration:  time.Since(start),
	}
	logger.Debug("resolved pipeline",
		"root", opts.RootPath,
		"documents", len(docs),
		"stages", len(p.Stages),
		"jobs", len(p.Jobs),
		"duration", res.Duration,
	)
	return res, nil
}
