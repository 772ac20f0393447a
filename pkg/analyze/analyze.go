// Package analyze wires the extraction, rule-evaluation, and
// aggregation stages into a one-shot pipeline per bundle.
//
// A single bundle runs sequentially: later stages consume earlier
// outputs. Independent bundles may run concurrently through Batch; the
// compiled rule set and thresholds are immutable after New, so one
// Pipeline is safely shared by all workers.
package analyze

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bundlescope/bundlescope/pkg/bundle"
	"github.com/bundlescope/bundlescope/pkg/config"
	"github.com/bundlescope/bundlescope/pkg/health"
	"github.com/bundlescope/bundlescope/pkg/logging"
	"github.com/bundlescope/bundlescope/pkg/rules"
	"github.com/bundlescope/bundlescope/pkg/types"
)

// Pipeline analyzes bundles against one loaded rule set.
type Pipeline struct {
	cfg         *config.Config
	concurrency int
	aggregator  *health.Aggregator
	logger      zerolog.Logger
}

// New loads the rule collections once and builds a reusable pipeline.
func New(cfg *config.Config) *Pipeline {
	collections := rules.LoadCollections(cfg.RulesDir)
	evaluator := rules.NewEvaluator(collections, rules.Limits{
		MaxReadBytes: cfg.Limits.MaxReadBytes,
		MaxEvidence:  cfg.Limits.MaxEvidence,
	})

	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	return &Pipeline{
		cfg:         cfg,
		concurrency: concurrency,
		aggregator: health.NewAggregator(health.Thresholds{
			DiskCriticalPercent:         cfg.Thresholds.DiskCriticalPercent,
			DiskWarningPercent:          cfg.Thresholds.DiskWarningPercent,
			MemCriticalAvailablePercent: cfg.Thresholds.MemCriticalAvailablePercent,
			MemWarningAvailablePercent:  cfg.Thresholds.MemWarningAvailablePercent,
			SwapHighPercent:             cfg.Thresholds.SwapHighPercent,
			SwapElevatedPercent:         cfg.Thresholds.SwapElevatedPercent,
			UpdatesWarningTotal:         cfg.Thresholds.UpdatesWarningTotal,
		}, evaluator),
		logger: logging.GetLogger("analyze"),
	}
}

// Analyze runs the full pipeline for one bundle under the configured
// per-bundle deadline. Only an unreadable bundle root fails the run;
// everything else degrades to partial results.
func (p *Pipeline) Analyze(ctx context.Context, root string, format types.Format) (types.HealthSummary, error) {
	start := time.Now()
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	b, err := bundle.New(root, format)
	if err != nil {
		return types.HealthSummary{}, err
	}

	snapshot := b.Snapshot()
	summary := p.aggregator.Summarize(ctx, snapshot, root, format)

	p.logger.Info().
		Str("root", root).
		Str("format", string(format)).
		Str("status", string(summary.Status)).
		Dur("duration", time.Since(start)).
		Msg("Bundle analyzed")
	return summary, nil
}

// Request identifies one bundle for batch analysis.
type Request struct {
	Root   string
	Format types.Format
}

// Result pairs a request with its outcome.
type Result struct {
	Request Request
	Summary types.HealthSummary
	Err     error
}

// Batch analyzes independent bundles concurrently, at most
// cfg.Concurrency at a time. Results are returned in request order.
func (p *Pipeline) Batch(ctx context.Context, requests []Request) []Result {
	results := make([]Result, len(requests))

	var wg sync.WaitGroup
	sem := make(chan struct{}, p.concurrency)

	for i, req := range requests {
		wg.Add(1)
		go func(i int, req Request) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			summary, err := p.Analyze(ctx, req.Root, req.Format)
			results[i] = Result{Request: req, Summary: summary, Err: err}
		}(i, req)
	}
	wg.Wait()

	return results
}
