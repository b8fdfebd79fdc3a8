// Package compare runs one end-to-end boundary comparison: fetch both
// sources, join them, score every pair and write the reports.
package compare

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/boundary-compare/internal/boundary"
	"github.com/sells-group/boundary-compare/internal/config"
	"github.com/sells-group/boundary-compare/internal/match"
	"github.com/sells-group/boundary-compare/internal/metrics"
	"github.com/sells-group/boundary-compare/internal/report"
)

// Pipeline wires the two boundary sources to the matcher, the metric engine
// and the report writers. Runs are strictly sequential.
type Pipeline struct {
	cfg           *config.Config
	authoritative boundary.Source
	crowd         boundary.Source
	engine        *metrics.Engine
	now           func() time.Time
	newRunID      func() string
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithClock overrides the report timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithRunID overrides run identifier generation.
func WithRunID(fn func() string) Option {
	return func(p *Pipeline) { p.newRunID = fn }
}

// New creates a Pipeline.
func New(cfg *config.Config, authoritative, crowd boundary.Source, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:           cfg,
		authoritative: authoritative,
		crowd:         crowd,
		engine:        metrics.NewEngine(cfg.Quality.Thresholds()),
		now:           time.Now,
		newRunID:      uuid.NewString,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run executes the comparison. A failure to fetch either source aborts the
// run before any output is written; per-pair geometry failures are reported
// as unscored.
func (p *Pipeline) Run(ctx context.Context) (*report.Summary, error) {
	runID := p.newRunID()
	log := zap.L().With(zap.String("component", "compare.pipeline"), zap.String("run_id", runID))
	log.Info("pipeline: starting comparison")

	var auth, crowd *boundary.Collection
	if err := phase(log, "fetch_authoritative", func() (err error) {
		auth, err = p.authoritative.Fetch(ctx)
		return err
	}); err != nil {
		return nil, eris.Wrapf(err, "compare: fetch %s", p.authoritative.Name())
	}
	if err := phase(log, "fetch_crowd", func() (err error) {
		crowd, err = p.crowd.Fetch(ctx)
		return err
	}); err != nil {
		return nil, eris.Wrapf(err, "compare: fetch %s", p.crowd.Name())
	}

	matchStart := time.Now()
	outcome := match.Match(auth.Records, crowd.Records)
	log.Info("pipeline: phase complete",
		zap.String("phase", "match"),
		zap.Int64("duration_ms", time.Since(matchStart).Milliseconds()),
		zap.Int("pairs", len(outcome.Pairs)),
		zap.Int("missing_in_crowd", len(outcome.UnmatchedAuthoritative)),
		zap.Int("missing_in_authoritative", len(outcome.UnmatchedCrowd)),
		zap.Int("duplicates", len(outcome.Duplicates)),
	)

	var (
		results  []metrics.Result
		unscored []metrics.Unscored
	)
	if err := phase(log, "score", func() error {
		var err error
		results, unscored, err = p.score(ctx, outcome.Pairs)
		return err
	}); err != nil {
		return nil, err
	}

	summary := report.Summarize(report.Input{
		RunID:         runID,
		GeneratedAt:   p.now(),
		Authoritative: auth,
		Crowd:         crowd,
		Outcome:       outcome,
		Results:       results,
		Unscored:      unscored,
	}, report.Options{
		WorstN:       p.cfg.Quality.WorstN,
		MissingLimit: p.cfg.Quality.MissingLimit,
		Thresholds:   p.engine.Thresholds(),
	})

	if err := phase(log, "write_reports", func() error {
		return p.write(summary)
	}); err != nil {
		return nil, err
	}

	log.Info("pipeline: comparison complete",
		zap.Int("scored", summary.Scored),
		zap.Float64("mean_iou", summary.MeanIoU),
	)
	return summary, nil
}

// score computes metrics for every pair in order.
func (p *Pipeline) score(ctx context.Context, pairs []match.Pair) ([]metrics.Result, []metrics.Unscored, error) {
	results := make([]metrics.Result, 0, len(pairs))
	var unscored []metrics.Unscored
	for _, pair := range pairs {
		if err := ctx.Err(); err != nil {
			return nil, nil, eris.Wrap(err, "compare: scoring interrupted")
		}
		res, err := p.engine.Compare(pair)
		if err != nil {
			zap.L().Warn("compare: pair unscored",
				zap.Int("id", pair.ID),
				zap.String("name", pair.Name),
				zap.Error(err),
			)
			unscored = append(unscored, metrics.Unscored{ID: pair.ID, Name: pair.Name, Reason: err.Error()})
			continue
		}
		results = append(results, res)
	}
	return results, unscored, nil
}

// write emits the text report and the CSV table, plus the spreadsheet and
// the metrics textfile when their paths are set.
func (p *Pipeline) write(s *report.Summary) error {
	out := p.cfg.Output
	if err := report.WriteText(out.ReportPath, s); err != nil {
		return err
	}
	if err := report.WriteCSV(out.CSVPath, s.Results); err != nil {
		return err
	}
	if out.XLSXPath != "" {
		if err := report.WriteXLSX(out.XLSXPath, s); err != nil {
			return err
		}
	}
	if out.MetricsPath != "" {
		if err := report.WritePrometheus(out.MetricsPath, s); err != nil {
			return err
		}
	}
	zap.L().Info("reports written",
		zap.String("report", out.ReportPath),
		zap.String("csv", out.CSVPath),
		zap.String("xlsx", out.XLSXPath),
		zap.String("metrics", out.MetricsPath),
	)
	return nil
}

// phase runs fn and logs its duration and outcome.
func phase(log *zap.Logger, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	duration := time.Since(start).Milliseconds()
	if err != nil {
		log.Error("pipeline: phase failed",
			zap.String("phase", name),
			zap.Int64("duration_ms", duration),
			zap.Error(err),
		)
		return err
	}
	log.Info("pipeline: phase complete",
		zap.String("phase", name),
		zap.Int64("duration_ms", duration),
	)
	return nil
}
