package diagnose

import (
	"context"
	"errors"
	"fmt"

	"github.com/jaxxstorm/dnsdiag/internal/analyze"
	"github.com/jaxxstorm/dnsdiag/internal/model"
	"github.com/jaxxstorm/dnsdiag/internal/remediate"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Checker interface {
	Check(ctx context.Context) model.ProbeResult
}

type ServerEvaluator interface {
	Evaluate(ctx context.Context, resolver model.Resolver) model.ServerReport
}

// ReachabilityProber fills the optional reachability section.
type ReachabilityProber interface {
	Probe(ctx context.Context) model.Reachability
}

type Config struct {
	Resolvers   []model.Resolver
	Parallelism int
	// SwitchThreshold is in percentage points. Zero recommends any strictly
	// better resolver; a negative value selects the default.
	SwitchThreshold float64
	GOOS            string
	Reachability    ReachabilityProber
	Logger          *zap.Logger
}

type Engine struct {
	gate      Checker
	evaluator ServerEvaluator
	config    Config
}

func NewEngine(gate Checker, evaluator ServerEvaluator, cfg Config) *Engine {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	if cfg.SwitchThreshold < 0 {
		cfg.SwitchThreshold = analyze.DefaultSwitchThreshold
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Engine{gate: gate, evaluator: evaluator, config: cfg}
}

// Run executes the gate and, if it passes, evaluates every resolver. Probe
// level failures are recorded in the report; the returned error is reserved
// for misconfiguration and for a cancelled run, whose partial report is still
// returned.
func (e *Engine) Run(ctx context.Context) (model.DiagnosticReport, error) {
	if len(e.config.Resolvers) == 0 {
		return model.DiagnosticReport{}, fmt.Errorf("no resolvers configured")
	}

	report := model.DiagnosticReport{
		Platform:      e.config.GOOS,
		ServerReports: []model.ServerReport{},
		Ranking:       []int{},
	}

	report.Gate = e.gate.Check(ctx)
	if e.config.Reachability != nil && ctx.Err() == nil {
		reachability := e.config.Reachability.Probe(ctx)
		report.Reachability = &reachability
	}
	if !report.Gate.Succeeded {
		report.GateError = model.ErrorNetworkUnreachable
		report.Recommendation = analyze.GateFailure(report.Gate.Error, report.Gate.Domain)
		report.Summary = analyze.Summarize(report)
		if report.Gate.Error == model.ErrorCanceled {
			return report, errors.Join(fmt.Errorf("run cancelled before connectivity check"), ctx.Err())
		}
		return report, nil
	}
	report.ConnectivityOK = true

	reports := make([]model.ServerReport, len(e.config.Resolvers))
	var g errgroup.Group
	g.SetLimit(e.config.Parallelism)
	for i, resolver := range e.config.Resolvers {
		i, resolver := i, resolver
		g.Go(func() error {
			reports[i] = e.evaluator.Evaluate(ctx, resolver)
			return nil
		})
	}
	_ = g.Wait()

	report.ServerReports = reports
	report.Ranking = analyze.Rank(reports)
	if err := ctx.Err(); err != nil {
		e.config.Logger.Warn("run cancelled, remaining probes recorded as cancelled", zap.Error(err))
		report.Canceled = true
		report.Summary = analyze.Summarize(report)
		return report, fmt.Errorf("run cancelled during resolver evaluation: %w", err)
	}
	report.Recommendation = analyze.Recommend(reports, report.Ranking, e.config.SwitchThreshold)
	if report.Recommendation != nil && report.Recommendation.Target != nil {
		report.Recommendation.Hints = remediate.SwitchHints(e.config.GOOS, *report.Recommendation.Target)
	}
	report.Summary = analyze.Summarize(report)
	return report, nil
}
