package probe

import (
	"context"
	"time"

	"github.com/jaxxstorm/dnsdiag/internal/model"
	"go.uber.org/zap"
)

type EvaluatorConfig struct {
	Domains         []string
	ReferenceDomain string
	LatencyAttempts int
	Logger          *zap.Logger
}

// Evaluator builds one ServerReport per resolver from two passes: a single
// attempt per test domain for coverage, and repeated attempts against the
// reference domain for responsiveness.
type Evaluator struct {
	sampler *Sampler
	config  EvaluatorConfig
}

func NewEvaluator(sampler *Sampler, cfg EvaluatorConfig) *Evaluator {
	if cfg.ReferenceDomain == "" && len(cfg.Domains) > 0 {
		cfg.ReferenceDomain = cfg.Domains[0]
	}
	if cfg.LatencyAttempts <= 0 {
		cfg.LatencyAttempts = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Evaluator{sampler: sampler, config: cfg}
}

func (e *Evaluator) Evaluate(ctx context.Context, resolver model.Resolver) model.ServerReport {
	domainSamples := make([]model.ProbeResult, 0, len(e.config.Domains))
	for _, domain := range e.config.Domains {
		domainSamples = append(domainSamples, e.sampler.Sample(ctx, resolver, domain, 1)...)
	}
	latencySamples := e.sampler.Sample(ctx, resolver, e.config.ReferenceDomain, e.config.LatencyAttempts)

	report := BuildReport(resolver, domainSamples, latencySamples)
	e.config.Logger.Info("resolver evaluated",
		zap.String("resolver", resolver.DisplayName()),
		zap.Float64("success_rate", report.SuccessRate),
		zap.Duration("mean_latency", report.MeanLatency),
		zap.Int("latency_successes", report.LatencySuccesses),
	)
	return report
}

// BuildReport derives the success rate from the coverage samples and the
// latency statistics from the successful latency samples only. With no
// successful latency sample the latency is left at zero and flagged as
// undefined.
func BuildReport(resolver model.Resolver, domainSamples, latencySamples []model.ProbeResult) model.ServerReport {
	report := model.ServerReport{
		Resolver:      resolver,
		SampleCount:   len(domainSamples),
		DomainSamples: append([]model.ProbeResult{}, domainSamples...),
		RawSamples:    append([]model.ProbeResult{}, latencySamples...),
	}
	for _, sample := range domainSamples {
		if sample.Succeeded {
			report.Successes++
		}
	}
	if report.SampleCount > 0 {
		report.SuccessRate = 100 * float64(report.Successes) / float64(report.SampleCount)
	}

	var total, minLatency, maxLatency time.Duration
	for _, sample := range latencySamples {
		if !sample.Succeeded {
			continue
		}
		if report.LatencySuccesses == 0 || sample.Elapsed < minLatency {
			minLatency = sample.Elapsed
		}
		if sample.Elapsed > maxLatency {
			maxLatency = sample.Elapsed
		}
		total += sample.Elapsed
		report.LatencySuccesses++
	}
	if report.LatencySuccesses > 0 {
		report.MeanLatency = total / time.Duration(report.LatencySuccesses)
		report.LatencyDefined = true
		report.Jitter = maxLatency - minLatency
	}
	return report
}
