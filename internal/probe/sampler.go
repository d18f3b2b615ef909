package probe

import (
	"context"
	"time"

	"github.com/jaxxstorm/dnsdiag/internal/model"
	"github.com/jaxxstorm/dnsdiag/internal/strategy"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// Resolver performs one fully exhausted resolution attempt. *strategy.Chain
// satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, server, domain string, timeout time.Duration) strategy.Outcome
}

type Config struct {
	Timeout time.Duration
	Workers int
	Logger  *zap.Logger
	Now     func() time.Time
}

type Sampler struct {
	chain  Resolver
	config Config
}

func NewSampler(chain Resolver, cfg Config) *Sampler {
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Sampler{chain: chain, config: cfg}
}

// Sample runs attempts independent resolutions of domain against resolver.
// Results keep dispatch order regardless of completion order. Once ctx is
// cancelled no further attempts are dispatched; those slots are recorded as
// cancelled.
func (s *Sampler) Sample(ctx context.Context, resolver model.Resolver, domain string, attempts int) []model.ProbeResult {
	if attempts <= 0 {
		return []model.ProbeResult{}
	}
	results := make([]model.ProbeResult, attempts)
	if s.config.Workers == 1 || attempts == 1 {
		for i := range results {
			results[i] = s.attempt(ctx, resolver, domain)
		}
		return results
	}

	p := pool.New().WithMaxGoroutines(s.config.Workers)
	for i := range results {
		i := i
		p.Go(func() {
			results[i] = s.attempt(ctx, resolver, domain)
		})
	}
	p.Wait()
	return results
}

func (s *Sampler) attempt(ctx context.Context, resolver model.Resolver, domain string) model.ProbeResult {
	result := model.ProbeResult{Resolver: resolver, Domain: domain}
	if err := ctx.Err(); err != nil {
		result.Error = model.ErrorCanceled
		result.Detail = err.Error()
		return result
	}

	start := s.config.Now()
	outcome := s.chain.Resolve(ctx, resolver.Address, domain, s.config.Timeout)
	result.Elapsed = s.config.Now().Sub(start)
	result.Strategy = outcome.Strategy

	if outcome.Succeeded() {
		result.Succeeded = true
		result.ResolvedAddress = outcome.Address
		return result
	}
	result.Error = outcome.Kind
	if outcome.Err != nil {
		result.Detail = outcome.Err.Error()
	}
	s.config.Logger.Debug("probe failed",
		zap.String("resolver", resolver.DisplayName()),
		zap.String("domain", domain),
		zap.String("kind", string(result.Error)),
	)
	return result
}
