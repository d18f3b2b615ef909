package diagnose

import (
	"context"

	"github.com/jaxxstorm/dnsdiag/internal/model"
	"github.com/jaxxstorm/dnsdiag/internal/probe"
	"go.uber.org/zap"
)

const DefaultGateDomain = "google.com"

// Gate resolves one well known domain through the OS default resolution
// path, without naming a server.
type Gate struct {
	sampler *probe.Sampler
	domain  string
	logger  *zap.Logger
}

func NewGate(sampler *probe.Sampler, domain string, logger *zap.Logger) *Gate {
	if domain == "" {
		domain = DefaultGateDomain
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{sampler: sampler, domain: domain, logger: logger}
}

func (g *Gate) Check(ctx context.Context) model.ProbeResult {
	system := model.Resolver{Label: "system", System: true}
	result := g.sampler.Sample(ctx, system, g.domain, 1)[0]
	if !result.Succeeded {
		g.logger.Warn("connectivity check failed",
			zap.String("domain", g.domain),
			zap.String("kind", string(result.Error)),
			zap.String("detail", result.Detail),
		)
	}
	return result
}
