package strategy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jaxxstorm/dnsdiag/internal/model"
	"github.com/jaxxstorm/dnsdiag/internal/runner"
	"go.uber.org/zap"
)

type Outcome struct {
	Strategy string
	Address  string
	Kind     model.ErrorKind
	Err      error
}

func (o Outcome) Succeeded() bool {
	return o.Err == nil && o.Address != ""
}

type Chain struct {
	runner     runner.Runner
	strategies []Strategy
	logger     *zap.Logger
}

func NewChain(r runner.Runner, strategies []Strategy, logger *zap.Logger) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{runner: r, strategies: strategies, logger: logger}
}

func (c *Chain) Strategies() []string {
	names := make([]string, 0, len(c.strategies))
	for _, s := range c.strategies {
		names = append(names, s.Name)
	}
	return names
}

// Resolve tries each applicable strategy in order until one yields an
// address. The timeout is a budget for the whole chain: each strategy runs
// with whatever remains of it. On exhaustion the last observed error is
// returned.
func (c *Chain) Resolve(ctx context.Context, server, domain string, timeout time.Duration) Outcome {
	if timeout <= 0 {
		timeout = runner.DefaultTimeout
	}
	deadline := time.Now().Add(timeout)
	last := Outcome{Kind: model.ErrorToolUnavailable, Err: ErrNoStrategy}

	for _, s := range c.strategies {
		if !s.Applies(server) {
			continue
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			err := fmt.Errorf("budget of %s spent before %s: %w", timeout, s.Name, runner.ErrTimedOut)
			return Outcome{Strategy: last.Strategy, Kind: model.ErrorTimeout, Err: err}
		}

		res, err := c.runner.Execute(ctx, s.Build(server, domain, remaining), remaining)
		if err == nil {
			var addr string
			addr, err = s.Parse(res.Stdout)
			if !res.ExitedZero {
				err = fmt.Errorf("%s: %w: %s", s.Name, ErrCommandFailed, firstLine(res.Stderr, res.Stdout))
			} else if err == nil {
				return Outcome{Strategy: s.Name, Address: addr}
			}
		}

		last = Outcome{Strategy: s.Name, Kind: Classify(err), Err: err}
		c.logger.Debug("strategy failed, falling through",
			zap.String("strategy", s.Name),
			zap.String("server", server),
			zap.String("domain", domain),
			zap.String("kind", string(last.Kind)),
			zap.Error(err),
		)
	}
	return last
}

func firstLine(outputs ...string) string {
	for _, output := range outputs {
		for _, line := range strings.Split(output, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				return line
			}
		}
	}
	return "no output"
}
