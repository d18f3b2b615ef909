package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/jaxxstorm/dnsdiag/internal/config"
	"github.com/jaxxstorm/dnsdiag/internal/diagnose"
	"github.com/jaxxstorm/dnsdiag/internal/metrics"
	"github.com/jaxxstorm/dnsdiag/internal/model"
	"github.com/jaxxstorm/dnsdiag/internal/output"
	"github.com/jaxxstorm/dnsdiag/internal/probe"
	"github.com/jaxxstorm/dnsdiag/internal/reachability"
	"github.com/jaxxstorm/dnsdiag/internal/remediate"
	"github.com/jaxxstorm/dnsdiag/internal/resolvers"
	"github.com/jaxxstorm/dnsdiag/internal/runner"
	"github.com/jaxxstorm/dnsdiag/internal/strategy"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

var Version = "dev"

type Globals struct {
	Config      string        `help:"Path to a config file (yaml, toml or json)." type:"path"`
	Output      string        `enum:"pretty,json,yaml" default:"pretty" help:"Output format."`
	Resolvers   []string      `name:"resolver" help:"Resolver to test as address or address=label (repeatable). Replaces configured resolvers."`
	NoSystem    bool          `help:"Do not include the system resolver."`
	Attempts    int           `help:"Latency samples per resolver."`
	Timeout     time.Duration `help:"Time budget per resolution attempt."`
	Parallelism int           `help:"Resolvers evaluated concurrently."`
	Verbose     bool          `help:"Enable verbose logging."`
	Debug       bool          `help:"Enable debug logging (includes every tool invocation)."`
}

type CLI struct {
	Globals `embed:""`

	Check     CheckCmd     `cmd:"" default:"1" help:"Check connectivity and evaluate resolvers (default)."`
	Flush     FlushCmd     `cmd:"" help:"Flush the local DNS cache and re-check connectivity."`
	Resolvers ResolversCmd `cmd:"" help:"List the resolvers that would be evaluated."`
	Version   VersionCmd   `cmd:"" help:"Print version."`
}

type CheckCmd struct {
	MetricsFile  string `help:"Write Prometheus metrics in textfile format to this path."`
	Reachability bool   `help:"Add ping, HTTP and interface overview checks to the report."`
}

type FlushCmd struct {
	FlushTimeout time.Duration `default:"10s" help:"Time limit per flush command."`
}

type ResolversCmd struct{}

type VersionCmd struct{}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("dnsdiag"),
		kong.Description("Diagnose name resolution and compare DNS resolvers using the tools installed on this machine."),
	)

	if ctx.Command() == "version" {
		fmt.Println(Version)
		return
	}

	logger, err := newLogger(cli.Verbose, cli.Debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("failed to load .env", zap.Error(err))
	}

	cfg, err := loadConfig(cli.Globals)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var code int
	switch ctx.Command() {
	case "flush":
		code = runFlush(runCtx, cli.Flush, cli.Output, cfg, logger)
	case "resolvers":
		code = runResolvers(cli.Output, cfg, logger)
	default:
		code = runCheck(runCtx, cli.Check, cli.Output, cfg, logger)
	}
	if code != 0 {
		_ = logger.Sync()
		stop()
		os.Exit(code)
	}
}

func loadConfig(g Globals) (config.Config, error) {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return config.Config{}, err
	}
	if len(g.Resolvers) > 0 {
		parsed, err := resolvers.Parse(g.Resolvers)
		if err != nil {
			return config.Config{}, err
		}
		cfg.Resolvers = cfg.Resolvers[:0]
		for _, r := range parsed {
			cfg.Resolvers = append(cfg.Resolvers, config.ResolverEntry{Address: r.Address, Label: r.Label})
		}
	}
	if g.NoSystem {
		cfg.IncludeSystem = false
	}
	if g.Attempts != 0 {
		cfg.LatencyAttempts = g.Attempts
	}
	if g.Timeout != 0 {
		cfg.AttemptTimeout = g.Timeout
	}
	if g.Parallelism != 0 {
		cfg.ResolverParallelism = g.Parallelism
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

type stack struct {
	runner  *runner.ExecRunner
	sampler *probe.Sampler
	gate    *diagnose.Gate
}

func newStack(cfg config.Config, logger *zap.Logger) stack {
	r := runner.New(runner.Options{Logger: logger})
	chain := strategy.NewChain(r, strategy.ForPlatform(runtime.GOOS), logger)
	logger.Debug("resolution strategies", zap.Strings("strategies", chain.Strategies()))
	sampler := probe.NewSampler(chain, probe.Config{
		Timeout: cfg.AttemptTimeout,
		Workers: cfg.SampleWorkers,
		Logger:  logger,
	})
	return stack{
		runner:  r,
		sampler: sampler,
		gate:    diagnose.NewGate(sampler, cfg.GateDomain, logger),
	}
}

func resolverChain(cfg config.Config, logger *zap.Logger) []model.Resolver {
	var system *model.Resolver
	if cfg.IncludeSystem {
		loaded, err := resolvers.LoadSystem(cfg.ResolvConf)
		if err != nil {
			logger.Info("using OS default resolution for the system resolver", zap.Error(err))
		}
		system = &loaded
	}
	return resolvers.Chain(system, cfg.ResolverList())
}

func runCheck(ctx context.Context, cmd CheckCmd, format string, cfg config.Config, logger *zap.Logger) int {
	s := newStack(cfg, logger)
	evaluator := probe.NewEvaluator(s.sampler, probe.EvaluatorConfig{
		Domains:         cfg.Domains,
		ReferenceDomain: cfg.ReferenceDomain,
		LatencyAttempts: cfg.LatencyAttempts,
		Logger:          logger,
	})
	engineCfg := diagnose.Config{
		Resolvers:       resolverChain(cfg, logger),
		Parallelism:     cfg.ResolverParallelism,
		SwitchThreshold: cfg.SwitchThreshold,
		GOOS:            runtime.GOOS,
		Logger:          logger,
	}
	if cmd.Reachability || cfg.Reachability.Enabled {
		r := cfg.Reachability
		engineCfg.Reachability = reachability.New(s.runner, reachability.ICMPPinger{Privileged: r.Privileged}, nil, reachability.Config{
			PingTargets: r.PingTargets,
			HTTPTargets: r.HTTPTargets,
			PingCount:   r.PingCount,
			Timeout:     r.Timeout,
			GOOS:        runtime.GOOS,
			Logger:      logger,
		})
	}
	engine := diagnose.NewEngine(s.gate, evaluator, engineCfg)

	module := diagnose.NewModule(engine, logger)
	renderFailed := false
	module.Subscribe(func(report model.DiagnosticReport) {
		rendered, err := output.Render(format, report, func() string { return output.RenderPretty(report) })
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			renderFailed = true
			return
		}
		fmt.Println(rendered)
	})
	if cmd.MetricsFile != "" {
		module.Subscribe(func(report model.DiagnosticReport) {
			if err := metrics.WriteTextfile(cmd.MetricsFile, report); err != nil {
				logger.Error("failed to write metrics", zap.String("path", cmd.MetricsFile), zap.Error(err))
			}
		})
	}

	ok := module.RunDiagnostic(ctx)
	switch {
	case renderFailed:
		return 1
	case !ok:
		return 2
	}
	return 0
}

func runFlush(ctx context.Context, cmd FlushCmd, format string, cfg config.Config, logger *zap.Logger) int {
	s := newStack(cfg, logger)
	flusher := remediate.NewFlusher(s.runner, s.gate, remediate.FlushConfig{
		GOOS:    runtime.GOOS,
		Timeout: cmd.FlushTimeout,
		Logger:  logger,
	})
	result := flusher.Flush(ctx)

	rendered, err := output.Render(format, result, func() string { return output.RenderFlush(result) })
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Println(rendered)
	if !result.Recovered {
		return 2
	}
	return 0
}

func runResolvers(format string, cfg config.Config, logger *zap.Logger) int {
	chain := resolverChain(cfg, logger)
	rendered, err := output.Render(format, chain, func() string { return output.RenderResolvers(chain) })
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Println(rendered)
	return 0
}

func newLogger(verbose bool, debug bool) (*zap.Logger, error) {
	if debug {
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		return cfg.Build()
	}
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	return cfg.Build()
}
