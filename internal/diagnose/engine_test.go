package diagnose

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jaxxstorm/dnsdiag/internal/model"
	"github.com/jaxxstorm/dnsdiag/internal/probe"
	"github.com/jaxxstorm/dnsdiag/internal/runner"
	"github.com/jaxxstorm/dnsdiag/internal/strategy"
)

type staticGate struct {
	result model.ProbeResult
}

func (s staticGate) Check(ctx context.Context) model.ProbeResult {
	return s.result
}

var passingGate = staticGate{result: model.ProbeResult{Domain: "google.com", Succeeded: true, ResolvedAddress: "192.0.2.1", Strategy: "dig"}}

type countingEvaluator struct {
	calls    atomic.Int32
	evaluate func(resolver model.Resolver) model.ServerReport
}

func (c *countingEvaluator) Evaluate(ctx context.Context, resolver model.Resolver) model.ServerReport {
	c.calls.Add(1)
	if c.evaluate != nil {
		return c.evaluate(resolver)
	}
	return model.ServerReport{Resolver: resolver}
}

var testResolvers = []model.Resolver{
	{Address: "10.0.0.1", Label: "system", System: true},
	{Address: "1.1.1.1", Label: "Cloudflare"},
	{Address: "8.8.8.8", Label: "Google"},
}

func fixedClock() time.Time {
	return time.Unix(0, 0)
}

func TestGateFailureSkipsEvaluation(t *testing.T) {
	evaluator := &countingEvaluator{}
	gate := staticGate{result: model.ProbeResult{Domain: "google.com", Error: model.ErrorTimeout}}
	engine := NewEngine(gate, evaluator, Config{Resolvers: testResolvers})

	report, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.ConnectivityOK {
		t.Fatalf("expected connectivity failure")
	}
	if report.GateError != model.ErrorNetworkUnreachable {
		t.Fatalf("expected NETWORK_UNREACHABLE, got %s", report.GateError)
	}
	if len(report.ServerReports) != 0 {
		t.Fatalf("expected no server reports, got %d", len(report.ServerReports))
	}
	if evaluator.calls.Load() != 0 {
		t.Fatalf("evaluator must not run after a failed gate, ran %d times", evaluator.calls.Load())
	}
	if report.Recommendation == nil || report.Recommendation.Action != model.ActionFlushCache {
		t.Fatalf("expected a flush recommendation, got %#v", report.Recommendation)
	}
}

func TestRunPreservesResolverOrder(t *testing.T) {
	evaluator := &countingEvaluator{evaluate: func(resolver model.Resolver) model.ServerReport {
		// Later resolvers finish first.
		switch resolver.Address {
		case "10.0.0.1":
			time.Sleep(30 * time.Millisecond)
			return model.ServerReport{Resolver: resolver, SuccessRate: 20}
		case "1.1.1.1":
			time.Sleep(10 * time.Millisecond)
			return model.ServerReport{Resolver: resolver, SuccessRate: 100, MeanLatency: 5 * time.Millisecond, LatencyDefined: true}
		}
		return model.ServerReport{Resolver: resolver, SuccessRate: 100, MeanLatency: 9 * time.Millisecond, LatencyDefined: true}
	}}
	engine := NewEngine(passingGate, evaluator, Config{Resolvers: testResolvers, Parallelism: 3, GOOS: "linux"})

	report, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for i, server := range report.ServerReports {
		if server.Resolver != testResolvers[i] {
			t.Fatalf("report %d out of order: %s", i, server.Resolver.Address)
		}
	}
	if report.Ranking[0] != 1 || report.Ranking[1] != 2 || report.Ranking[2] != 0 {
		t.Fatalf("unexpected ranking %v", report.Ranking)
	}
	rec := report.Recommendation
	if rec == nil || rec.Action != model.ActionSwitchResolver || rec.Target.Address != "1.1.1.1" {
		t.Fatalf("expected switch to 1.1.1.1, got %#v", rec)
	}
	if len(rec.Hints) == 0 || !strings.Contains(rec.Hints[0], "1.1.1.1") {
		t.Fatalf("expected linux switch hints, got %v", rec.Hints)
	}
}

func TestRunRequiresResolvers(t *testing.T) {
	if _, err := NewEngine(passingGate, &countingEvaluator{}, Config{}).Run(context.Background()); err == nil {
		t.Fatalf("expected an error without resolvers")
	}
}

func newStack(mock *runner.MockRunner, resolvers []model.Resolver, gate Checker) *Engine {
	chain := strategy.NewChain(mock, []strategy.Strategy{strategy.Dig, strategy.Nslookup}, nil)
	sampler := probe.NewSampler(chain, probe.Config{Timeout: time.Second, Workers: 3, Now: fixedClock})
	evaluator := probe.NewEvaluator(sampler, probe.EvaluatorConfig{
		Domains:         []string{"google.com", "facebook.com", "youtube.com", "amazon.com", "microsoft.com"},
		ReferenceDomain: "google.com",
		LatencyAttempts: 3,
	})
	if gate == nil {
		gate = NewGate(sampler, "google.com", nil)
	}
	return NewEngine(gate, evaluator, Config{Resolvers: resolvers, Parallelism: 2, GOOS: "linux"})
}

func TestAlwaysTimingOutRunnerYieldsZeroRates(t *testing.T) {
	mock := &runner.MockRunner{Responder: func(cmd runner.Command, timeout time.Duration) (runner.Result, error) {
		return runner.Result{}, fmt.Errorf("%s: %w", cmd.Name, runner.ErrTimedOut)
	}}
	report, err := newStack(mock, testResolvers, passingGate).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(report.ServerReports) != len(testResolvers) {
		t.Fatalf("every resolver must be reported")
	}
	for _, server := range report.ServerReports {
		if server.SuccessRate != 0 || server.LatencyDefined {
			t.Fatalf("expected zero rate for %s, got %#v", server.Resolver.Address, server)
		}
		for _, sample := range append(server.DomainSamples, server.RawSamples...) {
			if sample.Error != model.ErrorTimeout {
				t.Fatalf("expected TIMEOUT, got %s", sample.Error)
			}
		}
	}
	if report.Recommendation != nil {
		t.Fatalf("no resolver is better than another, got %#v", report.Recommendation)
	}
}

func TestGateUsesSystemDefaultPath(t *testing.T) {
	mock := &runner.MockRunner{Responder: func(cmd runner.Command, timeout time.Duration) (runner.Result, error) {
		return runner.Result{}, fmt.Errorf("%s: %w", cmd.Name, runner.ErrToolUnavailable)
	}}
	report, err := newStack(mock, testResolvers, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.ConnectivityOK || report.Gate.Error != model.ErrorToolUnavailable {
		t.Fatalf("unexpected gate result %#v", report.Gate)
	}
	for _, call := range mock.Calls() {
		for _, arg := range call.Args {
			if strings.HasPrefix(arg, "@") {
				t.Fatalf("gate must not name a server: %s", call.String())
			}
		}
	}
	if len(mock.Calls()) != 2 {
		t.Fatalf("expected one call per strategy, got %d", len(mock.Calls()))
	}
}

func deterministicRunner() *runner.MockRunner {
	return &runner.MockRunner{Responder: func(cmd runner.Command, timeout time.Duration) (runner.Result, error) {
		args := strings.Join(cmd.Args, " ")
		if cmd.Name == "dig" {
			if strings.Contains(args, "@10.0.0.1") && !strings.Contains(args, "google.com") {
				return runner.Result{ExitedZero: true, Stdout: ";; connection timed out\n"}, nil
			}
			return runner.Result{ExitedZero: true, Stdout: "example.\t60\tIN\tA\t192.0.2.10\n"}, nil
		}
		return runner.Result{}, fmt.Errorf("%s: %w", cmd.Name, runner.ErrToolUnavailable)
	}}
}

func TestRunIsDeterministic(t *testing.T) {
	first, err := newStack(deterministicRunner(), testResolvers, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	second, err := newStack(deterministicRunner(), testResolvers, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if string(a) != string(b) {
		t.Fatalf("reports differ:\n%s\n%s", a, b)
	}

	system := first.ServerReports[0]
	if system.SuccessRate != 20 || system.Successes != 1 || system.SampleCount != 5 {
		t.Fatalf("unexpected system report %#v", system)
	}
	if system.DomainSamples[1].Error != model.ErrorToolUnavailable {
		t.Fatalf("expected the last strategy's error, got %s", system.DomainSamples[1].Error)
	}
	if first.Recommendation == nil || first.Recommendation.Target.Address != "1.1.1.1" {
		t.Fatalf("expected switch to the first best public resolver, got %#v", first.Recommendation)
	}
}

func TestRunAfterCancelStillReportsEveryResolver(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	mock := deterministicRunner()
	report, err := newStack(mock, testResolvers, passingGate).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected a cancellation error, got %v", err)
	}
	if len(mock.Calls()) != 0 {
		t.Fatalf("no probe should start after cancellation, got %d", len(mock.Calls()))
	}
	if len(report.ServerReports) != len(testResolvers) {
		t.Fatalf("every resolver must be reported")
	}
	for _, sample := range report.ServerReports[0].DomainSamples {
		if sample.Error != model.ErrorCanceled {
			t.Fatalf("expected CANCELED, got %s", sample.Error)
		}
	}
}

func TestModuleRunDiagnosticPublishesReport(t *testing.T) {
	engine := newStack(deterministicRunner(), testResolvers, nil)
	module := NewModule(engine, nil)
	var received []model.DiagnosticReport
	module.Subscribe(func(report model.DiagnosticReport) {
		received = append(received, report)
	})
	if !module.RunDiagnostic(context.Background()) {
		t.Fatalf("expected a successful run")
	}
	if len(received) != 1 || len(received[0].ServerReports) != 3 {
		t.Fatalf("unexpected published reports %#v", received)
	}
}

func TestModuleRunDiagnosticGateFailure(t *testing.T) {
	gate := staticGate{result: model.ProbeResult{Domain: "google.com", Error: model.ErrorTimeout}}
	module := NewModule(NewEngine(gate, &countingEvaluator{}, Config{Resolvers: testResolvers}), nil)
	published := 0
	module.Subscribe(func(model.DiagnosticReport) { published++ })
	if module.RunDiagnostic(context.Background()) {
		t.Fatalf("expected gate failure to fail the run")
	}
	if published != 1 {
		t.Fatalf("gate failure must still be published")
	}
}

func TestCancelMidRunMakesNoRecommendation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1.1.1.1 gets five coverage probes and three latency probes; the run
	// is cancelled on its last one, before the system resolver starts.
	calls := 0
	mock := &runner.MockRunner{Responder: func(cmd runner.Command, timeout time.Duration) (runner.Result, error) {
		calls++
		if calls == 8 {
			cancel()
		}
		return runner.Result{ExitedZero: true, Stdout: "example.\t60\tIN\tA\t192.0.2.10\n"}, nil
	}}
	chain := strategy.NewChain(mock, []strategy.Strategy{strategy.Dig}, nil)
	sampler := probe.NewSampler(chain, probe.Config{Timeout: time.Second, Workers: 1, Now: fixedClock})
	evaluator := probe.NewEvaluator(sampler, probe.EvaluatorConfig{
		Domains:         []string{"google.com", "facebook.com", "youtube.com", "amazon.com", "microsoft.com"},
		ReferenceDomain: "google.com",
		LatencyAttempts: 3,
	})
	resolvers := []model.Resolver{
		{Address: "1.1.1.1", Label: "Cloudflare"},
		{Address: "10.0.0.1", Label: "system", System: true},
	}
	module := NewModule(NewEngine(passingGate, evaluator, Config{Resolvers: resolvers, Parallelism: 1, GOOS: "linux"}), nil)

	var published []model.DiagnosticReport
	module.Subscribe(func(report model.DiagnosticReport) {
		published = append(published, report)
	})
	if module.RunDiagnostic(ctx) {
		t.Fatalf("a cancelled run must not report success")
	}
	if len(published) != 1 {
		t.Fatalf("expected the partial report to be published, got %d", len(published))
	}
	report := published[0]
	if !report.Canceled {
		t.Fatalf("expected the report to be marked cancelled")
	}
	if report.Recommendation != nil {
		t.Fatalf("no recommendation may rest on probes that never ran, got %#v", report.Recommendation)
	}
	if report.ServerReports[0].SuccessRate != 100 {
		t.Fatalf("expected 1.1.1.1 fully probed, got %#v", report.ServerReports[0])
	}
	if got := report.ServerReports[1].DomainSamples[0].Error; got != model.ErrorCanceled {
		t.Fatalf("expected the system resolver to be skipped, got %s", got)
	}
	if calls != 8 {
		t.Fatalf("no probe may start after cancellation, got %d calls", calls)
	}
}

func thresholdEvaluator() *countingEvaluator {
	return &countingEvaluator{evaluate: func(resolver model.Resolver) model.ServerReport {
		rate := 100.0
		if resolver.System {
			rate = 85
		}
		return model.ServerReport{Resolver: resolver, SuccessRate: rate, MeanLatency: time.Millisecond, LatencyDefined: true}
	}}
}

func TestZeroSwitchThresholdIsHonoured(t *testing.T) {
	engine := NewEngine(passingGate, thresholdEvaluator(), Config{Resolvers: testResolvers, SwitchThreshold: 0})
	report, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Recommendation == nil || report.Recommendation.Action != model.ActionSwitchResolver {
		t.Fatalf("a 15 point gap exceeds a zero threshold, got %#v", report.Recommendation)
	}
}

func TestNegativeSwitchThresholdUsesDefault(t *testing.T) {
	engine := NewEngine(passingGate, thresholdEvaluator(), Config{Resolvers: testResolvers, SwitchThreshold: -1})
	report, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Recommendation != nil {
		t.Fatalf("a 15 point gap is within the default threshold, got %#v", report.Recommendation)
	}
}

type staticReachability struct {
	calls atomic.Int32
}

func (s *staticReachability) Probe(ctx context.Context) model.Reachability {
	s.calls.Add(1)
	return model.Reachability{Ping: []model.PingResult{{Target: "8.8.8.8", Reachable: true}}}
}

func TestReachabilityRunsEvenWhenGateFails(t *testing.T) {
	reach := &staticReachability{}
	gate := staticGate{result: model.ProbeResult{Domain: "google.com", Error: model.ErrorTimeout}}
	engine := NewEngine(gate, &countingEvaluator{}, Config{Resolvers: testResolvers, Reachability: reach})

	report, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if reach.calls.Load() != 1 || report.Reachability == nil || !report.Reachability.Ping[0].Reachable {
		t.Fatalf("expected the reachability section, got %#v", report.Reachability)
	}
	if report.Recommendation == nil || report.Recommendation.Action != model.ActionFlushCache {
		t.Fatalf("reachability must not change the gate outcome, got %#v", report.Recommendation)
	}
}

func TestReachabilityIsOptional(t *testing.T) {
	report, err := NewEngine(passingGate, &countingEvaluator{}, Config{Resolvers: testResolvers}).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Reachability != nil {
		t.Fatalf("expected no reachability section, got %#v", report.Reachability)
	}
}
