package reachability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jaxxstorm/dnsdiag/internal/model"
	"github.com/jaxxstorm/dnsdiag/internal/runner"
)

type fakePinger struct {
	mu      sync.Mutex
	targets []string
	down    map[string]bool
}

func (f *fakePinger) Ping(ctx context.Context, target string, count int, timeout time.Duration) model.PingResult {
	f.mu.Lock()
	f.targets = append(f.targets, target)
	f.mu.Unlock()
	if f.down[target] {
		return model.PingResult{Target: target, Sent: count, Error: "no echo reply"}
	}
	return model.PingResult{Target: target, Sent: count, Received: count, MeanRTT: 4 * time.Millisecond, Reachable: true}
}

func overviewRunner() *runner.MockRunner {
	return &runner.MockRunner{Responder: func(cmd runner.Command, timeout time.Duration) (runner.Result, error) {
		switch cmd.Name {
		case "ip":
			return runner.Result{ExitedZero: true, Stdout: "lo UNKNOWN 127.0.0.1/8\n"}, nil
		case "powershell":
			return runner.Result{Stderr: "Get-NetAdapter : access denied\n"}, nil
		case "ipconfig":
			return runner.Result{ExitedZero: true, Stdout: "Windows IP Configuration\n"}, nil
		}
		return runner.Result{}, runner.ErrToolUnavailable
	}}
}

func TestProbeCollectsEverySection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/generate_204" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	pinger := &fakePinger{down: map[string]bool{"google.com": true}}
	prober := New(overviewRunner(), pinger, server.Client(), Config{
		PingTargets: DefaultPingTargets,
		HTTPTargets: []string{server.URL + "/generate_204", server.URL + "/broken"},
		GOOS:        "linux",
	})

	got := prober.Probe(context.Background())
	if len(got.Ping) != 2 || !got.Ping[0].Reachable || got.Ping[1].Reachable {
		t.Fatalf("unexpected ping results %#v", got.Ping)
	}
	if len(got.HTTP) != 2 {
		t.Fatalf("expected two http results, got %#v", got.HTTP)
	}
	if !got.HTTP[0].Reachable || got.HTTP[0].Status != http.StatusNoContent {
		t.Fatalf("expected 204 to be reachable, got %#v", got.HTTP[0])
	}
	if got.HTTP[1].Reachable || got.HTTP[1].Status != http.StatusBadGateway {
		t.Fatalf("expected 502 to be unreachable, got %#v", got.HTTP[1])
	}
	if len(got.Overview) != 2 || got.Overview[0].Command != "ip -brief addr" || !strings.Contains(got.Overview[0].Output, "127.0.0.1") {
		t.Fatalf("unexpected overview %#v", got.Overview)
	}
}

func TestHTTPFailureIsRecorded(t *testing.T) {
	client := &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})}
	prober := New(nil, nil, client, Config{HTTPTargets: []string{"http://example.com"}})

	got := prober.Probe(context.Background())
	if len(got.HTTP) != 1 || got.HTTP[0].Reachable || !strings.Contains(got.HTTP[0].Error, "connection refused") {
		t.Fatalf("unexpected http result %#v", got.HTTP)
	}
	if len(got.Ping) != 0 || len(got.Overview) != 0 {
		t.Fatalf("sections without a pinger or runner must stay empty, got %#v", got)
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func TestOverviewFallsBackToNextAlternative(t *testing.T) {
	mock := overviewRunner()
	prober := New(mock, nil, nil, Config{GOOS: "windows"})

	got := prober.Probe(context.Background())
	if len(got.Overview) != 2 {
		t.Fatalf("expected two overview entries, got %#v", got.Overview)
	}
	if got.Overview[0].Command != "ipconfig /all" || got.Overview[0].Output == "" {
		t.Fatalf("expected ipconfig fallback, got %#v", got.Overview[0])
	}
	if !strings.Contains(got.Overview[1].Error, "access denied") {
		t.Fatalf("expected the port 53 check failure to be kept, got %#v", got.Overview[1])
	}
	if calls := mock.Calls(); len(calls) != 3 || calls[0].Name != "powershell" || calls[1].Name != "ipconfig" {
		t.Fatalf("expected powershell then ipconfig, got %v", calls)
	}
}

func TestProbeStopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pinger := &fakePinger{}
	mock := overviewRunner()
	prober := New(mock, pinger, nil, Config{PingTargets: DefaultPingTargets, HTTPTargets: DefaultHTTPTargets})

	got := prober.Probe(ctx)
	if len(pinger.targets) != 0 || len(mock.Calls()) != 0 {
		t.Fatalf("nothing may start after cancellation")
	}
	if len(got.Ping)+len(got.HTTP)+len(got.Overview) != 0 {
		t.Fatalf("expected empty sections, got %#v", got)
	}
}

func TestOverviewCommands(t *testing.T) {
	if got := OverviewCommands("darwin"); len(got) != 2 || got[0][0].Name != "ifconfig" {
		t.Fatalf("unexpected darwin commands %v", got)
	}
	if got := OverviewCommands("linux"); got[1][0].String() != "ip route show" {
		t.Fatalf("unexpected linux commands %v", got)
	}
}
