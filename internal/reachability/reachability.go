package reachability

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jaxxstorm/dnsdiag/internal/model"
	"github.com/jaxxstorm/dnsdiag/internal/runner"
	"go.uber.org/zap"
)

var (
	DefaultPingTargets = []string{"8.8.8.8", "google.com"}
	DefaultHTTPTargets = []string{"https://www.google.com/generate_204", "http://example.com"}
)

// Pinger sends count ICMP echo requests to target and summarises them.
type Pinger interface {
	Ping(ctx context.Context, target string, count int, timeout time.Duration) model.PingResult
}

type Config struct {
	PingTargets []string
	HTTPTargets []string
	PingCount   int
	Timeout     time.Duration
	GOOS        string
	Logger      *zap.Logger
	Now         func() time.Time
}

type Prober struct {
	runner runner.Runner
	pinger Pinger
	client *http.Client
	config Config
}

func New(r runner.Runner, pinger Pinger, client *http.Client, cfg Config) *Prober {
	if cfg.PingCount <= 0 {
		cfg.PingCount = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Prober{runner: r, pinger: pinger, client: client, config: cfg}
}

// Probe pings each target, fetches each URL and captures the interface and
// route overview. Nothing new starts once ctx is cancelled.
func (p *Prober) Probe(ctx context.Context) model.Reachability {
	out := model.Reachability{
		Ping:     []model.PingResult{},
		HTTP:     []model.HTTPResult{},
		Overview: []model.CommandOutput{},
	}
	if p.pinger != nil {
		for _, target := range p.config.PingTargets {
			if ctx.Err() != nil {
				return out
			}
			result := p.pinger.Ping(ctx, target, p.config.PingCount, p.config.Timeout)
			if !result.Reachable {
				p.config.Logger.Info("ping failed", zap.String("target", target), zap.String("error", result.Error))
			}
			out.Ping = append(out.Ping, result)
		}
	}
	for _, target := range p.config.HTTPTargets {
		if ctx.Err() != nil {
			return out
		}
		out.HTTP = append(out.HTTP, p.fetch(ctx, target))
	}
	if p.runner != nil {
		for _, alternatives := range OverviewCommands(p.config.GOOS) {
			if ctx.Err() != nil {
				return out
			}
			out.Overview = append(out.Overview, p.overview(ctx, alternatives))
		}
	}
	return out
}

func (p *Prober) fetch(ctx context.Context, url string) model.HTTPResult {
	result := model.HTTPResult{URL: url}
	reqCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		result.Error = fmt.Sprintf("failed to create request: %v", err)
		return result
	}

	start := p.config.Now()
	resp, err := p.client.Do(req)
	result.Elapsed = p.config.Now().Sub(start)
	if err != nil {
		result.Error = err.Error()
		p.config.Logger.Info("http check failed", zap.String("url", url), zap.Error(err))
		return result
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	result.Status = resp.StatusCode
	result.Reachable = resp.StatusCode < http.StatusBadRequest
	return result
}

// overview runs alternatives in order and keeps the first that exits zero
// with output.
func (p *Prober) overview(ctx context.Context, alternatives []runner.Command) model.CommandOutput {
	var last model.CommandOutput
	for _, cmd := range alternatives {
		last = model.CommandOutput{Command: cmd.String()}
		res, err := p.runner.Execute(ctx, cmd, p.config.Timeout)
		switch {
		case err != nil:
			last.Error = err.Error()
		case !res.ExitedZero:
			last.Error = fmt.Sprintf("exited non-zero: %s", firstLine(res.Stderr))
		default:
			last.Output = res.Stdout
			return last
		}
		p.config.Logger.Debug("overview command failed", zap.String("command", cmd.String()), zap.String("error", last.Error))
	}
	return last
}

// OverviewCommands lists, per platform, groups of alternative commands that
// describe interfaces and routes.
func OverviewCommands(goos string) [][]runner.Command {
	switch goos {
	case "windows":
		return [][]runner.Command{
			{
				{Name: "powershell", Args: []string{"-NoProfile", "-NonInteractive", "-Command", "Get-NetAdapter | Select Name, Status, LinkSpeed | Format-Table -AutoSize"}},
				{Name: "ipconfig", Args: []string{"/all"}},
			},
			{{Name: "powershell", Args: []string{"-NoProfile", "-NonInteractive", "-Command", "Test-NetConnection -ComputerName 8.8.8.8 -Port 53"}}},
		}
	case "darwin":
		return [][]runner.Command{
			{{Name: "ifconfig"}},
			{{Name: "netstat", Args: []string{"-rn"}}},
		}
	default:
		return [][]runner.Command{
			{{Name: "ip", Args: []string{"-brief", "addr"}}},
			{{Name: "ip", Args: []string{"route", "show"}}},
		}
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}
