package remediate

import (
	"context"
	"fmt"
	"time"

	"github.com/jaxxstorm/dnsdiag/internal/model"
	"github.com/jaxxstorm/dnsdiag/internal/runner"
	"go.uber.org/zap"
)

// Checker re-runs the connectivity check after a flush.
type Checker interface {
	Check(ctx context.Context) model.ProbeResult
}

var flushCommands = map[string][]runner.Command{
	"windows": {
		{Name: "ipconfig", Args: []string{"/flushdns"}},
	},
	"linux": {
		{Name: "resolvectl", Args: []string{"flush-caches"}},
		{Name: "systemctl", Args: []string{"restart", "systemd-resolved"}},
		{Name: "service", Args: []string{"nscd", "restart"}},
	},
	"darwin": {
		{Name: "dscacheutil", Args: []string{"-flushcache"}},
		{Name: "killall", Args: []string{"-HUP", "mDNSResponder"}},
	},
}

func FlushCommands(goos string) []runner.Command {
	return append([]runner.Command{}, flushCommands[goos]...)
}

type FlushConfig struct {
	GOOS    string
	Timeout time.Duration
	Logger  *zap.Logger
}

type FlushResult struct {
	Tried     []string          `json:"tried" yaml:"tried"`
	Command   string            `json:"command,omitempty" yaml:"command,omitempty"`
	Flushed   bool              `json:"flushed" yaml:"flushed"`
	Recovered bool              `json:"recovered" yaml:"recovered"`
	Gate      model.ProbeResult `json:"gate" yaml:"gate"`
}

type Flusher struct {
	runner runner.Runner
	gate   Checker
	config FlushConfig
}

func NewFlusher(r runner.Runner, gate Checker, cfg FlushConfig) *Flusher {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Flusher{runner: r, gate: gate, config: cfg}
}

// Flush tries the platform's cache flush commands in order, stopping at the
// first that exits zero, then re-checks connectivity.
func (f *Flusher) Flush(ctx context.Context) FlushResult {
	result := FlushResult{Tried: []string{}}
	for _, cmd := range FlushCommands(f.config.GOOS) {
		if ctx.Err() != nil {
			break
		}
		result.Tried = append(result.Tried, cmd.String())
		res, err := f.runner.Execute(ctx, cmd, f.config.Timeout)
		if err == nil && res.ExitedZero {
			result.Command = cmd.String()
			result.Flushed = true
			break
		}
		f.config.Logger.Info("flush command failed",
			zap.String("command", cmd.String()),
			zap.Error(err),
			zap.String("stderr", res.Stderr),
		)
	}

	if f.gate != nil {
		result.Gate = f.gate.Check(ctx)
		result.Recovered = result.Gate.Succeeded
	}
	return result
}

// SwitchHints lists commands an operator can run to point the machine at
// target. Placeholders in angle brackets must be filled in.
func SwitchHints(goos string, target model.Resolver) []string {
	if target.Address == "" {
		return nil
	}
	addr := target.Address
	switch goos {
	case "windows":
		return []string{
			fmt.Sprintf("Set-DnsClientServerAddress -InterfaceAlias '<adapter>' -ServerAddresses %s", addr),
			"Get-DnsClientServerAddress -InterfaceAlias '<adapter>'",
			"ipconfig /flushdns",
		}
	case "darwin":
		return []string{
			fmt.Sprintf("networksetup -setdnsservers <service> %s", addr),
			"dscacheutil -flushcache",
		}
	default:
		return []string{
			fmt.Sprintf("resolvectl dns <interface> %s && resolvectl flush-caches", addr),
			fmt.Sprintf("nmcli con mod \"<connection>\" ipv4.dns \"%s\" && nmcli con up \"<connection>\"", addr),
		}
	}
}
