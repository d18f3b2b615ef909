package reachability

import (
	"context"
	"time"

	"github.com/go-ping/ping"
	"github.com/jaxxstorm/dnsdiag/internal/model"
)

// ICMPPinger pings with go-ping. Unprivileged mode uses UDP ICMP sockets,
// which on Linux requires net.ipv4.ping_group_range to include the user.
type ICMPPinger struct {
	Privileged bool
}

func (p ICMPPinger) Ping(ctx context.Context, target string, count int, timeout time.Duration) model.PingResult {
	result := model.PingResult{Target: target}
	pinger, err := ping.NewPinger(target)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	pinger.Count = count
	pinger.Timeout = timeout
	pinger.SetPrivileged(p.Privileged)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			pinger.Stop()
		case <-done:
		}
	}()

	if err := pinger.Run(); err != nil {
		result.Error = err.Error()
	}
	stats := pinger.Statistics()
	if stats.IPAddr != nil {
		result.Address = stats.IPAddr.String()
	}
	result.Sent = stats.PacketsSent
	result.Received = stats.PacketsRecv
	result.MeanRTT = stats.AvgRtt
	result.Reachable = stats.PacketsRecv > 0
	if !result.Reachable && result.Error == "" {
		result.Error = "no echo reply"
	}
	return result
}
