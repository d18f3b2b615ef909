package output

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/jaxxstorm/dnsdiag/internal/analyze"
	"github.com/jaxxstorm/dnsdiag/internal/model"
	"github.com/jaxxstorm/dnsdiag/internal/remediate"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	lineStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	successStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	warnStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	failureStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
)

func RenderPretty(report model.DiagnosticReport) string {
	lines := []string{titleStyle.Render("dnsdiag"), ""}

	gate := report.Gate
	if report.ConnectivityOK {
		lines = append(lines, successStyle.Render("OK")+lineStyle.Render(fmt.Sprintf(" connectivity %s -> %s via %s", gate.Domain, gate.ResolvedAddress, gate.Strategy)))
	} else {
		line := fmt.Sprintf(" connectivity %s -> %s", gate.Domain, report.GateError)
		if gate.Error != model.ErrorNone {
			line += " cause=" + string(gate.Error)
		}
		if gate.Detail != "" {
			line += " detail=" + gate.Detail
		}
		lines = append(lines, failureStyle.Render("FAIL")+lineStyle.Render(line))
	}

	rank := map[int]int{}
	for position, idx := range report.Ranking {
		rank[idx] = position + 1
	}
	if len(report.ServerReports) > 0 {
		lines = append(lines, "")
	}
	for i, server := range report.ServerReports {
		line := fmt.Sprintf(" #%d %s success=%.1f%% (%d/%d) latency=%s",
			rank[i], server.Resolver.DisplayName(), server.SuccessRate, server.Successes, server.SampleCount, analyze.FormatLatency(server))
		if server.LatencyDefined && server.Jitter > 0 {
			line += " jitter=" + formatMillis(server.Jitter)
		}
		if failures := failureSummary(server); failures != "" {
			line += " errors=" + failures
		}
		lines = append(lines, statusLabel(server.SuccessRate)+lineStyle.Render(line))
	}

	if report.Reachability != nil {
		lines = append(lines, "")
		lines = append(lines, renderReachability(*report.Reachability)...)
	}

	lines = append(lines, "")
	if report.Canceled {
		lines = append(lines, warnStyle.Render("run cancelled, results are incomplete"))
	}
	if rec := report.Recommendation; rec != nil {
		lines = append(lines, warnStyle.Render(strings.ToUpper(string(rec.Action))+" "+rec.Summary))
		if len(rec.Hints) > 0 {
			lines = append(lines, "Hints:")
			for _, hint := range rec.Hints {
				lines = append(lines, "- "+hint)
			}
		}
	} else if report.ConnectivityOK && !report.Canceled {
		lines = append(lines, successStyle.Render("no changes recommended"))
	}

	return strings.Join(lines, "\n")
}

func renderReachability(r model.Reachability) []string {
	lines := []string{}
	for _, p := range r.Ping {
		line := fmt.Sprintf(" ping %s %d/%d", p.Target, p.Received, p.Sent)
		if p.Reachable {
			line += " rtt=" + formatMillis(p.MeanRTT)
		} else if p.Error != "" {
			line += " error=" + p.Error
		}
		lines = append(lines, reachLabel(p.Reachable)+lineStyle.Render(line))
	}
	for _, h := range r.HTTP {
		line := fmt.Sprintf(" http %s status=%d in %s", h.URL, h.Status, formatMillis(h.Elapsed))
		if h.Error != "" {
			line += " error=" + h.Error
		}
		lines = append(lines, reachLabel(h.Reachable)+lineStyle.Render(line))
	}
	for _, o := range r.Overview {
		if o.Error != "" {
			lines = append(lines, warnStyle.Render("WARN")+lineStyle.Render(" "+o.Command+": "+o.Error))
			continue
		}
		lines = append(lines, titleStyle.Render("$ "+o.Command))
		lines = append(lines, strings.TrimRight(o.Output, "\n"))
	}
	return lines
}

func reachLabel(ok bool) string {
	if ok {
		return successStyle.Render("OK")
	}
	return failureStyle.Render("FAIL")
}

func RenderFlush(result remediate.FlushResult) string {
	lines := []string{titleStyle.Render("dnsdiag flush"), ""}
	for _, tried := range result.Tried {
		label := failureStyle.Render("FAIL")
		if tried == result.Command {
			label = successStyle.Render("OK")
		}
		lines = append(lines, label+lineStyle.Render(" "+tried))
	}
	if len(result.Tried) == 0 {
		lines = append(lines, warnStyle.Render("no cache flush command known for this platform"))
	}
	lines = append(lines, "")
	if result.Recovered {
		lines = append(lines, successStyle.Render(fmt.Sprintf("resolution working: %s -> %s", result.Gate.Domain, result.Gate.ResolvedAddress)))
	} else {
		lines = append(lines, failureStyle.Render(fmt.Sprintf("resolution still failing for %s (%s)", result.Gate.Domain, result.Gate.Error)))
		lines = append(lines, "Consider switching to a public resolver such as 1.1.1.1 or 8.8.8.8")
	}
	return strings.Join(lines, "\n")
}

func RenderResolvers(resolvers []model.Resolver) string {
	lines := []string{titleStyle.Render("dnsdiag resolvers"), ""}
	for _, r := range resolvers {
		label := lineStyle.Render("public")
		if r.System {
			label = successStyle.Render("system")
		}
		lines = append(lines, label+lineStyle.Render(" "+r.DisplayName()))
	}
	return strings.Join(lines, "\n")
}

func statusLabel(rate float64) string {
	switch {
	case rate >= 100:
		return successStyle.Render("OK")
	case rate > 0:
		return warnStyle.Render("WARN")
	default:
		return failureStyle.Render("FAIL")
	}
}

func failureSummary(server model.ServerReport) string {
	counts := map[model.ErrorKind]int{}
	for _, sample := range append(append([]model.ProbeResult{}, server.DomainSamples...), server.RawSamples...) {
		if !sample.Succeeded && sample.Error != model.ErrorNone {
			counts[sample.Error]++
		}
	}
	kinds := make([]string, 0, len(counts))
	for kind := range counts {
		kinds = append(kinds, string(kind))
	}
	sort.Strings(kinds)
	parts := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		parts = append(parts, fmt.Sprintf("%s x%d", kind, counts[model.ErrorKind(kind)]))
	}
	return strings.Join(parts, ",")
}

func formatMillis(d time.Duration) string {
	return fmt.Sprintf("%.1fms", float64(d)/float64(time.Millisecond))
}
