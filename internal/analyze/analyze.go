package analyze

import (
	"fmt"
	"sort"
	"time"

	"github.com/jaxxstorm/dnsdiag/internal/model"
)

const DefaultSwitchThreshold = 20.0

// Rank returns indices into reports, best first: higher success rate wins,
// then a defined latency beats an undefined one, then lower mean latency.
// Remaining ties keep input order. reports is not modified.
func Rank(reports []model.ServerReport) []int {
	order := make([]int, len(reports))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return better(reports[order[a]], reports[order[b]])
	})
	return order
}

func better(a, b model.ServerReport) bool {
	if a.SuccessRate != b.SuccessRate {
		return a.SuccessRate > b.SuccessRate
	}
	if a.LatencyDefined != b.LatencyDefined {
		return a.LatencyDefined
	}
	return a.MeanLatency < b.MeanLatency
}

// Recommend compares the system resolver with the best ranked public
// resolver and suggests switching when the success rate gap exceeds
// threshold percentage points.
func Recommend(reports []model.ServerReport, ranking []int, threshold float64) *model.Recommendation {
	current := -1
	for i, report := range reports {
		if report.Resolver.System {
			current = i
			break
		}
	}
	best := -1
	for _, idx := range ranking {
		if !reports[idx].Resolver.System {
			best = idx
			break
		}
	}
	if current < 0 || best < 0 {
		return nil
	}

	gap := reports[best].SuccessRate - reports[current].SuccessRate
	if gap <= threshold {
		return nil
	}
	target := reports[best].Resolver
	return &model.Recommendation{
		Action: model.ActionSwitchResolver,
		Summary: fmt.Sprintf("system resolver %s resolved %.1f%% of test domains, %s resolved %.1f%% (%.1f points better); consider switching",
			reports[current].Resolver.DisplayName(), reports[current].SuccessRate,
			target.DisplayName(), reports[best].SuccessRate, gap),
		Target: &target,
	}
}

func GateFailure(kind model.ErrorKind, domain string) *model.Recommendation {
	return &model.Recommendation{
		Action:  model.ActionFlushCache,
		Summary: fmt.Sprintf("basic resolution of %s failed (%s); flush the DNS cache and check network connectivity", domain, kind),
	}
}

// Summarize renders one human readable line per resolver in input order.
func Summarize(report model.DiagnosticReport) []string {
	if !report.ConnectivityOK {
		return []string{fmt.Sprintf("connectivity check failed: %s did not resolve (%s)", report.Gate.Domain, report.GateError)}
	}
	lines := []string{fmt.Sprintf("connectivity ok: %s resolved to %s", report.Gate.Domain, report.Gate.ResolvedAddress)}
	for _, server := range report.ServerReports {
		lines = append(lines, fmt.Sprintf("%s: %.1f%% success (%d/%d), latency %s",
			server.Resolver.DisplayName(), server.SuccessRate, server.Successes, server.SampleCount, FormatLatency(server)))
	}
	if report.Canceled {
		return append(lines, "run cancelled before every probe completed; results are incomplete and no recommendation is made")
	}
	if len(report.Ranking) > 0 {
		best := report.ServerReports[report.Ranking[0]]
		lines = append(lines, "best resolver: "+best.Resolver.DisplayName())
	}
	return lines
}

func FormatLatency(report model.ServerReport) string {
	if !report.LatencyDefined {
		return "n/a"
	}
	ms := float64(report.MeanLatency) / float64(time.Millisecond)
	return fmt.Sprintf("%.1fms avg over %d/%d", ms, report.LatencySuccesses, len(report.RawSamples))
}
