package metrics

import (
	"fmt"

	"github.com/jaxxstorm/dnsdiag/internal/model"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dnsdiag"

type Metrics struct {
	ConnectivityOK      prometheus.Gauge
	SuccessPercent      *prometheus.GaugeVec
	MeanLatencySeconds  *prometheus.GaugeVec
	JitterSeconds       *prometheus.GaugeVec
	ProbeResultsTotal   *prometheus.CounterVec
	RecommendationState *prometheus.GaugeVec
	Reachable           *prometheus.GaugeVec

	registry *prometheus.Registry
}

func New() (*Metrics, error) {
	m := &Metrics{
		ConnectivityOK: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connectivity_ok",
			Help:      "1 when the default resolver resolved the connectivity check domain",
		}),
		SuccessPercent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "resolver_success_percent",
			Help:      "Percentage of test domains the resolver answered",
		}, []string{"resolver", "label"}),
		MeanLatencySeconds: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "resolver_mean_latency_seconds",
			Help:      "Mean latency of successful reference domain probes",
		}, []string{"resolver", "label"}),
		JitterSeconds: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "resolver_jitter_seconds",
			Help:      "Spread between fastest and slowest successful reference domain probe",
		}, []string{"resolver", "label"}),
		ProbeResultsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probe_results_total",
			Help:      "Probe attempts by resolver and outcome",
		}, []string{"resolver", "outcome"}),
		RecommendationState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "recommendation",
			Help:      "1 for the remediation action suggested by the last run",
		}, []string{"action"}),
		Reachable: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reachable",
			Help:      "1 when a ping or HTTP reachability target answered",
		}, []string{"check", "target"}),
		registry: prometheus.NewRegistry(),
	}

	collectors := []prometheus.Collector{
		m.ConnectivityOK, m.SuccessPercent, m.MeanLatencySeconds,
		m.JitterSeconds, m.ProbeResultsTotal, m.RecommendationState, m.Reachable,
	}
	for _, c := range collectors {
		if err := m.registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Observe(report model.DiagnosticReport) {
	m.ConnectivityOK.Set(boolValue(report.ConnectivityOK))
	for _, server := range report.ServerReports {
		name := resolverName(server.Resolver)
		m.SuccessPercent.WithLabelValues(name, server.Resolver.Label).Set(server.SuccessRate)
		if server.LatencyDefined {
			m.MeanLatencySeconds.WithLabelValues(name, server.Resolver.Label).Set(server.MeanLatency.Seconds())
			m.JitterSeconds.WithLabelValues(name, server.Resolver.Label).Set(server.Jitter.Seconds())
		}
		for _, sample := range append(append([]model.ProbeResult{}, server.DomainSamples...), server.RawSamples...) {
			m.ProbeResultsTotal.WithLabelValues(name, outcome(sample)).Inc()
		}
	}
	if report.Recommendation != nil {
		m.RecommendationState.WithLabelValues(string(report.Recommendation.Action)).Set(1)
	}
	if r := report.Reachability; r != nil {
		for _, p := range r.Ping {
			m.Reachable.WithLabelValues("ping", p.Target).Set(boolValue(p.Reachable))
		}
		for _, h := range r.HTTP {
			m.Reachable.WithLabelValues("http", h.URL).Set(boolValue(h.Reachable))
		}
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// WriteTextfile writes the report's metrics in the node_exporter textfile
// collector format.
func WriteTextfile(path string, report model.DiagnosticReport) error {
	m, err := New()
	if err != nil {
		return err
	}
	m.Observe(report)
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}

func resolverName(r model.Resolver) string {
	if r.Address == "" {
		return "system"
	}
	return r.Address
}

func outcome(sample model.ProbeResult) string {
	if sample.Succeeded {
		return "success"
	}
	if sample.Error == model.ErrorNone {
		return "failure"
	}
	return string(sample.Error)
}
