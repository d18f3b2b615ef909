package model

import "time"

type ErrorKind string

const (
	ErrorNone               ErrorKind = ""
	ErrorToolUnavailable    ErrorKind = "TOOL_UNAVAILABLE"
	ErrorTimeout            ErrorKind = "TIMEOUT"
	ErrorUnparsableOutput   ErrorKind = "UNPARSABLE_OUTPUT"
	ErrorNetworkUnreachable ErrorKind = "NETWORK_UNREACHABLE"
	ErrorSpawn              ErrorKind = "SPAWN_ERROR"
	ErrorCommandFailed      ErrorKind = "COMMAND_FAILED"
	ErrorCanceled           ErrorKind = "CANCELED"
)

// Resolver is a DNS server under evaluation. An empty Address means the
// operating system's default resolution path (no explicit server argument).
type Resolver struct {
	Address string `json:"address" yaml:"address"`
	Label   string `json:"label" yaml:"label"`
	System  bool   `json:"system,omitempty" yaml:"system,omitempty"`
}

func (r Resolver) DisplayName() string {
	switch {
	case r.Address == "" && r.Label == "":
		return "system default"
	case r.Address == "":
		return r.Label
	case r.Label == "":
		return r.Address
	default:
		return r.Address + " (" + r.Label + ")"
	}
}

type ProbeResult struct {
	Resolver        Resolver      `json:"resolver" yaml:"resolver"`
	Domain          string        `json:"domain" yaml:"domain"`
	Strategy        string        `json:"strategy,omitempty" yaml:"strategy,omitempty"`
	Succeeded       bool          `json:"succeeded" yaml:"succeeded"`
	ResolvedAddress string        `json:"resolved_address,omitempty" yaml:"resolved_address,omitempty"`
	Elapsed         time.Duration `json:"elapsed" yaml:"elapsed"`
	Error           ErrorKind     `json:"error,omitempty" yaml:"error,omitempty"`
	Detail          string        `json:"detail,omitempty" yaml:"detail,omitempty"`
}

type ServerReport struct {
	Resolver    Resolver `json:"resolver" yaml:"resolver"`
	SuccessRate float64  `json:"success_rate" yaml:"success_rate"`
	Successes   int      `json:"successes" yaml:"successes"`
	SampleCount int      `json:"sample_count" yaml:"sample_count"`
	// MeanLatency is only meaningful when LatencyDefined is set.
	MeanLatency      time.Duration `json:"mean_latency" yaml:"mean_latency"`
	LatencyDefined   bool          `json:"latency_defined" yaml:"latency_defined"`
	Jitter           time.Duration `json:"jitter" yaml:"jitter"`
	LatencySuccesses int           `json:"latency_successes" yaml:"latency_successes"`
	DomainSamples    []ProbeResult `json:"domain_samples" yaml:"domain_samples"`
	RawSamples       []ProbeResult `json:"raw_samples" yaml:"raw_samples"`
}

type RecommendationAction string

const (
	ActionSwitchResolver RecommendationAction = "switch-resolver"
	ActionFlushCache     RecommendationAction = "flush-cache"
)

type Recommendation struct {
	Action  RecommendationAction `json:"action" yaml:"action"`
	Summary string               `json:"summary" yaml:"summary"`
	Target  *Resolver            `json:"target,omitempty" yaml:"target,omitempty"`
	Hints   []string             `json:"hints,omitempty" yaml:"hints,omitempty"`
}

type DiagnosticReport struct {
	Platform       string      `json:"platform" yaml:"platform"`
	ConnectivityOK bool        `json:"connectivity_ok" yaml:"connectivity_ok"`
	Gate           ProbeResult `json:"gate" yaml:"gate"`
	GateError      ErrorKind   `json:"gate_error,omitempty" yaml:"gate_error,omitempty"`
	// Canceled marks a run stopped before every probe ran. Such a report
	// carries no recommendation.
	Canceled       bool            `json:"canceled,omitempty" yaml:"canceled,omitempty"`
	ServerReports  []ServerReport  `json:"server_reports" yaml:"server_reports"`
	Ranking        []int           `json:"ranking" yaml:"ranking"`
	Recommendation *Recommendation `json:"recommendation,omitempty" yaml:"recommendation,omitempty"`
	Reachability   *Reachability   `json:"reachability,omitempty" yaml:"reachability,omitempty"`
	Summary        []string        `json:"summary" yaml:"summary"`
}

type PingResult struct {
	Target    string        `json:"target" yaml:"target"`
	Address   string        `json:"address,omitempty" yaml:"address,omitempty"`
	Sent      int           `json:"sent" yaml:"sent"`
	Received  int           `json:"received" yaml:"received"`
	MeanRTT   time.Duration `json:"mean_rtt" yaml:"mean_rtt"`
	Reachable bool          `json:"reachable" yaml:"reachable"`
	Error     string        `json:"error,omitempty" yaml:"error,omitempty"`
}

type HTTPResult struct {
	URL       string        `json:"url" yaml:"url"`
	Status    int           `json:"status" yaml:"status"`
	Elapsed   time.Duration `json:"elapsed" yaml:"elapsed"`
	Reachable bool          `json:"reachable" yaml:"reachable"`
	Error     string        `json:"error,omitempty" yaml:"error,omitempty"`
}

type CommandOutput struct {
	Command string `json:"command" yaml:"command"`
	Output  string `json:"output,omitempty" yaml:"output,omitempty"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Reachability is the optional network section of a report. It never
// influences the connectivity gate or the recommendation.
type Reachability struct {
	Ping     []PingResult    `json:"ping" yaml:"ping"`
	HTTP     []HTTPResult    `json:"http" yaml:"http"`
	Overview []CommandOutput `json:"overview" yaml:"overview"`
}
