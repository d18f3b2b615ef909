package config

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/jaxxstorm/dnsdiag/internal/model"
	"github.com/miekg/dns"
	"github.com/spf13/viper"
)

const EnvPrefix = "DNSDIAG"

type ResolverEntry struct {
	Address string `mapstructure:"address"`
	Label   string `mapstructure:"label"`
}

type Config struct {
	Resolvers           []ResolverEntry `mapstructure:"resolvers"`
	IncludeSystem       bool            `mapstructure:"include_system"`
	Domains             []string        `mapstructure:"domains"`
	ReferenceDomain     string          `mapstructure:"reference_domain"`
	GateDomain          string          `mapstructure:"gate_domain"`
	LatencyAttempts     int             `mapstructure:"latency_attempts"`
	AttemptTimeout      time.Duration   `mapstructure:"attempt_timeout"`
	ResolverParallelism int             `mapstructure:"resolver_parallelism"`
	SampleWorkers       int             `mapstructure:"sample_workers"`
	SwitchThreshold     float64         `mapstructure:"switch_threshold"`
	ResolvConf          string          `mapstructure:"resolv_conf"`
	Reachability        Reachability    `mapstructure:"reachability"`
}

type Reachability struct {
	Enabled     bool          `mapstructure:"enabled"`
	PingTargets []string      `mapstructure:"ping_targets"`
	HTTPTargets []string      `mapstructure:"http_targets"`
	PingCount   int           `mapstructure:"ping_count"`
	Privileged  bool          `mapstructure:"privileged"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// Load reads configuration from defaults, an optional file and DNSDIAG_*
// environment variables. With an empty path a dnsdiag.{yaml,toml,json} in the
// working directory is used when present.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("dnsdiag")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// Default loads configuration without an explicit file.
func Default() (Config, error) {
	return Load("")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("resolvers", []ResolverEntry{})
	v.SetDefault("include_system", true)
	v.SetDefault("domains", []string{"google.com", "facebook.com", "youtube.com", "amazon.com", "microsoft.com"})
	v.SetDefault("reference_domain", "google.com")
	v.SetDefault("gate_domain", "google.com")
	v.SetDefault("latency_attempts", 3)
	v.SetDefault("attempt_timeout", 3*time.Second)
	v.SetDefault("resolver_parallelism", 4)
	v.SetDefault("sample_workers", 3)
	v.SetDefault("switch_threshold", 20.0)
	v.SetDefault("resolv_conf", "/etc/resolv.conf")
	v.SetDefault("reachability.enabled", false)
	v.SetDefault("reachability.ping_targets", []string{"8.8.8.8", "google.com"})
	v.SetDefault("reachability.http_targets", []string{"https://www.google.com/generate_204", "http://example.com"})
	v.SetDefault("reachability.ping_count", 1)
	v.SetDefault("reachability.privileged", false)
	v.SetDefault("reachability.timeout", 5*time.Second)
}

func (c Config) Validate() error {
	var errs []error
	if c.LatencyAttempts <= 0 {
		errs = append(errs, fmt.Errorf("latency_attempts must be positive, got %d", c.LatencyAttempts))
	}
	if c.AttemptTimeout <= 0 {
		errs = append(errs, fmt.Errorf("attempt_timeout must be positive, got %s", c.AttemptTimeout))
	}
	if c.ResolverParallelism <= 0 {
		errs = append(errs, fmt.Errorf("resolver_parallelism must be positive, got %d", c.ResolverParallelism))
	}
	if c.SampleWorkers <= 0 {
		errs = append(errs, fmt.Errorf("sample_workers must be positive, got %d", c.SampleWorkers))
	}
	if c.SwitchThreshold < 0 || c.SwitchThreshold > 100 {
		errs = append(errs, fmt.Errorf("switch_threshold must be within 0..100, got %v", c.SwitchThreshold))
	}
	if len(c.Domains) == 0 {
		errs = append(errs, fmt.Errorf("at least one test domain is required"))
	}
	for _, domain := range append(append([]string{}, c.Domains...), c.ReferenceDomain, c.GateDomain) {
		if _, ok := dns.IsDomainName(domain); !ok || strings.TrimSpace(domain) == "" {
			errs = append(errs, fmt.Errorf("invalid domain %q", domain))
		}
	}
	if c.Reachability.Enabled {
		if c.Reachability.PingCount <= 0 {
			errs = append(errs, fmt.Errorf("reachability.ping_count must be positive, got %d", c.Reachability.PingCount))
		}
		if c.Reachability.Timeout <= 0 {
			errs = append(errs, fmt.Errorf("reachability.timeout must be positive, got %s", c.Reachability.Timeout))
		}
		for _, target := range c.Reachability.HTTPTargets {
			if u, err := url.Parse(target); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				errs = append(errs, fmt.Errorf("invalid reachability http target %q", target))
			}
		}
	}
	for _, entry := range c.Resolvers {
		if _, err := netip.ParseAddr(entry.Address); err != nil {
			errs = append(errs, fmt.Errorf("invalid resolver address %q", entry.Address))
		}
	}
	return errors.Join(errs...)
}

func (c Config) ResolverList() []model.Resolver {
	out := make([]model.Resolver, 0, len(c.Resolvers))
	var errs []error
	if c.Reachability.Enabled {
		if c.Reachability.PingCount <= 0 {
			errs = append(errs, fmt.Errorf("reachability.ping_count must be positive, got %d", c.Reachability.PingCount))
		}
		if c.Reachability.Timeout <= 0 {
			errs = append(errs, fmt.Errorf("reachability.timeout must be positive, got %s", c.Reachability.Timeout))
		}
		for _, target := range c.Reachability.HTTPTargets {
			if u, err := url.Parse(target); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				errs = append(errs, fmt.Errorf("invalid reachability http target %q", target))
			}
		}
	}
	for _, entry := range c.Resolvers {
		out = append(out, model.Resolver{Address: strings.TrimSpace(entry.Address), Label: entry.Label})
	}
	return out
}
