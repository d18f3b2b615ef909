package resolvers

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/jaxxstorm/dnsdiag/internal/model"
	"github.com/miekg/dns"
)

const DefaultResolvConf = "/etc/resolv.conf"

const SystemLabel = "system"

var DefaultPublicResolvers = []model.Resolver{
	{Address: "8.8.8.8", Label: "Google"},
	{Address: "8.8.4.4", Label: "Google"},
	{Address: "1.1.1.1", Label: "Cloudflare"},
	{Address: "1.0.0.1", Label: "Cloudflare"},
	{Address: "208.67.222.222", Label: "OpenDNS"},
	{Address: "208.67.220.220", Label: "OpenDNS"},
}

// LoadSystem returns the first nameserver from a resolv.conf style file. When
// the file is missing or lists no servers the returned resolver has an empty
// address, which makes every strategy use the OS default path, and the error
// explains why.
func LoadSystem(path string) (model.Resolver, error) {
	system := model.Resolver{Label: SystemLabel, System: true}
	if path == "" {
		return system, fmt.Errorf("no resolver configuration path")
	}
	cfg, err := dns.ClientConfigFromFile(path)
	if err != nil {
		return system, fmt.Errorf("read %s: %w", path, err)
	}
	if len(cfg.Servers) == 0 {
		return system, fmt.Errorf("no nameserver entries in %s", path)
	}
	system.Address = cfg.Servers[0]
	return system, nil
}

// Chain puts the system resolver (when included) ahead of the configured
// public resolvers and drops duplicate addresses, keeping the first.
func Chain(system *model.Resolver, configured []model.Resolver) []model.Resolver {
	all := []model.Resolver{}
	if system != nil {
		all = append(all, *system)
	}
	if len(configured) == 0 {
		configured = DefaultPublicResolvers
	}
	return unique(append(all, configured...))
}

// Parse reads resolvers given as "address" or "address=label".
func Parse(values []string) ([]model.Resolver, error) {
	out := []model.Resolver{}
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		address, label, _ := strings.Cut(value, "=")
		address = strings.TrimSpace(address)
		if _, err := netip.ParseAddr(address); err != nil {
			return nil, fmt.Errorf("invalid resolver address %q: %w", address, err)
		}
		out = append(out, model.Resolver{Address: address, Label: strings.TrimSpace(label)})
	}
	return out, nil
}

func unique(resolvers []model.Resolver) []model.Resolver {
	seen := map[string]struct{}{}
	out := []model.Resolver{}
	for _, resolver := range resolvers {
		resolver.Address = strings.TrimSpace(resolver.Address)
		if resolver.Address == "" && !resolver.System {
			continue
		}
		key := strings.ToLower(resolver.Address)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, resolver)
	}
	return out
}
