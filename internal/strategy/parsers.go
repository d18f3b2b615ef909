package strategy

import (
	"bufio"
	"fmt"
	"net/netip"
	"regexp"
	"strings"

	"github.com/miekg/dns"
)

// plausibleAddress accepts a token if it is a routable-looking IP literal,
// tolerating a trailing "#port" as printed by nslookup.
func plausibleAddress(token string) (string, bool) {
	token = strings.TrimSpace(token)
	if idx := strings.Index(token, "#"); idx >= 0 {
		token = token[:idx]
	}
	addr, err := netip.ParseAddr(token)
	if err != nil || addr.IsUnspecified() {
		return "", false
	}
	return addr.WithZone("").String(), true
}

func lines(output string) []string {
	out := []string{}
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func unparsable(tool string) error {
	return fmt.Errorf("%s: %w", tool, ErrUnparsable)
}

// ParseDig reads dig's answer section (or +short output) and returns the
// first A or AAAA record, skipping CNAME hops.
func ParseDig(output string) (string, error) {
	for _, line := range lines(output) {
		if strings.HasPrefix(line, ";") {
			continue
		}
		if addr, ok := plausibleAddress(line); ok {
			return addr, nil
		}
		rr, err := dns.NewRR(line)
		if err != nil || rr == nil {
			continue
		}
		switch record := rr.(type) {
		case *dns.A:
			if addr, ok := plausibleAddress(record.A.String()); ok {
				return addr, nil
			}
		case *dns.AAAA:
			if addr, ok := plausibleAddress(record.AAAA.String()); ok {
				return addr, nil
			}
		}
	}
	return "", unparsable("dig")
}

func ParseHost(output string) (string, error) {
	for _, line := range lines(output) {
		for _, marker := range []string{" has address ", " has IPv6 address "} {
			_, rest, found := strings.Cut(line, marker)
			if !found {
				continue
			}
			if addr, ok := plausibleAddress(rest); ok {
				return addr, nil
			}
		}
	}
	return "", unparsable("host")
}

var nslookupAddress = regexp.MustCompile(`(?i)^addresses?(\s+\d+)?:\s*(.*)$`)

// ParseNslookup skips the server banner and returns the first address that
// follows the answer's Name: line. Windows prints multiple answers as an
// "Addresses:" line followed by bare continuation lines.
func ParseNslookup(output string) (string, error) {
	seenName := false
	for _, line := range lines(output) {
		if strings.HasPrefix(strings.ToLower(line), "name:") {
			seenName = true
			continue
		}
		if !seenName {
			continue
		}
		candidate := line
		if m := nslookupAddress.FindStringSubmatch(line); m != nil {
			candidate = m[2]
		}
		if addr, ok := plausibleAddress(candidate); ok {
			return addr, nil
		}
	}
	return "", unparsable("nslookup")
}

func ParseFirstAddressLine(output string) (string, error) {
	for _, line := range lines(output) {
		if addr, ok := plausibleAddress(line); ok {
			return addr, nil
		}
	}
	return "", unparsable("Resolve-DnsName")
}

func ParseGetent(output string) (string, error) {
	for _, line := range lines(output) {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if addr, ok := plausibleAddress(fields[0]); ok {
			return addr, nil
		}
	}
	return "", unparsable("getent")
}

func ParseDscacheutil(output string) (string, error) {
	for _, line := range lines(output) {
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		switch strings.TrimSpace(key) {
		case "ip_address", "ipv6_address":
			if addr, ok := plausibleAddress(value); ok {
				return addr, nil
			}
		}
	}
	return "", unparsable("dscacheutil")
}
