package strategy

import (
	"strings"
	"time"

	"github.com/jaxxstorm/dnsdiag/internal/runner"
)

var Dig = Strategy{
	Name: "dig",
	Tool: "dig",
	Build: func(server, domain string, timeout time.Duration) runner.Command {
		args := []string{"+noall", "+answer", "+time=" + seconds(timeout), "+tries=1"}
		if server != "" {
			args = append(args, "@"+server)
		}
		return runner.Command{Name: "dig", Args: append(args, domain, "A")}
	},
	Parse: ParseDig,
}

var Host = Strategy{
	Name: "host",
	Tool: "host",
	Build: func(server, domain string, timeout time.Duration) runner.Command {
		args := []string{"-t", "A", "-W", seconds(timeout), domain}
		if server != "" {
			args = append(args, server)
		}
		return runner.Command{Name: "host", Args: args}
	},
	Parse: ParseHost,
}

var Nslookup = Strategy{
	Name: "nslookup",
	Tool: "nslookup",
	Build: func(server, domain string, _ time.Duration) runner.Command {
		args := []string{domain}
		if server != "" {
			args = append(args, server)
		}
		return runner.Command{Name: "nslookup", Args: args}
	},
	Parse: ParseNslookup,
}

var ResolveDNSName = Strategy{
	Name: "resolve-dnsname",
	Tool: "powershell",
	Build: func(server, domain string, _ time.Duration) runner.Command {
		script := "Resolve-DnsName -Name " + psQuote(domain) + " -Type A -DnsOnly -NoHostsFile -QuickTimeout -ErrorAction Stop"
		if server != "" {
			script += " -Server " + psQuote(server)
		}
		script += " | Where-Object { $_.IPAddress } | Select-Object -First 1 -ExpandProperty IPAddress"
		return runner.Command{Name: "powershell", Args: []string{"-NoProfile", "-NonInteractive", "-Command", script}}
	},
	Parse: ParseFirstAddressLine,
}

var Getent = Strategy{
	Name:  "getent",
	Tool:  "getent",
	Scope: ScopeDefaultOnly,
	Build: func(_, domain string, _ time.Duration) runner.Command {
		return runner.Command{Name: "getent", Args: []string{"ahostsv4", domain}}
	},
	Parse: ParseGetent,
}

var Dscacheutil = Strategy{
	Name:  "dscacheutil",
	Tool:  "dscacheutil",
	Scope: ScopeDefaultOnly,
	Build: func(_, domain string, _ time.Duration) runner.Command {
		return runner.Command{Name: "dscacheutil", Args: []string{"-q", "host", "-a", "name", domain}}
	},
	Parse: ParseDscacheutil,
}

var platformStrategies = map[string][]Strategy{
	"linux":   {Dig, Host, Nslookup, Getent},
	"darwin":  {Dig, Host, Nslookup, Dscacheutil},
	"windows": {ResolveDNSName, Nslookup},
}

var fallbackStrategies = []Strategy{Dig, Host, Nslookup}

// ForPlatform returns the ordered strategies for a GOOS value.
func ForPlatform(goos string) []Strategy {
	if strategies, ok := platformStrategies[goos]; ok {
		return append([]Strategy{}, strategies...)
	}
	return append([]Strategy{}, fallbackStrategies...)
}

func psQuote(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}
