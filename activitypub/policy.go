package activitypub

import (
	"net/url"
	"strings"
)

// Decision is the outcome of a federation policy check.
type Decision struct {
	Allowed bool
	Host    string
	Reason  string
}

// Policy is the allow/block gate applied to every cross-instance
// interaction: inbound actor trust, actor fetches and outbound deliveries.
// It is derived from configuration per use, never persisted.
type Policy struct {
	blocked []string
	allowed []string
}

// NewPolicy builds a policy from comma-separated hostname lists. Entries
// are case-normalized and trimmed; empty entries are dropped.
func NewPolicy(blockedCSV, allowedCSV string) *Policy {
	return &Policy{
		blocked: splitHostList(blockedCSV),
		allowed: splitHostList(allowedCSV),
	}
}

func splitHostList(csv string) []string {
	var out []string
	for _, entry := range strings.Split(csv, ",") {
		entry = strings.ToLower(strings.TrimSpace(entry))
		if entry != "" {
			out = append(out, entry)
		}
	}
	return out
}

// Decide checks a URI or bare hostname against the policy. An unparseable
// host is allowed by default, unless an allow-list is configured, in which
// case the default flips to deny.
func (p *Policy) Decide(uriOrHost string) Decision {
	host := extractHost(uriOrHost)
	if host == "" {
		if len(p.allowed) > 0 {
			return Decision{Allowed: false, Reason: "unparseable host with allow-list configured"}
		}
		return Decision{Allowed: true}
	}

	for _, pattern := range p.blocked {
		if hostMatches(host, pattern) {
			return Decision{Allowed: false, Host: host, Reason: "host is blocked: " + pattern}
		}
	}

	if len(p.allowed) > 0 {
		for _, pattern := range p.allowed {
			if hostMatches(host, pattern) {
				return Decision{Allowed: true, Host: host}
			}
		}
		return Decision{Allowed: false, Host: host, Reason: "host not on allow-list"}
	}

	return Decision{Allowed: true, Host: host}
}

// hostMatches reports whether host equals pattern or is a subdomain of it:
// "foo.bar.example" matches "bar.example".
func hostMatches(host, pattern string) bool {
	return host == pattern || strings.HasSuffix(host, "."+pattern)
}

func extractHost(uriOrHost string) string {
	if strings.Contains(uriOrHost, "://") {
		parsed, err := url.Parse(uriOrHost)
		if err != nil {
			return ""
		}
		return strings.ToLower(parsed.Hostname())
	}
	host := strings.ToLower(strings.TrimSpace(uriOrHost))
	// Strip a port if present
	if i := strings.LastIndex(host, ":"); i > 0 && !strings.Contains(host, "]") {
		host = host[:i]
	}
	return host
}
