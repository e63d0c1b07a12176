package dns

import (
	"net/netip"
	"strings"

	mdns "github.com/miekg/dns"
)

// SplitHostname splits an FQDN into subdomain and domain parts.
// e.g. "app.example.com" → ("app", "example.com")
// e.g. "sub.app.example.com" → ("sub", "app.example.com")
func SplitHostname(fqdn string) (hostname, domain string) {
	fqdn = strings.TrimSuffix(fqdn, ".")
	parts := strings.SplitN(fqdn, ".", 2)
	if len(parts) < 2 {
		return fqdn, ""
	}
	return parts[0], parts[1]
}

// Canonical lowercases name and strips the trailing root dot.
func Canonical(name string) string {
	if name == "" {
		return ""
	}
	return strings.TrimSuffix(mdns.CanonicalName(name), ".")
}

// IsIPv4 reports whether value is a dotted-quad IPv4 literal.
func IsIPv4(value string) bool {
	addr, err := netip.ParseAddr(value)
	return err == nil && addr.Is4()
}

// IsDomainName reports whether name is a syntactically valid domain name with
// at least two labels.
func IsDomainName(name string) bool {
	labels, ok := mdns.IsDomainName(name)
	return ok && labels >= 2
}

// IsSubDomain reports whether child equals parent or sits below it, label-wise.
func IsSubDomain(parent, child string) bool {
	return mdns.IsSubDomain(mdns.Fqdn(parent), mdns.Fqdn(child))
}
