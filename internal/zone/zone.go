// Package zone decides which registered zone, and which credential, governs a name.
package zone

import (
	"github.com/yuriy-kovalchuk/yk-dns-sync/internal/dns"
)

// Resolve returns the zone domain belongs to among the registered zones: the
// zone itself when registered, otherwise the shortest (closest to the root)
// registered zone above it, otherwise domain unchanged.
func Resolve(domain string, zones []string) string {
	domain = dns.Canonical(domain)
	best := ""
	for _, z := range zones {
		z = dns.Canonical(z)
		if z == domain {
			return domain
		}
		if dns.IsSubDomain(z, domain) && (best == "" || len(z) < len(best)) {
			best = z
		}
	}
	if best == "" {
		return domain
	}
	return best
}

// Parent returns the shortest registered zone strictly above zone, or zone
// itself. Sub-zones use their parent's credential.
func Parent(zone string, zones []string) string {
	zone = dns.Canonical(zone)
	best := zone
	for _, z := range zones {
		z = dns.Canonical(z)
		if z == zone || !dns.IsSubDomain(z, zone) {
			continue
		}
		if len(z) < len(best) {
			best = z
		}
	}
	return best
}

// Owner returns the longest (most specific) registered zone containing name,
// or "" when none does.
func Owner(name string, zones []string) string {
	name = dns.Canonical(name)
	best := ""
	for _, z := range zones {
		z = dns.Canonical(z)
		if (z == name || dns.IsSubDomain(z, name)) && len(z) > len(best) {
			best = z
		}
	}
	return best
}
