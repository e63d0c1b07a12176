package config

import (
	"strings"
)

// lookup walks up the labels of name looking for an exact entry, then a
// wildcard entry at each level. Exact matches take priority over wildcards. For
// example, given:
//
//	"*.mydomain.com":    a
//	"app2.mydomain.com": b
//
// "app1.mydomain.com" returns a (wildcard match)
// "app2.mydomain.com" returns b (exact match wins)
//
// The matched key is returned alongside the value.
func lookup[V any](entries map[string]V, name string) (V, string, bool) {
	name = strings.ToLower(strings.TrimSuffix(name, "."))
	for h := name; h != ""; {
		if v, ok := entries[h]; ok {
			return v, h, true
		}
		idx := strings.Index(h, ".")
		if idx < 0 {
			break
		}
		if v, ok := entries["*."+h[idx+1:]]; ok {
			return v, "*." + h[idx+1:], true
		}
		h = h[idx+1:]
	}
	var zero V
	return zero, "", false
}

// AllowList restricts which zones are published. An empty list allows every zone.
type AllowList struct {
	entries map[string]struct{}
}

// NewAllowList builds an allow-list from plain domains and "*.domain" wildcards.
// A plain domain also allows every name below it.
func NewAllowList(domains ...string) *AllowList {
	al := &AllowList{entries: make(map[string]struct{}, len(domains))}
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(d), "."))
		if d != "" {
			al.entries[d] = struct{}{}
		}
	}
	return al
}

// Allows reports whether zone may be published.
func (al *AllowList) Allows(zone string) bool {
	if al == nil || len(al.entries) == 0 {
		return true
	}
	_, _, ok := lookup(al.entries, zone)
	return ok
}

// Domains returns all configured domains.
func (al *AllowList) Domains() []string {
	if al == nil {
		return nil
	}
	domains := make([]string, 0, len(al.entries))
	for d := range al.entries {
		domains = append(domains, d)
	}
	return domains
}

// ProfileMap maps zones to explicitly configured credentials.
type ProfileMap struct {
	entries map[string]ProfileEntry
}

// NewProfileMap builds a ProfileMap; keys may use "*." wildcards.
func NewProfileMap(entries map[string]ProfileEntry) *ProfileMap {
	pm := &ProfileMap{entries: make(map[string]ProfileEntry, len(entries))}
	for k, v := range entries {
		pm.entries[strings.ToLower(strings.TrimSuffix(k, "."))] = v
	}
	return pm
}

// Lookup finds the profile entry governing zone, walking up its labels. A
// pinned zone id only applies to the exact zone it was configured for.
func (pm *ProfileMap) Lookup(zone string) (ProfileEntry, bool) {
	if pm == nil {
		return ProfileEntry{}, false
	}
	entry, key, ok := lookup(pm.entries, zone)
	if ok && key != strings.ToLower(strings.TrimSuffix(zone, ".")) {
		entry.ZoneID = ""
	}
	return entry, ok
}

// Zones returns the non-wildcard zones with an explicit profile.
func (pm *ProfileMap) Zones() []string {
	if pm == nil {
		return nil
	}
	zones := make([]string, 0, len(pm.entries))
	for z := range pm.entries {
		if !strings.HasPrefix(z, "*.") {
			zones = append(zones, z)
		}
	}
	return zones
}
