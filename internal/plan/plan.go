// Package plan diffs wanted against current records and derives the actions
// that converge a zone.
package plan

import (
	"slices"
	"sort"

	"github.com/yuriy-kovalchuk/yk-dns-sync/internal/dns"
	"github.com/yuriy-kovalchuk/yk-dns-sync/internal/record"
)

// Kind is the change an Action makes to a name.
type Kind string

const (
	Create Kind = dns.ActionCreate
	Upsert Kind = dns.ActionUpsert
	Delete Kind = dns.ActionDelete
)

// Action is the single change planned for one name in one zone. Values are
// the full final value list for CREATE and UPSERT, and the removed values for
// DELETE, in sorted order.
type Action struct {
	Name   string
	Kind   Kind
	Values []string
	Type   string
}

func (a *Action) add(value string) {
	if !slices.Contains(a.Values, value) {
		a.Values = append(a.Values, value)
	}
}

// Plan maps a zone to its actions keyed by name.
type Plan map[string]map[string]*Action

// Zones returns the planned zones in sorted order.
func (p Plan) Zones() []string {
	zones := make([]string, 0, len(p))
	for z := range p {
		zones = append(zones, z)
	}
	sort.Strings(zones)
	return zones
}

// Names returns the names planned in zone in sorted order.
func (p Plan) Names(zone string) []string {
	names := make([]string, 0, len(p[zone]))
	for n := range p[zone] {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of actions across all zones.
func (p Plan) Len() int {
	n := 0
	for _, actions := range p {
		n += len(actions)
	}
	return n
}

// TypeFor derives the record type of a final value list: CNAME for exactly
// one non-IPv4 value, A otherwise.
func TypeFor(values []string) string {
	if len(values) == 1 && !dns.IsIPv4(values[0]) {
		return dns.TypeCNAME
	}
	return dns.TypeA
}

// ZoneFilter reports whether a zone may be planned.
type ZoneFilter interface {
	Has(zone string) bool
}

// Compute builds the plan converging current to wanted for every zone that
// appears in either mapping and passes filter. Zones with nothing to change
// are left out, so equal inputs yield an empty plan.
func Compute(wanted, current record.Zones, filter ZoneFilter) Plan {
	zones := map[string]struct{}{}
	for z := range wanted {
		zones[z] = struct{}{}
	}
	for z := range current {
		zones[z] = struct{}{}
	}

	p := Plan{}
	for z := range zones {
		if filter != nil && !filter.Has(z) {
			continue
		}
		if actions := computeZone(wanted.Get(z), current.Get(z)); len(actions) > 0 {
			p[z] = actions
		}
	}
	return p
}

func computeZone(wanted, current record.Set) map[string]*Action {
	currentByName := byName(current)
	wantedByName := byName(wanted)
	actions := map[string]*Action{}

	for _, r := range record.Sorted(wanted.Difference(current)) {
		a, ok := actions[r.FQDN]
		if !ok {
			a = &Action{Name: r.FQDN, Kind: Create}
			actions[r.FQDN] = a
		}
		a.add(r.Value)

		existing, exists := currentByName[r.FQDN]
		if !exists || a.Kind == Upsert {
			continue
		}
		a.Kind = Upsert
		for _, v := range existing {
			if wanted.Has(record.Record{Value: v, FQDN: r.FQDN}) {
				a.add(v)
			}
		}
	}

	for _, r := range record.Sorted(current.Difference(wanted)) {
		a, ok := actions[r.FQDN]
		if ok && a.Kind != Delete {
			continue
		}
		if !ok {
			a = &Action{Name: r.FQDN, Kind: Delete}
			actions[r.FQDN] = a
		}

		var retained []string
		for _, v := range wantedByName[r.FQDN] {
			if current.Has(record.Record{Value: v, FQDN: r.FQDN}) {
				retained = append(retained, v)
			}
		}
		if len(retained) > 0 {
			// Partial prune: rewrite the name to the values that stay.
			a.Kind = Upsert
			a.Values = retained
			continue
		}
		a.add(r.Value)
	}

	for _, a := range actions {
		sort.Strings(a.Values)
		a.Type = TypeFor(a.Values)
	}
	return actions
}

func byName(s record.Set) map[string][]string {
	out := map[string][]string{}
	for _, r := range record.Sorted(s) {
		out[r.FQDN] = append(out[r.FQDN], r.Value)
	}
	return out
}
