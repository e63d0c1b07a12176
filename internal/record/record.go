// Package record holds the value types a reconciliation pass is built from.
package record

import (
	"sort"

	"k8s.io/apimachinery/pkg/util/sets"
)

// Record is one published DNS entry. Value is an IPv4 literal or a target hostname.
type Record struct {
	Value string
	FQDN  string
}

// Set is a set of records scoped to a single zone.
type Set = sets.Set[Record]

// NewSet builds a Set from the given records.
func NewSet(records ...Record) Set {
	return sets.New(records...)
}

// Zones maps a zone name to its record set.
type Zones map[string]Set

// Add inserts (value, fqdn) under zone, creating the zone's set on first use.
func (z Zones) Add(zone, value, fqdn string) {
	s, ok := z[zone]
	if !ok {
		s = sets.New[Record]()
		z[zone] = s
	}
	s.Insert(Record{Value: value, FQDN: fqdn})
}

// Get returns the set for zone, or an empty set.
func (z Zones) Get(zone string) Set {
	if s, ok := z[zone]; ok {
		return s
	}
	return sets.New[Record]()
}

// Names returns the zone names in sorted order.
func (z Zones) Names() []string {
	names := make([]string, 0, len(z))
	for name := range z {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of records across all zones.
func (z Zones) Len() int {
	n := 0
	for _, s := range z {
		n += s.Len()
	}
	return n
}

// Sorted returns the records of s ordered by fqdn, then value.
func Sorted(s Set) []Record {
	out := s.UnsortedList()
	sort.Slice(out, func(i, j int) bool {
		if out[i].FQDN != out[j].FQDN {
			return out[i].FQDN < out[j].FQDN
		}
		return out[i].Value < out[j].Value
	})
	return out
}

// All returns every record of every zone, ordered by fqdn, then value.
func (z Zones) All() []Record {
	merged := sets.New[Record]()
	for _, s := range z {
		merged = merged.Union(s)
	}
	return Sorted(merged)
}
