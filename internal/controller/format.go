package controller

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/go-logr/logr"

	"github.com/yuriy-kovalchuk/yk-dns-sync/internal/dns"
	"github.com/yuriy-kovalchuk/yk-dns-sync/internal/zone"
)

// FormatRecordSets returns a human-readable table of one zone's record sets.
func FormatRecordSets(zoneName, zoneID string, sets []dns.RecordSet) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Zone %s (%s)\n", zoneName, zoneID)
	if len(sets) == 0 {
		fmt.Fprintf(&b, "  <no records>\n")
		return b.String()
	}

	sorted := append([]dns.RecordSet(nil), sets...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Name != sorted[j].Name {
			return sorted[i].Name < sorted[j].Name
		}
		return sorted[i].Type < sorted[j].Type
	})

	fmt.Fprintf(&b, "  %-8s%-8s%-50s%s\n", "Type", "TTL", "Name", "Value")
	fmt.Fprintf(&b, "  %-8s%-8s%-50s%s\n", "----", "---", "----", "-----")
	for _, rs := range sorted {
		fmt.Fprintf(&b, "  %-8s%-8d%-50s%s\n", rs.Type, rs.TTL, rs.Name, strings.Join(rs.Values, ","))
	}
	return b.String()
}

// ListRecords writes the backend's record sets for every zone that resolves
// to a profile. Zones without one are logged and skipped.
func ListRecords(ctx context.Context, log logr.Logger, w io.Writer, provider dns.Provider, lookup zone.ProfileLookup, zones []string) error {
	sort.Strings(zones)
	profiles := zone.ResolveProfiles(ctx, log, provider, lookup, zones)
	for _, z := range zones {
		p, ok := profiles[z]
		if !ok {
			continue
		}
		sets, err := p.Session.ListRecordSets(ctx, p.ZoneID)
		if err != nil {
			return fmt.Errorf("listing records of %s: %w", z, err)
		}
		fmt.Fprint(w, FormatRecordSets(z, p.ZoneID, sets))
	}
	return nil
}
