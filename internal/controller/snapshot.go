package controller

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/yuriy-kovalchuk/yk-dns-sync/internal/apply"
	"github.com/yuriy-kovalchuk/yk-dns-sync/internal/dns"
	"github.com/yuriy-kovalchuk/yk-dns-sync/internal/record"
	"github.com/yuriy-kovalchuk/yk-dns-sync/internal/source"
	"github.com/yuriy-kovalchuk/yk-dns-sync/internal/zone"
)

// Snapshot is the full state gathered for one pass. Nothing in it outlives the pass.
type Snapshot struct {
	Wanted   record.Zones
	Current  record.Zones
	Profiles zone.Profiles
	TTLs     apply.TTLs
}

// SnapshotBuilder gathers wanted and current records from their sources.
type SnapshotBuilder struct {
	Catalog source.Catalog
	Allow   source.Filter
	DNS     dns.Provider
	// Lookup holds explicitly configured credentials; nil delegates to parent zones.
	Lookup zone.ProfileLookup
	// ExternalHosts feed the wanted set, HostFiles the current set.
	ExternalHosts []string
	HostFiles     []string
}

// Build assembles a fresh snapshot. Only a catalog failure is returned; zone
// and file problems are logged and leave the affected part out.
func (b *SnapshotBuilder) Build(ctx context.Context, log logr.Logger) (*Snapshot, error) {
	wanted, err := source.CatalogRecords(ctx, log, b.Catalog, b.Allow)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}

	if err := source.MergeHostFiles(wanted, b.ExternalHosts, wanted, zone.Resolve); err != nil {
		log.Error(err, "failed to read external host files")
	}

	snap := &Snapshot{
		Wanted:   wanted,
		Current:  record.Zones{},
		Profiles: zone.Profiles{},
		TTLs:     apply.TTLs{},
	}
	if b.DNS != nil {
		snap.Profiles = zone.ResolveProfiles(ctx, log, b.DNS, b.Lookup, wanted.Names())
	}

	// Known zones are the wanted zones, profiled or not.
	known := wanted.Names()
	for _, z := range known {
		if !snap.Profiles.Has(z) {
			continue
		}
		p := snap.Profiles[z]
		sets, err := p.Session.ListRecordSets(ctx, p.ZoneID)
		if err != nil {
			log.Error(err, "failed to list backend records, skipping zone", "zone", z)
			delete(snap.Profiles, z)
			continue
		}
		for _, rs := range sets {
			if rs.Type != dns.TypeA && rs.Type != dns.TypeCNAME {
				continue
			}
			name := dns.Canonical(rs.Name)
			// Names of a more specific known zone belong to it, even
			// when that zone has no profile and is not planned.
			if zone.Owner(name, known) != z {
				continue
			}
			for _, v := range rs.Values {
				snap.Current.Add(z, dns.Canonical(v), name)
			}
			snap.TTLs[name] = rs.TTL
		}
	}

	if err := source.MergeHostFiles(snap.Current, b.HostFiles, snap.Wanted, zone.Resolve); err != nil {
		log.Error(err, "failed to read host files")
	}

	log.V(1).Info("snapshot built",
		"wantedZones", len(snap.Wanted), "wantedRecords", snap.Wanted.Len(),
		"currentRecords", snap.Current.Len(), "profiles", len(snap.Profiles))
	return snap, nil
}
