package zone

import (
	"context"

	"github.com/go-logr/logr"

	"github.com/yuriy-kovalchuk/yk-dns-sync/internal/config"
	"github.com/yuriy-kovalchuk/yk-dns-sync/internal/dns"
)

// Profile is the credential and backend zone id used to change one zone.
type Profile struct {
	Zone       string
	Credential string
	ZoneID     string
	Session    dns.Session
}

// Profiles maps a zone to its profile. Zones without one are not planned.
type Profiles map[string]Profile

// Has reports whether zone has a usable profile.
func (p Profiles) Has(zone string) bool {
	_, ok := p[zone]
	return ok
}

// ProfileLookup returns an explicitly configured profile entry for a zone.
type ProfileLookup interface {
	Lookup(zone string) (config.ProfileEntry, bool)
}

// ResolveProfiles opens a session and finds the backend zone id for every
// zone. The credential comes from lookup when configured, otherwise from the
// zone's registered parent. Zones that cannot be resolved are logged and left out.
func ResolveProfiles(ctx context.Context, log logr.Logger, provider dns.Provider, lookup ProfileLookup, zones []string) Profiles {
	profiles := Profiles{}
	sessions := map[string]dns.Session{}
	failed := map[string]error{}

	for _, z := range zones {
		credential := Parent(z, zones)
		var zoneID string
		if lookup != nil {
			if entry, ok := lookup.Lookup(z); ok {
				if entry.Credential != "" {
					credential = entry.Credential
				}
				zoneID = entry.ZoneID
			}
		}

		if err, ok := failed[credential]; ok {
			log.Info("skipping zone, credential unavailable", "zone", z, "credential", credential, "error", err.Error())
			continue
		}
		session, ok := sessions[credential]
		if !ok {
			s, err := provider.Session(ctx, credential)
			if err != nil {
				failed[credential] = err
				log.Info("skipping zone, failed to open session", "zone", z, "credential", credential, "error", err.Error())
				continue
			}
			sessions[credential] = s
			session = s
		}

		if zoneID == "" {
			id, err := session.LookupZone(ctx, z)
			if err != nil {
				log.Info("skipping zone, backend zone not found", "zone", z, "credential", credential, "error", err.Error())
				continue
			}
			zoneID = id
		}

		profiles[z] = Profile{Zone: z, Credential: credential, ZoneID: zoneID, Session: session}
		log.V(1).Info("profile resolved", "zone", z, "credential", credential, "zoneID", zoneID)
	}
	return profiles
}
