package source

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/yuriy-kovalchuk/yk-dns-sync/internal/dns"
	"github.com/yuriy-kovalchuk/yk-dns-sync/internal/record"
)

// Instance is one registered service instance.
type Instance struct {
	Service     string
	Address     string // service address, may be empty
	NodeAddress string
	Tags        []string
}

// Addr returns the service address, falling back to the node address.
func (i Instance) Addr() string {
	if i.Address != "" {
		return i.Address
	}
	return i.NodeAddress
}

// Catalog lists registered services and their instances.
type Catalog interface {
	Services(ctx context.Context) ([]string, error)
	Instances(ctx context.Context, service string) ([]Instance, error)
}

// Filter decides whether a zone may be published.
type Filter interface {
	Allows(zone string) bool
}

// InstanceRecords applies the publication rule to a single instance and calls
// add once per published zone.
func InstanceRecords(inst Instance, add func(zone, value, fqdn string)) {
	tags := ParseTags(inst.Tags)
	if !tags.Has(TagDNS) {
		return
	}
	name := inst.Service
	if tags.Has(TagVHost) {
		name = tags.Get(TagVHost)
	}
	for _, domain := range tags[TagDNS] {
		domain = dns.Canonical(domain)
		if domain == "" {
			continue
		}
		value := dns.Canonical(inst.Addr())
		if tags.Has(TagVHost) {
			value = "haproxy." + domain
		}
		if value == "" {
			continue
		}
		add(domain, value, dns.Canonical(name+"."+domain))
	}
}

// CatalogRecords builds the wanted records of every tagged instance in the
// catalog. Zones rejected by filter are skipped.
func CatalogRecords(ctx context.Context, log logr.Logger, catalog Catalog, filter Filter) (record.Zones, error) {
	services, err := catalog.Services(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing services: %w", err)
	}

	zones := record.Zones{}
	add := func(zone, value, fqdn string) {
		if filter != nil && !filter.Allows(zone) {
			log.V(1).Info("zone not in allow-list, skipping", "zone", zone, "fqdn", fqdn)
			return
		}
		zones.Add(zone, value, fqdn)
	}

	for _, service := range services {
		instances, err := catalog.Instances(ctx, service)
		if err != nil {
			return nil, fmt.Errorf("listing instances of %s: %w", service, err)
		}
		for _, inst := range instances {
			InstanceRecords(inst, add)
		}
	}
	return zones, nil
}
