// Package azuredns implements dns.Provider on top of Azure DNS zones. Credential
// handles name the resource group that holds the zone.
package azuredns

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/dns/armdns"
	"github.com/go-logr/logr"

	"github.com/yuriy-kovalchuk/yk-dns-sync/internal/dns"
)

func init() {
	dns.Register("azuredns", func(log logr.Logger, settings map[string]string) (dns.Provider, error) {
		return New(log, settings)
	})
}

// API is the part of the armdns clients the provider needs.
type API interface {
	GetZone(ctx context.Context, resourceGroup, zone string) (*armdns.Zone, error)
	ListRecordSets(ctx context.Context, resourceGroup, zone string) ([]*armdns.RecordSet, error)
	CreateOrUpdate(ctx context.Context, resourceGroup, zone, relative string, recordType armdns.RecordType, rs armdns.RecordSet, ifNoneMatch *string) error
	Delete(ctx context.Context, resourceGroup, zone, relative string, recordType armdns.RecordType) error
}

// Provider implements dns.Provider for Azure DNS.
type Provider struct {
	resourceGroup string
	api           API
	log           logr.Logger
}

// New creates an Azure DNS provider authenticated with the default Azure
// credential chain. Required settings: subscription_id. Optional settings:
// resource_group (overrides every credential handle).
func New(log logr.Logger, settings map[string]string) (*Provider, error) {
	subscriptionID := settings["subscription_id"]
	if subscriptionID == "" {
		return nil, fmt.Errorf("azuredns: missing required setting 'subscription_id'")
	}

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("azuredns: create credential: %w", err)
	}
	factory, err := armdns.NewClientFactory(subscriptionID, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("azuredns: create client factory: %w", err)
	}

	return NewWithAPI(log, settings, &clients{
		zones:      factory.NewZonesClient(),
		recordSets: factory.NewRecordSetsClient(),
	}), nil
}

// NewWithAPI creates a provider over an existing API implementation.
func NewWithAPI(log logr.Logger, settings map[string]string, api API) *Provider {
	return &Provider{
		resourceGroup: settings["resource_group"],
		api:           api,
		log:           log,
	}
}

// Session binds the resource group named by credential.
func (p *Provider) Session(_ context.Context, credential string) (dns.Session, error) {
	rg := credential
	if p.resourceGroup != "" {
		rg = p.resourceGroup
	}
	if rg == "" {
		return nil, fmt.Errorf("azuredns: no resource group for credential %q", credential)
	}
	return &session{resourceGroup: rg, api: p.api, log: p.log}, nil
}

type session struct {
	resourceGroup string
	api           API
	log           logr.Logger
}

// LookupZone checks the zone exists in the resource group. Azure addresses
// zones by name, so the name doubles as the zone id.
func (s *session) LookupZone(ctx context.Context, zone string) (string, error) {
	z, err := s.api.GetZone(ctx, s.resourceGroup, zone)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
			return "", fmt.Errorf("azuredns: %q in %s: %w", zone, s.resourceGroup, dns.ErrZoneNotFound)
		}
		return "", fmt.Errorf("azuredns: get zone %q: %w", zone, err)
	}
	return deref(z.Name, zone), nil
}

// ListRecordSets returns the A and CNAME record sets of the zone.
func (s *session) ListRecordSets(ctx context.Context, zoneID string) ([]dns.RecordSet, error) {
	sets, err := s.api.ListRecordSets(ctx, s.resourceGroup, zoneID)
	if err != nil {
		return nil, fmt.Errorf("azuredns: list record sets of %s: %w", zoneID, err)
	}
	var out []dns.RecordSet
	for _, rs := range sets {
		if converted, ok := fromRecordSet(zoneID, rs); ok {
			out = append(out, converted)
		}
	}
	return out, nil
}

// SubmitChange maps CREATE to a conditional put, UPSERT to a put and DELETE to a delete.
func (s *session) SubmitChange(ctx context.Context, zoneID string, change dns.Change) error {
	relative := relativeName(zoneID, change.Name)
	recordType := armdns.RecordType(change.Type)

	var err error
	switch change.Action {
	case dns.ActionCreate:
		err = s.api.CreateOrUpdate(ctx, s.resourceGroup, zoneID, relative, recordType, toRecordSet(change), to.Ptr("*"))
	case dns.ActionUpsert:
		// A and CNAME sets cannot coexist under one name.
		if err := s.deleteOtherType(ctx, zoneID, relative, change.Type); err != nil {
			return fmt.Errorf("azuredns: %s %s %s: %w", change.Action, change.Type, change.Name, err)
		}
		err = s.api.CreateOrUpdate(ctx, s.resourceGroup, zoneID, relative, recordType, toRecordSet(change), nil)
	case dns.ActionDelete:
		err = s.api.Delete(ctx, s.resourceGroup, zoneID, relative, recordType)
	default:
		return fmt.Errorf("azuredns: unsupported change action %q", change.Action)
	}
	if err != nil {
		return fmt.Errorf("azuredns: %s %s %s: %w", change.Action, change.Type, change.Name, err)
	}
	s.log.V(1).Info("change submitted", "zone", zoneID, "resourceGroup", s.resourceGroup, "action", change.Action, "name", change.Name)
	return nil
}

func (s *session) deleteOtherType(ctx context.Context, zoneID, relative, recordType string) error {
	other := armdns.RecordTypeCNAME
	if recordType == dns.TypeCNAME {
		other = armdns.RecordTypeA
	}
	err := s.api.Delete(ctx, s.resourceGroup, zoneID, relative, other)
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
		return nil
	}
	return err
}

// relativeName converts an FQDN to the record set name Azure expects; the apex is "@".
func relativeName(zone, fqdn string) string {
	fqdn = dns.Canonical(fqdn)
	zone = dns.Canonical(zone)
	if fqdn == zone {
		return "@"
	}
	return strings.TrimSuffix(fqdn, "."+zone)
}

func toRecordSet(change dns.Change) armdns.RecordSet {
	props := &armdns.RecordSetProperties{TTL: to.Ptr(change.TTL)}
	if change.Type == dns.TypeCNAME && len(change.Values) > 0 {
		props.CnameRecord = &armdns.CnameRecord{Cname: to.Ptr(change.Values[0])}
	} else {
		for _, v := range change.Values {
			props.ARecords = append(props.ARecords, &armdns.ARecord{IPv4Address: to.Ptr(v)})
		}
	}
	return armdns.RecordSet{Properties: props}
}

func fromRecordSet(zone string, rs *armdns.RecordSet) (dns.RecordSet, bool) {
	if rs == nil || rs.Properties == nil {
		return dns.RecordSet{}, false
	}
	typ := deref(rs.Type, "")
	typ = typ[strings.LastIndex(typ, "/")+1:]

	name := dns.Canonical(deref(rs.Properties.Fqdn, ""))
	if name == "" {
		relative := deref(rs.Name, "@")
		name = dns.Canonical(zone)
		if relative != "@" {
			name = dns.Canonical(relative + "." + zone)
		}
	}

	out := dns.RecordSet{Name: name, Type: typ, TTL: deref(rs.Properties.TTL, 0)}
	switch typ {
	case dns.TypeA:
		for _, a := range rs.Properties.ARecords {
			if a != nil && a.IPv4Address != nil {
				out.Values = append(out.Values, *a.IPv4Address)
			}
		}
	case dns.TypeCNAME:
		if c := rs.Properties.CnameRecord; c != nil && c.Cname != nil {
			out.Values = append(out.Values, dns.Canonical(*c.Cname))
		}
	default:
		return dns.RecordSet{}, false
	}
	return out, true
}

// clients adapts the generated armdns clients to API.
type clients struct {
	zones      *armdns.ZonesClient
	recordSets *armdns.RecordSetsClient
}

func (c *clients) GetZone(ctx context.Context, resourceGroup, zone string) (*armdns.Zone, error) {
	resp, err := c.zones.Get(ctx, resourceGroup, zone, nil)
	if err != nil {
		return nil, err
	}
	return &resp.Zone, nil
}

func (c *clients) ListRecordSets(ctx context.Context, resourceGroup, zone string) ([]*armdns.RecordSet, error) {
	var out []*armdns.RecordSet
	pager := c.recordSets.NewListAllByDNSZonePager(resourceGroup, zone, nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, page.Value...)
	}
	return out, nil
}

func (c *clients) CreateOrUpdate(ctx context.Context, resourceGroup, zone, relative string, recordType armdns.RecordType, rs armdns.RecordSet, ifNoneMatch *string) error {
	_, err := c.recordSets.CreateOrUpdate(ctx, resourceGroup, zone, relative, recordType, rs, &armdns.RecordSetsClientCreateOrUpdateOptions{IfNoneMatch: ifNoneMatch})
	return err
}

func (c *clients) Delete(ctx context.Context, resourceGroup, zone, relative string, recordType armdns.RecordType) error {
	_, err := c.recordSets.Delete(ctx, resourceGroup, zone, relative, recordType, nil)
	return err
}

func deref[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}
