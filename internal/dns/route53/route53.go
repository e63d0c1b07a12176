// Package route53 implements dns.Provider on top of AWS Route53. Credential
// handles are shared-config profile names, the way the AWS CLI selects them.
package route53

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/route53/types"
	"github.com/go-logr/logr"

	"github.com/yuriy-kovalchuk/yk-dns-sync/internal/dns"
)

func init() {
	dns.Register("route53", func(log logr.Logger, settings map[string]string) (dns.Provider, error) {
		return New(log, settings)
	})
}

const defaultRegion = "us-east-1"

// API is the subset of *route53.Client the provider uses.
type API interface {
	ListHostedZonesByName(ctx context.Context, in *route53.ListHostedZonesByNameInput, optFns ...func(*route53.Options)) (*route53.ListHostedZonesByNameOutput, error)
	ListResourceRecordSets(ctx context.Context, in *route53.ListResourceRecordSetsInput, optFns ...func(*route53.Options)) (*route53.ListResourceRecordSetsOutput, error)
	ChangeResourceRecordSets(ctx context.Context, in *route53.ChangeResourceRecordSetsInput, optFns ...func(*route53.Options)) (*route53.ChangeResourceRecordSetsOutput, error)
}

// Provider implements dns.Provider for Route53.
type Provider struct {
	region      string
	useProfiles bool
	comment     string
	log         logr.Logger

	// newAPI is swapped in tests.
	newAPI func(ctx context.Context, profile string) (API, error)
}

// New creates a Route53 provider.
// Optional settings: region (default us-east-1), use_profiles (default true;
// when "false" every credential uses the default AWS credential chain), comment.
func New(log logr.Logger, settings map[string]string) (*Provider, error) {
	p := &Provider{
		region:      settings["region"],
		useProfiles: settings["use_profiles"] != "false",
		comment:     settings["comment"],
		log:         log,
	}
	if p.region == "" {
		p.region = defaultRegion
	}
	if p.comment == "" {
		p.comment = "yk-dns-sync"
	}
	p.newAPI = p.loadClient
	return p, nil
}

func (p *Provider) loadClient(ctx context.Context, profile string) (API, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(p.region)}
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return route53.NewFromConfig(cfg), nil
}

// Session loads the AWS configuration for credential.
func (p *Provider) Session(ctx context.Context, credential string) (dns.Session, error) {
	profile := credential
	if !p.useProfiles {
		profile = ""
	}
	api, err := p.newAPI(ctx, profile)
	if err != nil {
		return nil, fmt.Errorf("route53: load config for profile %q: %w", profile, err)
	}
	p.log.V(1).Info("session opened", "profile", profile)
	return &session{api: api, comment: p.comment, log: p.log}, nil
}

type session struct {
	api     API
	comment string
	log     logr.Logger
}

// LookupZone finds the hosted zone whose name is exactly zone.
func (s *session) LookupZone(ctx context.Context, zone string) (string, error) {
	out, err := s.api.ListHostedZonesByName(ctx, &route53.ListHostedZonesByNameInput{
		DNSName:  aws.String(zone),
		MaxItems: aws.Int32(10),
	})
	if err != nil {
		return "", fmt.Errorf("route53: list hosted zones by name %q: %w", zone, err)
	}
	for _, hz := range out.HostedZones {
		if dns.Canonical(aws.ToString(hz.Name)) == dns.Canonical(zone) {
			return strings.TrimPrefix(aws.ToString(hz.Id), "/hostedzone/"), nil
		}
	}
	return "", fmt.Errorf("route53: %q: %w", zone, dns.ErrZoneNotFound)
}

// ListRecordSets pages through every record set of the hosted zone.
func (s *session) ListRecordSets(ctx context.Context, zoneID string) ([]dns.RecordSet, error) {
	in := &route53.ListResourceRecordSetsInput{HostedZoneId: aws.String(zoneID)}
	var out []dns.RecordSet
	for {
		page, err := s.api.ListResourceRecordSets(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("route53: list record sets of %s: %w", zoneID, err)
		}
		for _, rrs := range page.ResourceRecordSets {
			rs := dns.RecordSet{
				Name: unescape(aws.ToString(rrs.Name)),
				Type: string(rrs.Type),
				TTL:  aws.ToInt64(rrs.TTL),
			}
			for _, rr := range rrs.ResourceRecords {
				rs.Values = append(rs.Values, dns.Canonical(aws.ToString(rr.Value)))
			}
			out = append(out, rs)
		}
		if !page.IsTruncated {
			return out, nil
		}
		in.StartRecordName = page.NextRecordName
		in.StartRecordType = page.NextRecordType
		in.StartRecordIdentifier = page.NextRecordIdentifier
	}
}

// SubmitChange sends a single-change batch.
func (s *session) SubmitChange(ctx context.Context, zoneID string, change dns.Change) error {
	rrs := &types.ResourceRecordSet{
		Name: aws.String(change.Name),
		Type: types.RRType(change.Type),
		TTL:  aws.Int64(change.TTL),
	}
	for _, v := range change.Values {
		rrs.ResourceRecords = append(rrs.ResourceRecords, types.ResourceRecord{Value: aws.String(v)})
	}

	_, err := s.api.ChangeResourceRecordSets(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(zoneID),
		ChangeBatch: &types.ChangeBatch{
			Comment: aws.String(s.comment),
			Changes: []types.Change{{
				Action:            types.ChangeAction(change.Action),
				ResourceRecordSet: rrs,
			}},
		},
	})
	if err != nil {
		return fmt.Errorf("route53: %s %s %s: %w", change.Action, change.Type, change.Name, err)
	}
	s.log.V(1).Info("change submitted", "zone", zoneID, "action", change.Action, "name", change.Name)
	return nil
}

// unescape turns Route53's octal escapes for wildcards back into "*".
func unescape(name string) string {
	return dns.Canonical(strings.ReplaceAll(name, `\052`, "*"))
}
