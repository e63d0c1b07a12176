package route53

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/route53/types"
	"github.com/go-logr/logr"

	"github.com/yuriy-kovalchuk/yk-dns-sync/internal/dns"
)

type fakeAPI struct {
	mu      sync.Mutex
	zones   []types.HostedZone
	pages   []*route53.ListResourceRecordSetsOutput
	listIn  []*route53.ListResourceRecordSetsInput
	changes []*route53.ChangeResourceRecordSetsInput
	err     error
}

func (f *fakeAPI) ListHostedZonesByName(_ context.Context, _ *route53.ListHostedZonesByNameInput, _ ...func(*route53.Options)) (*route53.ListHostedZonesByNameOutput, error) {
	return &route53.ListHostedZonesByNameOutput{HostedZones: f.zones}, nil
}

func (f *fakeAPI) ListResourceRecordSets(_ context.Context, in *route53.ListResourceRecordSetsInput, _ ...func(*route53.Options)) (*route53.ListResourceRecordSetsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *in
	f.listIn = append(f.listIn, &cp)
	page := f.pages[0]
	f.pages = f.pages[1:]
	return page, nil
}

func (f *fakeAPI) ChangeResourceRecordSets(_ context.Context, in *route53.ChangeResourceRecordSetsInput, _ ...func(*route53.Options)) (*route53.ChangeResourceRecordSetsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changes = append(f.changes, in)
	if f.err != nil {
		return nil, f.err
	}
	return &route53.ChangeResourceRecordSetsOutput{}, nil
}

func newTestProvider(t *testing.T, api *fakeAPI, settings map[string]string) (*Provider, *[]string) {
	t.Helper()
	p, err := New(logr.Discard(), settings)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var profiles []string
	p.newAPI = func(_ context.Context, profile string) (API, error) {
		profiles = append(profiles, profile)
		return api, nil
	}
	return p, &profiles
}

func TestNew_Defaults(t *testing.T) {
	p, err := New(logr.Discard(), map[string]string{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.region != defaultRegion {
		t.Errorf("expected region %q, got %q", defaultRegion, p.region)
	}
	if !p.useProfiles {
		t.Error("expected profiles to be used by default")
	}
}

func TestSession_ProfileSelection(t *testing.T) {
	api := &fakeAPI{}

	p, profiles := newTestProvider(t, api, map[string]string{})
	if _, err := p.Session(context.Background(), "example.com"); err != nil {
		t.Fatal(err)
	}
	if (*profiles)[0] != "example.com" {
		t.Errorf("expected profile 'example.com', got %q", (*profiles)[0])
	}

	p, profiles = newTestProvider(t, api, map[string]string{"use_profiles": "false"})
	if _, err := p.Session(context.Background(), "example.com"); err != nil {
		t.Fatal(err)
	}
	if (*profiles)[0] != "" {
		t.Errorf("expected default credential chain, got profile %q", (*profiles)[0])
	}
}

func TestLookupZone(t *testing.T) {
	api := &fakeAPI{zones: []types.HostedZone{
		{Id: aws.String("/hostedzone/ZOTHER"), Name: aws.String("other.example.com.")},
		{Id: aws.String("/hostedzone/Z123"), Name: aws.String("example.com.")},
	}}
	p, _ := newTestProvider(t, api, nil)
	s, _ := p.Session(context.Background(), "")

	id, err := s.LookupZone(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("LookupZone: %v", err)
	}
	if id != "Z123" {
		t.Errorf("expected Z123, got %q", id)
	}

	if _, err := s.LookupZone(context.Background(), "missing.org"); !errors.Is(err, dns.ErrZoneNotFound) {
		t.Errorf("expected ErrZoneNotFound, got %v", err)
	}
}

func TestListRecordSets_Paginates(t *testing.T) {
	api := &fakeAPI{pages: []*route53.ListResourceRecordSetsOutput{
		{
			ResourceRecordSets: []types.ResourceRecordSet{{
				Name:            aws.String("a.example.com."),
				Type:            types.RRTypeA,
				TTL:             aws.Int64(30),
				ResourceRecords: []types.ResourceRecord{{Value: aws.String("1.1.1.1")}, {Value: aws.String("2.2.2.2")}},
			}},
			IsTruncated:    true,
			NextRecordName: aws.String("b.example.com."),
			NextRecordType: types.RRTypeCname,
		},
		{
			ResourceRecordSets: []types.ResourceRecordSet{{
				Name:            aws.String(`\052.example.com.`),
				Type:            types.RRTypeCname,
				TTL:             aws.Int64(300),
				ResourceRecords: []types.ResourceRecord{{Value: aws.String("haproxy.example.com.")}},
			}},
		},
	}}
	p, _ := newTestProvider(t, api, nil)
	s, _ := p.Session(context.Background(), "")

	sets, err := s.ListRecordSets(context.Background(), "Z123")
	if err != nil {
		t.Fatalf("ListRecordSets: %v", err)
	}

	want := []dns.RecordSet{
		{Name: "a.example.com", Type: "A", TTL: 30, Values: []string{"1.1.1.1", "2.2.2.2"}},
		{Name: "*.example.com", Type: "CNAME", TTL: 300, Values: []string{"haproxy.example.com"}},
	}
	if !reflect.DeepEqual(sets, want) {
		t.Errorf("ListRecordSets() = %+v, want %+v", sets, want)
	}
	if len(api.listIn) != 2 || aws.ToString(api.listIn[1].StartRecordName) != "b.example.com." {
		t.Errorf("expected second page to start at b.example.com., got %+v", api.listIn)
	}
}

func TestSubmitChange(t *testing.T) {
	api := &fakeAPI{}
	p, _ := newTestProvider(t, api, nil)
	s, _ := p.Session(context.Background(), "")

	err := s.SubmitChange(context.Background(), "Z123", dns.Change{
		Action: dns.ActionUpsert,
		Name:   "a.example.com",
		Type:   dns.TypeA,
		TTL:    30,
		Values: []string{"1.1.1.1", "2.2.2.2"},
	})
	if err != nil {
		t.Fatalf("SubmitChange: %v", err)
	}

	if len(api.changes) != 1 {
		t.Fatalf("expected 1 change batch, got %d", len(api.changes))
	}
	c := api.changes[0].ChangeBatch.Changes[0]
	if c.Action != types.ChangeActionUpsert {
		t.Errorf("expected UPSERT, got %s", c.Action)
	}
	if aws.ToInt64(c.ResourceRecordSet.TTL) != 30 {
		t.Errorf("expected TTL 30, got %d", aws.ToInt64(c.ResourceRecordSet.TTL))
	}
	if len(c.ResourceRecordSet.ResourceRecords) != 2 {
		t.Errorf("expected 2 resource records, got %d", len(c.ResourceRecordSet.ResourceRecords))
	}
}

func TestSubmitChange_Error(t *testing.T) {
	api := &fakeAPI{err: errors.New("InvalidChangeBatch")}
	p, _ := newTestProvider(t, api, nil)
	s, _ := p.Session(context.Background(), "")

	err := s.SubmitChange(context.Background(), "Z123", dns.Change{Action: dns.ActionDelete, Name: "a.example.com", Type: dns.TypeA, TTL: 30, Values: []string{"1.1.1.1"}})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}
