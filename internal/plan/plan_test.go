package plan

import (
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/yuriy-kovalchuk/yk-dns-sync/internal/record"
)

type zoneSet map[string]bool

func (z zoneSet) Has(zone string) bool { return z[zone] }

var exampleOnly = zoneSet{"example.com": true}

func zonesOf(zone string, records ...record.Record) record.Zones {
	z := record.Zones{}
	for _, r := range records {
		z.Add(zone, r.Value, r.FQDN)
	}
	return z
}

func rec(value, fqdn string) record.Record {
	return record.Record{Value: value, FQDN: fqdn}
}

func onlyAction(t *testing.T, p Plan, zone, name string) *Action {
	t.Helper()
	if p.Len() != 1 {
		t.Fatalf("expected exactly 1 action, got %d: %s", p.Len(), Format(p))
	}
	a, ok := p[zone][name]
	if !ok {
		t.Fatalf("expected action for %s in %s, got %s", name, zone, Format(p))
	}
	return a
}

func sortedValues(a *Action) []string {
	v := append([]string(nil), a.Values...)
	sort.Strings(v)
	return v
}

func TestCompute_Idempotent(t *testing.T) {
	records := []record.Record{
		rec("1.1.1.1", "a.example.com"),
		rec("2.2.2.2", "a.example.com"),
		rec("haproxy.example.com", "www.example.com"),
	}
	p := Compute(zonesOf("example.com", records...), zonesOf("example.com", records...), exampleOnly)
	if p.Len() != 0 || len(p) != 0 {
		t.Errorf("expected empty plan, got %s", Format(p))
	}
}

func TestCompute_SimpleCreate(t *testing.T) {
	p := Compute(zonesOf("example.com", rec("1.2.3.4", "a.example.com")), record.Zones{}, exampleOnly)

	a := onlyAction(t, p, "example.com", "a.example.com")
	want := &Action{Name: "a.example.com", Kind: Create, Values: []string{"1.2.3.4"}, Type: "A"}
	if !reflect.DeepEqual(a, want) {
		t.Errorf("got %+v, want %+v", a, want)
	}
}

func TestCompute_CNAMEDetection(t *testing.T) {
	p := Compute(zonesOf("example.com", rec("target.other.tld", "a.example.com")), record.Zones{}, exampleOnly)

	a := onlyAction(t, p, "example.com", "a.example.com")
	if a.Type != "CNAME" {
		t.Errorf("expected CNAME, got %s", a.Type)
	}
	if a.Kind != Create {
		t.Errorf("expected CREATE, got %s", a.Kind)
	}
}

func TestCompute_UpsertPreservesAndAdds(t *testing.T) {
	wanted := zonesOf("example.com", rec("1.1.1.1", "a.example.com"), rec("2.2.2.2", "a.example.com"))
	current := zonesOf("example.com", rec("1.1.1.1", "a.example.com"))

	a := onlyAction(t, Compute(wanted, current, exampleOnly), "example.com", "a.example.com")
	if a.Kind != Upsert {
		t.Errorf("expected UPSERT, got %s", a.Kind)
	}
	if got := sortedValues(a); !reflect.DeepEqual(got, []string{"1.1.1.1", "2.2.2.2"}) {
		t.Errorf("expected values {1.1.1.1, 2.2.2.2}, got %v", got)
	}
	if a.Type != "A" {
		t.Errorf("expected A, got %s", a.Type)
	}
}

func TestCompute_UpsertReplacesAndDropsStale(t *testing.T) {
	wanted := zonesOf("example.com", rec("1.1.1.1", "a.example.com"), rec("3.3.3.3", "a.example.com"), rec("4.4.4.4", "a.example.com"))
	current := zonesOf("example.com", rec("1.1.1.1", "a.example.com"), rec("2.2.2.2", "a.example.com"))

	a := onlyAction(t, Compute(wanted, current, exampleOnly), "example.com", "a.example.com")
	if a.Kind != Upsert {
		t.Errorf("expected UPSERT, got %s", a.Kind)
	}
	if got := sortedValues(a); !reflect.DeepEqual(got, []string{"1.1.1.1", "3.3.3.3", "4.4.4.4"}) {
		t.Errorf("expected full desired set without duplicates, got %v", a.Values)
	}
}

func TestCompute_PureDelete(t *testing.T) {
	p := Compute(record.Zones{}, zonesOf("example.com", rec("9.9.9.9", "b.example.com")), exampleOnly)

	a := onlyAction(t, p, "example.com", "b.example.com")
	want := &Action{Name: "b.example.com", Kind: Delete, Values: []string{"9.9.9.9"}, Type: "A"}
	if !reflect.DeepEqual(a, want) {
		t.Errorf("got %+v, want %+v", a, want)
	}
}

func TestCompute_DeleteGathersAllValues(t *testing.T) {
	current := zonesOf("example.com", rec("9.9.9.9", "b.example.com"), rec("8.8.8.8", "b.example.com"))

	a := onlyAction(t, Compute(record.Zones{}, current, exampleOnly), "example.com", "b.example.com")
	if a.Kind != Delete {
		t.Errorf("expected DELETE, got %s", a.Kind)
	}
	if got := sortedValues(a); !reflect.DeepEqual(got, []string{"8.8.8.8", "9.9.9.9"}) {
		t.Errorf("expected both values deleted, got %v", got)
	}
}

func TestCompute_PartialPrune(t *testing.T) {
	wanted := zonesOf("example.com", rec("1.1.1.1", "a.example.com"))
	current := zonesOf("example.com", rec("1.1.1.1", "a.example.com"), rec("2.2.2.2", "a.example.com"), rec("3.3.3.3", "a.example.com"))

	a := onlyAction(t, Compute(wanted, current, exampleOnly), "example.com", "a.example.com")
	if a.Kind != Upsert {
		t.Errorf("expected UPSERT, got %s", a.Kind)
	}
	if !reflect.DeepEqual(a.Values, []string{"1.1.1.1"}) {
		t.Errorf("expected only the retained value, got %v", a.Values)
	}
}

func TestCompute_NeverDeletesRetainedRecords(t *testing.T) {
	wanted := zonesOf("example.com",
		rec("1.1.1.1", "a.example.com"),
		rec("5.5.5.5", "c.example.com"),
	)
	current := zonesOf("example.com",
		rec("1.1.1.1", "a.example.com"),
		rec("2.2.2.2", "a.example.com"),
		rec("7.7.7.7", "d.example.com"),
	)

	p := Compute(wanted, current, exampleOnly)
	for _, name := range p.Names("example.com") {
		a := p["example.com"][name]
		if a.Kind != Delete {
			continue
		}
		for _, v := range a.Values {
			if wanted.Get("example.com").Has(rec(v, name)) {
				t.Errorf("wanted record (%s, %s) scheduled for deletion", v, name)
			}
		}
	}
	if got := p.Names("example.com"); !reflect.DeepEqual(got, []string{"a.example.com", "c.example.com", "d.example.com"}) {
		t.Errorf("expected one action per touched name, got %v", got)
	}
}

func TestCompute_CNAMEToAddressIsUpsert(t *testing.T) {
	wanted := zonesOf("example.com", rec("10.0.0.1", "www.example.com"))
	current := zonesOf("example.com", rec("haproxy.example.com", "www.example.com"))

	a := onlyAction(t, Compute(wanted, current, exampleOnly), "example.com", "www.example.com")
	if a.Kind != Upsert || a.Type != "A" || !reflect.DeepEqual(a.Values, []string{"10.0.0.1"}) {
		t.Errorf("unexpected action %+v", a)
	}
}

func TestCompute_SkipsZonesWithoutProfile(t *testing.T) {
	wanted := record.Zones{}
	wanted.Add("example.com", "1.1.1.1", "a.example.com")
	wanted.Add("orphan.org", "2.2.2.2", "a.orphan.org")
	current := record.Zones{}
	current.Add("orphan2.org", "3.3.3.3", "b.orphan2.org")

	p := Compute(wanted, current, exampleOnly)
	if got := p.Zones(); !reflect.DeepEqual(got, []string{"example.com"}) {
		t.Errorf("expected only example.com planned, got %v", got)
	}
}

func TestTypeFor(t *testing.T) {
	tests := []struct {
		values []string
		want   string
	}{
		{[]string{"1.2.3.4"}, "A"},
		{[]string{"target.other.tld"}, "CNAME"},
		{[]string{"1.1.1.1", "2.2.2.2"}, "A"},
		{[]string{"a.example.com", "b.example.com"}, "A"},
		{nil, "A"},
	}
	for _, tt := range tests {
		if got := TypeFor(tt.values); got != tt.want {
			t.Errorf("TypeFor(%v) = %s, want %s", tt.values, got, tt.want)
		}
	}
}

func TestFormat(t *testing.T) {
	if got := Format(Plan{}); got != "Plan: no changes\n" {
		t.Errorf("Format(empty) = %q", got)
	}

	p := Compute(zonesOf("example.com", rec("1.2.3.4", "a.example.com")), record.Zones{}, exampleOnly)
	out := Format(p)
	for _, want := range []string{"Plan: 1 change(s)", "Zone example.com:", "CREATE", "a.example.com -> 1.2.3.4"} {
		if !strings.Contains(out, want) {
			t.Errorf("Format() missing %q:\n%s", want, out)
		}
	}
}
