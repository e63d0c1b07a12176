package dns

import (
	"context"
	"errors"
)

// Record types the reconciler manages.
const (
	TypeA     = "A"
	TypeCNAME = "CNAME"
)

// Change actions understood by every backend.
const (
	ActionCreate = "CREATE"
	ActionUpsert = "UPSERT"
	ActionDelete = "DELETE"
)

// ErrZoneNotFound is returned by Session.LookupZone when the backend has no zone
// with the requested name.
var ErrZoneNotFound = errors.New("zone not found")

// RecordSet is one named record set as stored by the backend.
type RecordSet struct {
	Name   string // FQDN without trailing dot
	Type   string
	TTL    int64
	Values []string
}

// Change is a single submission against one record set.
type Change struct {
	Action string
	Name   string
	Type   string
	TTL    int64
	Values []string
}

// Provider is the interface that DNS providers must implement. A provider hands
// out sessions bound to one credential handle.
type Provider interface {
	Session(ctx context.Context, credential string) (Session, error)
}

// Session talks to the backend with one credential.
type Session interface {
	// LookupZone returns the backend identifier of the named zone.
	LookupZone(ctx context.Context, zone string) (string, error)
	// ListRecordSets returns every record set of the zone, following pagination.
	ListRecordSets(ctx context.Context, zoneID string) ([]RecordSet, error)
	SubmitChange(ctx context.Context, zoneID string, change Change) error
}
