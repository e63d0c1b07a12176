// Package apply submits a plan to the DNS backend.
package apply

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/util/retry"

	"github.com/yuriy-kovalchuk/yk-dns-sync/internal/dns"
	"github.com/yuriy-kovalchuk/yk-dns-sync/internal/metrics"
	"github.com/yuriy-kovalchuk/yk-dns-sync/internal/plan"
	"github.com/yuriy-kovalchuk/yk-dns-sync/internal/zone"
)

// Status is the outcome of one change.
type Status string

const (
	StatusApplied Status = "applied"
	StatusRetried Status = "retried"
	StatusFailed  Status = "failed"
	StatusPlanned Status = "planned"
)

// DefaultRetry is the backoff used for DELETE submissions: one retry.
var DefaultRetry = wait.Backoff{
	Steps:    2,
	Duration: 500 * time.Millisecond,
	Factor:   1.0,
}

// TTLs holds the live TTL of each record set name as listed from the backend.
type TTLs map[string]int64

// Outcome records what happened to one change.
type Outcome struct {
	Zone   string
	Change dns.Change
	Status Status
	Err    error
}

// Result collects the outcomes of one Apply call in submission order.
type Result struct {
	Outcomes []Outcome
}

// Changed reports whether any change reached the backend.
func (r Result) Changed() bool {
	for _, o := range r.Outcomes {
		if o.Status == StatusApplied || o.Status == StatusRetried {
			return true
		}
	}
	return false
}

// Failed returns the number of changes the backend rejected.
func (r Result) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == StatusFailed {
			n++
		}
	}
	return n
}

// Applier turns plan actions into backend changes.
type Applier struct {
	Log        logr.Logger
	TTL        int64
	RelaxedTTL int64
	DryRun     bool
	Metrics    *metrics.Recorder
	// Backoff overrides DefaultRetry when Steps is non-zero.
	Backoff wait.Backoff
}

// Apply submits one change per planned name, zones and names in sorted order.
// A rejected change is logged and recorded; the remaining changes still run.
func (a *Applier) Apply(ctx context.Context, p plan.Plan, profiles zone.Profiles, ttls TTLs) Result {
	var result Result
	for _, z := range p.Zones() {
		profile, ok := profiles[z]
		if !ok {
			a.Log.Info("no profile for planned zone, skipping", "zone", z)
			continue
		}
		for _, name := range p.Names(z) {
			action := p[z][name]
			change := dns.Change{
				Action: string(action.Kind),
				Name:   action.Name,
				Type:   action.Type,
				TTL:    a.TTL,
				Values: action.Values,
			}

			outcome := Outcome{Zone: z, Change: change, Status: StatusPlanned}
			if !a.DryRun {
				outcome = a.submit(ctx, z, profile, change, ttls)
			}
			a.Metrics.CountAction(z, change.Action, string(outcome.Status))
			result.Outcomes = append(result.Outcomes, outcome)
		}
	}
	return result
}

func (a *Applier) submit(ctx context.Context, z string, profile zone.Profile, change dns.Change, ttls TTLs) Outcome {
	log := a.Log.WithValues("zone", z, "action", change.Action, "type", change.Type, "name", change.Name)
	outcome := Outcome{Zone: z, Change: change}

	if change.Action != dns.ActionDelete {
		if err := profile.Session.SubmitChange(ctx, profile.ZoneID, change); err != nil {
			log.Error(err, "change rejected")
			outcome.Status, outcome.Err = StatusFailed, err
			return outcome
		}
		log.Info("change applied", "values", change.Values)
		outcome.Status = StatusApplied
		return outcome
	}

	// Deletes must match the live TTL; the retry relaxes it.
	backoff := a.Backoff
	if backoff.Steps == 0 {
		backoff = DefaultRetry
	}
	attempt := 0
	err := retry.OnError(backoff, func(error) bool { return true }, func() error {
		attempt++
		if attempt > 1 {
			change.TTL = a.relaxedTTL(ttls, change.Name)
			log.Info("delete rejected, retrying with relaxed TTL", "ttl", change.TTL)
		}
		return profile.Session.SubmitChange(ctx, profile.ZoneID, change)
	})
	outcome.Change = change
	if err != nil {
		log.Error(err, "delete rejected after retry")
		outcome.Status, outcome.Err = StatusFailed, err
		return outcome
	}

	outcome.Status = StatusApplied
	if attempt > 1 {
		outcome.Status = StatusRetried
	}
	log.Info("change applied", "values", change.Values, "ttl", change.TTL)
	return outcome
}

func (a *Applier) relaxedTTL(ttls TTLs, name string) int64 {
	if ttl, ok := ttls[name]; ok && ttl > 0 {
		return ttl
	}
	return a.RelaxedTTL
}

// FormatResult writes one line per outcome.
func FormatResult(w io.Writer, r Result) {
	if len(r.Outcomes) == 0 {
		fmt.Fprintln(w, "No changes.")
		return
	}
	for _, o := range r.Outcomes {
		fmt.Fprintf(w, "[%s] %s %s %s ttl=%d zone=%s values=%v", o.Status, o.Change.Action, o.Change.Type, o.Change.Name, o.Change.TTL, o.Zone, o.Change.Values)
		if o.Err != nil {
			fmt.Fprintf(w, " error=%q", o.Err.Error())
		}
		fmt.Fprintln(w)
	}
}
