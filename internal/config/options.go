package config

import (
	"errors"
	"fmt"
	"time"
)

// Mode selects what a reconciliation pass does.
type Mode string

const (
	// ModePrint computes the plan and reports it without touching the backend.
	ModePrint Mode = "print"
	// ModeApply applies the plan and writes the resolver artifacts.
	ModeApply Mode = "apply"
	// ModeWatch applies on every catalog or key change, and on a timer.
	ModeWatch Mode = "watch"
	// ModeFollow only renders the backend's current records, never applies.
	ModeFollow Mode = "follow"
)

// ListenServices is the --listen value that watches the service catalog.
const ListenServices = "services"

// Options is the operational surface shared by all commands.
type Options struct {
	Mode          Mode
	Consul        string
	Datacenter    string
	ExternalHosts []string // static files feeding the wanted set
	HostFiles     []string // static files feeding the current set
	Domains       []string
	Output        string // artifact path prefix
	Post          string
	Listen        []string
	Notify        string
	Interval      time.Duration
	DryRun        bool
	MetricsAddr   string
}

// Plans reports whether passes in this mode compute and apply an action plan.
func (o *Options) Plans() bool {
	return o.Mode != ModeFollow
}

// Applies reports whether passes submit changes to the backend.
func (o *Options) Applies() bool {
	return o.Plans() && o.Mode != ModePrint && !o.DryRun
}

// Validate returns the configuration errors that must stop the process
// before any watch starts.
func (o *Options) Validate() error {
	var errs []error
	switch o.Mode {
	case ModePrint, ModeApply, ModeWatch, ModeFollow:
	default:
		errs = append(errs, fmt.Errorf("unknown mode %q", o.Mode))
	}
	if o.Consul == "" {
		errs = append(errs, errors.New("missing consul address (--consul)"))
	}
	if o.Output == "" {
		switch {
		case o.Mode == ModeApply, o.Mode == ModeFollow:
			errs = append(errs, fmt.Errorf("%s mode requires an output path (--output)", o.Mode))
		case o.Mode == ModeWatch && !o.DryRun:
			errs = append(errs, errors.New("watch mode requires an output path (--output) unless --dry-run is set"))
		}
	}
	if o.Interval < 0 {
		errs = append(errs, fmt.Errorf("interval must not be negative, got %s", o.Interval))
	}
	return errors.Join(errs...)
}
