package controller

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/yuriy-kovalchuk/yk-dns-sync/internal/apply"
	"github.com/yuriy-kovalchuk/yk-dns-sync/internal/config"
	"github.com/yuriy-kovalchuk/yk-dns-sync/internal/metrics"
	"github.com/yuriy-kovalchuk/yk-dns-sync/internal/plan"
	"github.com/yuriy-kovalchuk/yk-dns-sync/internal/render"
)

// Notifier tells peers that a pass changed something.
type Notifier interface {
	Notify(ctx context.Context, key string) error
}

// PassResult describes what one pass did.
type PassResult struct {
	ID      string
	Plan    plan.Plan
	Applied apply.Result
	Output  render.Output
	Written []string
}

// Changed reports whether the pass touched the backend or rewrote an artifact.
func (p *PassResult) Changed() bool {
	return p.Applied.Changed() || len(p.Written) > 0
}

// Reconciler runs passes: snapshot, plan, apply, render. One pass at a time.
type Reconciler struct {
	Log      logr.Logger
	Options  *config.Options
	Snapshot *SnapshotBuilder
	Applier  *apply.Applier
	Notifier Notifier
	Metrics  *metrics.Recorder
	// Out receives dry-run reports and artifacts when no output prefix is set.
	Out io.Writer
	// RunPost runs the post command; nil uses sh -c.
	RunPost func(ctx context.Context, command string) ([]byte, error)

	mu sync.Mutex
}

// Reconcile runs a full pass under the reconciliation lock. The returned error
// covers only failures that stopped the pass; per-zone and per-change problems
// are logged and reflected in the result.
func (r *Reconciler) Reconcile(ctx context.Context) (*PassResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := &PassResult{ID: uuid.NewString()}
	log := r.Log.WithValues("pass", res.ID)
	start := time.Now()

	err := r.reconcile(ctx, log, res)

	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case res.Applied.Failed() > 0:
		outcome = "partial"
	}
	r.Metrics.ObservePass(string(r.Options.Mode), outcome, time.Since(start))
	log.Info("pass finished", "result", outcome, "actions", res.Plan.Len(), "written", len(res.Written), "duration", time.Since(start).String())
	return res, err
}

func (r *Reconciler) reconcile(ctx context.Context, log logr.Logger, res *PassResult) error {
	snap, err := r.Snapshot.Build(ctx, log)
	if err != nil {
		return fmt.Errorf("building snapshot: %w", err)
	}

	dryRun := r.Options.Plans() && !r.Options.Applies()
	records := snap.Wanted
	if r.Options.Plans() {
		res.Plan = plan.Compute(snap.Wanted, snap.Current, snap.Profiles)
		log.Info("plan computed", "zones", len(res.Plan), "actions", res.Plan.Len())
		log.V(1).Info("plan detail", "plan", plan.Format(res.Plan))

		applier := *r.Applier
		applier.Log = log.WithName("apply")
		applier.DryRun = applier.DryRun || dryRun
		res.Applied = applier.Apply(ctx, res.Plan, snap.Profiles, snap.TTLs)
	} else {
		records = snap.Current
	}
	res.Output = render.Render(records)

	out := r.out()
	if dryRun {
		fmt.Fprintln(out, "> DNS changes")
		apply.FormatResult(out, res.Applied)
	}

	if r.Options.Output == "" {
		fmt.Fprintln(out, "> Hosts records")
		fmt.Fprint(out, res.Output.Hosts)
		fmt.Fprintln(out, "> CNAME records")
		fmt.Fprint(out, res.Output.Aliases)
		return nil
	}

	written, err := render.Write(r.Options.Output, res.Output)
	res.Written = written
	for _, path := range written {
		r.Metrics.CountWrite(strings.TrimPrefix(filepath.Ext(path), "."))
		log.Info("artifact written", "path", path)
	}
	if err != nil {
		return fmt.Errorf("writing artifacts: %w", err)
	}
	if dryRun {
		return nil
	}

	if len(written) > 0 && r.Options.Post != "" {
		r.runPost(ctx, log)
	}
	if res.Changed() && r.Options.Notify != "" && r.Notifier != nil {
		if err := r.Notifier.Notify(ctx, r.Options.Notify); err != nil {
			log.Error(err, "failed to write notification key", "key", r.Options.Notify)
		} else {
			log.V(1).Info("notification key written", "key", r.Options.Notify)
		}
	}
	return nil
}

func (r *Reconciler) runPost(ctx context.Context, log logr.Logger) {
	run := r.RunPost
	if run == nil {
		run = shell
	}
	output, err := run(ctx, r.Options.Post)
	if err != nil {
		log.Error(err, "post command failed", "command", r.Options.Post, "output", string(output))
		return
	}
	log.Info("post command ran", "command", r.Options.Post)
	log.V(1).Info("post command output", "output", string(output))
}

func (r *Reconciler) out() io.Writer {
	if r.Out != nil {
		return r.Out
	}
	return os.Stdout
}

func shell(ctx context.Context, command string) ([]byte, error) {
	return exec.CommandContext(ctx, "sh", "-c", command).CombinedOutput()
}
