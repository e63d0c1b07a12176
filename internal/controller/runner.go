package controller

import (
	"context"
	"errors"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
	"k8s.io/apimachinery/pkg/util/wait"
)

// DefaultTriggerCapacity bounds the number of queued triggers.
const DefaultTriggerCapacity = 16

// Passer runs one reconciliation pass.
type Passer interface {
	Reconcile(ctx context.Context) (*PassResult, error)
}

// Source produces triggers by calling fire. It blocks until ctx is done.
type Source func(ctx context.Context, fire func(context.Context) error) error

// Runner funnels triggers from every source into one consumer loop. Triggers
// queue up and each one gets its own pass; they are never merged.
type Runner struct {
	Log      logr.Logger
	Passer   Passer
	triggers chan struct{}
}

// NewRunner creates a Runner with a trigger queue of the given capacity.
func NewRunner(log logr.Logger, passer Passer, capacity int) *Runner {
	if capacity <= 0 {
		capacity = DefaultTriggerCapacity
	}
	return &Runner{Log: log, Passer: passer, triggers: make(chan struct{}, capacity)}
}

// Trigger queues a pass, blocking while the queue is full.
func (r *Runner) Trigger(ctx context.Context) error {
	select {
	case r.triggers <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run starts every source and the consumer loop, and returns when ctx is done
// or a source fails. Failed passes are logged and do not stop the loop.
func (r *Runner) Run(ctx context.Context, sources ...Source) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, src := range sources {
		g.Go(func() error {
			return src(ctx, r.Trigger)
		})
	}
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-r.triggers:
			}
			if _, err := r.Passer.Reconcile(ctx); err != nil {
				r.Log.Error(err, "reconciliation pass failed")
			}
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Once fires a single trigger.
func Once(ctx context.Context, fire func(context.Context) error) error {
	return fire(ctx)
}

// Every fires a trigger each interval, starting one interval from now.
func Every(interval time.Duration) Source {
	return func(ctx context.Context, fire func(context.Context) error) error {
		return wait.PollUntilContextCancel(ctx, interval, false, func(ctx context.Context) (bool, error) {
			return false, fire(ctx)
		})
	}
}
