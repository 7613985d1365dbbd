// README: Reconciler owns the background sweep loop; one sweep in flight at a time.
package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Sagnify/ambulance-booking/internal/logger"
	"github.com/Sagnify/ambulance-booking/internal/observability"
)

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	t *time.Ticker
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

func newTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

type Reconciler struct {
	policy    *Policy
	interval  time.Duration
	newTicker func(time.Duration) Ticker
	log       logger.Logger
	metrics   *observability.Metrics

	mu sync.Mutex
}

type ReconcilerOption func(*Reconciler)

// WithTicker replaces the wall-clock ticker; used by tests to drive ticks by hand.
func WithTicker(f func(time.Duration) Ticker) ReconcilerOption {
	return func(r *Reconciler) { r.newTicker = f }
}

func NewReconciler(policy *Policy, log logger.Logger, metrics *observability.Metrics, opts ...ReconcilerOption) *Reconciler {
	if log == nil {
		log = logger.NewNop()
	}
	r := &Reconciler{
		policy:    policy,
		interval:  policy.Config().SweepInterval,
		newTicker: newTimeTicker,
		log:       log.With("component", "reconciler"),
		metrics:   metrics,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run sweeps on every tick until ctx is cancelled. A failed sweep is logged
// and the loop waits for the next tick.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := r.newTicker(r.interval)
	defer ticker.Stop()

	r.log.Info("reconciler started", "interval", r.interval)
	for {
		select {
		case <-ctx.Done():
			r.log.Info("reconciler stopped")
			return nil
		case <-ticker.C():
			if _, err := r.RunOnce(ctx); errors.Is(err, ErrSweepInProgress) {
				r.log.Debug("tick skipped, sweep already running")
			}
		}
	}
}

// RunOnce runs a single sweep, or returns ErrSweepInProgress if one is already running.
func (r *Reconciler) RunOnce(ctx context.Context) (res SweepResult, err error) {
	if !r.mu.TryLock() {
		r.metrics.ObserveSkippedSweep()
		return SweepResult{}, ErrSweepInProgress
	}
	defer r.mu.Unlock()

	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("lifecycle sweep panicked: %v", rec)
		}
		elapsed := time.Since(start)
		r.metrics.ObserveSweep(res.Assigned, res.Cancelled, err, elapsed)
		if err != nil {
			r.log.Error("lifecycle sweep failed",
				"scanned", res.Scanned, "assigned", res.Assigned, "cancelled", res.Cancelled,
				"duration", elapsed, "error", err)
			return
		}
		r.log.Info("lifecycle sweep finished",
			"scanned", res.Scanned, "assigned", res.Assigned, "cancelled", res.Cancelled,
			"duration", elapsed)
	}()

	return r.policy.Sweep(ctx)
}
