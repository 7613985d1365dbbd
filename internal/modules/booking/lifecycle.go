// README: Lifecycle policy: time-based auto-assignment and auto-cancellation of pending bookings.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sagnify/ambulance-booking/internal/config"
	"github.com/Sagnify/ambulance-booking/internal/types"
)

const (
	DefaultSweepInterval = 30 * time.Second
	DefaultAssignAfter   = 30 * time.Second
	DefaultCancelAfter   = 2 * time.Minute
	DefaultSweepBatch    = 200
)

type SweepResult struct {
	Scanned   int
	Assigned  int
	Cancelled int
}

type Policy struct {
	svc *Service
	cfg config.LifecycleConfig
}

// NewPolicy fills zero-valued settings with the defaults.
func NewPolicy(svc *Service, cfg config.LifecycleConfig) *Policy {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.AssignAfter <= 0 {
		cfg.AssignAfter = DefaultAssignAfter
	}
	if cfg.CancelAfter <= 0 {
		cfg.CancelAfter = DefaultCancelAfter
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultSweepBatch
	}
	return &Policy{svc: svc, cfg: cfg}
}

func (p *Policy) Config() config.LifecycleConfig {
	return p.cfg
}

// Sweep runs one pass: first auto-assign every pending booking older than
// AssignAfter, then auto-cancel the ones still pending after CancelAfter.
// Both cutoffs are taken from a single clock reading. Per-booking failures
// are joined into the returned error; the sweep keeps going.
func (p *Policy) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	var errs []error
	now := p.svc.clock.Now()

	due, err := p.svc.store.ListPending(ctx, now.Add(-p.cfg.AssignAfter), p.cfg.BatchSize)
	if err != nil {
		return res, fmt.Errorf("list bookings due for assignment: %w", err)
	}
	res.Scanned = len(due)

	assigned := make(map[types.ID]bool, len(due))
	for _, b := range due {
		if err := ctx.Err(); err != nil {
			return res, errors.Join(append(errs, err)...)
		}
		_, err := p.svc.alloc.Allocate(ctx, b.ID, SystemActor, true)
		switch {
		case err == nil:
			res.Assigned++
			assigned[b.ID] = true
		case errors.Is(err, ErrNoDriverAvailable), errors.Is(err, ErrBookingNotPending):
		default:
			errs = append(errs, fmt.Errorf("auto-assign %s: %w", b.ID, err))
		}
	}

	expired, err := p.svc.store.ListPending(ctx, now.Add(-p.cfg.CancelAfter), p.cfg.BatchSize)
	if err != nil {
		errs = append(errs, fmt.Errorf("list bookings due for cancellation: %w", err))
		return res, errors.Join(errs...)
	}
	for _, b := range expired {
		if assigned[b.ID] {
			continue
		}
		if b.Age(now) < p.cfg.CancelAfter {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, errors.Join(append(errs, err)...)
		}
		err := p.svc.expire(ctx, b)
		switch {
		case err == nil:
			res.Cancelled++
		case errors.Is(err, ErrConflict):
		default:
			errs = append(errs, fmt.Errorf("auto-cancel %s: %w", b.ID, err))
		}
	}
	return res, errors.Join(errs...)
}
