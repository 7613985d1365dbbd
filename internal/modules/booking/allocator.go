// README: Assignment allocator shared by manual assignment, auto-assignment, and the lifecycle sweep.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sagnify/ambulance-booking/internal/logger"
	"github.com/Sagnify/ambulance-booking/internal/observability"
	"github.com/Sagnify/ambulance-booking/internal/types"
)

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

const maxAllocationAttempts = 3

type Assignment struct {
	BookingID  types.ID
	DriverID   types.ID
	AssignedAt time.Time
	Auto       bool
}

type Allocator struct {
	store     Store
	clock     Clock
	publisher Publisher
	log       logger.Logger
	metrics   *observability.Metrics
}

func NewAllocator(store Store, clock Clock, publisher Publisher, log logger.Logger, metrics *observability.Metrics) *Allocator {
	if clock == nil {
		clock = systemClock{}
	}
	if publisher == nil {
		publisher = NopPublisher{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Allocator{store: store, clock: clock, publisher: publisher, log: log, metrics: metrics}
}

// Allocate assigns the lowest-ID available driver of the booking's hospital.
// A driver lost to a concurrent writer is replaced by the next candidate, up to
// maxAllocationAttempts times.
func (a *Allocator) Allocate(ctx context.Context, bookingID types.ID, actor Actor, auto bool) (*Assignment, error) {
	b, err := a.pendingBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxAllocationAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pool, err := a.store.ListAvailableDrivers(ctx, b.HospitalID)
		if err != nil {
			a.metrics.ObserveAllocation("failed")
			return nil, fmt.Errorf("%w: %w", ErrAllocationFailed, err)
		}
		if len(pool) == 0 {
			a.metrics.ObserveAllocation("no_driver")
			return nil, ErrNoDriverAvailable
		}

		res, err := a.write(ctx, b, pool[0], actor, auto)
		if errors.Is(err, ErrDriverTaken) {
			a.log.Debug("driver taken during allocation, reselecting", "booking_id", bookingID, "driver_id", pool[0], "attempt", attempt+1)
			continue
		}
		return res, err
	}
	a.metrics.ObserveAllocation("contended")
	return nil, ErrNoDriverAvailable
}

// AssignDriver assigns a specific driver chosen by the hospital.
func (a *Allocator) AssignDriver(ctx context.Context, bookingID, driverID types.ID, actor Actor) (*Assignment, error) {
	b, err := a.pendingBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	res, err := a.write(ctx, b, driverID, actor, false)
	if errors.Is(err, ErrDriverTaken) {
		a.metrics.ObserveAllocation("driver_unavailable")
		return nil, ErrDriverUnavailable
	}
	return res, err
}

func (a *Allocator) pendingBooking(ctx context.Context, bookingID types.ID) (*Booking, error) {
	b, err := a.store.Get(ctx, bookingID)
	if errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAllocationFailed, err)
	}
	if b.Status != StatusPending {
		a.metrics.ObserveAllocation("not_pending")
		return nil, ErrBookingNotPending
	}
	return b, nil
}

func (a *Allocator) write(ctx context.Context, b *Booking, driverID types.ID, actor Actor, auto bool) (*Assignment, error) {
	alloc := Allocation{
		BookingID:  b.ID,
		HospitalID: b.HospitalID,
		DriverID:   driverID,
		At:         a.clock.Now(),
		Auto:       auto,
		Actor:      actor,
	}
	err := a.store.Allocate(ctx, alloc)
	switch {
	case err == nil:
	case errors.Is(err, ErrDriverTaken):
		return nil, err
	case errors.Is(err, ErrBookingNotPending):
		a.metrics.ObserveAllocation("not_pending")
		return nil, err
	default:
		a.metrics.ObserveAllocation("failed")
		a.log.Error("allocation write failed", "booking_id", b.ID, "driver_id", driverID, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrAllocationFailed, err)
	}

	a.metrics.ObserveAllocation("assigned")
	a.log.Info("driver assigned", "booking_id", b.ID, "driver_id", driverID, "auto", auto, "actor", actor.Type)
	publish(ctx, a.publisher, a.log, alloc.event())
	return &Assignment{BookingID: b.ID, DriverID: driverID, AssignedAt: alloc.At, Auto: auto}, nil
}
