// README: Booking service implements the request-triggered entry points and read models.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Sagnify/ambulance-booking/internal/logger"
	"github.com/Sagnify/ambulance-booking/internal/modules/driver"
	"github.com/Sagnify/ambulance-booking/internal/modules/hospital"
	"github.com/Sagnify/ambulance-booking/internal/modules/location"
	"github.com/Sagnify/ambulance-booking/internal/observability"
	"github.com/Sagnify/ambulance-booking/internal/types"
)

// maxTransitionAttempts bounds re-reads after a lost compare-and-set on status writes.
const maxTransitionAttempts = 3

type Deps struct {
	Store     Store
	Drivers   driver.Registry
	Hospitals hospital.Directory
	Clock     Clock
	Publisher Publisher
	Logger    logger.Logger
	Metrics   *observability.Metrics
}

type Service struct {
	store     Store
	drivers   driver.Registry
	hospitals hospital.Directory
	clock     Clock
	publisher Publisher
	log       logger.Logger
	metrics   *observability.Metrics
	alloc     *Allocator
}

func NewService(d Deps) *Service {
	if d.Clock == nil {
		d.Clock = systemClock{}
	}
	if d.Publisher == nil {
		d.Publisher = NopPublisher{}
	}
	if d.Logger == nil {
		d.Logger = logger.NewNop()
	}
	return &Service{
		store:     d.Store,
		drivers:   d.Drivers,
		hospitals: d.Hospitals,
		clock:     d.Clock,
		publisher: d.Publisher,
		log:       d.Logger,
		metrics:   d.Metrics,
		alloc:     NewAllocator(d.Store, d.Clock, d.Publisher, d.Logger, d.Metrics),
	}
}

type CreateCommand struct {
	RequesterID types.ID
	HospitalID  types.ID
	Details     Details
}

type AssignCommand struct {
	BookingID types.ID
	DriverID  types.ID
	Actor     Actor
}

type AutoAssignCommand struct {
	BookingID types.ID
	Actor     Actor
}

type AdvanceCommand struct {
	BookingID types.ID
	DriverID  types.ID
	Status    Status
}

type CancelCommand struct {
	BookingID types.ID
	Actor     Actor
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (types.ID, error) {
	if cmd.RequesterID == "" || cmd.HospitalID == "" || strings.TrimSpace(cmd.Details.PickupLocation) == "" {
		return "", ErrBadRequest
	}
	if strings.TrimSpace(cmd.Details.BookingType) == "" {
		return "", ErrBadRequest
	}
	if cmd.Details.Pickup != nil && !cmd.Details.Pickup.Valid() {
		return "", ErrBadRequest
	}
	if err := s.checkHospital(ctx, cmd.HospitalID); err != nil {
		return "", err
	}
	if _, err := s.store.ActiveByRequester(ctx, cmd.RequesterID); err == nil {
		return "", ErrActiveBooking
	} else if !errors.Is(err, ErrNotFound) {
		return "", fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	b := &Booking{
		ID:          newID(),
		RequesterID: cmd.RequesterID,
		HospitalID:  cmd.HospitalID,
		Details:     cmd.Details,
		Status:      StatusPending,
		RequestedAt: s.clock.Now(),
	}
	if err := s.store.Create(ctx, b); err != nil {
		if errors.Is(err, ErrActiveBooking) || errors.Is(err, ErrHospitalNotFound) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	s.log.Info("booking created", "booking_id", b.ID, "requester_id", b.RequesterID, "hospital_id", b.HospitalID)
	publish(ctx, s.publisher, s.log, creationEvent(b))
	return b.ID, nil
}

// checkHospital rejects bookings for unknown hospitals; no driver could ever serve them.
func (s *Service) checkHospital(ctx context.Context, id types.ID) error {
	if s.hospitals == nil {
		return nil
	}
	_, err := s.hospitals.GetHospital(ctx, id)
	switch {
	case errors.Is(err, hospital.ErrNotFound):
		return ErrHospitalNotFound
	case err != nil:
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return nil
}

// Assign lets the owning hospital pick a specific driver.
func (s *Service) Assign(ctx context.Context, cmd AssignCommand) (*Booking, error) {
	if cmd.BookingID == "" || cmd.DriverID == "" {
		return nil, ErrBadRequest
	}
	if err := s.authorizeAssign(ctx, cmd.BookingID, cmd.Actor, false); err != nil {
		return nil, err
	}
	if _, err := s.alloc.AssignDriver(ctx, cmd.BookingID, cmd.DriverID, cmd.Actor); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, cmd.BookingID)
}

func (s *Service) AutoAssign(ctx context.Context, cmd AutoAssignCommand) (*Booking, error) {
	if cmd.BookingID == "" {
		return nil, ErrBadRequest
	}
	if err := s.authorizeAssign(ctx, cmd.BookingID, cmd.Actor, true); err != nil {
		return nil, err
	}
	if _, err := s.alloc.Allocate(ctx, cmd.BookingID, cmd.Actor, true); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, cmd.BookingID)
}

func (s *Service) authorizeAssign(ctx context.Context, bookingID types.ID, actor Actor, allowRequester bool) error {
	switch actor.Type {
	case ActorAdmin, ActorSystem:
		return nil
	case ActorHospital, ActorRequester:
	default:
		return ErrUnauthorized
	}
	b, err := s.store.Get(ctx, bookingID)
	if err != nil {
		return err
	}
	if actor.Type == ActorHospital && actor.ID == b.HospitalID {
		return nil
	}
	if allowRequester && actor.Type == ActorRequester && actor.ID == b.RequesterID {
		return nil
	}
	return ErrUnauthorized
}

// AdvanceStatus moves an assigned booking one step along assigned → on_route → arrived → completed.
func (s *Service) AdvanceStatus(ctx context.Context, cmd AdvanceCommand) error {
	if cmd.BookingID == "" || cmd.DriverID == "" {
		return ErrBadRequest
	}
	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		b, err := s.store.Get(ctx, cmd.BookingID)
		if err != nil {
			return err
		}
		if b.Status.IsTerminal() {
			return ErrInvalidTransition
		}
		if !b.AssignedTo(cmd.DriverID) {
			return ErrUnauthorized
		}
		next, ok := NextDriverStatus(b.Status)
		if !ok || next != cmd.Status {
			return ErrInvalidTransition
		}

		now := s.clock.Now()
		tr := Transition{
			BookingID:  b.ID,
			HospitalID: b.HospitalID,
			From:       b.Status,
			To:         next,
			Version:    b.StatusVersion,
			At:         now,
			Driver:     b.DriverID,
			Actor:      Actor{Type: ActorDriver, ID: cmd.DriverID},
		}
		if next == StatusCompleted {
			tr.CompletedAt = &now
			tr.ReleaseDriver = true
		}
		err = s.transition(ctx, tr)
		if errors.Is(err, ErrConflict) {
			continue
		}
		return err
	}
	return ErrConflict
}

// Cancel is allowed for the owning requester, the owning hospital, or an admin.
// An assigned driver is released in the same write.
func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) error {
	if cmd.BookingID == "" {
		return ErrBadRequest
	}
	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		b, err := s.store.Get(ctx, cmd.BookingID)
		if err != nil {
			return err
		}
		reason, err := cancelReason(b, cmd.Actor)
		if err != nil {
			return err
		}
		if b.Status.IsTerminal() {
			return ErrAlreadyTerminal
		}

		now := s.clock.Now()
		tr := Transition{
			BookingID:     b.ID,
			HospitalID:    b.HospitalID,
			From:          b.Status,
			To:            StatusCancelled,
			Version:       b.StatusVersion,
			At:            now,
			CompletedAt:   &now,
			CancelReason:  &reason,
			Driver:        b.DriverID,
			ClearDriver:   b.DriverID != nil,
			ReleaseDriver: b.DriverID != nil,
			Actor:         cmd.Actor,
		}
		err = s.transition(ctx, tr)
		if errors.Is(err, ErrConflict) {
			continue
		}
		return err
	}
	return ErrConflict
}

func cancelReason(b *Booking, a Actor) (string, error) {
	switch {
	case a.Type == ActorRequester && a.ID == b.RequesterID:
		return ReasonRequesterCancelled, nil
	case a.Type == ActorHospital && a.ID == b.HospitalID:
		return ReasonHospitalCancelled, nil
	case a.Type == ActorAdmin:
		return ReasonAdminCancelled, nil
	}
	return "", ErrUnauthorized
}

// expire auto-cancels a pending booking from a sweep snapshot. The write is
// conditional on the booking still being pending at the snapshot version.
func (s *Service) expire(ctx context.Context, b Booking) error {
	now := s.clock.Now()
	reason := ReasonNoAmbulanceAvailable
	return s.transition(ctx, Transition{
		BookingID:    b.ID,
		HospitalID:   b.HospitalID,
		From:         StatusPending,
		To:           StatusAutoCancelled,
		Version:      b.StatusVersion,
		At:           now,
		CompletedAt:  &now,
		CancelReason: &reason,
		Actor:        SystemActor,
	})
}

func (s *Service) transition(ctx context.Context, tr Transition) error {
	if !CanTransition(tr.From, tr.To) {
		return ErrInvalidTransition
	}
	err := s.store.Transition(ctx, tr)
	if errors.Is(err, ErrConflict) {
		return err
	}
	if err != nil {
		s.log.Error("booking transition failed", "booking_id", tr.BookingID, "from", tr.From, "to", tr.To, "error", err)
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	s.log.Info("booking status changed", "booking_id", tr.BookingID, "from", tr.From, "to", tr.To, "actor", tr.Actor.Type)
	publish(ctx, s.publisher, s.log, tr.event())
	return nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Booking, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) Events(ctx context.Context, id types.ID) ([]Event, error) {
	return s.store.ListEvents(ctx, id)
}

// View is a booking with its assigned driver and the driver's distance to pickup, when known.
type View struct {
	Booking    *Booking
	Driver     *driver.Driver
	DistanceKm *float64
}

// GetView returns the booking as seen by actor; ErrNotFound when actor may not see it.
func (s *Service) GetView(ctx context.Context, id types.ID, actor Actor) (*View, error) {
	b, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !b.VisibleTo(actor) {
		return nil, ErrNotFound
	}
	v := &View{Booking: b}
	if b.DriverID == nil || s.drivers == nil {
		return v, nil
	}
	d, err := s.drivers.GetDriver(ctx, *b.DriverID)
	if err != nil {
		s.log.Warn("assigned driver lookup failed", "booking_id", b.ID, "driver_id", *b.DriverID, "error", err)
		return v, nil
	}
	v.Driver = d
	if d.Location != nil && b.Details.Pickup != nil {
		km := location.DistanceKm(*d.Location, *b.Details.Pickup)
		v.DistanceKm = &km
	}
	return v, nil
}

// OngoingForRequester returns the requester's non-terminal booking, or ErrNotFound.
func (s *Service) OngoingForRequester(ctx context.Context, requesterID types.ID) (*Booking, error) {
	return s.store.ActiveByRequester(ctx, requesterID)
}

func (s *Service) ListForDriver(ctx context.Context, driverID types.ID) ([]Booking, error) {
	return s.store.ListActiveByDriver(ctx, driverID)
}

type HospitalOverview struct {
	HospitalID      types.ID
	DriverCounts    map[driver.Availability]int
	PendingBookings []Booking
	OngoingBookings []Booking
}

func (s *Service) HospitalOverview(ctx context.Context, hospitalID types.ID) (*HospitalOverview, error) {
	if err := s.checkHospital(ctx, hospitalID); errors.Is(err, ErrHospitalNotFound) {
		return nil, fmt.Errorf("%w: hospital %s", ErrNotFound, hospitalID)
	} else if err != nil {
		return nil, err
	}
	out := &HospitalOverview{
		HospitalID: hospitalID,
		DriverCounts: map[driver.Availability]int{
			driver.AvailabilityAvailable: 0,
			driver.AvailabilityBusy:      0,
			driver.AvailabilityOffline:   0,
		},
	}
	if s.drivers != nil {
		counts, err := driver.CountByAvailability(ctx, s.drivers, hospitalID)
		if err != nil {
			return nil, err
		}
		out.DriverCounts = counts
		for a, n := range counts {
			s.metrics.SetDriverCount(string(hospitalID), string(a), n)
		}
	}

	var err error
	if out.PendingBookings, err = s.store.ListByHospital(ctx, hospitalID, []Status{StatusPending}); err != nil {
		return nil, err
	}
	if out.OngoingBookings, err = s.store.ListByHospital(ctx, hospitalID, OngoingStatuses); err != nil {
		return nil, err
	}
	return out, nil
}

func newID() types.ID {
	return types.ID(uuid.NewString())
}
