// README: Driver service handles availability toggles and location reports from the driver app.
package driver

import (
	"context"
	"time"

	"github.com/Sagnify/ambulance-booking/internal/logger"
	"github.com/Sagnify/ambulance-booking/internal/types"
)

// LocationIndex mirrors last-known positions of on-shift drivers into a fast geo index.
type LocationIndex interface {
	SetDriver(ctx context.Context, id types.ID, p types.Point) error
	RemoveDriver(ctx context.Context, id types.ID) error
}

type Service struct {
	registry Registry
	index    LocationIndex
	now      func() time.Time
	log      logger.Logger
}

func NewService(registry Registry, index LocationIndex, log logger.Logger) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{registry: registry, index: index, now: time.Now, log: log}
}

type SetAvailabilityCommand struct {
	DriverID  types.ID
	Available bool
}

type UpdateLocationCommand struct {
	DriverID types.ID
	Position types.Point
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Driver, error) {
	return s.registry.GetDriver(ctx, id)
}

// SetAvailability moves a driver between available and offline and returns the new state.
func (s *Service) SetAvailability(ctx context.Context, cmd SetAvailabilityCommand) (*Driver, error) {
	if cmd.DriverID == "" {
		return nil, ErrBadRequest
	}
	to := AvailabilityOffline
	if cmd.Available {
		to = AvailabilityAvailable
	}
	if err := s.registry.SetAvailability(ctx, cmd.DriverID, to); err != nil {
		return nil, err
	}
	s.log.Info("driver availability changed", "driver_id", cmd.DriverID, "availability", to)
	if to == AvailabilityOffline && s.index != nil {
		if err := s.index.RemoveDriver(ctx, cmd.DriverID); err != nil {
			s.log.Warn("location index removal failed", "driver_id", cmd.DriverID, "error", err)
		}
	}
	return s.registry.GetDriver(ctx, cmd.DriverID)
}

func (s *Service) UpdateLocation(ctx context.Context, cmd UpdateLocationCommand) error {
	if cmd.DriverID == "" || !cmd.Position.Valid() {
		return ErrBadRequest
	}
	if err := s.registry.UpdateLocation(ctx, cmd.DriverID, cmd.Position, s.now()); err != nil {
		return err
	}
	if s.index != nil {
		if err := s.index.SetDriver(ctx, cmd.DriverID, cmd.Position); err != nil {
			s.log.Warn("location index update failed", "driver_id", cmd.DriverID, "error", err)
		}
	}
	return nil
}

// CountByAvailability returns per-availability driver counts for one hospital.
// Every availability is present in the result, zero when no driver holds it.
func CountByAvailability(ctx context.Context, r Registry, hospitalID types.ID) (map[Availability]int, error) {
	drivers, err := r.ListByHospital(ctx, hospitalID)
	if err != nil {
		return nil, err
	}
	counts := map[Availability]int{
		AvailabilityAvailable: 0,
		AvailabilityBusy:      0,
		AvailabilityOffline:   0,
	}
	for _, d := range drivers {
		counts[d.Availability]++
	}
	return counts, nil
}
