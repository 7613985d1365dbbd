// README: Driver aggregate and availability definitions.
package driver

import (
	"errors"
	"time"

	"github.com/Sagnify/ambulance-booking/internal/types"
)

type Availability string

const (
	AvailabilityAvailable Availability = "available"
	AvailabilityBusy      Availability = "busy"
	AvailabilityOffline   Availability = "offline"
)

// Label is the display form used by hospital dashboards.
func (a Availability) Label() string {
	switch a {
	case AvailabilityAvailable:
		return "Available"
	case AvailabilityBusy:
		return "Busy"
	case AvailabilityOffline:
		return "Offline"
	default:
		return string(a)
	}
}

type Driver struct {
	ID                types.ID
	HospitalID        types.ID
	Name              string
	Phone             string
	VehicleNumber     string
	Availability      Availability
	Location          *types.Point
	LocationUpdatedAt *time.Time
}

var (
	ErrNotFound   = errors.New("driver not found")
	ErrDriverBusy = errors.New("driver is on an active booking")
	ErrBadRequest = errors.New("bad request")
)
