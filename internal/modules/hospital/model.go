// README: Hospital model; hospitals own drivers and receive bookings.
package hospital

import (
	"errors"

	"github.com/Sagnify/ambulance-booking/internal/types"
)

var ErrNotFound = errors.New("hospital not found")

type Hospital struct {
	ID      types.ID
	Name    string
	Address string
	City    string
}
