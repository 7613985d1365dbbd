// README: Booking sentinel errors.
package booking

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("booking not found")
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("actor not allowed to act on booking")

	ErrHospitalNotFound = fmt.Errorf("%w: hospital not found", ErrBadRequest)

	ErrActiveBooking     = errors.New("requester has active booking")
	ErrBookingNotPending = errors.New("booking is not pending")
	ErrDriverUnavailable = errors.New("driver not available")
	ErrNoDriverAvailable = errors.New("no driver available")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrAlreadyTerminal   = errors.New("booking already completed or cancelled")

	// ErrAllocationFailed covers every storage failure; it is safe to retry.
	ErrAllocationFailed   = errors.New("allocation failed")
	ErrStorageUnavailable = fmt.Errorf("%w: booking storage unavailable", ErrAllocationFailed)

	// ErrDriverTaken and ErrConflict signal a lost compare-and-set; callers retry.
	ErrDriverTaken = errors.New("driver taken concurrently")
	ErrConflict    = errors.New("booking state conflict")

	ErrSweepInProgress = errors.New("lifecycle sweep already in progress")
)

// ErrAlreadyAssigned is reported when a second assignment reaches a booking that has left pending.
var ErrAlreadyAssigned = ErrBookingNotPending
