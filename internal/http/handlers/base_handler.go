// README: Base handler utilities (JSON helpers, caller resolution, error mapping).
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Sagnify/ambulance-booking/internal/http/middleware"
	"github.com/Sagnify/ambulance-booking/internal/modules/booking"
	"github.com/Sagnify/ambulance-booking/internal/modules/driver"
	"github.com/Sagnify/ambulance-booking/internal/types"
)

type errorResponse struct {
	Error string `json:"error"`
}

// isValidID accepts uuid-shaped and uid-shaped identifiers.
func isValidID(v string) bool {
	if v == "" || len(v) > 64 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-' || c == '_' {
			continue
		}
		return false
	}
	return true
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeBookingError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, booking.ErrBadRequest), errors.Is(err, driver.ErrBadRequest):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, booking.ErrNotFound), errors.Is(err, driver.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, booking.ErrUnauthorized):
		writeError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, booking.ErrNoDriverAvailable):
		writeError(c, http.StatusConflict, "no_driver_available")
	case errors.Is(err, booking.ErrAllocationFailed):
		writeError(c, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, booking.ErrActiveBooking),
		errors.Is(err, booking.ErrBookingNotPending),
		errors.Is(err, booking.ErrDriverUnavailable),
		errors.Is(err, booking.ErrInvalidTransition),
		errors.Is(err, booking.ErrAlreadyTerminal),
		errors.Is(err, booking.ErrConflict),
		errors.Is(err, booking.ErrSweepInProgress),
		errors.Is(err, driver.ErrDriverBusy):
		writeError(c, http.StatusConflict, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

// actorFromContext maps the authenticated caller onto a booking actor.
func actorFromContext(c *gin.Context) booking.Actor {
	uid := types.ID(middleware.CallerUID(c))
	switch middleware.CallerRole(c) {
	case middleware.RoleDriver:
		return booking.Actor{Type: booking.ActorDriver, ID: uid}
	case middleware.RoleHospital:
		return booking.Actor{Type: booking.ActorHospital, ID: types.ID(middleware.CallerHospitalID(c))}
	case middleware.RoleAdmin:
		return booking.Actor{Type: booking.ActorAdmin, ID: uid}
	default:
		return booking.Actor{Type: booking.ActorRequester, ID: uid}
	}
}

type pointResponse struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type bookingResponse struct {
	BookingID       string         `json:"booking_id"`
	RequesterID     string         `json:"requester_id"`
	HospitalID      string         `json:"hospital_id"`
	Status          string         `json:"status"`
	StatusLabel     string         `json:"status_label"`
	IsCancelled     bool           `json:"is_cancelled"`
	CancelReason    *string        `json:"cancel_reason,omitempty"`
	PickupLocation  string         `json:"pickup_location"`
	Pickup          *pointResponse `json:"pickup,omitempty"`
	Destination     string         `json:"destination,omitempty"`
	BookingType     string         `json:"booking_type,omitempty"`
	EmergencyType   string         `json:"emergency_type,omitempty"`
	Severity        string         `json:"severity,omitempty"`
	PatientName     string         `json:"patient_name,omitempty"`
	PatientPhone    string         `json:"patient_phone,omitempty"`
	AccidentDetails any            `json:"accident_details,omitempty"`
	DriverID        *string        `json:"driver_id,omitempty"`
	AutoAssigned    bool           `json:"auto_assigned"`
	RequestedAt     time.Time      `json:"requested_at"`
	AssignedAt      *time.Time     `json:"assigned_at,omitempty"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
}

func toBookingResponse(b *booking.Booking) bookingResponse {
	out := bookingResponse{
		BookingID:      string(b.ID),
		RequesterID:    string(b.RequesterID),
		HospitalID:     string(b.HospitalID),
		Status:         string(b.Status),
		StatusLabel:    b.Status.Label(),
		IsCancelled:    b.IsCancelled(),
		PickupLocation: b.Details.PickupLocation,
		Destination:    b.Details.Destination,
		BookingType:    b.Details.BookingType,
		EmergencyType:  b.Details.EmergencyType,
		Severity:       b.Details.Severity,
		PatientName:    b.Details.PatientName,
		PatientPhone:   b.Details.PatientPhone,
		AutoAssigned:   b.AutoAssigned,
		RequestedAt:    b.RequestedAt,
		AssignedAt:     b.AssignedAt,
		CompletedAt:    b.CompletedAt,
	}
	if len(b.Details.AccidentDetails) > 0 {
		out.AccidentDetails = b.Details.AccidentDetails
	}
	if b.Details.Pickup != nil {
		out.Pickup = &pointResponse{Lat: b.Details.Pickup.Lat, Lng: b.Details.Pickup.Lng}
	}
	if b.CancelReason != nil {
		label := booking.ReasonLabel(*b.CancelReason)
		out.CancelReason = &label
	}
	if b.DriverID != nil {
		id := string(*b.DriverID)
		out.DriverID = &id
	}
	return out
}

func toBookingList(bs []booking.Booking) []bookingResponse {
	out := make([]bookingResponse, 0, len(bs))
	for i := range bs {
		out = append(out, toBookingResponse(&bs[i]))
	}
	return out
}
