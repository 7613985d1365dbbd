// README: Booking handlers for create, view, assign, auto-assign, cancel, and history.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Sagnify/ambulance-booking/internal/http/middleware"
	"github.com/Sagnify/ambulance-booking/internal/modules/booking"
	"github.com/Sagnify/ambulance-booking/internal/types"
)

type BookingHandler struct {
	booking *booking.Service
}

func NewBookingHandler(svc *booking.Service) *BookingHandler {
	return &BookingHandler{booking: svc}
}

type createBookingReq struct {
	HospitalID      string          `json:"hospital_id"`
	PickupLocation  string          `json:"pickup_location"`
	PickupLat       *float64        `json:"pickup_lat"`
	PickupLng       *float64        `json:"pickup_lng"`
	Destination     string          `json:"destination"`
	BookingType     string          `json:"booking_type"`
	EmergencyType   string          `json:"emergency_type"`
	Severity        string          `json:"severity"`
	PatientName     string          `json:"patient_name"`
	PatientPhone    string          `json:"patient_phone"`
	AccidentDetails json.RawMessage `json:"accident_details"`
}

// Create books an ambulance for the authenticated requester.
func (h *BookingHandler) Create(c *gin.Context) {
	if middleware.CallerRole(c) != middleware.RoleRequester {
		writeError(c, http.StatusForbidden, "forbidden: requester role required")
		return
	}
	var req createBookingReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if !isValidID(req.HospitalID) || req.PickupLocation == "" || req.BookingType == "" {
		writeError(c, http.StatusBadRequest, "missing fields")
		return
	}
	details := booking.Details{
		PickupLocation:  req.PickupLocation,
		Destination:     req.Destination,
		BookingType:     req.BookingType,
		EmergencyType:   req.EmergencyType,
		Severity:        req.Severity,
		PatientName:     req.PatientName,
		PatientPhone:    req.PatientPhone,
		AccidentDetails: req.AccidentDetails,
	}
	if (req.PickupLat == nil) != (req.PickupLng == nil) {
		writeError(c, http.StatusBadRequest, "pickup_lat and pickup_lng go together")
		return
	}
	if req.PickupLat != nil {
		details.Pickup = &types.Point{Lat: *req.PickupLat, Lng: *req.PickupLng}
	}

	id, err := h.booking.Create(c.Request.Context(), booking.CreateCommand{
		RequesterID: types.ID(middleware.CallerUID(c)),
		HospitalID:  types.ID(req.HospitalID),
		Details:     details,
	})
	if err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, map[string]any{
		"booking_id":   id,
		"status":       booking.StatusPending,
		"status_label": booking.StatusPending.Label(),
	})
}

type ambulanceResponse struct {
	DriverID          string         `json:"driver_id"`
	Name              string         `json:"name"`
	Phone             string         `json:"phone,omitempty"`
	VehicleNumber     string         `json:"vehicle_number"`
	Location          *pointResponse `json:"location,omitempty"`
	LocationUpdatedAt *time.Time     `json:"location_updated_at,omitempty"`
	DistanceKm        *float64       `json:"distance_km,omitempty"`
}

type bookingViewResponse struct {
	bookingResponse
	Ambulance *ambulanceResponse `json:"ambulance,omitempty"`
}

// Get returns the booking status view. Callers that may not see the booking get 404.
func (h *BookingHandler) Get(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid booking id")
		return
	}
	v, err := h.booking.GetView(c.Request.Context(), types.ID(id), actorFromContext(c))
	if err != nil {
		writeBookingError(c, err)
		return
	}
	out := bookingViewResponse{bookingResponse: toBookingResponse(v.Booking)}
	if d := v.Driver; d != nil {
		amb := &ambulanceResponse{
			DriverID:          string(d.ID),
			Name:              d.Name,
			Phone:             d.Phone,
			VehicleNumber:     d.VehicleNumber,
			LocationUpdatedAt: d.LocationUpdatedAt,
			DistanceKm:        v.DistanceKm,
		}
		if d.Location != nil {
			amb.Location = &pointResponse{Lat: d.Location.Lat, Lng: d.Location.Lng}
		}
		out.Ambulance = amb
	}
	writeJSON(c, http.StatusOK, out)
}

type assignReq struct {
	DriverID string `json:"driver_id"`
}

// Assign lets the owning hospital (or an admin) pick a specific available driver.
func (h *BookingHandler) Assign(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid booking id")
		return
	}
	var req assignReq
	if err := c.ShouldBindJSON(&req); err != nil || !isValidID(req.DriverID) {
		writeError(c, http.StatusBadRequest, "missing driver_id")
		return
	}
	b, err := h.booking.Assign(c.Request.Context(), booking.AssignCommand{
		BookingID: types.ID(id),
		DriverID:  types.ID(req.DriverID),
		Actor:     actorFromContext(c),
	})
	if err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toBookingResponse(b))
}

func (h *BookingHandler) AutoAssign(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid booking id")
		return
	}
	b, err := h.booking.AutoAssign(c.Request.Context(), booking.AutoAssignCommand{
		BookingID: types.ID(id),
		Actor:     actorFromContext(c),
	})
	if err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toBookingResponse(b))
}

func (h *BookingHandler) Cancel(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid booking id")
		return
	}
	err := h.booking.Cancel(c.Request.Context(), booking.CancelCommand{
		BookingID: types.ID(id),
		Actor:     actorFromContext(c),
	})
	if err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{
		"booking_id":   id,
		"status":       booking.StatusCancelled,
		"status_label": booking.StatusCancelled.Label(),
	})
}

type eventResponse struct {
	ID         int64     `json:"id"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	ActorType  string    `json:"actor_type"`
	ActorID    *string   `json:"actor_id,omitempty"`
	DriverID   *string   `json:"driver_id,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Events returns the transition history of a booking visible to the caller.
func (h *BookingHandler) Events(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid booking id")
		return
	}
	ctx := c.Request.Context()
	if _, err := h.booking.GetView(ctx, types.ID(id), actorFromContext(c)); err != nil {
		writeBookingError(c, err)
		return
	}
	events, err := h.booking.Events(ctx, types.ID(id))
	if err != nil {
		writeBookingError(c, err)
		return
	}
	out := make([]eventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, eventResponse{
			ID:         e.ID,
			FromStatus: string(e.FromStatus),
			ToStatus:   string(e.ToStatus),
			ActorType:  string(e.ActorType),
			ActorID:    idString(e.ActorID),
			DriverID:   idString(e.DriverID),
			Reason:     e.Reason,
			CreatedAt:  e.CreatedAt,
		})
	}
	writeJSON(c, http.StatusOK, map[string]any{"events": out})
}

func idString(id *types.ID) *string {
	if id == nil {
		return nil
	}
	s := string(*id)
	return &s
}
