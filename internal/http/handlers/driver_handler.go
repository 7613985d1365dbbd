// README: Driver handlers for assigned bookings, status progress, and availability.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Sagnify/ambulance-booking/internal/http/middleware"
	"github.com/Sagnify/ambulance-booking/internal/modules/booking"
	"github.com/Sagnify/ambulance-booking/internal/modules/driver"
	"github.com/Sagnify/ambulance-booking/internal/types"
)

type DriverHandler struct {
	booking *booking.Service
	driver  *driver.Service
}

func NewDriverHandler(bookingSvc *booking.Service, driverSvc *driver.Service) *DriverHandler {
	return &DriverHandler{booking: bookingSvc, driver: driverSvc}
}

func (h *DriverHandler) ListBookings(c *gin.Context) {
	bs, err := h.booking.ListForDriver(c.Request.Context(), types.ID(middleware.CallerUID(c)))
	if err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"bookings": toBookingList(bs)})
}

type updateStatusReq struct {
	Status string `json:"status"`
}

// UpdateStatus advances the caller's assigned booking one step.
func (h *DriverHandler) UpdateStatus(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid booking id")
		return
	}
	var req updateStatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	status, err := booking.ParseStatus(req.Status)
	if err != nil {
		writeBookingError(c, err)
		return
	}
	err = h.booking.AdvanceStatus(c.Request.Context(), booking.AdvanceCommand{
		BookingID: types.ID(id),
		DriverID:  types.ID(middleware.CallerUID(c)),
		Status:    status,
	})
	if err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{
		"booking_id":   id,
		"status":       status,
		"status_label": status.Label(),
	})
}

type availabilityReq struct {
	Available *bool `json:"available"`
}

func (h *DriverHandler) SetAvailability(c *gin.Context) {
	var req availabilityReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Available == nil {
		writeError(c, http.StatusBadRequest, "missing available")
		return
	}
	d, err := h.driver.SetAvailability(c.Request.Context(), driver.SetAvailabilityCommand{
		DriverID:  types.ID(middleware.CallerUID(c)),
		Available: *req.Available,
	})
	if err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{
		"driver_id":          d.ID,
		"availability":       d.Availability,
		"availability_label": d.Availability.Label(),
	})
}
