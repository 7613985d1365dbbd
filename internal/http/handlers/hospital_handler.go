// README: Hospital dashboard handler.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Sagnify/ambulance-booking/internal/http/middleware"
	"github.com/Sagnify/ambulance-booking/internal/modules/booking"
	"github.com/Sagnify/ambulance-booking/internal/types"
)

type HospitalHandler struct {
	booking *booking.Service
}

func NewHospitalHandler(svc *booking.Service) *HospitalHandler {
	return &HospitalHandler{booking: svc}
}

// Overview returns driver counts plus pending and ongoing bookings.
// Hospital callers only see their own hospital.
func (h *HospitalHandler) Overview(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid hospital id")
		return
	}
	if middleware.CallerRole(c) == middleware.RoleHospital && middleware.CallerHospitalID(c) != id {
		writeError(c, http.StatusForbidden, "forbidden: not your hospital")
		return
	}
	o, err := h.booking.HospitalOverview(c.Request.Context(), types.ID(id))
	if err != nil {
		writeBookingError(c, err)
		return
	}
	counts := make(map[string]int, len(o.DriverCounts))
	for a, n := range o.DriverCounts {
		counts[string(a)] = n
	}
	writeJSON(c, http.StatusOK, map[string]any{
		"hospital_id":      o.HospitalID,
		"driver_counts":    counts,
		"pending_bookings": toBookingList(o.PendingBookings),
		"ongoing_bookings": toBookingList(o.OngoingBookings),
	})
}
