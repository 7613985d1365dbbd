// README: Location handler for driver position reports.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Sagnify/ambulance-booking/internal/http/middleware"
	"github.com/Sagnify/ambulance-booking/internal/modules/driver"
	"github.com/Sagnify/ambulance-booking/internal/types"
)

type LocationHandler struct {
	driver *driver.Service
}

func NewLocationHandler(svc *driver.Service) *LocationHandler {
	return &LocationHandler{driver: svc}
}

type locationReq struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

// Update records the calling driver's last known position.
func (h *LocationHandler) Update(c *gin.Context) {
	var req locationReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Lat == nil || req.Lng == nil {
		writeError(c, http.StatusBadRequest, "missing lat/lng")
		return
	}
	err := h.driver.UpdateLocation(c.Request.Context(), driver.UpdateLocationCommand{
		DriverID: types.ID(middleware.CallerUID(c)),
		Position: types.Point{Lat: *req.Lat, Lng: *req.Lng},
	})
	if err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"status": "ok"})
}
