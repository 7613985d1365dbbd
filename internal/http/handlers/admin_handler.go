// README: Admin handler for triggering a lifecycle sweep on demand.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Sagnify/ambulance-booking/internal/modules/booking"
)

// Sweeper runs one lifecycle sweep.
type Sweeper interface {
	RunOnce(ctx context.Context) (booking.SweepResult, error)
}

type AdminHandler struct {
	sweeper Sweeper
}

func NewAdminHandler(s Sweeper) *AdminHandler {
	return &AdminHandler{sweeper: s}
}

func (h *AdminHandler) Sweep(c *gin.Context) {
	res, err := h.sweeper.RunOnce(c.Request.Context())
	if err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{
		"scanned":   res.Scanned,
		"assigned":  res.Assigned,
		"cancelled": res.Cancelled,
	})
}
