// README: Requester handlers (ongoing booking lookup).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Sagnify/ambulance-booking/internal/http/middleware"
	"github.com/Sagnify/ambulance-booking/internal/modules/booking"
	"github.com/Sagnify/ambulance-booking/internal/types"
)

type RequesterHandler struct {
	booking *booking.Service
}

func NewRequesterHandler(svc *booking.Service) *RequesterHandler {
	return &RequesterHandler{booking: svc}
}

// Ongoing returns the caller's non-terminal booking, or {"booking": null}.
func (h *RequesterHandler) Ongoing(c *gin.Context) {
	b, err := h.booking.OngoingForRequester(c.Request.Context(), types.ID(middleware.CallerUID(c)))
	if errors.Is(err, booking.ErrNotFound) {
		writeJSON(c, http.StatusOK, map[string]any{"booking": nil})
		return
	}
	if err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"booking": toBookingResponse(b)})
}
