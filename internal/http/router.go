// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Sagnify/ambulance-booking/internal/http/handlers"
	"github.com/Sagnify/ambulance-booking/internal/http/middleware"
)

func registerRoutes(r *gin.Engine, deps ServerDeps) {
	r.Use(middleware.Recovery(deps.Logger), middleware.Logging(deps.Logger, deps.Metrics))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))

	api := r.Group("/api")
	api.Use(middleware.Auth(deps.Verifier), middleware.RateLimit(deps.RateLimit.RPS, deps.RateLimit.Burst, deps.Logger))

	requesterOnly := middleware.RequireRole(middleware.RoleRequester)
	driverOnly := middleware.RequireRole(middleware.RoleDriver)
	hospitalOrAdmin := middleware.RequireRole(middleware.RoleHospital, middleware.RoleAdmin)
	adminOnly := middleware.RequireRole(middleware.RoleAdmin)

	bookingHandler := handlers.NewBookingHandler(deps.Booking)
	api.POST("/bookings", requesterOnly, bookingHandler.Create)
	api.GET("/bookings/:id", bookingHandler.Get)
	api.GET("/bookings/:id/events", hospitalOrAdmin, bookingHandler.Events)
	api.POST("/bookings/:id/assign", hospitalOrAdmin, bookingHandler.Assign)
	api.POST("/bookings/:id/auto-assign", bookingHandler.AutoAssign)
	api.POST("/bookings/:id/cancel", bookingHandler.Cancel)

	requesterHandler := handlers.NewRequesterHandler(deps.Booking)
	api.GET("/me/booking", requesterOnly, requesterHandler.Ongoing)

	driverHandler := handlers.NewDriverHandler(deps.Booking, deps.Driver)
	api.PATCH("/bookings/:id/status", driverOnly, driverHandler.UpdateStatus)
	api.GET("/drivers/me/bookings", driverOnly, driverHandler.ListBookings)
	api.PUT("/drivers/me/availability", driverOnly, driverHandler.SetAvailability)

	locationHandler := handlers.NewLocationHandler(deps.Driver)
	api.PUT("/drivers/me/location", driverOnly, locationHandler.Update)

	hospitalHandler := handlers.NewHospitalHandler(deps.Booking)
	api.GET("/hospitals/:id/overview", hospitalOrAdmin, hospitalHandler.Overview)

	adminHandler := handlers.NewAdminHandler(deps.Reconciler)
	api.POST("/admin/sweep", adminOnly, adminHandler.Sweep)
}
