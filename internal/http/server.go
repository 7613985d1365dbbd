// README: API gateway; wires middleware and module services into a gin engine.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Sagnify/ambulance-booking/internal/config"
	"github.com/Sagnify/ambulance-booking/internal/http/handlers"
	"github.com/Sagnify/ambulance-booking/internal/infra"
	"github.com/Sagnify/ambulance-booking/internal/logger"
	"github.com/Sagnify/ambulance-booking/internal/modules/booking"
	"github.com/Sagnify/ambulance-booking/internal/modules/driver"
	"github.com/Sagnify/ambulance-booking/internal/observability"
)

type ServerDeps struct {
	Booking    *booking.Service
	Driver     *driver.Service
	Reconciler handlers.Sweeper
	Verifier   infra.TokenVerifier
	Logger     logger.Logger
	Metrics    *observability.Metrics
	Gatherer   prometheus.Gatherer
	RateLimit  config.RateLimitConfig
}

type Server struct {
	deps ServerDeps
}

func NewServer(deps ServerDeps) *Server {
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	return &Server{deps: deps}
}

func (s *Server) Routes() http.Handler {
	return s.Engine()
}

func (s *Server) Engine() *gin.Engine {
	r := gin.New()
	registerRoutes(r, s.deps)
	return r
}
