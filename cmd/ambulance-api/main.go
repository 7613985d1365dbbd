// README: Entry point; loads config, wires services, starts the HTTP server and the lifecycle reconciler.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/Sagnify/ambulance-booking/internal/config"
	httptransport "github.com/Sagnify/ambulance-booking/internal/http"
	"github.com/Sagnify/ambulance-booking/internal/infra"
	"github.com/Sagnify/ambulance-booking/internal/logger"
	"github.com/Sagnify/ambulance-booking/internal/modules/booking"
	"github.com/Sagnify/ambulance-booking/internal/modules/driver"
	"github.com/Sagnify/ambulance-booking/internal/modules/hospital"
	"github.com/Sagnify/ambulance-booking/internal/modules/location"
	"github.com/Sagnify/ambulance-booking/internal/modules/notify"
	"github.com/Sagnify/ambulance-booking/internal/observability"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Env, cfg.Log.Level)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	if cfg.Env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Firebase.ProjectID == "" {
		return errors.New("AMB_FIREBASE_PROJECT_ID is required")
	}
	app, err := infra.NewFirebaseApp(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
	if err != nil {
		return fmt.Errorf("firebase init: %w", err)
	}
	verifier, err := infra.NewFirebaseVerifier(ctx, app)
	if err != nil {
		return fmt.Errorf("firebase auth: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg, "ambulance")

	var (
		store     booking.Store
		drivers   driver.Registry
		hospitals hospital.Directory
	)
	switch cfg.Store {
	case config.StoreMemory:
		mem := booking.NewMemoryStore()
		store, drivers = mem, mem.Drivers()
		log.Warn("using in-memory store; state is lost on restart and hospital ids are not checked")
	default:
		pool, err := infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			return err
		}
		defer pool.Close()
		store, drivers = booking.NewPostgresStore(pool), driver.NewPostgresStore(pool)
		hospitals = hospital.NewPostgresStore(pool)
	}

	var index driver.LocationIndex
	if cfg.Redis.Addr != "" {
		rdb, err := infra.NewRedis(ctx, cfg.Redis.Addr)
		if err != nil {
			return err
		}
		defer rdb.Close()
		index = location.NewRedisIndex(rdb, "")
	}

	publishers := booking.MultiPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		w := infra.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer w.Close()
		publishers = append(publishers, booking.NewKafkaPublisher(w))
	}
	if fcm, err := infra.NewMessaging(ctx, app); err != nil {
		log.Warn("push notifications disabled", "error", err)
	} else {
		publishers = append(publishers, notify.NewFCMPublisher(fcm))
	}

	bookingSvc := booking.NewService(booking.Deps{
		Store:     store,
		Drivers:   drivers,
		Hospitals: hospitals,
		Publisher: publishers,
		Logger:    log.With("module", "booking"),
		Metrics:   metrics,
	})
	driverSvc := driver.NewService(drivers, index, log.With("module", "driver"))
	reconciler := booking.NewReconciler(
		booking.NewPolicy(bookingSvc, cfg.Lifecycle),
		log.With("module", "reconciler"),
		metrics,
	)

	handler := httptransport.NewServer(httptransport.ServerDeps{
		Booking:    bookingSvc,
		Driver:     driverSvc,
		Reconciler: reconciler,
		Verifier:   verifier,
		Logger:     log.With("module", "http"),
		Metrics:    metrics,
		Gatherer:   reg,
		RateLimit:  cfg.RateLimit,
	})
	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http server listening", "addr", cfg.HTTP.Addr, "store", cfg.Store)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return reconciler.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
