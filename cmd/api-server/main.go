package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/clinic-appointment-scheduling/internal/api"
	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
	"github.com/hackgods/clinic-appointment-scheduling/internal/config"
	"github.com/hackgods/clinic-appointment-scheduling/internal/db"
	"github.com/hackgods/clinic-appointment-scheduling/internal/logging"
	"github.com/hackgods/clinic-appointment-scheduling/internal/metrics"
	redisclient "github.com/hackgods/clinic-appointment-scheduling/internal/redis"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default().Error("config load error", "error", err)
		os.Exit(1)
	}

	log := logging.New(cfg.LogLevel)
	log.Info("api-server starting up", "env", cfg.Env, "http_port", cfg.HTTPPort, "version", version)

	if err := run(cfg, log); err != nil {
		log.Error("api-server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *logging.Logger) error {
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	defaultHours := appointment.WorkingHours{
		Start:      cfg.WorkingHours.Start,
		End:        cfg.WorkingHours.End,
		BreakStart: cfg.WorkingHours.BreakStart,
		BreakEnd:   cfg.WorkingHours.BreakEnd,
	}
	if err := defaultHours.Validate(); err != nil {
		return err
	}

	if cfg.MigrateOnStart {
		if err := db.RunMigrations(cfg.PostgresDSN); err != nil {
			return err
		}
		log.Info("migrations applied")
	}

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, cfg.PostgresMaxConn)
	cancelPg()
	if err != nil {
		return err
	}
	defer pgPool.Close()
	log.Info("connected to Postgres")

	// Redis only shortens contention; the unique index still guards bookings without it.
	var (
		rdb    *redis.Client
		locker redisclient.Locker
	)
	rdb, err = redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Warn("redis unavailable, booking without slot lock", "error", err)
	} else {
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Warn("error closing redis", "error", err)
			}
		}()
		locker = redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
		log.Info("connected to Redis")
	}

	repo := appointment.NewPgRepository(pgPool)
	svc := appointment.NewService(repo, repo, locker, appointment.Options{
		DefaultHours: defaultHours,
		Location:     cfg.ClinicLocation,
		Logger:       log,
		Metrics:      metrics.NewSchedulingMetrics(nil),
	})

	health := api.NewHealthHandler(pgPool, rdb, cfg.Env, version)

	srv := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: api.NewRouter(api.RouterConfig{
			Service:   svc,
			Health:    health,
			Metrics:   promhttp.Handler(),
			JWTSecret: cfg.JWTSecret,
			Logger:    log,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-rootCtx.Done():
	}

	log.Info("shutting down api-server", "timeout", cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
