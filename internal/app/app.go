package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/seatbook/seatbook-backend/internal/booking/capacity"
	"github.com/seatbook/seatbook-backend/internal/booking/reservation"
	"github.com/seatbook/seatbook-backend/internal/data/db"
	bookingrepo "github.com/seatbook/seatbook-backend/internal/data/repos/booking"
	userrepo "github.com/seatbook/seatbook-backend/internal/data/repos/user"
	apphttp "github.com/seatbook/seatbook-backend/internal/http"
	"github.com/seatbook/seatbook-backend/internal/http/handlers"
	"github.com/seatbook/seatbook-backend/internal/observability"
	"github.com/seatbook/seatbook-backend/internal/platform/logger"
)

type App struct {
	Config   *Config
	Log      *logger.Logger
	DB       *gorm.DB
	Router   *gin.Engine
	shutdown func(context.Context) error
}

func New(ctx context.Context) (*App, error) {
	cfg, err := Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	shutdownOtel := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
	})

	pg, err := db.NewPostgresService(log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	gdb := pg.DB()

	users := userrepo.NewRepo(gdb, log)
	slots := bookingrepo.NewSlotRepo(gdb, log)
	caps := bookingrepo.NewSlotCapacityRepo(gdb, log)
	reservations := bookingrepo.NewReservationRepo(gdb, log)

	deps := reservation.Deps{
		Users:        users,
		Slots:        slots,
		Capacities:   caps,
		Reservations: reservations,
		Runner:       db.NewGormTxRunner(gdb),
		Hooks:        observability.Init(),
		Log:          log,
	}

	switch cfg.Booking.Strategy {
	case StrategyCAS:
		cas := capacity.NewCASStrategy(log, cfg.Booking.CASSpinLimit)
		deps.Strategy = cas
		deps.CAS = cas
	case StrategyMutex:
		deps.Strategy = capacity.NewMutexStrategy(caps, log)
	case StrategyOptimistic:
		deps.Strategy = capacity.NewOptimisticStrategy(caps, log)
		deps.Retrier = reservation.NewRetrier(reservation.RetryPolicy{
			MaxAttempts: cfg.Booking.MaxAttempts,
			MinBackoff:  cfg.Booking.MinBackoff,
			MaxBackoff:  cfg.Booking.MaxBackoff,
			JitterFrac:  cfg.Booking.JitterFrac,
		}, log)
	}

	svc := reservation.NewService(deps)

	router := apphttp.NewRouter(apphttp.RouterConfig{
		ServiceName:        cfg.ServiceName,
		AllowOrigins:       cfg.HTTP.AllowOrigins,
		ReservationHandler: handlers.NewReservationHandler(log, svc),
		HealthHandler:      handlers.NewHealthHandler(log, gdb),
	})

	log.Info("application wired",
		"strategy", deps.Strategy.Name(),
		"addr", cfg.HTTP.Addr,
	)

	return &App{
		Config:   cfg,
		Log:      log,
		DB:       gdb,
		Router:   router,
		shutdown: shutdownOtel,
	}, nil
}

func (a *App) Close(ctx context.Context) error {
	var firstErr error
	if a.shutdown != nil {
		if err := a.shutdown(ctx); err != nil {
			firstErr = err
		}
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.Log.Sync()
	return firstErr
}
