package service

import (
	"log/slog"

	"github.com/kirinyoku/cinebook/internal/notify"
	"github.com/kirinyoku/cinebook/internal/repository"
	"github.com/kirinyoku/cinebook/internal/service/availability"
	"github.com/kirinyoku/cinebook/internal/service/booking"
	"github.com/kirinyoku/cinebook/internal/service/catalog"
	"github.com/kirinyoku/cinebook/internal/service/lifecycle"
	"github.com/kirinyoku/cinebook/internal/service/scheduler"
)

type Services struct {
	Catalog      *catalog.Service
	Scheduler    *scheduler.Service
	Availability *availability.Service
	Booking      *booking.Service
	Lifecycle    *lifecycle.Service
}

type Config struct {
	Catalog      catalog.Config
	Scheduler    scheduler.Config
	Availability availability.Config
	Booking      booking.Config
	Lifecycle    lifecycle.Config
}

// Deps are the optional collaborators of the services. Nil fields disable the feature.
type Deps struct {
	Notifier notify.Notifier
	Counts   availability.CountCache
	Limiter  booking.Limiter
}

func NewServices(store repository.Store, deps Deps, logger *slog.Logger, cfg Config) *Services {
	return &Services{
		Catalog:      catalog.New(store, deps.Notifier, logger.With("service", "catalog"), cfg.Catalog),
		Scheduler:    scheduler.New(store, deps.Notifier, logger.With("service", "scheduler"), cfg.Scheduler),
		Availability: availability.New(store, deps.Counts, logger.With("service", "availability"), cfg.Availability),
		Booking:      booking.New(store, deps.Limiter, deps.Notifier, logger.With("service", "booking"), cfg.Booking),
		Lifecycle:    lifecycle.New(store, deps.Notifier, logger.With("service", "lifecycle"), cfg.Lifecycle),
	}
}
