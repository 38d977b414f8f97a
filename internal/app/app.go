package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirinyoku/cinebook/internal/config"
	"github.com/kirinyoku/cinebook/internal/notify"
	"github.com/kirinyoku/cinebook/internal/postgres"
	"github.com/kirinyoku/cinebook/internal/queue"
	"github.com/kirinyoku/cinebook/internal/redis"
	"github.com/kirinyoku/cinebook/internal/repository"
	"github.com/kirinyoku/cinebook/internal/repository/memory"
	postgresrepo "github.com/kirinyoku/cinebook/internal/repository/postgres"
	redisrepo "github.com/kirinyoku/cinebook/internal/repository/redis"
	"github.com/kirinyoku/cinebook/internal/retry"
	"github.com/kirinyoku/cinebook/internal/service"
	"github.com/kirinyoku/cinebook/internal/service/availability"
	"github.com/kirinyoku/cinebook/internal/service/booking"
	"github.com/kirinyoku/cinebook/internal/service/lifecycle"
	"github.com/kirinyoku/cinebook/internal/telemetry"
	httpgin "github.com/kirinyoku/cinebook/internal/transport/http/gin"
)

const serviceName = "cinebook"

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server
	worker     *lifecycle.Worker

	showsSub   *redisrepo.ShowsPubSub
	publisher  *queue.Publisher
	consumer   *queue.Consumer
	dispatcher *notify.Dispatcher

	// closers run in reverse order on shutdown.
	closers []func(context.Context) error
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}

	shutdownTracing, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:   serviceName,
		Environment:   cfg.Telemetry.Environment,
		CollectorAddr: cfg.Telemetry.CollectorAddr,
		SampleRatio:   cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	a.closers = append(a.closers, shutdownTracing)

	store, err := a.initStore(ctx)
	if err != nil {
		a.close()
		return nil, err
	}

	var (
		deps        service.Deps
		notifyOpts  []notify.Option
		idempotency httpgin.IdempotencyStore
	)

	if cfg.Redis.Enabled() {
		rdb, err := redis.New(ctx, redis.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to initialize redis: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return rdb.Close() })

		cache := redisrepo.New(rdb)
		a.showsSub = redisrepo.NewShowsPubSub(rdb)
		deps.Counts = cache
		deps.Limiter = redisrepo.NewSlidingWindowLimiter(rdb, "booking", cfg.Booking.RateLimit, cfg.Booking.RateLimitWindow)
		idempotency = redisrepo.NewIdempotencyStore(rdb, cfg.Redis.IdempotencyTTL)
		notifyOpts = append(notifyOpts, notify.WithCache(cache), notify.WithPubSub(a.showsSub))
	} else {
		logger.Warn("redis is not configured: counts are not cached, bookings are not rate limited")
	}

	if cfg.RabbitMQ.Enabled() {
		a.publisher = queue.NewPublisher(cfg.RabbitMQ.URL, logger.With("component", "publisher"))
		a.publisher.DialTimeout = cfg.RabbitMQ.DialTimeout
		a.closers = append(a.closers, func(context.Context) error { return a.publisher.Close() })
		notifyOpts = append(notifyOpts, notify.WithEvents(a.publisher))

		if cfg.RabbitMQ.Consume {
			a.consumer = queue.NewConsumer(cfg.RabbitMQ.URL, []string{
				notify.EventBookingConfirmed,
				notify.EventBookingCancelled,
				notify.EventBookingCompleted,
			}, logger.With("component", "consumer"))
			a.consumer.DialTimeout = cfg.RabbitMQ.DialTimeout
		}
	}

	a.dispatcher = notify.NewDispatcher(logger.With("component", "notify"), notifyOpts...)
	deps.Notifier = a.dispatcher

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = cfg.Booking.MaxAttempts
	retryCfg.InitialInterval = cfg.Booking.InitialBackoff
	retryCfg.MaxInterval = cfg.Booking.MaxBackoff

	services := service.NewServices(store, deps, logger, service.Config{
		Availability: availability.Config{CountTTL: cfg.Availability.CountTTL},
		Booking: booking.Config{
			MaxSeatsPerBooking: cfg.Booking.MaxSeats,
			Retry:              retryCfg,
		},
		Lifecycle: lifecycle.Config{BatchSize: cfg.Lifecycle.BatchSize},
	})

	a.worker = lifecycle.NewWorker(services.Lifecycle, cfg.Lifecycle.Interval, logger.With("component", "lifecycle-worker"))

	router := httpgin.NewRouter(services, httpgin.Options{
		JWTSecret:   cfg.Auth.JWTSecret,
		CORSOrigins: cfg.Server.CORSOrigins,
		Idempotency: idempotency,
	}, logger, telemetry.TracingMiddleware())

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

func (a *App) initStore(ctx context.Context) (repository.Store, error) {
	if a.cfg.Store == config.StoreMemory {
		a.logger.Warn("using in-memory store, data is lost on restart")
		return memory.New(), nil
	}

	pool, err := postgres.New(ctx, postgres.Config{
		DSN:      a.cfg.Postgres.DSN(),
		MaxConns: int32(a.cfg.Postgres.MaxConns),
		Tracing:  a.cfg.Telemetry.CollectorAddr != "",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { pool.Close(); return nil })

	if a.cfg.Postgres.Migrate {
		if err := postgres.Migrate(ctx, pool); err != nil {
			return nil, fmt.Errorf("failed to migrate postgres: %w", err)
		}
	}

	return postgresrepo.NewStore(pool), nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	defer a.close()

	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return a.worker.Run(gCtx)
	})

	g.Go(func() error {
		return a.dispatcher.Run(gCtx)
	})

	if a.showsSub != nil {
		g.Go(func() error {
			err := a.showsSub.Subscribe(gCtx, func(_ context.Context, showID int64) {
				a.logger.Debug("show changed", "show_id", showID)
			})
			if gCtx.Err() != nil {
				return nil
			}
			return err
		})
	}

	if a.consumer != nil {
		g.Go(func() error {
			return a.consumer.Run(gCtx, a.logEvent)
		})
	}

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	return g.Wait()
}

func (a *App) logEvent(_ context.Context, routingKey string, body []byte) error {
	a.logger.Info("booking event", "type", routingKey, "payload", string(body))
	return nil
}

func (a *App) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn("shutdown step failed", "error", err)
		}
	}
	a.closers = nil
}
