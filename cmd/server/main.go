package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/eventhub-tickets/internal/artifact"
	"github.com/iliyamo/eventhub-tickets/internal/clock"
	"github.com/iliyamo/eventhub-tickets/internal/config"
	"github.com/iliyamo/eventhub-tickets/internal/database"
	"github.com/iliyamo/eventhub-tickets/internal/handler"
	"github.com/iliyamo/eventhub-tickets/internal/logger"
	"github.com/iliyamo/eventhub-tickets/internal/middleware"
	"github.com/iliyamo/eventhub-tickets/internal/queue"
	"github.com/iliyamo/eventhub-tickets/internal/repository"
	"github.com/iliyamo/eventhub-tickets/internal/repository/memory"
	"github.com/iliyamo/eventhub-tickets/internal/router"
	"github.com/iliyamo/eventhub-tickets/internal/seed"
	"github.com/iliyamo/eventhub-tickets/internal/service"
)

// stores is the storage backend selected by STORAGE_DRIVER.
type stores struct {
	events  interface {
		service.EventRepository
		service.SeatInventory
		queue.SeatIncrementer
	}
	tickets service.TicketStore
	users   handler.UserStore
	tokens  handler.RefreshTokens
	tx      service.Transactor // nil for memory
	checks  map[string]handler.Pinger
	close   func()
}

func main() {
	_ = godotenv.Load() // .env is optional; real env vars win

	cfg, err := config.Load()
	log := logger.New(logger.Config{Level: cfg.LogLevel, ServiceName: "eventhub", Development: cfg.Env == "dev"})
	defer func() { _ = log.Sync() }()
	if err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
	log.Info("bye")
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	clk := clock.NewSystem()

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close()

	// Redis is optional: without it the cache and the rate limiter pass through.
	var rdb *redis.Client
	if client, err := config.NewRedisClient(ctx, config.LoadRedisConfig()); err != nil {
		log.Warn("redis unavailable, running without cache and rate limit", zap.Error(err))
	} else {
		rdb = client
		defer func() { _ = rdb.Close() }()
		st.checks["redis"] = handler.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}
	cache := middleware.NewResponseCache(config.LoadCacheConfig(), rdb, log)

	opts := []service.ReservationOption{
		service.WithLogger(log),
		service.WithMaxAttempts(cfg.PurchaseMaxAttempts),
	}
	if st.tx != nil {
		opts = append(opts, service.WithTransactor(st.tx))
	}

	var consumer *queue.Consumer
	if cfg.RabbitURL != "" {
		pub := queue.NewPublisher(cfg.RabbitURL, log)
		defer func() { _ = pub.Close() }()
		opts = append(opts, service.WithSeatReconciler(pub))
		consumer = queue.NewConsumer(cfg.RabbitURL, log).
			Handle(queue.SeatReleaseQueue, queue.SeatReleaseHandler(st.events, log))
	} else {
		log.Info("RABBITMQ_URL not set, failed seat releases are only logged")
	}

	reservations := service.NewReservationService(st.events, st.tickets, clk, opts...)
	events := service.NewEventService(st.events, cache, log)
	artifacts := service.NewArtifactService(reservations, artifact.NewQREncoder(), artifact.NewPDFRenderer(), log)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLog(log))
	e.Use(echomw.Recover())

	router.RegisterRoutes(e, router.Deps{
		JWTSecret: cfg.JWTSecret,
		Health:    handler.NewHealthHandler(st.checks),
		Auth:      handler.NewAuthHandler(cfg, st.users, st.tokens, clk, log),
		Events:    handler.NewEventHandler(events, reservations, log),
		Tickets:   handler.NewTicketHandler(reservations, artifacts, log),
		Cache:     cache,
		RateLimit: middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env), zap.String("storage", cfg.StorageDriver))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if consumer != nil {
		g.Go(func() error { return consumer.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openStores(ctx context.Context, cfg config.Config, log *zap.Logger) (*stores, error) {
	switch cfg.StorageDriver {
	case config.DriverMemory:
		events := memory.NewEventStore()
		users := memory.NewUserStore()
		if cfg.SeedDemoEvents {
			created, err := seed.ImportEvents(ctx, events, time.Now())
			if err != nil {
				return nil, err
			}
			log.Info("demo events loaded", zap.Int("count", len(created)))
		}
		// The memory backend has no seeder run, so the default admin is created here.
		if _, err := seed.ImportAdmin(ctx, users, seed.DefaultAdminUsername, seed.DefaultAdminPassword, cfg.BcryptCost); err != nil {
			return nil, err
		}
		log.Warn("memory storage: data is lost on restart", zap.String("admin", seed.DefaultAdminUsername))
		return &stores{
			events:  events,
			tickets: memory.NewTicketStore(events),
			users:   users,
			tokens:  memory.NewTokenStore(),
			checks:  map[string]handler.Pinger{},
			close:   func() {},
		}, nil
	default:
		db, err := database.Open(ctx, database.Settings{
			User: cfg.DBUser, Pass: cfg.DBPass, Host: cfg.DBHost, Port: cfg.DBPort, Name: cfg.DBName,
		})
		if err != nil {
			return nil, err
		}
		if err := database.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		return &stores{
			events:  repository.NewEventRepo(db),
			tickets: repository.NewTicketRepo(db),
			users:   repository.NewUserRepo(db),
			tokens:  repository.NewTokenRepo(db),
			tx:      repository.NewTxManager(db),
			checks:  map[string]handler.Pinger{"mysql": handler.PingFunc(db.PingContext)},
			close:   func() { _ = db.Close() },
		}, nil
	}
}
