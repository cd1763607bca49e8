package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"livepoll-service/internal/app"
	"livepoll-service/internal/config"
	"livepoll-service/internal/infra/memory"
	"livepoll-service/internal/infra/postgres"
	redisinfra "livepoll-service/internal/infra/redis"
	"livepoll-service/internal/logging"
	"livepoll-service/internal/metrics"
	transport "livepoll-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the live poll server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := logging.New(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	defer logger.Sync()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 24*time.Hour)

	var store app.PresentationStore = memory.NewPresentationStore()
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		store = postgres.NewStore(pool)
	} else {
		logger.Warn("postgres not configured, responses are kept in memory only")
	}

	var sessions app.SessionRepository
	var codes app.CodeRegistry
	if redisClient != nil {
		sessions = redisinfra.NewSessionStore(redisClient, redisTTL, logger)
		codes = redisinfra.NewCodeRegistry(redisClient, redisTTL)
	} else {
		sessions = memory.NewSessionStore()
		codes = memory.NewCodeRegistry()
	}

	m := metrics.New()
	service := app.NewPollService(sessions, store, codes, logger, m, serviceOptions(cfg))
	router := transport.NewRouter(service, logger, m, transport.ParticipantLimits{
		RatePerSecond: cfg.Participant.RatePerSecond,
		Burst:         cfg.Participant.Burst,
	})

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: websocket writes carry their own deadlines.
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("starting live poll service", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		return service.Run(gctx)
	})
	group.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return group.Wait()
}

func serviceOptions(cfg config.Config) app.Options {
	def := app.DefaultOptions()
	return app.Options{
		StoreTimeout:     config.TTLDuration(cfg.Store.Timeout, def.StoreTimeout),
		StoreRetries:     config.IntPtrOr(cfg.Store.Retries, def.StoreRetries),
		RetryInterval:    config.TTLDuration(cfg.Store.RetryInterval, def.RetryInterval),
		SubscriberBuffer: config.IntOr(cfg.Broadcast.Buffer, def.SubscriberBuffer),
		OpenEndedMax:     config.IntOr(cfg.Aggregate.OpenEndedMax, def.OpenEndedMax),
		PresenterGrace:   config.TTLDuration(cfg.Session.PresenterGrace, def.PresenterGrace),
		EndedRetention:   config.TTLDuration(cfg.Session.EndedRetention, def.EndedRetention),
		ReapInterval:     config.TTLDuration(cfg.Session.ReapInterval, def.ReapInterval),
	}
}
