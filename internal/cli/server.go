package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"livequiz/internal/app"
	"livequiz/internal/config"
	"livequiz/internal/infra/memory"
	"livequiz/internal/infra/postgres"
	infraredis "livequiz/internal/infra/redis"
	"livequiz/internal/telemetry"
	transport "livequiz/internal/transport/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the live quiz server",
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
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	issuer, err := newIssuer(cfg)
	if err != nil {
		return fmt.Errorf("moderator capability: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.NewMetrics(registry)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg, logger); err != nil {
			return err
		}
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient, err = connectRedis(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer redisClient.Close()
	}

	instanceID := uuid.NewString()
	logger = logger.With(zap.String("instance", instanceID))

	var (
		loader       memory.QuestionLoader = memory.NewStaticQuestionLoader(sampleQuestions()...)
		participants app.ParticipantStore  = memory.NewParticipantStore()
		results      app.ResultStore       = memory.NewResultStore()
	)
	if pool != nil {
		loader = postgres.NewQuestionLoader(pool)
		participants = postgres.NewParticipantStore(pool)
		results = postgres.NewResultStore(pool)
	} else {
		logger.Warn("postgres not configured, using in-memory stores with sample questions")
	}

	questionTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var (
		questions app.QuestionRepository
		rooms     app.RoomRegistry
		relay     transport.Relay
		roomRelay *infraredis.RoomRelay
		ownership app.RoomOwnership
		forwarder app.CommandForwarder
	)
	if redisClient != nil {
		questions = infraredis.NewQuestionRepository(redisClient, loader, questionTTL)
		registry := infraredis.NewRoomRegistry(redisClient, config.TTLDuration(cfg.Redis.TTL, 10*time.Minute), instanceID)
		rooms = registry
		if cfg.Redis.Relay {
			roomRelay = infraredis.NewRoomRelay(redisClient, instanceID, logger.Named("relay"))
			relay = roomRelay
			ownership = registry
			forwarder = roomRelay
		}
	} else {
		questions = memory.NewQuestionRepository(loader, questionTTL)
		rooms = memory.NewRoomRegistry()
	}

	hub := transport.NewHub(relay, metrics, logger)
	service := app.NewLiveService(rooms, questions, participants, results, hub, app.Options{
		Scorer:        app.NewScorer(*cfg.Scoring.BaseScore, *cfg.Scoring.TimeBonusFactor),
		RoundLimit:    cfg.Leaderboard.RoundLimit,
		DisplayLimit:  cfg.Leaderboard.DisplayLimit,
		AutoLock:      cfg.Quiz.AutoLock,
		AutoLockGrace: config.TTLDuration(cfg.Quiz.AutoLockGrace, 0),
		Ownership:     ownership,
		Forwarder:     forwarder,
		Logger:        logger,
		Metrics:       metrics,
	})
	if roomRelay != nil {
		stopCommands, err := roomRelay.ListenCommands(ctx, service.ApplyCommand)
		if err != nil {
			return fmt.Errorf("listen for room commands: %w", err)
		}
		defer stopCommands()
		logger.Info("multi-instance mode enabled")
	}
	wsHandler := transport.NewWSHandler(service, hub, issuer, transport.GatewayOptions{
		SendBuffer:      cfg.Gateway.SendBuffer,
		MaxMessageBytes: cfg.Gateway.MaxMessageBytes,
		PingInterval:    config.TTLDuration(cfg.Gateway.PingInterval, 0),
		RateLimit:       cfg.Gateway.RateLimit,
		RateBurst:       cfg.Gateway.RateBurst,
		AllowedOrigins:  cfg.Gateway.AllowedOrigins,
	}, logger)

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := transport.NewRouter(transport.RouterConfig{
		Service:  service,
		WS:       wsHandler,
		Gatherer: registry,
		PProf:    cfg.Server.PProf,
		Logger:   logger,
	})

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		logger.Info("starting live quiz service", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-egCtx.Done()
		logger.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.TTLDuration(cfg.Server.ShutdownTimeout, 5*time.Second))
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return eg.Wait()
}

func connectRedis(ctx context.Context, cfg config.Config, logger *zap.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := telemetry.MonitorRedis(client, logger); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("monitor redis: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	return telemetry.NewLogger(telemetry.LogOptions{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
}
