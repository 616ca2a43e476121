package main

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

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"

	"github.com/terra-clan/progression-engine/internal/api"
	"github.com/terra-clan/progression-engine/internal/catalog"
	"github.com/terra-clan/progression-engine/internal/cleanup"
	"github.com/terra-clan/progression-engine/internal/config"
	"github.com/terra-clan/progression-engine/internal/engine"
	"github.com/terra-clan/progression-engine/internal/events"
	"github.com/terra-clan/progression-engine/internal/leaderboard"
	"github.com/terra-clan/progression-engine/internal/locking"
	"github.com/terra-clan/progression-engine/internal/models"
	"github.com/terra-clan/progression-engine/internal/progress"
	"github.com/terra-clan/progression-engine/internal/services"
	"github.com/terra-clan/progression-engine/internal/storage"
	"github.com/terra-clan/progression-engine/internal/workout"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Log.Level,
	}))
	slog.SetDefault(logger)

	slog.Info("starting progression-engine",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"profile_store", cfg.Database.ProfileStore,
	)

	rules, err := config.LoadRules(cfg.Rules.File)
	if err != nil {
		slog.Error("failed to load rules", "error", err)
		os.Exit(1)
	}

	eng, err := engine.New(rules.Engine, logger)
	if err != nil {
		slog.Error("invalid rules", "error", err)
		os.Exit(1)
	}

	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	registry := services.NewRegistry(2 * time.Second)
	var closers []func() error

	repo, err := openRepository(initCtx, cfg, registry, &closers)
	if err != nil {
		slog.Error("failed to open storage", "error", err)
		os.Exit(1)
	}

	// Redis backs the settlement lock and the leaderboard
	var (
		locker locking.Locker = locking.NewLocalLocker()
		board  progress.Board
	)
	if cfg.Redis.Enabled {
		redisProvider, err := services.NewRedisProvider(initCtx, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			slog.Error("failed to create redis provider", "error", err)
			os.Exit(1)
		}
		registry.Register("redis", redisProvider)
		closers = append(closers, redisProvider.Close)

		locker = locking.NewRedisLocker(redisProvider.Client(), "progression:lock:")
		board = leaderboard.New(redisProvider.Client(), cfg.Redis.LeaderboardKey)
	} else {
		slog.Warn("redis disabled, settlement locks are process-local and the leaderboard reads storage")
	}

	// Events go to websocket subscribers and, when enabled, Kafka
	hub := events.NewHub(64)
	publishers := events.MultiPublisher{hub}
	if cfg.Kafka.Enabled {
		kafkaPublisher := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		publishers = append(publishers, kafkaPublisher)
		registry.Register("kafka", services.NewKafkaChecker(cfg.Kafka.Brokers))
		closers = append(closers, kafkaPublisher.Close)
	}

	workouts := catalog.NewLoader(workout.NewEstimator(logger))
	if err := workouts.LoadFromDir(cfg.Catalog.Dir); err != nil {
		slog.Error("failed to load workout catalog", "dir", cfg.Catalog.Dir, "error", err)
		os.Exit(1)
	}

	service, err := progress.NewService(progress.Deps{
		Engine:        eng,
		Profiles:      repo,
		Challenges:    repo,
		Settlements:   repo,
		Catalog:       workouts,
		Locker:        locker,
		Board:         board,
		Publisher:     publishers,
		StartingCoins: rules.StartingCoins,
		MaxRetries:    cfg.Settlement.MaxRetries,
		LockTTL:       cfg.Settlement.LockTTL,
		Logger:        logger,
	})
	if err != nil {
		slog.Error("failed to create service", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cleanup.NewCleaner(service, cfg.Settlement.SweepInterval, logger).Start(ctx)

	server := api.NewServer(cfg.Server, service, hub, registry, repo, logger)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down gracefully...")

	// Stop the sweeper before the stores it uses go away
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			slog.Error("close error", "error", err)
		}
	}
	if err := repo.Close(); err != nil {
		slog.Error("storage close error", "error", err)
	}

	slog.Info("progression-engine stopped")
}

// openRepository builds the configured store, running migrations first
// when Postgres is involved
func openRepository(ctx context.Context, cfg *config.Config, registry *services.Registry, closers *[]func() error) (storage.Repository, error) {
	if cfg.Database.ProfileStore == config.StoreMemory {
		var clients []*models.ApiClient
		if cfg.Server.DevAPIKey != "" {
			clients = append(clients, &models.ApiClient{
				ID:          1,
				Name:        "dev",
				ApiKey:      cfg.Server.DevAPIKey,
				IsActive:    true,
				Permissions: []string{"*"},
				CreatedAt:   time.Now().UTC(),
			})
		}
		slog.Warn("using in-memory storage; data is lost on restart")
		repo := storage.NewMemoryRepository(clients...)
		registry.Register("storage", services.CheckerFunc{Kind: "memory", Fn: repo.Ping})
		return repo, nil
	}

	pg, err := storage.NewPostgresRepository(ctx, storage.PostgresConfig{
		DSN:          cfg.Database.DSN,
		MaxOpenConns: int32(cfg.Database.MaxOpenConns),
		MaxIdleConns: int32(cfg.Database.MaxIdleConns),
	})
	if err != nil {
		return nil, err
	}
	registry.Register("postgres", services.CheckerFunc{Kind: "postgres", Fn: pg.Ping})
	slog.Info("database connected successfully")

	slog.Info("running database migrations", "dir", cfg.Database.MigrationsDir)
	applied, err := storage.RunMigrations(ctx, pg.Pool(), cfg.Database.MigrationsDir)
	if err != nil {
		_ = pg.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Info("migrations complete", "applied", applied)

	if cfg.Database.ProfileStore != config.StoreFirestore {
		return pg, nil
	}

	var opts []option.ClientOption
	if cfg.Firestore.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.Firestore.CredentialsFile))
	}
	fs, err := firestore.NewClientWithDatabase(ctx, cfg.Firestore.ProjectID, cfg.Firestore.Database, opts...)
	if err != nil {
		_ = pg.Close()
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	*closers = append(*closers, fs.Close)

	profiles := storage.NewFirestoreProfileStore(fs, cfg.Firestore.Collection)
	registry.Register("firestore", services.CheckerFunc{Kind: "firestore", Fn: profiles.Ping})
	slog.Info("profiles stored in firestore", "project", cfg.Firestore.ProjectID, "collection", cfg.Firestore.Collection)

	return storage.NewSplitRepository(pg, profiles), nil
}
