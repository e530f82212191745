package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dealstream/api/internal/api"
	"github.com/dealstream/api/internal/config"
	"github.com/dealstream/api/internal/realtime"
	mongorepo "github.com/dealstream/api/internal/repository/mongo"
	"github.com/dealstream/api/internal/repository/postgres"
	redisrepo "github.com/dealstream/api/internal/repository/redis"
	"github.com/dealstream/api/internal/service"
)

func main() {
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogger(cfg.Logging)

	log.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("storage", cfg.Storage.Driver).
		Str("backplane", cfg.Realtime.Backplane).
		Msg("Starting dealstream API server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := postgres.NewDB(context.Background(), cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	// Notification store backend
	var notificationStore service.NotificationStore
	switch cfg.Storage.Driver {
	case "mongo":
		store, err := mongorepo.NewStore(context.Background(), cfg.Mongo)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to mongo")
		}
		defer store.Close(context.Background())
		notificationStore = store
	default:
		notificationStore = postgres.NewNotificationRepository(db)
	}

	// Connection registry; the redis backplane shares fanout across instances
	rooms := realtime.NewRooms()
	rooms.StartHeartbeat(ctx, cfg.Realtime.HeartbeatInterval)

	var registry realtime.RoomRegistry = rooms
	if cfg.Realtime.Backplane == "redis" {
		redisClient, err := redisrepo.NewClient(cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer redisClient.Close()

		backplane := redisrepo.NewBackplane(redisClient, rooms)
		defer backplane.Close()
		registry = backplane
	}

	// Initialize router
	router := api.NewRouter(cfg, db, notificationStore, registry)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

func setupLogger(cfg config.LoggingConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if level, err := zerolog.ParseLevel(cfg.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	switch {
	case cfg.File != "":
		writer, err := rotatelogs.New(
			cfg.File+".%Y%m%d",
			rotatelogs.WithLinkName(cfg.File),
			rotatelogs.WithMaxAge(7*24*time.Hour),
			rotatelogs.WithRotationTime(24*time.Hour),
		)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open log file")
		}
		log.Logger = log.Output(writer)
	case cfg.Format == "console" || os.Getenv("ENV") != "production":
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}
