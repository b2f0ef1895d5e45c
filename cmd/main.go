package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/shahzaib974/attendance-service/internal/archive"
	"github.com/shahzaib974/attendance-service/internal/client"
	"github.com/shahzaib974/attendance-service/internal/config"
	"github.com/shahzaib974/attendance-service/internal/handler"
	"github.com/shahzaib974/attendance-service/internal/ingest"
	"github.com/shahzaib974/attendance-service/internal/service"
	"github.com/shahzaib974/attendance-service/internal/store"
	"github.com/shahzaib974/attendance-service/pkg/database"
	pkglog "github.com/shahzaib974/attendance-service/pkg/log"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	// Initialize structured logger
	pkglog.Init(pkglog.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Level == "debug",
		ServiceName: "attendance-service",
	})
	logger := pkglog.L()

	logger.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("starting attendance-service")

	// Create Redis attendance store
	attendanceStore, err := store.NewRedisStore(store.RedisConfig{
		Address:  cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Prefix:   cfg.Redis.Prefix,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create redis store")
	}
	defer attendanceStore.Close()
	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis store connected")

	// Optional room summary archive
	var summaryArchiver archive.SummaryArchiver
	if cfg.Archive.Enabled {
		db, err := database.New(&database.Config{
			Driver:          cfg.Archive.Driver,
			Host:            cfg.Archive.Host,
			Port:            cfg.Archive.Port,
			User:            cfg.Archive.User,
			Password:        cfg.Archive.Password,
			DBName:          cfg.Archive.DBName,
			SSLMode:         cfg.Archive.SSLMode,
			FilePath:        cfg.Archive.FilePath,
			MaxIdleConns:    cfg.Archive.MaxIdleConns,
			MaxOpenConns:    cfg.Archive.MaxOpenConns,
			ConnMaxLifetime: cfg.Archive.ConnMaxLifetime,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to archive database")
		}
		if err := database.AutoMigrate(db, &archive.RoomSummaryModel{}); err != nil {
			logger.Fatal().Err(err).Msg("failed to auto-migrate archive database")
		}
		summaryArchiver = archive.NewGormSummaryArchiver(db)
		logger.Info().Str("driver", cfg.Archive.Driver).Msg("summary archive connected")
	}

	// Create attendance service
	attendanceService := service.NewAttendanceService(attendanceStore, summaryArchiver, service.Config{
		FinalizeConcurrency: cfg.Attendance.FinalizeConcurrency,
	})

	// Optional room server admin client
	var roomClient *client.RoomClient
	if cfg.RoomServer.APIKey != "" && cfg.RoomServer.APISecret != "" {
		roomClient = client.NewRoomClient(
			cfg.RoomServer.URL,
			cfg.RoomServer.APIKey,
			cfg.RoomServer.APISecret,
			cfg.RoomServer.TokenTTL,
		)
		logger.Info().Str("url", cfg.RoomServer.URL).Msg("room server client configured")
	} else {
		logger.Warn().Msg("room server credentials missing, admin proxy disabled")
	}

	ctx, cancel := context.WithCancel(context.Background())

	// Optional Kafka consumer for room events
	var kafkaConsumer *ingest.ConfluentConsumer
	if cfg.Kafka.Enabled {
		if kc, err := ingest.NewConfluentConsumer(
			cfg.Kafka.Brokers,
			cfg.Kafka.Topic,
			cfg.Kafka.GroupID,
			attendanceService,
		); err != nil {
			logger.Warn().Err(err).Msg("failed to create kafka consumer, broker ingestion disabled")
		} else {
			if err := kc.Start(ctx); err != nil {
				logger.Warn().Err(err).Msg("failed to start kafka consumer")
			} else {
				kafkaConsumer = kc
				logger.Info().Str("topic", cfg.Kafka.Topic).Msg("kafka consumer started")
			}
		}
	}

	// Initialize HTTP handler
	httpHandler := handler.NewHandler(attendanceService, roomClient, summaryArchiver)

	// Setup Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(logger))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	httpHandler.RegisterRoutes(r)

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().Str("addr", addr).Msg("attendance-service listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down attendance-service")

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)

		cancel() // stop the Kafka consume loop

		if kafkaConsumer != nil {
			kafkaConsumer.Close() // wait for in-flight event
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("server shutdown error")
		}
	}()

	select {
	case <-shutdownDone:
		logger.Info().Msg("attendance-service stopped")
	case <-time.After(30 * time.Second):
		logger.Warn().Msg("shutdown timed out after 30s")
	}
}
