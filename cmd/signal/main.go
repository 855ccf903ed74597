package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httphandlers "voicebridge/internal/handlers/http"
	"voicebridge/internal/infrastructure/middleware"
	"voicebridge/internal/infrastructure/monitoring"
	"voicebridge/internal/infrastructure/repositories"
	signalinfra "voicebridge/internal/infrastructure/signal"

	"voicebridge/internal/core/services"
	"voicebridge/pkg/config"
	"voicebridge/pkg/logger"
	"voicebridge/pkg/tracing"

	"github.com/gin-gonic/gin"
)

func main() {
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/voicebridge/config.yaml",
		"config.yaml",
	}

	var (
		cfg *config.Config
		err error
	)
	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}
	if err != nil {
		log.Fatalf("could not load configuration: %v", err)
	}

	zl := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zl.Sync()
	lg := zl.Sugar()

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		lg.Fatalw("failed to initialize tracing", "error", err)
	}

	factory, err := repositories.NewRepositoryFactory(cfg, lg)
	if err != nil {
		lg.Fatalw("failed to initialize repositories", "error", err)
	}

	roomRepo := factory.CreateRoomRepository()
	presenceRepo := factory.CreatePresenceRepository()

	links := services.NewJoinLinkSigner(cfg.Rooms.JoinLinkSecret, cfg.Rooms.JoinLinkTTL, cfg.Rooms.JoinLinkBaseURL)
	roomService := services.NewRoomService(roomRepo, links, services.RoomServiceConfig{
		DefaultMaxParticipants: cfg.Rooms.DefaultMaxParticipants,
		MaxParticipantsLimit:   cfg.Rooms.MaxParticipantsLimit,
	}, lg)

	collector := monitoring.NewCollector()
	registry := signalinfra.NewPeerRegistry(presenceRepo, lg)
	relay := signalinfra.NewMessageRelay(registry, collector, lg)
	wsServer := signalinfra.NewWebSocketServer(cfg, registry, relay, roomService, collector, lg)

	health := monitoring.NewHealthChecker()
	health.AddCheck("rooms", func(ctx context.Context) error {
		_, err := roomService.RoomCount(ctx)
		return err
	}, cfg.Server.ReadTimeout)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(lg))
	router.Use(middleware.ErrorHandlerMiddleware(lg))
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))
	if cfg.Tracing.Enabled {
		router.Use(middleware.TracingMiddleware())
	}

	stats := httphandlers.NewStatsHandler(registry, roomService, health, cfg.Monitoring.PrometheusEnabled)
	stats.SetupRoutes(router, wsServer)

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		lg.Infow("signaling server listening", "address", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			lg.Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	lg.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		lg.Errorw("forced shutdown", "error", err)
	}
	if err := tp.Shutdown(ctx); err != nil {
		lg.Warnw("tracer shutdown failed", "error", err)
	}
	if err := factory.Close(); err != nil {
		lg.Warnw("repository close failed", "error", err)
	}
	lg.Info("server stopped")
}
