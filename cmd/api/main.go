package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	v1 "github.com/lailtonjunior/ceriv-faltas/cmd/api/router/v1"
	cacheadapter "github.com/lailtonjunior/ceriv-faltas/internal/infrastructure/cache/adapter"
	"github.com/lailtonjunior/ceriv-faltas/internal/infrastructure/config"
	"github.com/lailtonjunior/ceriv-faltas/internal/infrastructure/database"
	"github.com/lailtonjunior/ceriv-faltas/internal/infrastructure/identity"
	"github.com/lailtonjunior/ceriv-faltas/internal/infrastructure/logging"
	queueadapter "github.com/lailtonjunior/ceriv-faltas/internal/infrastructure/queue/adapter"
	"github.com/lailtonjunior/ceriv-faltas/internal/infrastructure/realtime"
	"github.com/lailtonjunior/ceriv-faltas/internal/pkg/chat/application/task"
	"github.com/lailtonjunior/ceriv-faltas/internal/pkg/chat/application/usecase"
	"github.com/lailtonjunior/ceriv-faltas/internal/pkg/chat/keys"
	repoadapter "github.com/lailtonjunior/ceriv-faltas/internal/pkg/chat/persistence/repository/adapter"
	httpHandler "github.com/lailtonjunior/ceriv-faltas/internal/pkg/chat/presentation/http"
	"github.com/lailtonjunior/ceriv-faltas/internal/pkg/chat/presentation/protocol"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found or could not be loaded: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}

	if cfg.SystemPrivateKey != "" || cfg.SystemPublicKey != "" {
		if _, err := keys.SystemKeyPair(cfg.SystemPrivateKey, cfg.SystemPublicKey); err != nil {
			logger.WithError(err).Fatal("invalid system key pair")
		}
	} else {
		logger.Warn("system key pair not configured; system-authored encrypted payloads are disabled")
	}

	// Connect to the database on startup
	connectCtx, cancelConnect := context.WithTimeout(context.Background(), 5*time.Second)
	pool, err := database.NewPoolFromEnv(connectCtx)
	cancelConnect()
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to database")
	}
	defer pool.Close()

	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), 30*time.Second)
	err = repoadapter.Migrate(migrateCtx, pool)
	cancelMigrate()
	if err != nil {
		logger.WithError(err).Fatal("failed to run migrations")
	}

	cache, err := cacheadapter.NewRedisCacheFromEnv()
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to redis")
	}
	defer cache.Close()

	queueClient, err := queueadapter.NewAsynqClientFromEnv()
	if err != nil {
		logger.WithError(err).Fatal("failed to build queue client")
	}
	defer queueClient.Close()

	queueServer, err := queueadapter.NewAsynqServer(logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to build queue server")
	}

	metrics := realtime.NewMetrics(prometheus.DefaultRegisterer)
	rooms := realtime.NewRooms(metrics)
	registry := realtime.NewRegistry(rooms, metrics, logger)

	repo := repoadapter.NewPgMessageRepository(pool)
	task.RegisterPersistMessageTask(queueServer, usecase.NewPersistMessageUseCase(repo), queueClient, logger)
	task.RegisterNotifyMessageTask(queueServer, func(participantID string, p task.NotifyMessageTaskPayload) int {
		frame, err := protocol.Encode(protocol.EventNotification, protocol.NotificationPayload{
			MessageID:      p.MessageID,
			ConversationID: p.ConversationID,
			SenderType:     p.SenderType,
			Timestamp:      protocol.Now(),
		})
		if err != nil {
			return 0
		}
		return registry.NotifyParticipant(participantID, frame)
	}, logger)

	deps := httpHandler.Deps{
		Log:      logger,
		Verifier: identity.NewJWTVerifier(cfg.JWTSecret, cfg.JWTIssuer),
		Repo:     repo,
		Queue:    queueClient,
		Registry: registry,
		Rooms:    rooms,
		Metrics:  metrics,
		Keys:     keys.NewCacheDirectory(cache),
		Origins:  cfg.Origins(),
	}

	r := gin.New()
	r.Use(gin.Recovery(), logging.RequestLogger(logger))
	v1.RegisterRoutes(r, deps, cfg.MetricsEnabled)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}

	// The queue worker runs next to the HTTP server in the same process.
	errCh := make(chan error, 2)
	go func() { errCh <- queueServer.Run(ctx) }()
	go func() { errCh <- srv.ListenAndServe() }()
	logger.WithField("addr", cfg.HTTPAddr).Info("chat server listening")

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("server component failed")
		}
	}
	stop()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("http server shutdown")
	}
	registry.Close()
	logger.Info("chat server stopped")
}
