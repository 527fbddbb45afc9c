package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"room-chat-service/internal/config"
	"room-chat-service/internal/db"
	"room-chat-service/internal/grpcserver"
	"room-chat-service/internal/handlers"
	"room-chat-service/internal/kafka"
	"room-chat-service/internal/middleware"
	"room-chat-service/internal/observability"
	"room-chat-service/internal/presence"
	"room-chat-service/internal/rabbitmq"
	"room-chat-service/internal/repositories"
	"room-chat-service/internal/services"
	"room-chat-service/internal/storage"
	"room-chat-service/internal/telemetry"
	"room-chat-service/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	observability.SetupLogger(cfg.Log.Level, cfg.Log.Pretty, cfg.App.Name)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, cfg.Telemetry.OTLPEndpoint, cfg.App.Name, cfg.App.Environment, cfg.Telemetry.SampleRatio)
	if err != nil {
		log.Warn().Err(err).Msg("tracing disabled")
	}

	store, closeStore := openStore(ctx, cfg)
	defer closeStore()

	var index services.PresenceIndex
	if cfg.Redis.Addr != "" {
		client, err := presence.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Warn().Err(err).Msg("redis presence index disabled")
		} else {
			defer client.Close()
			index = presence.NewRedisIndex(client)
		}
	}

	var attachments storage.AttachmentStore = storage.InlineStore{}
	if cfg.Minio.Endpoint != "" {
		minioStore, err := storage.NewMinioStore(ctx, storage.MinioConfig{
			Endpoint:  cfg.Minio.Endpoint,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			Bucket:    cfg.Minio.Bucket,
			UseSSL:    cfg.Minio.UseSSL,
		})
		if err != nil {
			log.Warn().Err(err).Msg("minio disabled, keeping attachments inline")
		} else {
			attachments = minioStore
		}
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
	defer publisher.Close()

	hub := ws.NewHub(publisher)
	fanout := services.NewFanout().
		Add("ws", hub).
		Add("amqp", rabbitmq.NewRoomRelay(publisher))
	if brokers := cfg.KafkaBrokers(); len(brokers) > 0 {
		relay := kafka.NewRoomRelay(brokers, cfg.Kafka.Topic)
		defer relay.Close()
		fanout.Add("kafka", relay)
	}

	membership := services.NewMembershipRegistry(store, nil)
	messageLog := services.NewMessageLog(store, attachments, nil)
	reads := services.NewReadTracker(store, membership, fanout, nil)
	monitor := services.NewPresenceMonitor(cfg.Presence.Window, index, nil)
	users := services.NewUserDirectory(store, nil)
	coordinator := services.NewRoomCoordinator(services.CoordinatorDeps{
		Store:       store,
		Log:         messageLog,
		Membership:  membership,
		Reads:       reads,
		Presence:    monitor,
		Broadcaster: fanout,
		Sessions:    hub,
	}, services.CoordinatorOptions{
		ListLimit:          cfg.Rooms.ListLimit,
		MaxConflictRetries: cfg.Rooms.MaxConflictRetries,
	})

	audit := telemetry.NewAuditEmitter(publisher, cfg.AMQP.AuditRoutingKey, cfg.App.Name, cfg.App.Environment)
	auth := middleware.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.Auth.Issuer)
	if !auth.Enabled() {
		log.Warn().Msg("auth.jwt_secret is empty, trusting X-User-ID")
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.App.Name))
	router.Use(observability.HTTPMetricsMiddleware())
	router.Use(handlers.RequestIDMiddleware())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		if err := store.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	handlers.RegisterDebugRoutes(router, audit, cfg.Debug.Enabled)

	handlers.Router{
		Auth:      auth,
		Users:     handlers.NewUserHandler(users, auth),
		Rooms:     handlers.NewRoomHandler(coordinator, audit),
		Messages:  handlers.NewMessageHandler(coordinator, audit),
		Reads:     handlers.NewReadStatusHandler(reads),
		WebSocket: ws.NewRoomWebSocketHandler(hub, membership, coordinator, reads).Handle,
	}.Register(router)

	health := grpcserver.New(cfg.App.Name, store, 0)
	lis, err := net.Listen("tcp", ":"+cfg.App.GRPCPort)
	if err != nil {
		log.Fatal().Err(err).Str("port", cfg.App.GRPCPort).Msg("failed to listen for grpc")
	}
	go func() {
		if err := health.Serve(ctx, lis); err != nil {
			log.Error().Err(err).Msg("grpc server stopped")
		}
	}()

	srv := &http.Server{
		Addr:              ":" + cfg.App.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	health.Stop()
	if shutdownTracer != nil {
		if err := shutdownTracer(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("tracer shutdown")
		}
	}
}

func openStore(ctx context.Context, cfg *config.Config) (repositories.Store, func()) {
	if cfg.Database.Driver == "memory" {
		log.Warn().Msg("using in-memory store, data is lost on restart")
		return repositories.NewMemoryStore(), func() {}
	}
	database, err := db.Connect(ctx, cfg.Database.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to db")
	}
	return repositories.NewPostgresStore(database), func() { _ = database.Close() }
}
