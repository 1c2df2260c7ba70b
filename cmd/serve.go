package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"

	"livestream-chat/internal/auth"
	"livestream-chat/internal/chat"
	"livestream-chat/internal/config"
	"livestream-chat/internal/db"
	"livestream-chat/internal/grpcapi"
	"livestream-chat/internal/handlers"
	"livestream-chat/internal/logging"
	"livestream-chat/internal/middleware"
	"livestream-chat/internal/observability"
	"livestream-chat/internal/presence"
	"livestream-chat/internal/rabbitmq"
	"livestream-chat/internal/repositories"
	"livestream-chat/internal/telemetry"
	"livestream-chat/internal/ws"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP/WebSocket gateway and the gRPC health server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logging.L()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TraceConfig{
		ServiceName:  cfg.Service.Name,
		Environment:  cfg.Service.Environment,
		Endpoint:     cfg.Tracing.Endpoint,
		Insecure:     cfg.Tracing.Insecure,
		SamplingRate: cfg.Tracing.SamplingRate,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn().Err(err).Msg("tracer shutdown failed")
		}
	}()

	database, err := db.Connect(ctx, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer database.Close()

	redisClient, err := presence.NewClient(ctx, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	publisher := rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	audit := telemetry.NewAuditEmitter(publisher, observability.RoutingAudit, cfg.Service.Name, cfg.Service.Environment)
	log.Info().
		Str("mode", rabbitmq.PublisherMode(publisher)).
		Str("reason", rabbitmq.PublisherNoopReason(publisher)).
		Msg("event publisher ready")

	chatSvc := chat.NewService(
		repositories.NewLivestreamRepo(database),
		repositories.NewCommentRepo(database),
		repositories.NewBanRepo(database),
		chat.Options{
			HistoryLimit:     cfg.Chat.HistoryLimit,
			MaxContentLength: cfg.Chat.MaxContentLength,
		},
	)
	store := presence.NewRedisStore(redisClient, cfg.Redis.KeyPrefix, cfg.Presence.TTL)
	verifier := auth.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)

	gateway := ws.NewGateway(ws.NewHub(), chatSvc, store, verifier, audit, ws.Options{
		PingInterval:   cfg.WebSocket.PingInterval,
		PongWait:       cfg.WebSocket.PongWait,
		WriteWait:      cfg.WebSocket.WriteWait,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		SendBuffer:     cfg.WebSocket.SendBuffer,

		PresenceRefresh: cfg.Presence.RefreshInterval,
	})

	checks := map[string]handlers.HealthCheck{
		"postgres": database.PingContext,
		"redis": func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		},
	}
	router := newRouter(cfg, gateway, chatSvc, store, verifier, audit, checks)

	grpcServer := grpcapi.NewServer(
		grpcapi.Probe(checks["postgres"]),
		grpcapi.Probe(checks["redis"]),
	)

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", httpServer.Addr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr())
		if err != nil {
			return err
		}
		log.Info().Str("addr", cfg.GRPC.Addr()).Msg("grpc server listening")
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		grpcServer.Watch(gctx, 10*time.Second)
		return nil
	})
	g.Go(func() error {
		gateway.RunPresenceRefresher(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		grpcServer.Shutdown()
		return httpServer.Shutdown(sctx)
	})

	return g.Wait()
}

func newRouter(
	cfg *config.Config,
	gateway *ws.Gateway,
	chatSvc *chat.Service,
	store presence.Store,
	verifier auth.Verifier,
	audit *telemetry.AuditEmitter,
	checks map[string]handlers.HealthCheck,
) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.Service.Name))
	router.Use(logging.GinMiddleware(logging.L()))
	router.Use(observability.HTTPMetricsMiddleware())

	handlers.RegisterHealthRoutes(router, checks)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", gateway.Handle)

	livestreams := handlers.NewLivestreamHandler(chatSvc, store, gateway)
	authMiddleware := middleware.AuthMiddleware(verifier)

	group := router.Group("/livestreams/:id", authMiddleware)
	group.GET("/viewers", livestreams.GetViewers)
	group.DELETE("/viewers", middleware.RequireModerator(), livestreams.ResetViewers)
	group.GET("/comments", livestreams.GetComments)
	group.GET("/bans", middleware.RequireModerator(), livestreams.ListBans)

	handlers.RegisterDebugRoutes(router, audit, cfg.Debug.Enabled)
	return router
}
