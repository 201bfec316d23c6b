package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"friendchat-service/internal/config"
	"friendchat-service/internal/db"
	"friendchat-service/internal/docstore"
	"friendchat-service/internal/handlers"
	"friendchat-service/internal/logging"
	"friendchat-service/internal/middleware"
	"friendchat-service/internal/observability"
	"friendchat-service/internal/rabbitmq"
	"friendchat-service/internal/repositories"
	"friendchat-service/internal/service"
	"friendchat-service/internal/telemetry"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "friendchat",
		Short:         "Friends list and private chat service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API",
			RunE:  runServe,
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Create the Postgres documents table",
			RunE:  runMigrate,
		},
	)

	if err := rootCmd.Execute(); err != nil {
		l := logging.L()
		l.Error().Err(err).Msg("friendchat exited")
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logging.Init(logging.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Pretty,
		ServiceName: cfg.Telemetry.ServiceName,
	})
	return cfg, nil
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Database.DSN == "" {
		return errors.New("database.dsn is empty")
	}

	database, err := db.Connect(postgresOptions(cfg))
	if err != nil {
		return err
	}
	defer database.Close()

	return db.RunMigrations(cmd.Context(), database)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	l := logging.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		ServiceName:  cfg.Telemetry.ServiceName,
		Environment:  cfg.Telemetry.Environment,
		Exporter:     cfg.Telemetry.TraceExporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			l.Warn().Err(err).Msg("tracer shutdown failed")
		}
	}()

	if err := observability.InitSentry(cfg.Telemetry.SentryDSN, cfg.Telemetry.Environment); err != nil {
		l.Warn().Err(err).Msg("sentry disabled")
	}
	defer observability.FlushSentry(cfg.Server.ShutdownTimeout)

	store, pingers, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	publisher := rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
	defer publisher.Close()
	l.Info().
		Str("mode", rabbitmq.PublisherMode(publisher)).
		Str("reason", rabbitmq.PublisherNoopReason(publisher)).
		Msg("event publisher ready")
	emitter := telemetry.NewEventEmitter(publisher, cfg.Telemetry.ServiceName, cfg.Telemetry.Environment)

	svc := service.New(service.Options{
		Store:  docstore.Instrument(store),
		Events: emitter,
	})

	router, err := newRouter(cfg, svc, emitter, pingers)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		l.Info().Str("addr", srv.Addr).Str("store", cfg.Store.Driver).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	l.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg *config.Config) (docstore.Store, map[string]handlers.Pinger, error) {
	switch cfg.Store.Driver {
	case "postgres":
		database, err := db.Connect(postgresOptions(cfg))
		if err != nil {
			return nil, nil, err
		}
		if err := db.RunMigrations(ctx, database); err != nil {
			_ = database.Close()
			return nil, nil, err
		}
		return docstore.NewPostgresStore(database), map[string]handlers.Pinger{
			"postgres": database.PingContext,
		}, nil
	default:
		client, err := db.ConnectRedis(ctx, db.RedisOptions{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, nil, err
		}
		return docstore.NewRedisStore(client, cfg.Store.Namespace, repositories.RedisIndexes...), map[string]handlers.Pinger{
			"redis": func(ctx context.Context) error { return client.Ping(ctx).Err() },
		}, nil
	}
}

func postgresOptions(cfg *config.Config) db.PostgresOptions {
	return db.PostgresOptions{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}
}

func newRouter(cfg *config.Config, svc *service.Service, emitter service.EventEmitter, pingers map[string]handlers.Pinger) (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	// X-Forwarded-For is honored only from these peers
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}

	// middlewares
	router.Use(gin.Recovery())
	router.Use(logging.GinMiddleware(logging.L()))
	router.Use(otelgin.Middleware(cfg.Telemetry.ServiceName))
	router.Use(gzip.Gzip(gzip.DefaultCompression))
	router.Use(observability.HTTPMetricsMiddleware())
	router.Use(middleware.RateLimitMiddleware(middleware.NewIPRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst)))

	router.GET("/health", handlers.Health(pingers))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	friendHandler := handlers.NewFriendHandler(svc)
	chatHandler := handlers.NewChatHandler(svc)

	authMiddleware := middleware.AuthMiddleware(middleware.NewJWTValidator(cfg.Auth.JWTSecret, cfg.Auth.Issuer))
	api := router.Group("/", authMiddleware)

	api.GET("/friends", friendHandler.ListFriends)
	api.POST("/friends", friendHandler.AddFriend)
	api.DELETE("/friends/:friend_id", friendHandler.RemoveFriend)

	api.GET("/chats", chatHandler.ListChats)
	api.POST("/chats/open", chatHandler.OpenChat)
	api.GET("/chats/:chat_id/messages", chatHandler.GetChatMessages)
	api.POST("/chats/:chat_id/messages", chatHandler.PostChatMessage)

	handlers.RegisterDebugRoutes(api, emitter, cfg.Server.DebugRoutes)

	return router, nil
}
