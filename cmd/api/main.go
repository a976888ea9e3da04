//	@title			AnoUpload Relay API
//	@version		1.0
//	@description	Anonymous file relay: stages uploads, commits them to remote storage and returns a public URL.
//
//	@host		localhost:49098
//	@BasePath	/

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"

	"github.com/anoupload/relay/internal/config"
	"github.com/anoupload/relay/internal/logging"
	"github.com/anoupload/relay/internal/metrics"
	appMiddleware "github.com/anoupload/relay/internal/middleware"
	"github.com/anoupload/relay/internal/notify"
	"github.com/anoupload/relay/internal/purge"
	"github.com/anoupload/relay/internal/response"
	"github.com/anoupload/relay/internal/staging"
	"github.com/anoupload/relay/internal/storage"
	"github.com/anoupload/relay/internal/upload"

	_ "github.com/anoupload/relay/docs/swagger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		if config.IsConfigurationError(err) {
			fmt.Fprintf(os.Stderr, "configuration error:\n%v\nPlease set them in your .env file or environment.\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "load configuration: %v\n", err)
		}
		os.Exit(1)
	}

	logger, err := logging.New(logging.Options{Mode: cfg.AppEnv, Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if !cfg.EnvFileLoaded {
		logger.Debug("no .env file found, using process environment")
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	store, err := staging.NewStore(cfg.UploadFolder, cfg.MaxUploadSize, logger.Named("staging"))
	if err != nil {
		logger.Fatal("staging store init failed", zap.Error(err))
	}

	backend, err := newBackend(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal("remote storage init failed", zap.String("backend", cfg.RemoteBackend), zap.Error(err))
	}

	persister := storage.NewPersister(backend, storage.PersisterOptions{
		Prefix:     cfg.RemotePrefix,
		PublicBase: cfg.WebsiteURL,
		Timeout:    cfg.RemoteTimeout,
		MaxRetries: cfg.RemoteMaxRetries,
	}, logger.Named("storage"), m)

	var sink notify.Sink = notify.Nop{}
	if cfg.NotificationsEnabled() {
		sink = notify.NewDiscordWebhook(cfg.DiscordWebhookURL, &http.Client{Timeout: cfg.NotifyTimeout})
	} else {
		logger.Warn("DISCORD_WEBHOOK_URL not set, upload announcements are disabled")
	}
	dispatcher := notify.NewDispatcher(sink, cfg.NotifyTimeout, logger.Named("notify"), m)

	// Wire dependencies: store, persister, dispatcher -> service -> handler
	uploadSvc := upload.NewService(store, persister, dispatcher, logger.Named("upload"), m)
	uploadHandler := upload.NewHandler(uploadSvc, store, cfg.WebsiteURL, logger.Named("http"))

	purgeLoop := purge.NewLoop(store, cfg.PurgeInterval, logger.Named("purge"), m)
	purgeLoop.Start(rootCtx)

	// Router
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(appMiddleware.Logger(logger.Named("access")))
	r.Use(chiMiddleware.Recoverer)
	r.Use(appMiddleware.Metrics(m))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))
	r.NotFound(response.RouteNotFound)
	r.MethodNotAllowed(response.MethodNotAllowed)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		response.OK(w, map[string]string{"status": "ok"})
	})

	r.Handle("/metrics", m.Handler())

	// Swagger UI at http://localhost:49098/swagger/
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	uploadHandler.Register(r, appMiddleware.RateLimit(appMiddleware.RateLimitConfig{
		RequestsPerMinute: cfg.RateLimitPerMinute,
		Burst:             cfg.RateLimitBurst,
	}, logger.Named("ratelimit")))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 15 * time.Second,
		// An upload request streams the body and then waits on the remote push.
		ReadTimeout:  5*time.Minute + cfg.RemoteTimeout,
		WriteTimeout: 5*time.Minute + cfg.RemoteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening",
			zap.String("port", cfg.Port),
			zap.String("env", cfg.AppEnv),
			zap.String("backend", cfg.RemoteBackend),
			zap.String("upload_folder", store.Dir()),
			zap.Int64("max_upload_bytes", cfg.MaxUploadSize),
		)
		logger.Info("swagger UI available", zap.String("url", "http://localhost:"+cfg.Port+"/swagger/"))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-rootCtx.Done()
	logger.Info("shutting down gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", zap.Error(err))
	}
	purgeLoop.Stop()
	if err := dispatcher.Wait(ctx); err != nil {
		logger.Warn("pending announcements dropped", zap.Error(err))
	}

	logger.Info("server stopped")
}

// newBackend builds the remote store selected by REMOTE_BACKEND.
func newBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Backend, error) {
	switch cfg.RemoteBackend {
	case config.BackendMinio:
		b, err := storage.NewMinioBackend(ctx,
			cfg.StorageEndpoint,
			cfg.StorageAccessKey,
			cfg.StorageSecretKey,
			cfg.StorageBucket,
			cfg.StorageUseSSL,
			logger.Named("minio"),
		)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		client, err := storage.NewGitHubClient(cfg.GitHubToken, cfg.GitHubAPIURL, nil)
		if err != nil {
			return nil, err
		}
		return storage.NewGitHubBackend(client, cfg.GitHubOwner, cfg.GitHubRepo, cfg.GitHubBranch), nil
	}
}
