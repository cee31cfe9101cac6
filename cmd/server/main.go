package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openblog/backend/internal/api"
	"github.com/openblog/backend/internal/auth"
	"github.com/openblog/backend/internal/cache"
	"github.com/openblog/backend/internal/comments"
	"github.com/openblog/backend/internal/config"
	"github.com/openblog/backend/internal/db"
	"github.com/openblog/backend/internal/health"
	"github.com/openblog/backend/internal/images"
	"github.com/openblog/backend/internal/logger"
	"github.com/openblog/backend/internal/metrics"
	"github.com/openblog/backend/internal/posts"
	"github.com/openblog/backend/internal/scheduler"
	"github.com/openblog/backend/internal/storage"
	"github.com/openblog/backend/internal/websocket"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Error(context.Background(), "invalid configuration", err)
		os.Exit(1)
	}

	log := logger.New(&logger.Config{
		Output: os.Stdout,
		Level:  logger.ParseLevel(cfg.LogLevel),
		Format: cfg.LogFormat,
	})
	logger.SetDefault(log)
	for _, notice := range cfg.Notices {
		log.Warn(context.Background(), notice)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error(context.Background(), "server exited", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	database, err := db.New(ctx, cfg.DSN())
	if err != nil {
		return err
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		return err
	}

	imageStore, err := storage.New(cfg)
	if err != nil {
		return err
	}
	if err := imageStore.EnsureBucket(ctx); err != nil {
		return err
	}

	m := metrics.New()

	// The blog keeps working without redis; post reads go to the database.
	var postCache posts.Cache
	redisCache, err := cache.New(ctx, cfg.RedisAddr, log, m)
	if err != nil {
		log.Warn(ctx, "redis unavailable, post cache disabled", map[string]any{"error": err.Error()})
	} else {
		defer redisCache.Close()
		postCache = redisCache
	}

	userRepo := db.NewUserRepository(database)
	tokenRepo := db.NewTokenRepository(database)
	postRepo := db.NewPostRepository(database)
	commentRepo := db.NewCommentRepository(database)

	issuer := auth.NewTokenIssuer(cfg.AccessSecret, cfg.RefreshSecret, cfg.AccessTokenTTL)
	authService := auth.NewService(userRepo, tokenRepo, auth.NewPasswordHasher(cfg.BcryptCost), issuer)

	hub := websocket.NewHub(m, log)
	go hub.Run(ctx)

	postService := posts.NewService(postRepo, postCache, cfg.PostCacheTTL, log)
	commentService := comments.NewService(commentRepo, hub, log)

	pruner := scheduler.New(tokenRepo, cfg.TokenRetention, m, log)
	if err := pruner.Start(cfg.TokenPruneSchedule); err != nil {
		return err
	}

	probes := []health.Probe{
		{Name: "database", Check: database.PingContext},
		{Name: "storage", Check: imageStore.Ping},
		{Name: "redis", Optional: true},
	}
	if redisCache != nil {
		probes[2].Check = redisCache.Ping
	}

	router := api.NewRouter(&api.Deps{
		Log:                log,
		Metrics:            m,
		Validator:          authService,
		AuthHandlers:       auth.NewHandlers(authService, m, log),
		PostHandlers:       posts.NewHandlers(postService),
		CommentHandlers:    comments.NewHandlers(commentService),
		ImageHandlers:      images.NewHandlers(imageStore, cfg.APIURL, cfg.MaxUploadBytes, m, log),
		FeedHandler:        websocket.NewHandler(hub, authService, cfg.CORSAllowedOrigins, log),
		HealthHandler:      health.NewHandler(health.NewChecker(&health.CheckerConfig{Probes: probes, Version: version})),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		StaticDir:          cfg.StaticDir,
	})

	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting server", map[string]any{
			"addr":    cfg.ServerAddr,
			"version": version,
			"storage": cfg.StorageDriver,
			"bucket":  imageStore.Bucket(),
		})
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Info(context.Background(), "shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pruner.Stop(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
