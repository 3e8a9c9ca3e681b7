package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-account-go/internal/channel"
	channelrepo "github.com/ovaphlow/pitchfork/service-account-go/internal/channel/repo"
	"github.com/ovaphlow/pitchfork/service-account-go/internal/config"
	"github.com/ovaphlow/pitchfork/service-account-go/internal/media"
	"github.com/ovaphlow/pitchfork/service-account-go/internal/ratelimit"
	"github.com/ovaphlow/pitchfork/service-account-go/internal/router"
	"github.com/ovaphlow/pitchfork/service-account-go/internal/session"
	"github.com/ovaphlow/pitchfork/service-account-go/internal/token"
	"github.com/ovaphlow/pitchfork/service-account-go/internal/user"
	userrepo "github.com/ovaphlow/pitchfork/service-account-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-account-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-account-go/pkg/utilities"
)

func main() {
	// load .env file if present so the config picks values from it
	// this is best-effort: if no .env exists, continue (use defaults or real env)
	_ = godotenv.Load()

	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// init logger
	lg, err := utilities.Init(utilities.Config{Level: cfg.Log.Level, Dev: cfg.Log.Dev, File: cfg.Log.File})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Info("starting service-account-go")

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, sugar); err != nil {
		sugar.Errorw("service stopped with error", "err", err)
		lg.Sync()
		os.Exit(1)
	}
	sugar.Info("goodbye")
}

func run(ctx context.Context, cfg *config.Config, sugar *zap.SugaredLogger) error {
	// init db
	db, err := database.Open(database.Config{DSN: cfg.Database.URL, MaxConns: cfg.Database.MaxConns, TimeZone: "UTC"})
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer db.Close()

	if err := database.Migrate(ctx, db.DB); err != nil {
		return err
	}

	ids, err := utilities.NewIDGenerator(cfg.SnowflakeNode)
	if err != nil {
		return err
	}

	tokens, err := token.NewManager(token.Config{
		AccessSecret:  cfg.Tokens.AccessSecret,
		AccessTTL:     cfg.Tokens.AccessTTL,
		RefreshSecret: cfg.Tokens.RefreshSecret,
		RefreshTTL:    cfg.Tokens.RefreshTTL,
	})
	if err != nil {
		return fmt.Errorf("token manager: %w", err)
	}

	storage, err := media.NewClient(ctx, media.Config{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		Bucket:    cfg.Storage.Bucket,
		UseSSL:    cfg.Storage.UseSSL,
		PublicURL: cfg.Storage.PublicURL,
	})
	if err != nil {
		return fmt.Errorf("media storage: %w", err)
	}

	deps := user.Deps{
		Store:    userrepo.NewUserRepo(db),
		Tokens:   tokens,
		Uploader: storage,
		IDs:      ids,
		Logger:   sugar,
	}
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
		defer rdb.Close()
		deps.Limiter = ratelimit.New(rdb, ratelimit.Config{
			MaxAttempts: cfg.Login.MaxAttempts,
			Cooldown:    cfg.Login.Cooldown,
		}, sugar)
		sugar.Infow("login throttling enabled", "redis", cfg.Redis.Addr)
	}
	users := user.NewUserService(deps)

	handler := router.RegisterRoutes(router.Deps{
		Logger:         sugar,
		Prefix:         cfg.API.Prefix,
		CORSOrigins:    cfg.CORSOrigins,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		DB:             db,
		Auth:           session.NewMiddleware(tokens, users, sugar).Require,
		Users: user.NewHandler(users, user.HandlerConfig{
			Cookies: session.Cookies{
				Secure:     cfg.Cookie.Secure,
				AccessTTL:  cfg.Tokens.AccessTTL,
				RefreshTTL: cfg.Tokens.RefreshTTL,
			},
			UploadDir:      cfg.Upload.Dir,
			MaxUploadBytes: cfg.Upload.MaxBytes,
		}, sugar),
		Channels: channel.NewHandler(channel.NewService(channelrepo.NewProfileRepo(db)), sugar),
	})

	// mount http server
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.HTTP.RequestTimeout,
		WriteTimeout:      cfg.HTTP.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// run server in background
	errCh := make(chan error, 1)
	go func() {
		sugar.Infow("http server listening", "addr", cfg.HTTP.Addr, "prefix", cfg.API.Prefix)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	sugar.Info("shutting down")

	// give a short grace period for cleanup
	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// shutdown http server
	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}
	return nil
}
