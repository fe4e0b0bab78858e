package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	auth "github.com/goliatone/go-portal-auth"
	"github.com/goliatone/go-portal-auth/activitymap"
	"github.com/goliatone/go-portal-auth/config"
	"github.com/goliatone/go-portal-auth/jobs"
	"github.com/goliatone/go-portal-auth/middleware/csrf"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-portal-auth/persistence"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
)

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// NewRootCmd builds the portal-auth command tree.
func NewRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "portal-auth",
		Short:         "Account, session and password recovery service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	root.AddCommand(
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply database migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, logger, err := setup(configPath)
				if err != nil {
					return err
				}
				db, err := openDB(cmd.Context(), cfg)
				if err != nil {
					return err
				}
				defer db.Close()
				logger.Info().Str("driver", cfg.Database.Driver).Msg("migrations applied")
				return nil
			},
		},
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP server",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, logger, err := setup(configPath)
				if err != nil {
					return err
				}
				return serve(cmd.Context(), cfg, logger)
			},
		},
		&cobra.Command{
			Use:   "purge-tokens",
			Short: "Delete redeemed and expired reset tokens",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, logger, err := setup(configPath)
				if err != nil {
					return err
				}
				db, err := openDB(cmd.Context(), cfg)
				if err != nil {
					return err
				}
				defer db.Close()

				repo := auth.NewRepositoryManager(db)
				n, err := jobs.NewScheduler(repo.ResetTokens(), "", logger).RunOnce(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d reset tokens\n", n)
				return nil
			},
		},
	)

	return root
}

func setup(configPath string) (*config.AppConfig, zerolog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if err := cfg.Validate(); err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, newLogger(cfg), nil
}

func newLogger(cfg *config.AppConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Environment == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.Level(level).With().Timestamp().Logger()
}

func openDB(ctx context.Context, cfg *config.AppConfig) (*bun.DB, error) {
	db, err := persistence.Open(cfg.Database.Driver, cfg.Database.DSN, persistence.Options{
		MaxOpen:         cfg.Database.MaxOpen,
		MaxIdle:         cfg.Database.MaxIdle,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	if err := persistence.Migrate(ctx, db, cfg.Database.Driver); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func serve(ctx context.Context, cfg *config.AppConfig, zlog zerolog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := auth.NewZerologLogger(zlog)

	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	var store auth.SessionStore
	if cfg.Redis.Enabled {
		client, err := auth.NewRedisClient(ctx, auth.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
		defer client.Close()
		store = auth.NewRedisSessionStore(client, cfg.Redis.Prefix, cfg.GetSessionTTL())
	} else {
		store = auth.NewMemorySessionStore(cfg.GetSessionTTL())
	}

	var app *fiber.App
	srv := router.NewFiberAdapter(func(_ *fiber.App) *fiber.App {
		app = router.DefaultFiberOptions(fiber.New(fiber.Config{
			AppName:               cfg.GetWebsiteName(),
			ReadTimeout:           cfg.HTTP.ReadTimeout,
			WriteTimeout:          cfg.HTTP.WriteTimeout,
			IdleTimeout:           cfg.HTTP.IdleTimeout,
			UnescapePath:          true,
			DisableStartupMessage: true,
		}))
		return app
	})

	var avatars auth.AvatarStorage
	if cfg.Storage.Endpoint != "" {
		minioStorage, err := auth.NewMinioAvatarStorage(auth.MinioConfig{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			Bucket:    cfg.Storage.Bucket,
			Region:    cfg.Storage.Region,
			UseSSL:    cfg.Storage.UseSSL,
			PublicURL: cfg.Storage.PublicURL,
		})
		if err != nil {
			return err
		}
		if err := minioStorage.EnsureBucket(ctx); err != nil {
			zlog.Warn().Err(err).Msg("ensure avatar bucket failed")
		}
		avatars = minioStorage
	} else {
		avatars = auth.NewFileAvatarStorage(cfg.Storage.Dir, cfg.Storage.URLPrefix)
		app.Static(cfg.Storage.URLPrefix, cfg.Storage.Dir)
	}

	composer, err := auth.NewResetMessageComposer(cfg.GetWebsiteName(), cfg.GetResetURLTemplate())
	if err != nil {
		return err
	}

	repo := auth.NewRepositoryManager(db)
	service := auth.NewAuthService(repo, auth.NewSessionBinder(store)).
		WithLogger(logger).
		WithActivitySink(activitymap.NewLogSink(zlog)).
		WithPasswordAuthenticator(auth.BcryptHasher{Cost: cfg.Security.BcryptCost}).
		WithResetTokenTTL(cfg.GetResetTokenTTL()).
		WithMailer(composer, auth.NewLogMailer(logger)).
		WithAvatarStorage(avatars).
		WithHashidAccountIDs(cfg.Security.HashidAccountIDs)

	cookies := auth.NewSessionCookiesFromConfig(cfg, logger)
	cookies.Secure = cfg.HTTP.SecureCookie

	controller := auth.NewAuthController(
		auth.WithControllerService(service),
		auth.WithControllerCookies(cookies),
		auth.WithControllerLogger(logger),
		auth.WithControllerDebug(cfg.Environment == "development"),
	)

	srv.Router().Use(auth.SessionMiddleware(cookies, service))
	if cfg.HTTP.CSRF {
		srv.Router().Use(csrf.New(csrf.Config{Store: store}))
	}
	auth.RegisterAuthRoutes(srv.Router(), controller)

	scheduler := jobs.NewScheduler(repo.ResetTokens(), cfg.Jobs.PurgeSchedule, zlog)
	if memory, ok := store.(*auth.MemorySessionStore); ok {
		scheduler.WithSessionSweeper(memory, cfg.Jobs.SweepSchedule)
	}
	if err := scheduler.Start(); err != nil {
		zlog.Error().Err(err).Msg("scheduler start failed")
	}
	defer scheduler.Stop()

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	errCh := make(chan error, 1)
	go func() {
		zlog.Info().Str("addr", addr).Msg("http server listening")
		if err := srv.Serve(addr); err != nil {
			errCh <- err
		}
	}()

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return err
	case <-sigCtx.Done():
	}

	zlog.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		zlog.Error().Err(err).Msg("graceful shutdown failed")
		return err
	}

	zlog.Info().Msg("server exited cleanly")
	return nil
}
