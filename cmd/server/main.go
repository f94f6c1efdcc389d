// Command server runs the identity HTTP API.
//
//	@title						Identity Service API
//	@version					1.0
//	@description				User registration, authentication and password recovery.
//	@BasePath					/
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
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

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/milsabores/identity-service/internal/api"
	"github.com/milsabores/identity-service/internal/api/handler"
	"github.com/milsabores/identity-service/internal/core/ports"
	"github.com/milsabores/identity-service/internal/core/service"
	"github.com/milsabores/identity-service/internal/infrastructure/config"
	mongodb "github.com/milsabores/identity-service/internal/infrastructure/db/mongo"
	"github.com/milsabores/identity-service/internal/infrastructure/db/postgres"
	redisdb "github.com/milsabores/identity-service/internal/infrastructure/db/redis"
	"github.com/milsabores/identity-service/internal/infrastructure/queue"
	"github.com/milsabores/identity-service/internal/infrastructure/security"
	"github.com/milsabores/identity-service/pkg/logger"
)

const (
	serviceName     = "identity-service"
	shutdownTimeout = 10 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		// The configured logger may not exist yet when startup fails early.
		log := zerolog.New(os.Stderr).With().Timestamp().Logger()
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.IsDevelopment(),
		Service: serviceName,
	})

	checks := map[string]handler.Check{}

	users, closeDirectory, err := openDirectory(ctx, cfg, checks, log)
	if err != nil {
		return err
	}
	defer closeDirectory()

	rdb, err := redisdb.Connect(ctx, redisdb.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return err
	}
	defer rdb.Close()
	checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }

	dispatcher := queue.NewDispatcher(
		cfg.Recovery.Workers,
		redisdb.NewRecoveryOutbox(rdb, cfg.Recovery.Stream),
		redisdb.NewRecoveryDedup(rdb, cfg.Recovery.DedupTTL),
		log.With().Str("component", "recovery_dispatcher").Logger(),
	)

	tokens, err := security.NewJWTService(cfg.JWTSecret)
	if err != nil {
		return fmt.Errorf("token service: %w", err)
	}

	identity := service.NewIdentityService(
		users,
		security.NewBcryptHasherWithCost(cfg.BcryptCost),
		tokens,
		dispatcher,
		log.With().Str("component", "identity_service").Logger(),
	)

	e := api.NewRouter(api.Dependencies{
		Identity:              identity,
		Tokens:                tokens,
		Checks:                checks,
		Log:                   log,
		EnforceTokenOwnership: cfg.EnforceTokenOwnership,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           e,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return dispatcher.Run(ctx)
	})

	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("directory", cfg.DirectoryDriver).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// openDirectory connects the configured user store, prepares its indexes or
// schema and registers its readiness check.
func openDirectory(ctx context.Context, cfg *config.Config, checks map[string]handler.Check, log zerolog.Logger) (ports.UserDirectory, func(), error) {
	switch cfg.DirectoryDriver {
	case config.DriverPostgres:
		pool, err := postgres.Connect(ctx, postgres.Config{DSN: cfg.Postgres.DSN})
		if err != nil {
			return nil, nil, err
		}
		dir := postgres.NewUserDirectory(pool)
		if err := dir.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		checks["postgres"] = pool.Ping
		return dir, pool.Close, nil

	default:
		client, db, err := mongodb.Connect(ctx, mongodb.Config{
			URI:      cfg.Mongo.URI,
			Database: cfg.Mongo.Database,
			AppName:  serviceName,
		})
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if err := client.Disconnect(context.Background()); err != nil {
				log.Warn().Err(err).Msg("mongo disconnect")
			}
		}
		dir := mongodb.NewUserDirectory(db)
		if err := dir.EnsureIndexes(ctx); err != nil {
			closeFn()
			return nil, nil, err
		}
		checks["mongo"] = mongodb.Ping(client)
		return dir, closeFn, nil
	}
}
