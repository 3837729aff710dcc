// Command api serves the payments portal authentication API.
//
// @title                       Payments Portal Auth API
// @version                     1.0
// @description                 Registration, login, lockout and authorization for the international payments portal.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
// @description                 Type "Bearer" followed by a space and the JWT.
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

	"github.com/swiftportal/payments-portal/internal/api"
	"github.com/swiftportal/payments-portal/internal/api/handler"
	"github.com/swiftportal/payments-portal/internal/api/metrics"
	"github.com/swiftportal/payments-portal/internal/core/domain"
	"github.com/swiftportal/payments-portal/internal/core/service"
	mongodb "github.com/swiftportal/payments-portal/internal/infrastructure/db/mongo"
	redisdb "github.com/swiftportal/payments-portal/internal/infrastructure/db/redis"
	"github.com/swiftportal/payments-portal/internal/infrastructure/queue"
	"github.com/swiftportal/payments-portal/internal/infrastructure/security"
	"github.com/swiftportal/payments-portal/internal/pkg/config"
	"github.com/swiftportal/payments-portal/internal/pkg/validation"
	"github.com/swiftportal/payments-portal/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.IsDevelopment(),
		Service: "payments-portal",
		Fields:  map[string]string{"env": cfg.Env},
	})
	log.Info().Str("env", cfg.Env).Msg("starting application")

	// --- Storage ---
	mongoClient, db, err := mongodb.Connect(ctx, mongodb.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
	if err != nil {
		return err
	}
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mongoClient.Disconnect(dctx); err != nil {
			log.Warn().Err(err).Msg("mongo disconnect")
		}
	}()

	rdb, err := redisdb.Connect(ctx, redisdb.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	if err != nil {
		return err
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Warn().Err(err).Msg("redis close")
		}
	}()

	identities := mongodb.NewIdentityRepository(db)
	roles := mongodb.NewRoleRepository(db)
	auditRepo := mongodb.NewAuditRepository(db)
	for _, idx := range []interface{ EnsureIndexes(context.Context) error }{identities, roles, auditRepo} {
		if err := idx.EnsureIndexes(ctx); err != nil {
			return err
		}
	}

	// --- Security primitives ---
	fieldCipher, err := security.NewFieldCipher(cfg.Auth.EncryptionKey)
	if err != nil {
		return err
	}
	hasher, err := security.NewBcryptHasher(cfg.Auth.BcryptCost)
	if err != nil {
		return err
	}
	tokens, err := security.NewJWTManager(security.TokenConfig{
		Secret: cfg.Auth.JWTSecret,
		TTL:    cfg.Auth.JWTExpiresIn,
		Issuer: cfg.Auth.JWTIssuer,
	})
	if err != nil {
		return err
	}

	// --- Audit trail ---
	dispatcher := queue.NewDispatcher(cfg.Audit.Workers, auditRepo, logger.Component("audit"))
	// Workers outlive the signal context so Shutdown can drain them.
	dispatcher.Start(context.WithoutCancel(ctx))
	metrics.RegisterAuditQueue(dispatcher.Depth, dispatcher.Dropped)

	// --- Core ---
	v := validation.New()
	lockout := service.NewLockoutEngine(identities, domain.LockoutPolicy{
		MaxAttempts:  cfg.Auth.MaxAttempts,
		LockDuration: cfg.Auth.LockDuration,
	}, logger.Component("lockout"))

	authService := service.NewAuthService(service.AuthDeps{
		Identities: identities,
		Roles:      roles,
		Lockout:    lockout,
		Hasher:     hasher,
		Cipher:     fieldCipher,
		Tokens:     tokens,
		Validator:  v,
		Guard:      redisdb.NewAttemptGuard(rdb, cfg.Auth.AttemptGuardTTL),
		Audit:      dispatcher,
	}, service.AuthConfig{
		ExposeRemainingAttempts: cfg.Auth.ExposeRemaining,
		OperationTimeout:        cfg.Auth.OperationTimeout,
	}, logger.Component("auth"))
	gate := service.NewGate(identities, dispatcher, logger.Component("gate"))

	e := api.NewRouter(api.Deps{
		Auth:      authService,
		Tokens:    tokens,
		Gate:      gate,
		Validator: v,
		Checkers:  []handler.Checker{mongodb.NewPinger(mongoClient), redisdb.NewPinger(rdb)},
		Log:       logger.Component("http"),
		Swagger:   cfg.IsDevelopment(),
	})

	errChan := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Msg("http server listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	}

	return shutdown(e, dispatcher, log)
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

func shutdown(server, audit shutdowner, log zerolog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	// Audit events queued by in-flight requests are flushed after the server stops.
	if err := audit.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("audit shutdown: %w", err))
	}
	log.Info().Msg("shutdown complete")
	return errors.Join(errs...)
}
