package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"

	"github.com/lumenkit/identity-core/internal/account"
	accountrepo "github.com/lumenkit/identity-core/internal/account/repo"
	"github.com/lumenkit/identity-core/internal/config"
	"github.com/lumenkit/identity-core/internal/passreset"
	"github.com/lumenkit/identity-core/internal/router"
	"github.com/lumenkit/identity-core/internal/social"
	"github.com/lumenkit/identity-core/internal/token"
	tokenrepo "github.com/lumenkit/identity-core/internal/token/repo"
	"github.com/lumenkit/identity-core/pkg/database"
	"github.com/lumenkit/identity-core/pkg/utilities"
)

func main() {
	// load .env file if present so os.Getenv picks values from it
	_ = godotenv.Load()

	lg, err := utilities.InitLogger(utilities.LogConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Info("starting identity-core")

	cfg, err := config.Load()
	if err != nil {
		sugar.Fatalf("config: %v", err)
	}

	sqlDB, err := database.Connect(database.Config{DSN: cfg.DatabaseURL})
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer sqlDB.Close()

	if err := database.RunMigrations(sqlDB); err != nil {
		sugar.Fatalf("db migrate: %v", err)
	}

	// wrap with sqlx for convenience in repos/services
	sqlxDB := sqlx.NewDb(sqlDB, "postgres")

	store := accountrepo.NewAccountRepo(sqlxDB)
	hasher := account.BcryptHasher{Cost: 12}

	issuer, err := token.NewIssuer([]byte(cfg.JWTSecret), cfg.JWTIssuer, cfg.TokenTTL, tokenrepo.NewRefreshRepo(sqlxDB))
	if err != nil {
		sugar.Fatalf("token issuer: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gateway, err := social.NewGateway(ctx, social.GatewayConfig{
		GoogleClientID:   cfg.GoogleClientID,
		AppleClientID:    cfg.AppleClientID,
		FacebookGraphURL: cfg.FacebookGraphURL,
	})
	if err != nil {
		sugar.Fatalf("provider gateway: %v", err)
	}

	accountSvc := account.NewService(store, hasher)
	reconciler := social.NewReconciler(store, sugar)
	resetSvc := passreset.NewService(store, hasher, sugar, cfg.ResetTokenTTL)

	handler := router.RegisterRoutes(sugar, router.Handlers{
		Account: account.NewHandler(accountSvc, issuer, sugar),
		Social:  social.NewHandler(gateway, reconciler, issuer, sugar),
		Reset:   passreset.NewHandler(resetSvc, sugar),
		Issuer:  issuer,
	})
	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: handler,
	}

	go func() {
		sugar.Infow("http server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()

	<-ctx.Done()

	sugar.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}

	sugar.Info("goodbye")
}
