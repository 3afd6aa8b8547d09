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

	"github.com/wenqu/backend-api-scaffold/internal/account"
	"github.com/wenqu/backend-api-scaffold/internal/account/repo"
	"github.com/wenqu/backend-api-scaffold/internal/audit"
	"github.com/wenqu/backend-api-scaffold/internal/auth"
	"github.com/wenqu/backend-api-scaffold/internal/config"
	"github.com/wenqu/backend-api-scaffold/internal/miniprogram"
	"github.com/wenqu/backend-api-scaffold/internal/password"
	"github.com/wenqu/backend-api-scaffold/internal/rate"
	"github.com/wenqu/backend-api-scaffold/internal/router"
	"github.com/wenqu/backend-api-scaffold/internal/token"
	"github.com/wenqu/backend-api-scaffold/pkg/database"
	"github.com/wenqu/backend-api-scaffold/pkg/utilities"
)

func main() {
	// load .env file if present so os.Getenv picks values from it
	// this is best-effort: if no .env exists, continue (use defaults or real env)
	_ = godotenv.Load()

	// init logger
	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Info("starting backend-api-scaffold")

	cfg := config.FromEnv()

	// init db
	db, err := database.Connect(database.ConfigFromEnv())
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	accountRepo := repo.NewAccountRepo(db)
	{
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := accountRepo.EnsureTable(ctx); err != nil {
			sugar.Fatalf("ensure accounts table: %v", err)
		}
	}

	recorder := audit.NewRecorder(sugar)
	hasher := password.Bcrypt{Cost: cfg.BcryptCost}
	codec := token.NewCodec(token.Config{
		Secret:     cfg.JWTSecret,
		Issuer:     cfg.JWTIssuer,
		Audience:   cfg.JWTAudience,
		AccessTTL:  cfg.AccessTokenTTL,
		RefreshTTL: cfg.RefreshTokenTTL,
	})
	exchanger := miniprogram.NewClient(miniprogram.Config{
		AppID:     cfg.MiniProgramAppID,
		AppSecret: cfg.MiniProgramAppSecret,
		LoginURL:  cfg.MiniProgramLoginURL,
	}, sugar)
	lockout := auth.LockoutPolicy{
		MaxAttempts:  cfg.LockoutMaxAttempts,
		LockDuration: cfg.LockoutDuration,
	}

	authSvc := auth.NewService(accountRepo, hasher, codec, lockout, exchanger, recorder, sugar)
	accountSvc := account.NewService(accountRepo, recorder, sugar)

	limiter := rate.NewLimiter(rate.Config{
		MaxRequests: cfg.RateMaxRequests,
		Window:      cfg.RateWindow,
	})

	handler := router.RegisterRoutes(router.Deps{
		Auth:    auth.NewHandler(authSvc, sugar),
		AuthSvc: authSvc,
		Account: account.NewHandler(accountSvc, sugar),
		Limiter: limiter,
		Window:  cfg.RateWindow,
		Logger:  sugar,
	})

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: handler,
	}

	// run server in background
	go func() {
		sugar.Infow("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()

	<-ctx.Done()

	sugar.Info("shutting down")

	// give a short grace period for cleanup
	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}

	sugar.Info("goodbye")
}
