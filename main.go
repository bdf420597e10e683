package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"spendtrack/pkg/config"
	"spendtrack/pkg/logger"
	"spendtrack/pkg/payment"
	"spendtrack/pkg/receipt"
	"spendtrack/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	// .env never overrides variables that are already set
	_ = godotenv.Load()
	logger.SetupDefault(os.Stdout)

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// `spendtrack migrate` applies the embedded migrations and exits.
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := runMigrations(cfg.DatabaseDSN); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		fmt.Println("migrations applied")
		return
	}

	db, err := openDB(cfg)
	if err != nil {
		log.Fatalf("database: %v", err)
	}

	tokens, err := newTokenService(cfg)
	if err != nil {
		log.Fatalf("token service: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.JWTSecretFile != "" {
		go func() {
			if err := token.WatchKeyFile(ctx, cfg.JWTSecretFile, tokens); err != nil {
				slog.Error("signing key watcher stopped", slog.Any("error", err))
			}
		}()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	gw := payment.NewRazorpay(cfg.RazorpayKeyID, cfg.RazorpayKeySecret)
	a := newApp(cfg, db, tokens, gw, receipt.NewScanner(), reg)
	go sweepLimiter(ctx, a.limiter)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	setupRoutes(r, a)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", slog.Any("error", err))
	}
}

// newTokenService loads the signing key from JWT_SECRET_FILE, falling back to JWT_SECRET.
func newTokenService(cfg *config.Config) (*token.Service, error) {
	secret := []byte(cfg.JWTSecret)
	if cfg.JWTSecretFile != "" {
		b, err := token.ReadKeyFile(cfg.JWTSecretFile)
		if err != nil {
			return nil, err
		}
		secret = b
	}
	var previous [][]byte
	for _, p := range cfg.JWTPreviousSecrets {
		previous = append(previous, []byte(p))
	}
	return token.NewService(secret, previous)
}

func sweepLimiter(ctx context.Context, rl *rateLimiter) {
	t := time.NewTicker(5 * time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			rl.sweep(10 * time.Minute)
		}
	}
}
