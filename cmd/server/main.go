package main

import (
	"context"
	"database/sql"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/atelier-gallery/atelier/internal/adapter/handler"
	"github.com/atelier-gallery/atelier/internal/adapter/notifier"
	"github.com/atelier-gallery/atelier/internal/adapter/provider/paypalapi"
	"github.com/atelier-gallery/atelier/internal/adapter/provider/stripeapi"
	"github.com/atelier-gallery/atelier/internal/adapter/storage"
	"github.com/atelier-gallery/atelier/internal/config"
	"github.com/atelier-gallery/atelier/internal/core/service"
	"github.com/atelier-gallery/atelier/internal/vault"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.With().Str("service", "atelier").Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("open mysql")
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("ping mysql")
	}
	log.Info().Msg("connected to mysql")

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, PoolSize: 100})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("connect redis")
	}
	log.Info().Msg("connected to redis")

	masterKey, err := cfg.DecodeMasterKey()
	if err != nil {
		log.Fatal().Err(err).Msg("vault master key")
	}

	mysqlAdapter := storage.NewMySQLAdapter(db)
	redisAdapter := storage.NewRedisAdapter(rdb)

	secretVault, err := vault.New(masterKey, mysqlAdapter)
	if err != nil {
		log.Fatal().Err(err).Msg("init vault")
	}

	checkout := service.NewCheckoutService(service.CheckoutDeps{
		Items:         mysqlAdapter,
		Orders:        mysqlAdapter,
		Secrets:       secretVault,
		Card:          stripeapi.NewClient("", 0),
		Wallet:        paypalapi.NewClient("", "", 0),
		Notifier:      notifier.NewSendGridNotifier(secretVault, cfg.MailFromName),
		Dedup:         redisAdapter,
		Recon:         redisAdapter,
		Currency:      cfg.Currency,
		MailQueueSize: cfg.MailQueueSize,
		MailWorkers:   cfg.MailWorkers,
	})
	admin := service.NewAdminService(mysqlAdapter, mysqlAdapter, secretVault, redisAdapter)

	mux := http.NewServeMux()
	handler.NewCheckoutHandler(checkout, admin).Register(mux)
	handler.NewAdminHandler(admin, checkout, cfg.AdminToken).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	group.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-quit:
			log.Info().Str("signal", sig.String()).Msg("shutting down")
		case <-groupCtx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer shutdownCancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Error().Err(err).Msg("server error")
	}

	checkout.Close()
	log.Info().Msg("mail workers stopped")

	rdb.Close()
	db.Close()
	log.Info().Msg("connections closed")
}
