package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	server "newsletter/internal/adapters/http_server"
	"newsletter/internal/adapters/observability"
	redisad "newsletter/internal/adapters/redis"
	"newsletter/internal/domain"
	"newsletter/internal/shared"
	mysqlrepo "newsletter/internal/storage/mysql"
)

func main() {
	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLoggerTo(os.Stdout, os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL"))
	cfg := shared.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// db
	db, err := mysqlrepo.Open(ctx, cfg.MySQLDSN, mysqlrepo.PoolOptions{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLife,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer db.Close()
	log.Info().Int("max_open", cfg.DBMaxOpenConns).Msg("database connection ok")

	// dedupe cache is optional
	var cache domain.Cache = redisad.Nop{}
	if cfg.RedisAddr != "" {
		rc := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		if err := rc.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("redis unreachable; dedupe cache disabled")
		} else {
			defer rc.Close()
			cache = rc
		}
	}

	ln, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		log.Fatal().Err(err).Str("addr", cfg.HTTPAddr).Msg("listen failed")
	}
	srv, err := server.New(ln, db, server.Options{
		Logger:         &log.Logger,
		Cache:          cache,
		DedupeTTL:      cfg.DedupeTTL,
		RequestTimeout: cfg.RequestTimeout,
		SubscribeRPS:   cfg.SubscribeRPS,
		SubscribeBurst: cfg.SubscribeBurst,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("server configuration failed")
	}

	metrics := observability.NewMetricsServer(cfg.MetricsAddr, observability.InitRegistry(db))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx, cfg.ShutdownGrace) })
	g.Go(func() error {
		log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server listening")
		if err := metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.Background(), context.CancelFunc(func() {})
		if cfg.ShutdownGrace > 0 {
			sctx, cancel = context.WithTimeout(sctx, cfg.ShutdownGrace)
		}
		defer cancel()
		return metrics.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("shutdown with error")
		os.Exit(1)
	}
	log.Info().Msg("bye")
}
