// Command authcore serves the account and token lifecycle over a JSON HTTP
// API.
//
// Configuration comes from the environment (see internal/config). Storage is
// PostgreSQL when AUTHCORE_DATABASE_URL is set and in-memory otherwise. A
// Redis address enables request throttling and moves one-time tokens into
// Redis. An AMQP URL routes verification and reset messages to a broker.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/internal/config"
	promexport "github.com/MrEthical07/authcore/metrics/export/prometheus"
	"github.com/MrEthical07/authcore/notify/amqp"
	"github.com/MrEthical07/authcore/store"
	"github.com/MrEthical07/authcore/store/memory"
	"github.com/MrEthical07/authcore/store/postgres"
	"github.com/MrEthical07/authcore/store/redisotc"
)

func main() {
	logger := log.New(os.Stderr, "", log.LstdFlags)
	if err := run(logger); err != nil {
		logger.Fatalf("authcore: %v", err)
	}
}

func run(logger *log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := config.Loader{Logger: logger}.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	engineCfg, err := svc.EngineConfig()
	if err != nil {
		return fmt.Errorf("engine config: %w", err)
	}

	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Printf("authcore: WARN shutdown: %v", err)
			}
		}
	}()

	builder := authcore.New().WithConfig(engineCfg).WithLogger(logger)

	var st store.Store
	if svc.DatabaseURL != "" {
		pg, err := postgres.Open(svc.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		closers = append(closers, pg.Close)
		if err := pg.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		st = pg
	} else {
		logger.Printf("authcore: WARN no database configured, accounts are kept in memory")
		mem := memory.New()
		closers = append(closers, mem.Close)
		st = mem
	}
	builder.WithStore(st)

	if svc.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: svc.RedisAddr})
		closers = append(closers, rdb.Close)
		builder.WithRedis(rdb).WithOneTimeStore(redisotc.New(rdb, "authcore"))
	}

	if svc.AMQPURL != "" {
		pub, closeAMQP, err := amqp.Dial(svc.AMQPURL, svc.AMQPExchange)
		if err != nil {
			return err
		}
		closers = append(closers, closeAMQP)
		builder.WithNotifier(pub)
	}

	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	closers = append(closers, func() error { engine.Close(); return nil })

	report := engine.SecurityReport()
	logger.Printf("authcore: signing=%s access_ttl=%s refresh_ttl=%s provider=%s revoke_all_on_conflict=%t lockout=%d/%s rate_limiting=%t audit=%t",
		report.SigningAlgorithm, report.AccessTTL, report.RefreshTTL, report.RefreshProvider,
		report.RevokeAllOnConflict, report.LockoutThreshold, report.LockoutWindow,
		report.RateLimitingActive, report.AuditEnabled)

	metricsHandler, err := promexport.Handler(promexport.NewCollector(engine))
	if err != nil {
		return fmt.Errorf("metrics handler: %w", err)
	}

	srv := &http.Server{
		Addr: svc.Addr,
		Handler: newServer(engine, serverOptions{
			TrustProxy:     svc.TrustProxy,
			IPRate:         svc.IPRate,
			IPBurst:        svc.IPBurst,
			MetricsHandler: metricsHandler,
			Logger:         logger,
		}),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("authcore: listening on %s", svc.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), svc.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
