// Command server runs the trust-store sync service: the scheduler, the
// HTTP API, and the metrics endpoint. main wires dependencies and keeps
// the lifecycle small; business logic lives in the internal packages.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	"certsync/internal/masterlist"
	"certsync/internal/masterlist/events"
	"certsync/internal/masterlist/extract"
	"certsync/internal/masterlist/httpadapter"
	"certsync/internal/masterlist/lock"
	"certsync/internal/masterlist/pipeline"
	"certsync/internal/masterlist/service"
	"certsync/internal/masterlist/store"
	"certsync/internal/platform/config"
	"certsync/internal/platform/httpserver"
	"certsync/internal/platform/logger"
	"certsync/internal/platform/metrics"
	platformredis "certsync/internal/platform/redis"
	"certsync/internal/scheduler"
	httptransport "certsync/internal/transport/http"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	log := logger.New(cfg.Server.LogLevel, cfg.Server.LogFormat)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	if err := store.EnsureSchema(ctx, db); err != nil {
		return err
	}

	trustStore := store.NewPostgres(db, store.WithLogger(log))

	access := httpadapter.NewAccessTokenProvider(httpadapter.AccessTokenConfig{
		TokenURL:     cfg.Auth.TokenURL,
		ClientID:     cfg.Auth.ClientID,
		ClientSecret: cfg.Auth.ClientSecret,
		Username:     cfg.Auth.Username,
		Password:     cfg.Auth.Password,
	}, httpadapter.WithLogger(log), httpadapter.WithTimeout(cfg.Download.Timeout))

	serviceTokens := httpadapter.NewServiceTokenProvider(httpadapter.ServiceTokenConfig{
		LoginURL:             cfg.Login.URL,
		BorderPostID:         cfg.Login.BorderPostID,
		BoxID:                cfg.Login.BoxID,
		PassengerControlType: cfg.Login.PassengerControlType,
	}, httpadapter.WithLogger(log), httpadapter.WithTimeout(cfg.Download.Timeout))

	downloader := httpadapter.NewDownloader(cfg.Download.URL,
		httpadapter.WithLogger(log), httpadapter.WithTimeout(cfg.Download.Timeout))

	engine := extract.New(extract.WithLogger(log))

	pipe, err := pipeline.New(access, serviceTokens, downloader, engine, trustStore, log)
	if err != nil {
		return err
	}

	runLock, closeLock, err := buildLock(cfg, log)
	if err != nil {
		return err
	}
	defer closeLock()

	notifier, closeNotifier, err := buildNotifier(cfg, log)
	if err != nil {
		return err
	}
	defer closeNotifier()

	svc := service.New(pipe,
		service.WithLock(runLock),
		service.WithNotifier(notifier),
		service.WithMetrics(metrics.New()),
		service.WithLogger(log),
	)

	var draining atomic.Bool
	handler := httptransport.NewHandler(svc,
		httptransport.WithCounts(trustStore),
		httptransport.WithReadyCheck(trustStore.Ping),
		httptransport.WithShutdownSignal(draining.Load),
		httptransport.WithLogger(log),
		httptransport.WithVersion(cfg.Server.Version),
	)
	srv := httpserver.New(cfg.Server.Addr, httptransport.NewRouter(handler))

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("http server listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if cfg.Scheduler.Enabled {
		sched, err := scheduler.New(svc, cfg.Scheduler.Cron,
			scheduler.WithLogger(log),
			scheduler.WithRunOnStartup(cfg.Scheduler.RunOnStartup),
		)
		if err != nil {
			_ = httpserver.Shutdown(srv)
			return err
		}
		group.Go(func() error {
			sched.Start(ctx)
			<-ctx.Done()
			sched.Stop()
			return nil
		})
	}

	group.Go(func() error {
		<-ctx.Done()
		draining.Store(true)
		log.Info("shutting down")
		return httpserver.Shutdown(srv)
	})

	return group.Wait()
}

func buildLock(cfg config.Config, log *slog.Logger) (masterlist.RunLock, func(), error) {
	client, err := platformredis.New(cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	if client == nil {
		log.Info("redis not configured, cross-instance run lock disabled")
		return lock.Noop{}, func() {}, nil
	}
	l := lock.NewRedis(client.Client, lock.WithTTL(cfg.Redis.LockTTL), lock.WithLogger(log))
	return l, func() { _ = client.Close() }, nil
}

func buildNotifier(cfg config.Config, log *slog.Logger) (masterlist.Notifier, func(), error) {
	if len(cfg.Kafka.Brokers) == 0 {
		log.Info("kafka not configured, sync events disabled")
		return events.Noop{}, func() {}, nil
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Kafka.Brokers...),
		kgo.DefaultProduceTopic(cfg.Kafka.Topic),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka client: %w", err)
	}
	return events.NewKafka(client, events.WithLogger(log)), client.Close, nil
}
