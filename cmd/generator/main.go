package main

import (
	"context"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"med-reminder/internal/adapters/repo"
	"med-reminder/internal/infra/alert"
	"med-reminder/internal/infra/clock"
	"med-reminder/internal/infra/config"
	"med-reminder/internal/infra/db"
	apphttp "med-reminder/internal/infra/http"
	applog "med-reminder/internal/infra/log"
	"med-reminder/internal/infra/metrics"
	"med-reminder/internal/infra/queue"
	"med-reminder/internal/usecase/occurrence"
	"med-reminder/internal/usecase/schedule"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reporter, err := alert.NewSentry(cfg.SentryDSN, cfg.AppEnv, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("generator: не удалось инициализировать Sentry")
	}
	defer reporter.Flush()

	if cfg.PGDSN == "" {
		logger.Fatal().Msg("generator: не указан адрес БД (PG_DSN)")
	}
	pool, err := db.Connect(ctx, cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("generator: нет подключения к БД")
	}
	defer pool.Close()
	if err := db.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal().Err(err).Msg("generator: не удалось применить миграции")
	}
	store := repo.NewPostgres(pool)

	if cfg.RedisAddr == "" {
		logger.Fatal().Msg("generator: не указан адрес Redis (REDIS_ADDR)")
	}
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()

	sysClock := clock.System{}
	generator := occurrence.NewGenerator(store, sysClock, logger)
	service := schedule.NewService(store, generator, sysClock, logger, schedule.Config{
		HorizonDays: cfg.Horizon.Days,
		CloseAfter:  cfg.Horizon.CloseAfter,
	})

	ops := apphttp.NewServer(logger, prometheus.DefaultGatherer)
	ops.AddReadyCheck("postgres", store.Ping)
	ops.AddReadyCheck("redis", func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})
	go func() {
		if err := ops.Start(cfg.MetricsAddr); err != nil {
			logger.Error().Err(err).Msg("generator: служебный сервер остановлен с ошибкой")
		}
	}()

	worker := &jobWorker{
		log:      logger,
		queue:    queue.NewRedisScheduleQueue(redisClient, cfg.Queues.Schedule),
		service:  service,
		reporter: reporter,
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info().Str("queue", cfg.Queues.Schedule).Msg("generator: запуск обработки очереди")
		worker.Run(ctx)
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ops.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("generator: не удалось остановить служебный сервер")
	}
	wg.Wait()
	logger.Info().Msg("generator: остановлен")
}
