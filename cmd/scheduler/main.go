package main

import (
	"context"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"med-reminder/internal/adapters/delivery"
	"med-reminder/internal/adapters/memory"
	"med-reminder/internal/adapters/recurrence"
	"med-reminder/internal/adapters/repo"
	"med-reminder/internal/domain"
	"med-reminder/internal/infra/alert"
	"med-reminder/internal/infra/cache"
	"med-reminder/internal/infra/clock"
	"med-reminder/internal/infra/config"
	"med-reminder/internal/infra/db"
	apphttp "med-reminder/internal/infra/http"
	applog "med-reminder/internal/infra/log"
	"med-reminder/internal/infra/metrics"
	"med-reminder/internal/usecase/adherence"
	"med-reminder/internal/usecase/dispatch"
	"med-reminder/internal/usecase/occurrence"
	"med-reminder/internal/usecase/report"
	"med-reminder/internal/usecase/scan"
	"med-reminder/internal/usecase/schedule"
)

type reminderStore interface {
	domain.ReminderStore
	domain.UserDirectory
}

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reporter, err := alert.NewSentry(cfg.SentryDSN, cfg.AppEnv, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось инициализировать Sentry")
	}
	defer reporter.Flush()

	ops := apphttp.NewServer(logger, prometheus.DefaultGatherer)

	var store reminderStore
	switch {
	case cfg.PGDSN != "":
		pool, err := db.Connect(ctx, cfg.PGDSN)
		if err != nil {
			logger.Fatal().Err(err).Msg("scheduler: нет подключения к БД")
		}
		defer pool.Close()
		if err := db.Migrate(ctx, pool, logger); err != nil {
			logger.Fatal().Err(err).Msg("scheduler: не удалось применить миграции")
		}
		pg := repo.NewPostgres(pool)
		ops.AddReadyCheck("postgres", pg.Ping)
		store = pg
	case cfg.IsDev():
		logger.Warn().Msg("scheduler: PG_DSN не задан, используется хранилище в памяти")
		store = memory.NewStore()
	default:
		logger.Fatal().Msg("scheduler: не указан адрес БД (PG_DSN)")
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		ops.AddReadyCheck("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	} else {
		logger.Warn().Msg("scheduler: REDIS_ADDR не задан, захват срабатываний и отчёты отключены")
	}

	senders, closeSenders := buildSenders(ctx, cfg, logger)
	defer closeSenders()
	if len(senders) == 0 {
		logger.Warn().Msg("scheduler: ни один канал не настроен, уведомления будут пропускаться")
	}

	sysClock := clock.System{}
	coordinator := dispatch.NewCoordinator(store, store, senders, sysClock, logger, dispatch.Options{
		SendTimeout:  cfg.Scan.ChannelSendTimeout,
		StoreTimeout: cfg.Scan.StoreTimeout,
		ClaimTTL:     cfg.Scan.ClaimTTL,
	})
	coordinator.SetReporter(reporter)
	if redisClient != nil {
		coordinator.SetClaimer(cache.NewRedisClaimer(redisClient, uuid.NewString()))
	}

	scanner := scan.NewScanner(store, coordinator, sysClock, logger, scan.Config{
		Period:       cfg.Scan.Period,
		Lookahead:    cfg.Scan.Lookahead,
		StoreTimeout: cfg.Scan.StoreTimeout,
	})
	scanner.SetReporter(reporter)

	generator := occurrence.NewGenerator(store, sysClock, logger)
	horizons := schedule.NewService(store, generator, sysClock, logger, schedule.Config{
		HorizonDays: cfg.Horizon.Days,
		CloseAfter:  cfg.Horizon.CloseAfter,
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		scanner.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		horizons.RunRefresher(ctx, cfg.Horizon.RefreshPeriod)
	}()

	if redisClient != nil {
		reports := buildReportScheduler(cfg, store, redisClient, sysClock, logger)
		reports.SetReporter(reporter)
		wg.Add(1)
		go func() {
			defer wg.Done()
			reports.Run(ctx)
		}()
	}

	go func() {
		if err := ops.Start(cfg.MetricsAddr); err != nil {
			logger.Error().Err(err).Msg("scheduler: служебный сервер остановлен с ошибкой")
		}
	}()

	logger.Info().Dur("period", cfg.Scan.Period).Dur("lookahead", cfg.Scan.Lookahead).Int("channels", len(senders)).Msg("scheduler: запущен")
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ops.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("scheduler: не удалось остановить служебный сервер")
	}
	wg.Wait()
	logger.Info().Msg("scheduler: остановлен")
}

func buildReportScheduler(cfg config.AppConfig, store reminderStore, client *redis.Client, clk clock.System, logger zerolog.Logger) *report.Scheduler {
	loc, err := recurrence.Location(cfg.Reports.Timezone)
	if err != nil {
		logger.Fatal().Err(err).Str("tz", cfg.Reports.Timezone).Msg("scheduler: неверный часовой пояс отчётов")
	}
	daily, err := recurrence.NewDailyCadence(cfg.Reports.DailyAt, loc)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: неверное время ежедневного отчёта")
	}
	weekday, err := recurrence.ParseWeekday(cfg.Reports.WeeklyDay)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: неверный день недельного отчёта")
	}
	weekly, err := recurrence.NewWeeklyCadence(weekday, cfg.Reports.WeeklyAt, loc)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: неверное время недельного отчёта")
	}
	logger.Info().Str("daily", daily.String()).Str("weekly", weekly.String()).Msg("scheduler: расписание отчётов")

	aggregator := adherence.NewAggregator(store, clk)
	deliverer := delivery.NewRedisReportQueue(client, cfg.Queues.Reports)
	return report.NewScheduler(store, aggregator, deliverer, clk, logger, daily, weekly, 30*time.Second)
}
