package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv      string `envconfig:"APP_ENV" default:"dev"`
	PGDSN       string `envconfig:"PG_DSN"`
	RedisAddr   string `envconfig:"REDIS_ADDR"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`

	Scan struct {
		Period             time.Duration `envconfig:"SCAN_PERIOD" default:"60s"`
		Lookahead          time.Duration `envconfig:"SCAN_LOOKAHEAD" default:"5m"`
		StoreTimeout       time.Duration `envconfig:"STORE_TIMEOUT" default:"5s"`
		ChannelSendTimeout time.Duration `envconfig:"CHANNEL_SEND_TIMEOUT" default:"10s"`
		ClaimTTL           time.Duration `envconfig:"CLAIM_TTL" default:"15m"`
	} `envconfig:""`

	Horizon struct {
		Days          int           `envconfig:"OCCURRENCE_HORIZON_DAYS" default:"7"`
		CloseAfter    time.Duration `envconfig:"OCCURRENCE_CLOSE_AFTER" default:"1h"`
		RefreshPeriod time.Duration `envconfig:"HORIZON_REFRESH_PERIOD" default:"1h"`
	} `envconfig:""`

	Reports struct {
		Timezone  string `envconfig:"REPORT_TZ" default:"UTC"`
		DailyAt   string `envconfig:"REPORT_DAILY_AT" default:"20:00"`
		WeeklyDay string `envconfig:"REPORT_WEEKLY_DAY" default:"sunday"`
		WeeklyAt  string `envconfig:"REPORT_WEEKLY_AT" default:"19:00"`
	} `envconfig:""`

	Queues struct {
		Schedule string `envconfig:"SCHEDULE_QUEUE_KEY" default:"reminder_schedule_jobs"`
		Reports  string `envconfig:"REPORT_QUEUE_KEY" default:"adherence_reports"`
	} `envconfig:""`

	Push struct {
		Transport     string   `envconfig:"PUSH_TRANSPORT" default:"kafka"`
		KafkaBrokers  []string `envconfig:"KAFKA_BROKERS"`
		Topic         string   `envconfig:"PUSH_TOPIC" default:"push-notifications"`
		TelegramToken string   `envconfig:"TG_BOT_TOKEN"`
	} `envconfig:""`

	Email struct {
		RabbitURL  string `envconfig:"RABBITMQ_URL"`
		Exchange   string `envconfig:"EMAIL_EXCHANGE" default:"notifications"`
		RoutingKey string `envconfig:"EMAIL_ROUTING_KEY" default:"email"`
	} `envconfig:""`

	SMS struct {
		QueueName string `envconfig:"SMS_QUEUE_NAME" default:"sms-outbound"`
	} `envconfig:""`
}

// IsDev сообщает, запущен ли сервис в dev-режиме.
func (c AppConfig) IsDev() bool {
	return c.AppEnv == "dev"
}

// Process читает конфиг из окружения, предварительно подгрузив .env, если он есть.
func Process() (AppConfig, error) {
	_ = godotenv.Load()
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	cfg, err := Process()
	if err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
