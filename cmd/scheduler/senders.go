package main

import (
	"context"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"med-reminder/internal/adapters/sender"
	"med-reminder/internal/domain"
	"med-reminder/internal/infra/config"
	"med-reminder/internal/infra/queue"
)

// buildSenders собирает настроенные каналы. Ненастроенный канал пропускается с предупреждением.
func buildSenders(ctx context.Context, cfg config.AppConfig, logger zerolog.Logger) ([]domain.ChannelSender, func()) {
	var (
		senders []domain.ChannelSender
		closers []func()
	)

	switch strings.ToLower(cfg.Push.Transport) {
	case "kafka":
		if len(cfg.Push.KafkaBrokers) == 0 {
			logger.Warn().Msg("scheduler: KAFKA_BROKERS не заданы, push отключён")
			break
		}
		writer := sender.NewKafkaWriter(cfg.Push.KafkaBrokers, cfg.Push.Topic)
		closers = append(closers, func() { _ = writer.Close() })
		senders = append(senders, sender.NewKafkaPush(writer, cfg.Push.Topic))
	case "telegram":
		if cfg.Push.TelegramToken == "" {
			logger.Warn().Msg("scheduler: TG_BOT_TOKEN не задан, push отключён")
			break
		}
		bot, err := tgbotapi.NewBotAPI(cfg.Push.TelegramToken)
		if err != nil {
			logger.Fatal().Err(err).Msg("scheduler: не удалось создать бота")
		}
		senders = append(senders, sender.NewTelegramPush(bot))
	default:
		logger.Warn().Str("transport", cfg.Push.Transport).Msg("scheduler: неизвестный транспорт push, канал отключён")
	}

	if cfg.Email.RabbitURL != "" {
		publisher, err := queue.NewRabbitPublisher(cfg.Email.RabbitURL, cfg.Email.Exchange)
		if err != nil {
			logger.Fatal().Err(err).Msg("scheduler: не удалось подключиться к RabbitMQ")
		}
		closers = append(closers, func() { _ = publisher.Close() })
		senders = append(senders, sender.NewEmail(publisher, cfg.Email.RoutingKey))
	} else {
		logger.Warn().Msg("scheduler: RABBITMQ_URL не задан, email отключён")
	}

	if cfg.SMS.QueueName != "" {
		sqsCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		client, queueURL, err := sender.NewSQSClient(sqsCtx, cfg.SMS.QueueName)
		cancel()
		if err != nil {
			logger.Warn().Err(err).Str("queue", cfg.SMS.QueueName).Msg("scheduler: очередь SMS недоступна, канал отключён")
		} else {
			senders = append(senders, sender.NewSMS(client, queueURL))
		}
	}

	return senders, func() {
		for _, c := range closers {
			c()
		}
	}
}
