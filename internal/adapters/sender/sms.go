package sender

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"med-reminder/internal/domain"
	"med-reminder/internal/infra/metrics"
)

// Длина одного SMS с конкатенацией не больше 10 сегментов.
const smsLimit = 1530

// SQSAPI — часть *sqs.Client, нужная отправителю.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SMS ставит сообщения в исходящую очередь SMS-шлюза.
type SMS struct {
	client   SQSAPI
	queueURL string
}

var _ domain.ChannelSender = (*SMS)(nil)

// NewSQSClient создаёт клиента SQS из стандартной цепочки конфигурации AWS
// и находит URL очереди по имени.
func NewSQSClient(ctx context.Context, queueName string) (*sqs.Client, string, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("load aws config: %w", err)
	}
	client := sqs.New(sqs.Options{
		Region:       cfg.Region,
		Credentials:  cfg.Credentials,
		HTTPClient:   cfg.HTTPClient,
		BaseEndpoint: cfg.BaseEndpoint,
	})
	start := time.Now()
	resp, err := client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(queueName)})
	metrics.ObserveNetworkRequest("sqs", "get_queue_url", queueName, start, err)
	if err != nil {
		return nil, "", fmt.Errorf("get queue url %s: %w", queueName, err)
	}
	return client, aws.ToString(resp.QueueUrl), nil
}

// NewSMS создаёт отправителя.
func NewSMS(client SQSAPI, queueURL string) *SMS {
	return &SMS{client: client, queueURL: queueURL}
}

type smsMessage struct {
	Phone string `json:"phone"`
	Text  string `json:"text"`
	Part  int    `json:"part"`
	Parts int    `json:"parts"`
}

// Channel реализует domain.ChannelSender.
func (s *SMS) Channel() domain.Channel { return domain.ChannelSMS }

// Send реализует domain.ChannelSender.
func (s *SMS) Send(ctx context.Context, user domain.User, payload domain.NotificationPayload) error {
	if user.Contact.Phone == "" {
		return domain.ErrNoContact
	}
	_, body := FormatReminder(payload)
	parts := SplitMessage(body, smsLimit)
	if len(parts) == 0 {
		return fmt.Errorf("empty sms body")
	}
	for i, part := range parts {
		msg, err := json.Marshal(smsMessage{Phone: user.Contact.Phone, Text: part, Part: i + 1, Parts: len(parts)})
		if err != nil {
			return fmt.Errorf("marshal sms: %w", err)
		}
		start := time.Now()
		_, err = s.client.SendMessage(ctx, &sqs.SendMessageInput{
			QueueUrl:    aws.String(s.queueURL),
			MessageBody: aws.String(string(msg)),
			MessageAttributes: map[string]types.MessageAttributeValue{
				"occurrence_id": {DataType: aws.String("String"), StringValue: aws.String(payload.OccurrenceID.String())},
				"part":          {DataType: aws.String("Number"), StringValue: aws.String(strconv.Itoa(i + 1))},
			},
		})
		metrics.ObserveNetworkRequest("sqs", "send_message", s.queueURL, start, err)
		if err != nil {
			return fmt.Errorf("sqs send part %d/%d: %w", i+1, len(parts), err)
		}
	}
	return nil
}
