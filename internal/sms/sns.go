// Package sms — канал SMS через AWS SNS.
package sms

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/petchat/internal/model"
)

// Длинные SMS режутся оператором на сегменты, поэтому текст ограничен.
const maxTextLength = 320

// Publisher — часть клиента SNS, которой пользуется Sender.
type Publisher interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type Sender struct {
	client   Publisher
	senderID string
}

// New загружает стандартную конфигурацию AWS (env, shared config, IAM role) для региона.
func New(ctx context.Context, region, senderID string) (*Sender, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("sms: load aws config: %w", err)
	}
	return NewWithClient(sns.NewFromConfig(cfg), senderID), nil
}

func NewWithClient(c Publisher, senderID string) *Sender {
	return &Sender{client: c, senderID: senderID}
}

func (s *Sender) Channel() model.Channel { return model.ChannelSMS }

// Send отправляет текст на номер и возвращает MessageId SNS.
func (s *Sender) Send(ctx context.Context, to model.Identity, n *model.Notification) (string, error) {
	return s.SendText(ctx, to.Phone, Text(n))
}

func (s *Sender) SendText(ctx context.Context, phone, text string) (string, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "", errors.New("sms: phone number is empty")
	}
	attrs := map[string]types.MessageAttributeValue{
		"AWS.SNS.SMS.SMSType": {DataType: aws.String("String"), StringValue: aws.String("Transactional")},
	}
	if s.senderID != "" {
		attrs["AWS.SNS.SMS.SenderID"] = types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(s.senderID)}
	}
	out, err := s.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber:       aws.String(phone),
		Message:           aws.String(text),
		MessageAttributes: attrs,
	})
	if err != nil {
		return "", fmt.Errorf("sms: publish: %w", err)
	}
	return aws.ToString(out.MessageId), nil
}

// Text — текст SMS: заголовок и тело, обрезанные до maxTextLength символов.
func Text(n *model.Notification) string {
	text := n.Title
	if n.Message != "" {
		text += ": " + n.Message
	}
	if utf8.RuneCountInString(text) <= maxTextLength {
		return text
	}
	return string([]rune(text)[:maxTextLength-3]) + "..."
}
