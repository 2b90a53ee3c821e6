package notify

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// LogSender writes notifications to the log. It is the default when no push target is configured.
type LogSender struct{ log *zap.Logger }

// NewLogSender constructs a LogSender.
func NewLogSender(log *zap.Logger) *LogSender { return &LogSender{log: log} }

// Send logs msg.
func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.log.Info("notification",
		zap.String("kind", string(msg.Kind)),
		zap.String("title", msg.Title),
		zap.String("body", msg.Body),
	)
	return nil
}

type fcmClient interface {
	Send(ctx context.Context, msg *messaging.Message) (string, error)
}

// FCMSender pushes notifications to one device through Firebase Cloud Messaging.
type FCMSender struct {
	client fcmClient
	token  string
	log    *zap.Logger
}

// NewFCMSender initializes a Firebase app from a service-account file.
func NewFCMSender(ctx context.Context, credPath, token string, log *zap.Logger) (*FCMSender, error) {
	if credPath == "" {
		return nil, errors.New("fcm: credentials path is empty")
	}
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credPath))
	if err != nil {
		return nil, fmt.Errorf("fcm: init app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("fcm: init messaging: %w", err)
	}
	return newFCMSender(client, token, log), nil
}

func newFCMSender(client fcmClient, token string, log *zap.Logger) *FCMSender {
	return &FCMSender{client: client, token: token, log: log}
}

// Send delivers msg to the configured device token.
func (s *FCMSender) Send(ctx context.Context, msg Message) error {
	if s.token == "" {
		return errors.New("fcm: device token is empty")
	}
	id, err := s.client.Send(ctx, &messaging.Message{
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data:  map[string]string{"kind": string(msg.Kind)},
		Token: s.token,
	})
	if err != nil {
		return fmt.Errorf("fcm: send: %w", err)
	}
	s.log.Debug("fcm sent", zap.String("id", id), zap.String("kind", string(msg.Kind)))
	return nil
}
