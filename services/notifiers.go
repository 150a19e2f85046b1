package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/MyRustyCage/pp-image-importer/domain"
)

type MessageSender interface {
	SendMessage(ctx context.Context, queueURL string, msg interface{}) error
}

// QueueNotifier publishes events of one request to the events queue.
type QueueNotifier struct {
	sender    MessageSender
	queueURL  string
	requestID string
}

func NewQueueNotifier(sender MessageSender, queueURL, requestID string) *QueueNotifier {
	return &QueueNotifier{sender: sender, queueURL: queueURL, requestID: requestID}
}

func (n *QueueNotifier) Notify(ctx context.Context, event domain.ProgressEvent) error {
	return n.sender.SendMessage(ctx, n.queueURL, domain.NewOutboundMessage(event, n.requestID))
}

// LogNotifier writes events to the logger; used by the one-shot CLI.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, event domain.ProgressEvent) error {
	fields := []zap.Field{zap.String("type", event.Kind.MessageType())}
	switch event.Kind {
	case domain.EventError:
		n.logger.Error(event.Message, fields...)
	default:
		n.logger.Info(event.Message, fields...)
	}
	return nil
}
