package services

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MyRustyCage/pp-image-importer/domain"
)

const receiveBackoff = 5 * time.Second

type QueueClient interface {
	ReceiveMessages(ctx context.Context, queueURL string) ([]types.Message, error)
	DeleteMessage(ctx context.Context, queueURL string, receiptHandle *string) error
	MessageSender
}

type Importer interface {
	ImportImage(ctx context.Context, rawURL string, notifier Notifier) error
}

// RequestWorker consumes UI messages from the request queue and runs one import per message.
// Progress for each request is published to the events queue under its request id.
type RequestWorker struct {
	queue          QueueClient
	importer       Importer
	inputQueueURL  string
	eventsQueueURL string
	backoff        time.Duration
	logger         *zap.Logger
}

type WorkerOption func(*RequestWorker)

func WithQueues(inputQueueURL, eventsQueueURL string) WorkerOption {
	return func(w *RequestWorker) {
		w.inputQueueURL = inputQueueURL
		w.eventsQueueURL = eventsQueueURL
	}
}

func WithWorkerLogger(l *zap.Logger) WorkerOption {
	return func(w *RequestWorker) { w.logger = l }
}

func WithBackoff(d time.Duration) WorkerOption {
	return func(w *RequestWorker) { w.backoff = d }
}

func NewRequestWorker(queue QueueClient, importer Importer, opts ...WorkerOption) *RequestWorker {
	w := &RequestWorker{
		queue:    queue,
		importer: importer,
		backoff:  receiveBackoff,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start polls the request queue until ctx is cancelled.
func (w *RequestWorker) Start(ctx context.Context) {
	w.logger.Info("request worker started", zap.String("queue", w.inputQueueURL))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("request worker stopped")
			return
		default:
		}

		msgs, err := w.queue.ReceiveMessages(ctx, w.inputQueueURL)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.logger.Error("receive failed", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(w.backoff):
			}
			continue
		}

		for _, msg := range msgs {
			w.ProcessMessage(ctx, msg)
		}
	}
}

// ProcessMessage handles a single queue message and deletes it unless the worker is
// shutting down, in which case it is left for redelivery.
func (w *RequestWorker) ProcessMessage(ctx context.Context, msg types.Message) {
	body := ""
	if msg.Body != nil {
		body = *msg.Body
	}

	uiMsg, err := domain.DecodeUIMessage([]byte(body))
	switch {
	case errors.Is(err, domain.ErrIgnoredMessage):
		w.logger.Debug("ignoring message", zap.Error(err))
	case err != nil:
		w.logger.Warn("dropping malformed message", zap.Error(err))
	default:
		requestID := uiMsg.RequestID
		if requestID == "" {
			requestID = uuid.New().String()
		}
		logger := w.logger.With(zap.String("request_id", requestID), zap.String("url", uiMsg.URL))
		notifier := NewQueueNotifier(w.queue, w.eventsQueueURL, requestID)

		if err := w.importer.ImportImage(ctx, uiMsg.Request().URL, notifier); err != nil {
			logger.Warn("import failed", zap.String("kind", domain.KindName(err)), zap.Error(err))
		} else {
			logger.Info("import succeeded")
		}
	}

	if ctx.Err() != nil {
		return
	}
	if err := w.queue.DeleteMessage(ctx, w.inputQueueURL, msg.ReceiptHandle); err != nil {
		w.logger.Error("failed to delete message", zap.Error(err))
	}
}
