package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/MyRustyCage/pp-image-importer/domain"
)

type MockQueue struct {
	mock.Mock
}

func (m *MockQueue) ReceiveMessages(ctx context.Context, queueURL string) ([]types.Message, error) {
	args := m.Called(ctx, queueURL)
	msgs, _ := args.Get(0).([]types.Message)
	return msgs, args.Error(1)
}

func (m *MockQueue) DeleteMessage(ctx context.Context, queueURL string, receiptHandle *string) error {
	args := m.Called(ctx, queueURL, receiptHandle)
	return args.Error(0)
}

func (m *MockQueue) SendMessage(ctx context.Context, queueURL string, msg interface{}) error {
	args := m.Called(ctx, queueURL, msg)
	return args.Error(0)
}

type MockImporter struct {
	mock.Mock
}

func (m *MockImporter) ImportImage(ctx context.Context, rawURL string, notifier Notifier) error {
	args := m.Called(ctx, rawURL, notifier)
	return args.Error(0)
}

func message(body string) types.Message {
	return types.Message{Body: aws.String(body), ReceiptHandle: aws.String("handle")}
}

func TestProcessMessage_RunsImportAndDeletes(t *testing.T) {
	queue := new(MockQueue)
	importer := new(MockImporter)
	worker := NewRequestWorker(queue, importer, WithQueues("in", "events"))

	importer.On("ImportImage", mock.Anything, "example.com/a.png", mock.MatchedBy(func(n Notifier) bool {
		qn, ok := n.(*QueueNotifier)
		return ok && qn.requestID == "req-1" && qn.queueURL == "events"
	})).Return(nil)
	queue.On("DeleteMessage", mock.Anything, "in", aws.String("handle")).Return(nil)

	worker.ProcessMessage(context.Background(), message(`{"type":"import-image-url","url":"example.com/a.png","request_id":"req-1"}`))

	importer.AssertExpectations(t)
	queue.AssertExpectations(t)
}

func TestProcessMessage_FailedImportIsStillDeleted(t *testing.T) {
	queue := new(MockQueue)
	importer := new(MockImporter)
	core, logs := observer.New(zap.WarnLevel)
	worker := NewRequestWorker(queue, importer, WithQueues("in", "events"), WithWorkerLogger(zap.New(core)))

	importer.On("ImportImage", mock.Anything, "bad", mock.Anything).
		Return(domain.NewImportError(domain.ErrInvalidURL, nil, "Invalid URL"))
	queue.On("DeleteMessage", mock.Anything, "in", mock.Anything).Return(nil)

	worker.ProcessMessage(context.Background(), message(`{"pluginMessage":{"type":"import-image-url","url":"bad"}}`))

	queue.AssertExpectations(t)
	entries := logs.FilterMessage("import failed").All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "InvalidUrl", entries[0].ContextMap()["kind"])
	}
}

func TestProcessMessage_IgnoredAndMalformed(t *testing.T) {
	queue := new(MockQueue)
	importer := new(MockImporter)
	worker := NewRequestWorker(queue, importer, WithQueues("in", "events"))

	queue.On("DeleteMessage", mock.Anything, "in", mock.Anything).Return(nil).Twice()

	worker.ProcessMessage(context.Background(), message(`{"type":"resize"}`))
	worker.ProcessMessage(context.Background(), message(`{not json`))

	importer.AssertNotCalled(t, "ImportImage", mock.Anything, mock.Anything, mock.Anything)
	queue.AssertExpectations(t)
}

func TestProcessMessage_KeepsMessageOnShutdown(t *testing.T) {
	queue := new(MockQueue)
	importer := new(MockImporter)
	worker := NewRequestWorker(queue, importer, WithQueues("in", "events"))

	ctx, cancel := context.WithCancel(context.Background())
	importer.On("ImportImage", mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(context.Canceled)

	worker.ProcessMessage(ctx, message(`{"type":"import-image-url","url":"a.png"}`))

	queue.AssertNotCalled(t, "DeleteMessage", mock.Anything, mock.Anything, mock.Anything)
}

func TestStart_BacksOffAndStops(t *testing.T) {
	defer goleak.VerifyNone(t)

	queue := new(MockQueue)
	importer := new(MockImporter)
	worker := NewRequestWorker(queue, importer, WithQueues("in", "events"), WithBackoff(time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	queue.On("ReceiveMessages", mock.Anything, "in").Return(nil, errors.New("aws error")).Once()
	queue.On("ReceiveMessages", mock.Anything, "in").
		Run(func(mock.Arguments) { cancel() }).
		Return([]types.Message{}, nil)

	done := make(chan struct{})
	go func() {
		worker.Start(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
	queue.AssertNumberOfCalls(t, "ReceiveMessages", 2)
}

func TestQueueNotifier(t *testing.T) {
	queue := new(MockQueue)
	queue.On("SendMessage", mock.Anything, "events", domain.OutboundMessage{
		Type:      domain.MsgTypeImportProgress,
		Detail:    "Fetching URL:\nhttps://a",
		RequestID: "req-1",
	}).Return(nil)

	n := NewQueueNotifier(queue, "events", "req-1")
	err := n.Notify(context.Background(), domain.ProgressEvent{Kind: domain.EventProgress, Message: "Fetching URL:\nhttps://a"})
	assert.NoError(t, err)
	queue.AssertExpectations(t)
}

func TestLogNotifier(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	n := NewLogNotifier(zap.New(core))

	_ = n.Notify(context.Background(), domain.ProgressEvent{Kind: domain.EventProgress, Message: "step"})
	_ = n.Notify(context.Background(), domain.ProgressEvent{Kind: domain.EventError, Message: "boom"})

	all := logs.All()
	if assert.Len(t, all, 2) {
		assert.Equal(t, zap.InfoLevel, all[0].Level)
		assert.Equal(t, zap.ErrorLevel, all[1].Level)
		assert.Equal(t, "import-error", all[1].ContextMap()["type"])
	}
}
