package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/MyRustyCage/pp-image-importer/domain"
)

const defaultMaxImageBytes = 20 << 20

// ImportService fetches an image URL and places it into the host document.
// Imports on one service never overlap; a Locker extends that across processes.
type ImportService struct {
	host          HostDocumentAPI
	strategies    []FetchStrategy
	observer      Observer
	locker        Locker
	lockKey       string
	maxImageBytes int64
	logger        *zap.Logger

	mu sync.Mutex
}

// Functional Options Pattern
type ImportOption func(*ImportService)

func WithHost(h HostDocumentAPI) ImportOption {
	return func(s *ImportService) { s.host = h }
}

// WithStrategies sets the fetch strategies in preference order.
func WithStrategies(strategies ...FetchStrategy) ImportOption {
	return func(s *ImportService) { s.strategies = strategies }
}

func WithObserver(o Observer) ImportOption {
	return func(s *ImportService) { s.observer = o }
}

// WithLocker serializes imports sharing lockKey across workers.
func WithLocker(l Locker, lockKey string) ImportOption {
	return func(s *ImportService) {
		s.locker = l
		s.lockKey = lockKey
	}
}

func WithMaxImageBytes(n int64) ImportOption {
	return func(s *ImportService) { s.maxImageBytes = n }
}

func WithLogger(l *zap.Logger) ImportOption {
	return func(s *ImportService) { s.logger = l }
}

func NewImportService(opts ...ImportOption) *ImportService {
	s := &ImportService{
		observer:      nopObserver{},
		maxImageBytes: defaultMaxImageBytes,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ImportImage runs one import attempt for rawURL. Exactly one terminal event (success or
// error) is sent to notifier; the returned error is a *domain.ImportError for pipeline failures.
func (s *ImportService) ImportImage(ctx context.Context, rawURL string, notifier Notifier) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	s.observer.ImportStarted(ctx, rawURL)

	err := s.importLocked(ctx, rawURL, notifier)

	s.observer.ImportFinished(ctx, rawURL, time.Since(start), err)
	if err != nil {
		s.emit(ctx, notifier, domain.EventError, domain.WithHints(err.Error()))
		return err
	}
	s.emit(ctx, notifier, domain.EventSuccess, domain.SuccessDetail)
	return nil
}

func (s *ImportService) importLocked(ctx context.Context, rawURL string, notifier Notifier) error {
	if s.locker != nil {
		unlock, err := s.locker.Lock(ctx, s.lockKey)
		if err != nil {
			return fmt.Errorf("Import could not start: %w", err)
		}
		defer unlock()
	}
	return s.run(ctx, rawURL, notifier)
}

func (s *ImportService) run(ctx context.Context, rawURL string, notifier Notifier) error {
	// 1. Normalize
	target, err := NormalizeURL(rawURL)
	if err != nil {
		return err
	}
	s.emit(ctx, notifier, domain.EventProgress, fmt.Sprintf("Fetching URL:\n%s", target))

	// 2. Fetch
	resp, kind, err := s.fetch(ctx, target, notifier)
	if err != nil {
		return err
	}

	// 3. Materialize
	data, err := s.readBody(resp.Body)
	if err != nil {
		return domain.NewImportError(domain.ErrDecodeFailed, err, "Failed to read image bytes: %v", err)
	}

	// 4. MIME
	mimeType, warning := ResolveMIME(resp.ContentType, data)
	s.observer.MIMEResolved(ctx, mimeType, resp.ContentType, warning != "")
	if warning != "" {
		s.emit(ctx, notifier, domain.EventProgress, warning)
	}
	image := domain.FetchedImage{Bytes: data, MIME: mimeType, Strategy: kind}

	// 5. Upload
	s.emit(ctx, notifier, domain.EventProgress, fmt.Sprintf("Uploading %d bytes (%s)...", len(image.Bytes), image.MIME))
	ref, err := s.host.UploadMedia(ctx, domain.MediaKindImage, image.Bytes, image.MIME)
	if err != nil {
		return domain.NewImportError(domain.ErrUploadFailed, err, "Upload failed: %v", err)
	}
	s.observer.MediaUploaded(ctx, ref, len(image.Bytes))

	// 6. Shape
	shapeID, err := s.host.CreateImageShape(ctx, NewImageShape(ref))
	if err != nil {
		return domain.NewImportError(domain.ErrShapeCreationFailed, err, "Failed to create shape or apply fill: %v", err)
	}
	s.observer.ShapeCreated(ctx, shapeID)
	return nil
}

// fetch tries each strategy in order and stops at the first success.
func (s *ImportService) fetch(ctx context.Context, target string, notifier Notifier) (*domain.FetchResponse, domain.StrategyKind, error) {
	if len(s.strategies) == 0 {
		return nil, "", domain.NewImportError(domain.ErrFetchFailed, nil, "Fetch failed: no fetch strategies configured")
	}

	var attempts, lastErr error
	for i, strategy := range s.strategies {
		resp, err := strategy.Fetch(ctx, target)
		if err == nil && (resp == nil || resp.Body == nil) {
			err = errors.New("empty response")
		}
		s.observer.StrategyAttempted(ctx, strategy.Kind(), err)
		if err == nil {
			return resp, strategy.Kind(), nil
		}

		lastErr = err
		attempts = multierr.Append(attempts, fmt.Errorf("%s: %w", strategy.Kind(), err))
		if ctx.Err() != nil {
			break
		}
		if i+1 < len(s.strategies) {
			s.emit(ctx, notifier, domain.EventProgress,
				fmt.Sprintf("%s fetch failed (%v), trying %s", strategy.Kind(), err, s.strategies[i+1].Kind()))
		}
	}

	s.logger.Debug("all fetch strategies failed", zap.String("url", target), zap.Error(attempts))
	return nil, "", domain.NewImportError(domain.ErrFetchFailed, attempts, "Fetch failed: %v", lastErr)
}

func (s *ImportService) readBody(body io.ReadCloser) ([]byte, error) {
	defer body.Close()

	limited := &io.LimitedReader{R: body, N: s.maxImageBytes + 1}
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > s.maxImageBytes {
		return nil, fmt.Errorf("image exceeds maximum size of %d bytes", s.maxImageBytes)
	}
	if len(data) == 0 {
		return nil, errors.New("empty response body")
	}
	return data, nil
}

func (s *ImportService) emit(ctx context.Context, notifier Notifier, kind domain.EventKind, message string) {
	if notifier == nil {
		return
	}
	if err := notifier.Notify(ctx, domain.ProgressEvent{Kind: kind, Message: message}); err != nil {
		s.logger.Warn("failed to deliver progress event", zap.Stringer("kind", kind), zap.Error(err))
	}
}

// NewImageShape is the rectangle placed for every imported image.
func NewImageShape(ref domain.MediaRef) domain.ShapeSpec {
	return domain.ShapeSpec{
		Type:     domain.ShapeTypeRect,
		Geometry: domain.DefaultGeometry,
		Fills:    []domain.FillSpec{{FillOpacity: 1, FillImage: ref}},
	}
}
