package observability

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/MyRustyCage/pp-image-importer/domain"
	"github.com/MyRustyCage/pp-image-importer/services"
)

// LoggingObserver logs each checkpoint of an import.
type LoggingObserver struct {
	logger *zap.Logger
}

func NewLoggingObserver(logger *zap.Logger) *LoggingObserver {
	return &LoggingObserver{logger: logger}
}

func (o *LoggingObserver) ImportStarted(_ context.Context, url string) {
	o.logger.Info("import started", zap.String("url", url))
}

func (o *LoggingObserver) StrategyAttempted(_ context.Context, kind domain.StrategyKind, err error) {
	if err != nil {
		o.logger.Warn("fetch strategy failed", zap.String("strategy", string(kind)), zap.Error(err))
		return
	}
	o.logger.Info("image fetched", zap.String("strategy", string(kind)))
}

func (o *LoggingObserver) MIMEResolved(_ context.Context, mimeType, reported string, warned bool) {
	o.logger.Debug("mime resolved", zap.String("mime", mimeType), zap.String("reported", reported), zap.Bool("warned", warned))
}

func (o *LoggingObserver) MediaUploaded(_ context.Context, ref domain.MediaRef, size int) {
	o.logger.Info("media uploaded", zap.String("media_id", ref.ID), zap.Int("bytes", size))
}

func (o *LoggingObserver) ShapeCreated(_ context.Context, id domain.ShapeID) {
	o.logger.Info("shape created", zap.String("shape_id", string(id)))
}

func (o *LoggingObserver) ImportFinished(_ context.Context, url string, elapsed time.Duration, err error) {
	if err != nil {
		o.logger.Error("import failed",
			zap.String("url", url),
			zap.String("kind", domain.KindName(err)),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return
	}
	o.logger.Info("import finished", zap.String("url", url), zap.Duration("elapsed", elapsed))
}

// MultiObserver fans every checkpoint out to all observers in order.
type MultiObserver []services.Observer

func (m MultiObserver) ImportStarted(ctx context.Context, url string) {
	for _, o := range m {
		o.ImportStarted(ctx, url)
	}
}

func (m MultiObserver) StrategyAttempted(ctx context.Context, kind domain.StrategyKind, err error) {
	for _, o := range m {
		o.StrategyAttempted(ctx, kind, err)
	}
}

func (m MultiObserver) MIMEResolved(ctx context.Context, mimeType, reported string, warned bool) {
	for _, o := range m {
		o.MIMEResolved(ctx, mimeType, reported, warned)
	}
}

func (m MultiObserver) MediaUploaded(ctx context.Context, ref domain.MediaRef, size int) {
	for _, o := range m {
		o.MediaUploaded(ctx, ref, size)
	}
}

func (m MultiObserver) ShapeCreated(ctx context.Context, id domain.ShapeID) {
	for _, o := range m {
		o.ShapeCreated(ctx, id)
	}
}

func (m MultiObserver) ImportFinished(ctx context.Context, url string, elapsed time.Duration, err error) {
	for _, o := range m {
		o.ImportFinished(ctx, url, elapsed, err)
	}
}
