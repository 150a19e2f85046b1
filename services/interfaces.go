package services

import (
	"context"
	"time"

	"github.com/MyRustyCage/pp-image-importer/domain"
)

// Consumer-side interfaces

// FetchStrategy is one way of retrieving remote bytes.
type FetchStrategy interface {
	Kind() domain.StrategyKind
	Fetch(ctx context.Context, url string) (*domain.FetchResponse, error)
}

// HostDocumentAPI is the design tool the images are imported into.
type HostDocumentAPI interface {
	UploadMedia(ctx context.Context, kind string, data []byte, mimeType string) (domain.MediaRef, error)
	CreateImageShape(ctx context.Context, spec domain.ShapeSpec) (domain.ShapeID, error)
}

// Notifier delivers progress events to the UI that requested the import.
type Notifier interface {
	Notify(ctx context.Context, event domain.ProgressEvent) error
}

// Locker serializes imports across processes. The returned func releases the lock.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// Observer is called at the pipeline checkpoints. Implementations must not block.
type Observer interface {
	ImportStarted(ctx context.Context, url string)
	StrategyAttempted(ctx context.Context, kind domain.StrategyKind, err error)
	// MIMEResolved reports the type used for upload; warned is set when the reported type was not an image.
	MIMEResolved(ctx context.Context, mimeType, reported string, warned bool)
	MediaUploaded(ctx context.Context, ref domain.MediaRef, size int)
	ShapeCreated(ctx context.Context, id domain.ShapeID)
	ImportFinished(ctx context.Context, url string, elapsed time.Duration, err error)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, event domain.ProgressEvent) error

func (f NotifierFunc) Notify(ctx context.Context, event domain.ProgressEvent) error {
	return f(ctx, event)
}

type nopObserver struct{}

func (nopObserver) ImportStarted(context.Context, string)                         {}
func (nopObserver) StrategyAttempted(context.Context, domain.StrategyKind, error) {}
func (nopObserver) MIMEResolved(context.Context, string, string, bool)            {}
func (nopObserver) MediaUploaded(context.Context, domain.MediaRef, int)           {}
func (nopObserver) ShapeCreated(context.Context, domain.ShapeID)                  {}
func (nopObserver) ImportFinished(context.Context, string, time.Duration, error)  {}
