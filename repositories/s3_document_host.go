package repositories

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"mime"
	"strings"

	"github.com/google/uuid"

	"github.com/MyRustyCage/pp-image-importer/domain"
)

type ObjectUploader interface {
	UploadBytes(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error)
}

type ShapeWriter interface {
	PutShape(ctx context.Context, documentID string, id domain.ShapeID, spec domain.ShapeSpec) error
}

// S3DocumentHost keeps media in an S3 bucket and shapes in a DynamoDB table.
type S3DocumentHost struct {
	objects    ObjectUploader
	shapes     ShapeWriter
	bucket     string
	documentID string
	newID      func() string
}

func NewS3DocumentHost(objects ObjectUploader, shapes ShapeWriter, bucket, documentID string) *S3DocumentHost {
	return &S3DocumentHost{
		objects:    objects,
		shapes:     shapes,
		bucket:     bucket,
		documentID: documentID,
		newID:      func() string { return uuid.New().String() },
	}
}

func (h *S3DocumentHost) UploadMedia(ctx context.Context, kind string, data []byte, mimeType string) (domain.MediaRef, error) {
	if kind != domain.MediaKindImage {
		return domain.MediaRef{}, fmt.Errorf("unsupported media kind %q", kind)
	}

	id := h.newID()
	key := fmt.Sprintf("%s/%s.%s", h.documentID, id, extensionFor(mimeType))
	uri, err := h.objects.UploadBytes(ctx, h.bucket, key, data, mimeType)
	if err != nil {
		return domain.MediaRef{}, err
	}

	ref := domain.MediaRef{ID: id, Name: key, MIME: mimeType, URI: uri}
	// Dimensions are best effort; formats without a registered decoder keep zero values.
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		ref.Width, ref.Height = cfg.Width, cfg.Height
	}
	return ref, nil
}

func (h *S3DocumentHost) CreateImageShape(ctx context.Context, spec domain.ShapeSpec) (domain.ShapeID, error) {
	id := domain.ShapeID(h.newID())
	if err := h.shapes.PutShape(ctx, h.documentID, id, spec); err != nil {
		return "", err
	}
	return id, nil
}

var knownExtensions = map[string]string{
	"image/png":     "png",
	"image/jpeg":    "jpg",
	"image/gif":     "gif",
	"image/webp":    "webp",
	"image/svg+xml": "svg",
}

func extensionFor(mimeType string) string {
	if ext, ok := knownExtensions[mimeType]; ok {
		return ext
	}
	exts, err := mime.ExtensionsByType(mimeType)
	if err == nil && len(exts) > 0 {
		return strings.TrimPrefix(exts[0], ".")
	}
	return "bin"
}
