package repositories

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"time"

	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/MyRustyCage/pp-image-importer/domain"
)

// Rasterizer loads an image, draws it onto an offscreen surface and exports it as PNG.
type Rasterizer interface {
	Rasterize(ctx context.Context, url string) ([]byte, error)
}

// CanvasDecodeFetch always yields PNG, whatever the source format was.
type CanvasDecodeFetch struct {
	rasterizer Rasterizer
}

func NewCanvasDecodeFetch(r Rasterizer) *CanvasDecodeFetch {
	return &CanvasDecodeFetch{rasterizer: r}
}

func (f *CanvasDecodeFetch) Kind() domain.StrategyKind { return domain.StrategyCanvas }

func (f *CanvasDecodeFetch) Fetch(ctx context.Context, target string) (*domain.FetchResponse, error) {
	data, err := f.rasterizer.Rasterize(ctx, target)
	if err != nil {
		return nil, err
	}
	return &domain.FetchResponse{
		Body:        io.NopCloser(bytes.NewReader(data)),
		ContentType: "image/png",
	}, nil
}

// ImageRasterizer decodes in-process. Supported sources: png, jpeg, gif (first frame),
// webp, bmp and tiff. With an origin set, pixels are only read back from sources that allow
// it, as with a tainted canvas.
type ImageRasterizer struct {
	client   *http.Client
	origin   string
	maxBytes int64
}

func NewImageRasterizer(timeout time.Duration, origin string, maxBytes int64) *ImageRasterizer {
	return &ImageRasterizer{
		client:   &http.Client{Timeout: timeout},
		origin:   origin,
		maxBytes: maxBytes,
	}
}

func (r *ImageRasterizer) Rasterize(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := doCORSGet(r.client, req, r.origin)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := readAllLimited(resp.Body, r.maxBytes)
	if err != nil {
		return nil, err
	}
	return EncodePNG(raw)
}

// EncodePNG decodes raw image bytes and re-encodes them as PNG via an NRGBA raster.
func EncodePNG(raw []byte) ([]byte, error) {
	src, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("image failed to load: %w", err)
	}

	bounds := src.Bounds()
	if bounds.Empty() {
		return nil, fmt.Errorf("image failed to load: empty %s image", format)
	}
	canvas := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(canvas, canvas.Bounds(), src, bounds.Min, draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("failed to export png: %w", err)
	}
	return buf.Bytes(), nil
}
