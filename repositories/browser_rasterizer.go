package repositories

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

const pngDataURLPrefix = "data:image/png;base64,"

// Runs in the page: loads src with crossOrigin=anonymous, draws it on a canvas and reads
// the pixels back. A host without CORS taints the canvas and the promise rejects.
const canvasScript = `(src) => new Promise((resolve, reject) => {
	const img = new Image();
	img.crossOrigin = "anonymous";
	img.onload = () => {
		try {
			const canvas = document.createElement("canvas");
			canvas.width = img.naturalWidth;
			canvas.height = img.naturalHeight;
			canvas.getContext("2d").drawImage(img, 0, 0);
			resolve(canvas.toDataURL("image/png"));
		} catch (e) {
			reject(new Error("canvas read-back blocked: " + e.message));
		}
	};
	img.onerror = () => reject(new Error("image failed to load"));
	img.src = src;
})`

// BrowserRasterizer draws the image in a headless Chrome canvas.
type BrowserRasterizer struct {
	bin     string
	timeout time.Duration
	logger  *zap.Logger

	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
}

func NewBrowserRasterizer(bin string, timeout time.Duration, logger *zap.Logger) *BrowserRasterizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BrowserRasterizer{
		bin:     bin,
		timeout: timeout,
		logger:  logger,
	}
}

func (r *BrowserRasterizer) Rasterize(ctx context.Context, target string) ([]byte, error) {
	browser, err := r.connect()
	if err != nil {
		return nil, err
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			r.logger.Debug("failed to close page", zap.Error(err))
		}
	}()

	res, err := page.Context(ctx).Timeout(r.timeout).Evaluate(rod.Eval(canvasScript, target).ByPromise())
	if err != nil {
		return nil, fmt.Errorf("canvas decode failed: %w", err)
	}
	return decodePNGDataURL(res.Value.Str())
}

func (r *BrowserRasterizer) connect() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser != nil {
		return r.browser, nil
	}

	l := launcher.New().Headless(true)
	if r.bin != "" {
		l = l.Bin(r.bin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	r.launcher = l
	r.browser = browser
	r.logger.Info("headless browser started", zap.String("control_url", controlURL))
	return browser, nil
}

// Close shuts the browser down if it was started.
func (r *BrowserRasterizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser == nil {
		return nil
	}
	err := r.browser.Close()
	r.launcher.Kill()
	r.browser = nil
	r.launcher = nil
	return err
}

func decodePNGDataURL(dataURL string) ([]byte, error) {
	if !strings.HasPrefix(dataURL, pngDataURLPrefix) {
		return nil, errors.New("canvas export did not produce a png data url")
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(dataURL, pngDataURLPrefix))
	if err != nil {
		return nil, fmt.Errorf("failed to decode canvas export: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("canvas export is empty")
	}
	return data, nil
}
