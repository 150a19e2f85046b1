package domain

import "strings"

const (
	// Inbound UI message types
	MsgTypeImportImageURL = "import-image-url"

	// Outbound UI message types
	MsgTypeImportProgress = "import-progress"
	MsgTypeImportSuccess  = "import-success"
	MsgTypeImportError    = "import-error"

	MediaKindImage = "image"
	ShapeTypeRect  = "rect"

	DefaultMIME = "image/png"

	SuccessDetail = "Done."
)

// DefaultGeometry is where imported images are placed.
var DefaultGeometry = Geometry{X: 100, Y: 100, Width: 600, Height: 400}

var troubleshootingHints = []string{
	"Hints:",
	"- If you see a CORS error, the remote server must send Access-Control-Allow-Origin for your plugin origin.",
	"- Try another image host that allows CORS (e.g., an image CDN) or use your own proxy that adds CORS headers.",
	"- Ensure the URL is HTTPS (no mixed content) and publicly accessible.",
}

// WithHints appends the static troubleshooting hints to an error message.
func WithHints(message string) string {
	lines := append([]string{message, ""}, troubleshootingHints...)
	return strings.Join(lines, "\n")
}
