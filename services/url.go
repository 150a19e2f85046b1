package services

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/MyRustyCage/pp-image-importer/domain"
)

var (
	schemePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://`)
	defaultScheme = "https://"
)

// NormalizeURL prepends https:// to scheme-less input and rejects anything that is not an
// absolute http(s) URL with a host. The result is re-serialized, so spaces and other unsafe
// characters come back percent-encoded.
func NormalizeURL(raw string) (string, error) {
	candidate := strings.TrimSpace(raw)
	if candidate == "" {
		return "", domain.NewImportError(domain.ErrInvalidURL, nil, "Invalid URL: empty input")
	}
	if !schemePattern.MatchString(candidate) {
		candidate = defaultScheme + candidate
	}

	parsed, err := url.Parse(candidate)
	if err != nil {
		return "", domain.NewImportError(domain.ErrInvalidURL, err, "Invalid URL: %s", raw)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", domain.NewImportError(domain.ErrInvalidURL, nil, "Invalid URL: %s (only http and https are supported)", raw)
	}
	if parsed.Hostname() == "" {
		return "", domain.NewImportError(domain.ErrInvalidURL, nil, "Invalid URL: %s (missing host)", raw)
	}
	// url.URL.String keeps RawQuery verbatim
	parsed.RawQuery = strings.ReplaceAll(parsed.RawQuery, " ", "%20")
	return parsed.String(), nil
}
