package services

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MyRustyCage/pp-image-importer/domain"
)

func TestNormalizeURL(t *testing.T) {
	cases := map[string]string{
		"example.com/pic.png":         "https://example.com/pic.png",
		"https://example.com/pic.png": "https://example.com/pic.png",
		"http://example.com:8080/a":   "http://example.com:8080/a",
		"HTTPS://EXAMPLE.COM/A.PNG":   "https://EXAMPLE.COM/A.PNG",
		" img.cdn.net/a.jpg?w=200 ":   "https://img.cdn.net/a.jpg?w=200",
		"example.com/a b.png":         "https://example.com/a%20b.png",
		"https://example.com/x?q=a b": "https://example.com/x?q=a%20b",
		"example.com/caf%C3%A9.png":   "https://example.com/caf%C3%A9.png",
	}
	for input, want := range cases {
		got, err := NormalizeURL(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got)
	}
}

func TestNormalizeURL_Rejects(t *testing.T) {
	for _, input := range []string{"", "ftp://example.com/a", "https://", "data://abc", "https://a b", "https:///path"} {
		_, err := NormalizeURL(input)
		assert.True(t, errors.Is(err, domain.ErrInvalidURL), input)
	}
}
