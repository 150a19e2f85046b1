// Package config loads importer settings from an optional YAML file, a .env file and
// environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	HostPenpot = "penpot"
	HostS3     = "s3"

	RasterizerImage   = "image"
	RasterizerBrowser = "browser"
)

type Config struct {
	AWSEndpointURL     string `yaml:"awsEndpointUrl"`
	AWSRegion          string `yaml:"awsRegion"`
	AWSAccessKeyID     string `yaml:"awsAccessKeyId"`
	AWSSecretAccessKey string `yaml:"awsSecretAccessKey"`

	InputQueueURL  string `yaml:"inputQueueUrl"`
	EventsQueueURL string `yaml:"eventsQueueUrl"`

	HostBackend  string       `yaml:"hostBackend"`
	Penpot       PenpotConfig `yaml:"penpot"`
	ImagesBucket string       `yaml:"imagesBucket"`
	ShapesTable  string       `yaml:"shapesTable"`
	DocumentID   string       `yaml:"documentId"`

	RedisHost string        `yaml:"redisHost"`
	RedisPort string        `yaml:"redisPort"`
	LockTTL   time.Duration `yaml:"lockTtl"`
	WorkerID  string        `yaml:"workerId"`

	Fetch FetchConfig `yaml:"fetch"`

	HTTPAddr       string   `yaml:"httpAddr"`
	AllowedOrigins []string `yaml:"allowedOrigins"`

	LogLevel string `yaml:"logLevel"`
}

// PenpotConfig points the penpot host backend at one file and page.
type PenpotConfig struct {
	BaseURL     string        `yaml:"baseUrl"`
	AccessToken string        `yaml:"accessToken"`
	FileID      string        `yaml:"fileId"`
	PageID      string        `yaml:"pageId"`
	Timeout     time.Duration `yaml:"timeout"`
}

// FetchConfig controls the transport strategy chain.
type FetchConfig struct {
	StrategyOrder   []string      `yaml:"strategyOrder"`
	ProxyEndpoint   string        `yaml:"proxyEndpoint"`
	Origin          string        `yaml:"origin"`
	Timeout         time.Duration `yaml:"timeout"`
	LowLevelTimeout time.Duration `yaml:"lowLevelTimeout"`
	MaxImageBytes   int64         `yaml:"maxImageBytes"`
	Rasterizer      string        `yaml:"rasterizer"`
	BrowserBin      string        `yaml:"browserBin"`
}

// Load reads the YAML file at path (if any), then .env, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	applyEnvOverrides(cfg)
	if err := cfg.validateCommon(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		AWSEndpointURL: "",
		AWSRegion:      "us-east-1",
		HostBackend:    HostPenpot,
		Penpot: PenpotConfig{
			BaseURL: "https://design.penpot.app",
			Timeout: 60 * time.Second,
		},
		ImagesBucket: "imported-images",
		ShapesTable:  "imported-shapes",
		DocumentID:   "default",
		RedisPort:    "6379",
		LockTTL:      2 * time.Minute,
		Fetch: FetchConfig{
			StrategyOrder:   []string{"direct", "proxy", "canvas", "lowlevel"},
			ProxyEndpoint:   "https://corsproxy.io/?url=",
			Timeout:         15 * time.Second,
			LowLevelTimeout: 30 * time.Second,
			MaxImageBytes:   20 << 20,
			Rasterizer:      RasterizerImage,
		},
		HTTPAddr:       ":8080",
		AllowedOrigins: []string{"*"},
		LogLevel:       "info",
	}
}

func applyEnvOverrides(cfg *Config) {
	cfg.AWSEndpointURL = getEnv("AWS_ENDPOINT_URL", cfg.AWSEndpointURL)
	cfg.AWSRegion = getEnv("AWS_REGION", cfg.AWSRegion)
	cfg.AWSAccessKeyID = getEnv("AWS_ACCESS_KEY_ID", cfg.AWSAccessKeyID)
	cfg.AWSSecretAccessKey = getEnv("AWS_SECRET_ACCESS_KEY", cfg.AWSSecretAccessKey)
	cfg.InputQueueURL = getEnv("INPUT_QUEUE_URL", cfg.InputQueueURL)
	cfg.EventsQueueURL = getEnv("EVENTS_QUEUE_URL", cfg.EventsQueueURL)

	cfg.HostBackend = getEnv("HOST_BACKEND", cfg.HostBackend)
	cfg.Penpot.BaseURL = getEnv("PENPOT_URL", cfg.Penpot.BaseURL)
	cfg.Penpot.AccessToken = getEnv("PENPOT_ACCESS_TOKEN", cfg.Penpot.AccessToken)
	cfg.Penpot.FileID = getEnv("PENPOT_FILE_ID", cfg.Penpot.FileID)
	cfg.Penpot.PageID = getEnv("PENPOT_PAGE_ID", cfg.Penpot.PageID)
	cfg.Penpot.Timeout = getDuration("PENPOT_TIMEOUT", cfg.Penpot.Timeout)
	cfg.ImagesBucket = getEnv("IMAGES_BUCKET", cfg.ImagesBucket)
	cfg.ShapesTable = getEnv("SHAPES_TABLE", cfg.ShapesTable)
	cfg.DocumentID = getEnv("DOCUMENT_ID", cfg.DocumentID)

	cfg.RedisHost = getEnv("REDIS_HOST", cfg.RedisHost)
	cfg.RedisPort = getEnv("REDIS_PORT", cfg.RedisPort)
	cfg.LockTTL = getDuration("LOCK_TTL", cfg.LockTTL)
	cfg.WorkerID = getEnv("WORKER_ID", cfg.WorkerID)

	if order := getEnv("FETCH_STRATEGIES", ""); order != "" {
		cfg.Fetch.StrategyOrder = splitList(order)
	}
	cfg.Fetch.ProxyEndpoint = getEnv("FETCH_PROXY_ENDPOINT", cfg.Fetch.ProxyEndpoint)
	cfg.Fetch.Origin = getEnv("FETCH_ORIGIN", cfg.Fetch.Origin)
	cfg.Fetch.Timeout = getDuration("FETCH_TIMEOUT", cfg.Fetch.Timeout)
	cfg.Fetch.LowLevelTimeout = getDuration("FETCH_LOWLEVEL_TIMEOUT", cfg.Fetch.LowLevelTimeout)
	if v := getEnv("MAX_IMAGE_BYTES", ""); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Fetch.MaxImageBytes = n
		}
	}
	cfg.Fetch.Rasterizer = getEnv("CANVAS_RASTERIZER", cfg.Fetch.Rasterizer)
	cfg.Fetch.BrowserBin = getEnv("BROWSER_BIN", cfg.Fetch.BrowserBin)

	cfg.HTTPAddr = getEnv("HTTP_ADDR", cfg.HTTPAddr)
	if origins := getEnv("ALLOWED_ORIGINS", ""); origins != "" {
		cfg.AllowedOrigins = splitList(origins)
	}
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	if cfg.WorkerID == "" {
		cfg.WorkerID, _ = os.Hostname()
	}
}

func (c *Config) validateCommon() error {
	if len(c.Fetch.StrategyOrder) == 0 {
		return fmt.Errorf("at least one fetch strategy is required")
	}
	if c.Fetch.MaxImageBytes <= 0 {
		return fmt.Errorf("MAX_IMAGE_BYTES must be positive")
	}
	switch c.Fetch.Rasterizer {
	case RasterizerImage, RasterizerBrowser:
	default:
		return fmt.Errorf("unknown canvas rasterizer %q", c.Fetch.Rasterizer)
	}
	return nil
}

// ValidateWorker checks the settings the queue worker needs.
func (c *Config) ValidateWorker() error {
	if c.InputQueueURL == "" {
		return fmt.Errorf("INPUT_QUEUE_URL is required")
	}
	if c.EventsQueueURL == "" {
		return fmt.Errorf("EVENTS_QUEUE_URL is required")
	}
	return nil
}

// ValidateHost checks the settings of the selected host backend.
func (c *Config) ValidateHost() error {
	switch c.HostBackend {
	case HostPenpot:
		if c.Penpot.AccessToken == "" {
			return fmt.Errorf("PENPOT_ACCESS_TOKEN is required")
		}
		if c.Penpot.FileID == "" || c.Penpot.PageID == "" {
			return fmt.Errorf("PENPOT_FILE_ID and PENPOT_PAGE_ID are required")
		}
	case HostS3:
		if c.ImagesBucket == "" {
			return fmt.Errorf("IMAGES_BUCKET is required")
		}
		if c.ShapesTable == "" {
			return fmt.Errorf("SHAPES_TABLE is required")
		}
	default:
		return fmt.Errorf("unknown host backend %q", c.HostBackend)
	}
	return nil
}

// RedisAddr returns the redis address, or "" when no redis host is configured.
func (c *Config) RedisAddr() string {
	if c.RedisHost == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
