package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/yourorg/photo-gallery/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Storage backends selectable with STORAGE_BACKEND.
const (
	BackendAzure  = "azure"
	BackendS3     = "s3"
	BackendMemory = "memory"
)

// ConnectionStringKey is the environment variable holding the storage account connection string.
const ConnectionStringKey = "BlobStorageConnectionString"

// ConfigSource defines an interface for loading configuration from various sources.
type ConfigSource interface {
	Get(key string) (string, bool)
	GetWithDefault(key, defaultValue string) string
}

// EnvConfigSource loads configuration from environment variables.
type EnvConfigSource struct{}

// Get retrieves an environment variable.
func (e *EnvConfigSource) Get(key string) (string, bool) {
	val := os.Getenv(key)
	return val, val != ""
}

// GetWithDefault retrieves an environment variable or returns a default value.
func (e *EnvConfigSource) GetWithDefault(key, defaultValue string) string {
	if val, ok := e.Get(key); ok {
		return val
	}
	return defaultValue
}

// FileConfigSource loads configuration from a JSON or YAML file.
type FileConfigSource struct {
	data map[string]interface{}
}

// NewFileConfigSource creates a new file-based config source.
// Supports both JSON and YAML files based on file extension.
func NewFileConfigSource(filePath string) (*FileConfigSource, error) {
	data := make(map[string]interface{})

	fileData, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	switch {
	case strings.HasSuffix(filePath, ".yaml"), strings.HasSuffix(filePath, ".yml"):
		if err := yaml.Unmarshal(fileData, &data); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case strings.HasSuffix(filePath, ".json"):
		if err := json.Unmarshal(fileData, &data); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format, use .json, .yaml, or .yml")
	}

	return &FileConfigSource{data: data}, nil
}

// Get retrieves a value from the config file using dot notation (e.g., "blob.container").
func (f *FileConfigSource) Get(key string) (string, bool) {
	keys := strings.Split(key, ".")
	var current interface{} = f.data

	for _, k := range keys {
		m, ok := current.(map[string]interface{})
		if !ok {
			return "", false
		}
		val, exists := m[k]
		if !exists {
			return "", false
		}
		current = val
	}

	if str, ok := current.(string); ok {
		return str, true
	}
	return fmt.Sprintf("%v", current), true
}

// GetWithDefault retrieves a value from the config file or returns a default.
func (f *FileConfigSource) GetWithDefault(key, defaultValue string) string {
	if val, ok := f.Get(key); ok {
		return val
	}
	return defaultValue
}

// Config holds application configuration.
type Config struct {
	// Storage configuration
	StorageBackend              string // azure, s3, memory
	BlobStorageConnectionString string
	PhotosContainer             string
	BlobListPageSize            int   // 0 uses the provider default
	BlobUploadBlockSize         int64 // bytes
	BlobUploadConcurrency       int
	S3Region                    string
	S3Endpoint                  string

	// Upload event notifications (optional)
	UploadEventsConnectionString string
	UploadEventsQueue            string

	// HTTP Server configuration
	HTTPPort               int
	HTTPReadTimeout        int // seconds
	HTTPWriteTimeout       int // seconds
	HTTPIdleTimeout        int // seconds
	MaxUploadBytes         int64
	HSTSEnabled            bool
	HTTPSRedirect          bool
	StaticDir              string
	RateLimitRPS           float64
	RateLimitBurst         int
	SlowRequestThresholdMs int64
	CORSAllowedOrigins     []string // empty allows any origin
	TLSCertFile            string   // serve HTTPS when set together with TLSKeyFile
	TLSKeyFile             string

	// Telemetry configuration
	NewRelicEnabled    bool
	NewRelicLicenseKey string

	// Logging configuration
	LogLevel  string // debug, info, warn, error
	LogFormat string // json, text

	// Application configuration
	AppName     string
	AppVersion  string
	Environment string // dev, staging, prod
}

// IsDevelopment reports whether the service runs in the dev environment.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "dev" || c.Environment == "development"
}

// Validate checks settings that must be present before the process starts serving.
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case BackendAzure:
		if c.BlobStorageConnectionString == "" {
			return errors.NewConfigurationError("Could not find " + ConnectionStringKey)
		}
	case BackendS3, BackendMemory:
	default:
		return errors.NewConfigurationError(fmt.Sprintf("unknown storage backend %q", c.StorageBackend))
	}

	if c.PhotosContainer == "" {
		return errors.NewConfigurationError("PHOTOS_CONTAINER must not be empty")
	}
	if c.BlobListPageSize < 0 || c.BlobListPageSize > 5000 {
		return errors.NewConfigurationError("BLOB_LIST_PAGE_SIZE must be between 0 and 5000")
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return errors.NewConfigurationError("TLS_CERT_FILE and TLS_KEY_FILE must be set together")
	}
	if c.UploadEventsConnectionString != "" && c.UploadEventsQueue == "" {
		return errors.NewConfigurationError("UPLOAD_EVENTS_QUEUE is required when UPLOAD_EVENTS_CONNECTION_STRING is set")
	}
	return nil
}

// LoadConfig loads configuration from the provided source and validates it.
func LoadConfig(source ConfigSource) (*Config, error) {
	cfg := &Config{}

	getInt := func(key string, defaultValue int) int {
		val, err := strconv.Atoi(source.GetWithDefault(key, strconv.Itoa(defaultValue)))
		if err != nil {
			return defaultValue
		}
		return val
	}
	getInt64 := func(key string, defaultValue int64) int64 {
		val, err := strconv.ParseInt(source.GetWithDefault(key, strconv.FormatInt(defaultValue, 10)), 10, 64)
		if err != nil {
			return defaultValue
		}
		return val
	}
	getFloat := func(key string, defaultValue float64) float64 {
		val, err := strconv.ParseFloat(source.GetWithDefault(key, ""), 64)
		if err != nil {
			return defaultValue
		}
		return val
	}
	getList := func(key string) []string {
		var out []string
		for _, part := range strings.Split(source.GetWithDefault(key, ""), ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	getBool := func(key string, defaultValue bool) bool {
		val, err := strconv.ParseBool(source.GetWithDefault(key, strconv.FormatBool(defaultValue)))
		if err != nil {
			return defaultValue
		}
		return val
	}

	cfg.StorageBackend = strings.ToLower(source.GetWithDefault("STORAGE_BACKEND", BackendAzure))
	cfg.BlobStorageConnectionString = source.GetWithDefault(ConnectionStringKey, "")
	cfg.PhotosContainer = source.GetWithDefault("PHOTOS_CONTAINER", "photos")
	cfg.BlobListPageSize = getInt("BLOB_LIST_PAGE_SIZE", 0)
	cfg.BlobUploadBlockSize = getInt64("BLOB_UPLOAD_BLOCK_SIZE", 4*1024*1024)
	cfg.BlobUploadConcurrency = getInt("BLOB_UPLOAD_CONCURRENCY", 1)
	cfg.S3Region = source.GetWithDefault("S3_REGION", "")
	cfg.S3Endpoint = source.GetWithDefault("S3_ENDPOINT", "")

	cfg.UploadEventsConnectionString = source.GetWithDefault("UPLOAD_EVENTS_CONNECTION_STRING", "")
	cfg.UploadEventsQueue = source.GetWithDefault("UPLOAD_EVENTS_QUEUE", "")

	cfg.HTTPPort = getInt("HTTP_PORT", 8080)
	cfg.HTTPReadTimeout = getInt("HTTP_READ_TIMEOUT", 30)
	cfg.HTTPWriteTimeout = getInt("HTTP_WRITE_TIMEOUT", 120)
	cfg.HTTPIdleTimeout = getInt("HTTP_IDLE_TIMEOUT", 120)
	cfg.MaxUploadBytes = getInt64("MAX_UPLOAD_BYTES", 32*1024*1024)
	cfg.HTTPSRedirect = getBool("HTTPS_REDIRECT", false)
	cfg.StaticDir = source.GetWithDefault("STATIC_DIR", "")
	cfg.RateLimitRPS = getFloat("RATE_LIMIT_RPS", 0)
	cfg.RateLimitBurst = getInt("RATE_LIMIT_BURST", 10)
	cfg.SlowRequestThresholdMs = getInt64("SLOW_REQUEST_THRESHOLD_MS", 2000)
	cfg.CORSAllowedOrigins = getList("CORS_ALLOWED_ORIGINS")
	cfg.TLSCertFile = source.GetWithDefault("TLS_CERT_FILE", "")
	cfg.TLSKeyFile = source.GetWithDefault("TLS_KEY_FILE", "")

	cfg.NewRelicEnabled = getBool("NEW_RELIC_ENABLED", false)
	cfg.NewRelicLicenseKey = source.GetWithDefault("NEW_RELIC_LICENSE_KEY", "")

	cfg.LogLevel = source.GetWithDefault("LOG_LEVEL", "info")
	cfg.LogFormat = source.GetWithDefault("LOG_FORMAT", "json")

	cfg.AppName = source.GetWithDefault("APP_NAME", "photo-gallery")
	cfg.AppVersion = source.GetWithDefault("APP_VERSION", "1.0.0")
	cfg.Environment = source.GetWithDefault("ENVIRONMENT", "dev")

	// HSTS defaults to on outside development
	cfg.HSTSEnabled = getBool("HSTS_ENABLED", !cfg.IsDevelopment())

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFromEnv loads configuration from environment variables.
func LoadConfigFromEnv() (*Config, error) {
	return LoadConfig(&EnvConfigSource{})
}

// LoadConfigFromFile loads configuration from a JSON or YAML file.
// Environment variables will override file values if both are set.
func LoadConfigFromFile(filePath string) (*Config, error) {
	fileSource, err := NewFileConfigSource(filePath)
	if err != nil {
		return nil, err
	}

	return LoadConfig(NewCompositeConfigSource(&EnvConfigSource{}, fileSource))
}

// NewCompositeConfigSource checks sources in the given order.
func NewCompositeConfigSource(sources ...ConfigSource) *CompositeConfigSource {
	return &CompositeConfigSource{sources: sources}
}

// CompositeConfigSource checks multiple config sources in order.
type CompositeConfigSource struct {
	sources []ConfigSource
}

// Get retrieves a value from the first source that has it.
func (c *CompositeConfigSource) Get(key string) (string, bool) {
	for _, source := range c.sources {
		if val, ok := source.Get(key); ok {
			return val, true
		}
	}
	return "", false
}

// GetWithDefault retrieves a value from sources or returns default.
func (c *CompositeConfigSource) GetWithDefault(key, defaultValue string) string {
	if val, ok := c.Get(key); ok {
		return val
	}
	return defaultValue
}
