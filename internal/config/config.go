package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"ocrgateway/internal/logger"
)

const (
	BackendHTTP   = "http"
	BackendVision = "vision"

	DriverGCS = "gcs"
	DriverS3  = "s3"
)

type Config struct {
	// HTTP server
	ServerAddr        string
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration

	// Recognition engine
	EngineBackend string
	EngineURL     string
	EngineKey     string
	EngineTimeout time.Duration

	// Object storage
	StorageDriver        string
	StorageBucket        string
	StorageVerifyObjects bool
	SignedURLTTL         time.Duration
	GCSAccessID          string
	GCSPrivateKeyFile    string
	S3Region             string
	S3Endpoint           string
	S3PathStyle          bool

	// Uploads
	MaxUploadBytes    int64
	AcceptedMIMETypes []string

	// Inbound rate limiting, 0 disables it
	RateLimitRPS   float64
	RateLimitBurst int

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

// Default returns the configuration used when nothing overrides a value.
func Default() *Config {
	return &Config{
		ServerAddr:           ":8000",
		ReadHeaderTimeout:    5 * time.Second,
		WriteTimeout:         330 * time.Second,
		EngineBackend:        BackendHTTP,
		EngineTimeout:        300 * time.Second,
		StorageDriver:        DriverGCS,
		StorageVerifyObjects: true,
		SignedURLTTL:         15 * time.Minute,
		MaxUploadBytes:       4 << 20,
		AcceptedMIMETypes:    []string{"application/pdf"},
		RateLimitBurst:       10,
		LogLevel:             "info",
		LogFormat:            "console",
		LogTimeFormat:        "2006-01-02T15:04:05Z07:00",
		LogOutput:            "stdout",
	}
}

// Load builds the configuration from defaults, then the optional TOML file at
// path, then environment variables.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		if err := config.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := config.loadEnv(); err != nil {
		return nil, err
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// fileConfig mirrors Config for the TOML file. Pointers tell unset keys
// apart from zero values; durations are strings such as "15m".
type fileConfig struct {
	ServerAddr           *string  `toml:"server_addr"`
	ReadHeaderTimeout    *string  `toml:"read_header_timeout"`
	WriteTimeout         *string  `toml:"write_timeout"`
	EngineBackend        *string  `toml:"engine_backend"`
	EngineURL            *string  `toml:"engine_url"`
	EngineKey            *string  `toml:"engine_key"`
	EngineTimeout        *string  `toml:"engine_timeout"`
	StorageDriver        *string  `toml:"storage_driver"`
	StorageBucket        *string  `toml:"storage_bucket"`
	StorageVerifyObjects *bool    `toml:"storage_verify_objects"`
	SignedURLTTL         *string  `toml:"signed_url_ttl"`
	GCSAccessID          *string  `toml:"gcs_access_id"`
	GCSPrivateKeyFile    *string  `toml:"gcs_private_key_file"`
	S3Region             *string  `toml:"s3_region"`
	S3Endpoint           *string  `toml:"s3_endpoint"`
	S3PathStyle          *bool    `toml:"s3_path_style"`
	MaxUploadBytes       *int64   `toml:"max_upload_bytes"`
	AcceptedMIMETypes    []string `toml:"accepted_mime_types"`
	RateLimitRPS         *float64 `toml:"rate_limit_rps"`
	RateLimitBurst       *int     `toml:"rate_limit_burst"`
	LogLevel             *string  `toml:"log_level"`
	LogFormat            *string  `toml:"log_format"`
	LogTimeFormat        *string  `toml:"log_time_format"`
	LogOutput            *string  `toml:"log_output"`
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var f fileConfig
	if err := toml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&c.ServerAddr, f.ServerAddr)
	setString(&c.EngineBackend, f.EngineBackend)
	setString(&c.EngineURL, f.EngineURL)
	setString(&c.EngineKey, f.EngineKey)
	setString(&c.StorageDriver, f.StorageDriver)
	setString(&c.StorageBucket, f.StorageBucket)
	setString(&c.GCSAccessID, f.GCSAccessID)
	setString(&c.GCSPrivateKeyFile, f.GCSPrivateKeyFile)
	setString(&c.S3Region, f.S3Region)
	setString(&c.S3Endpoint, f.S3Endpoint)
	setString(&c.LogLevel, f.LogLevel)
	setString(&c.LogFormat, f.LogFormat)
	setString(&c.LogTimeFormat, f.LogTimeFormat)
	setString(&c.LogOutput, f.LogOutput)
	if f.StorageVerifyObjects != nil {
		c.StorageVerifyObjects = *f.StorageVerifyObjects
	}
	if f.S3PathStyle != nil {
		c.S3PathStyle = *f.S3PathStyle
	}
	if f.MaxUploadBytes != nil {
		c.MaxUploadBytes = *f.MaxUploadBytes
	}
	if len(f.AcceptedMIMETypes) > 0 {
		c.AcceptedMIMETypes = f.AcceptedMIMETypes
	}
	if f.RateLimitRPS != nil {
		c.RateLimitRPS = *f.RateLimitRPS
	}
	if f.RateLimitBurst != nil {
		c.RateLimitBurst = *f.RateLimitBurst
	}

	durations := []struct {
		key   string
		value *string
		dst   *time.Duration
	}{
		{"read_header_timeout", f.ReadHeaderTimeout, &c.ReadHeaderTimeout},
		{"write_timeout", f.WriteTimeout, &c.WriteTimeout},
		{"engine_timeout", f.EngineTimeout, &c.EngineTimeout},
		{"signed_url_ttl", f.SignedURLTTL, &c.SignedURLTTL},
	}
	for _, d := range durations {
		if d.value == nil {
			continue
		}
		parsed, err := time.ParseDuration(*d.value)
		if err != nil {
			return fmt.Errorf("config file %s: invalid %s: %w", path, d.key, err)
		}
		*d.dst = parsed
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func (c *Config) loadEnv() error {
	c.ServerAddr = getEnv("SERVER_ADDR", c.ServerAddr)
	c.EngineBackend = strings.ToLower(getEnv("ENGINE_BACKEND", c.EngineBackend))
	c.EngineURL = getEnv("ENGINE_URL", c.EngineURL)
	c.EngineKey = getEnv("ENGINE_KEY", c.EngineKey)
	c.StorageDriver = strings.ToLower(getEnv("STORAGE_DRIVER", c.StorageDriver))
	c.StorageBucket = getEnv("STORAGE_BUCKET", c.StorageBucket)
	c.GCSAccessID = getEnv("GCS_ACCESS_ID", c.GCSAccessID)
	c.GCSPrivateKeyFile = getEnv("GCS_PRIVATE_KEY_FILE", c.GCSPrivateKeyFile)
	c.S3Region = getEnv("S3_REGION", c.S3Region)
	c.S3Endpoint = getEnv("S3_ENDPOINT", c.S3Endpoint)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
	c.LogTimeFormat = getEnv("LOG_TIME_FORMAT", c.LogTimeFormat)
	c.LogOutput = getEnv("LOG_OUTPUT", c.LogOutput)

	if v := os.Getenv("ACCEPTED_MIME_TYPES"); v != "" {
		c.AcceptedMIMETypes = splitList(v)
	}

	var err error
	if c.ReadHeaderTimeout, err = getDuration("READ_HEADER_TIMEOUT", c.ReadHeaderTimeout); err != nil {
		return err
	}
	if c.WriteTimeout, err = getDuration("WRITE_TIMEOUT", c.WriteTimeout); err != nil {
		return err
	}
	if c.EngineTimeout, err = getDuration("ENGINE_TIMEOUT", c.EngineTimeout); err != nil {
		return err
	}
	if c.SignedURLTTL, err = getDuration("SIGNED_URL_TTL", c.SignedURLTTL); err != nil {
		return err
	}
	if c.StorageVerifyObjects, err = getBool("STORAGE_VERIFY_OBJECTS", c.StorageVerifyObjects); err != nil {
		return err
	}
	if c.S3PathStyle, err = getBool("S3_PATH_STYLE", c.S3PathStyle); err != nil {
		return err
	}
	if v := os.Getenv("MAX_UPLOAD_BYTES"); v != "" {
		if c.MaxUploadBytes, err = strconv.ParseInt(v, 10, 64); err != nil {
			return fmt.Errorf("invalid MAX_UPLOAD_BYTES: %w", err)
		}
	}
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		if c.RateLimitRPS, err = strconv.ParseFloat(v, 64); err != nil {
			return fmt.Errorf("invalid RATE_LIMIT_RPS: %w", err)
		}
	}
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		if c.RateLimitBurst, err = strconv.Atoi(v); err != nil {
			return fmt.Errorf("invalid RATE_LIMIT_BURST: %w", err)
		}
	}
	return nil
}

func (c *Config) validate() error {
	switch c.EngineBackend {
	case BackendHTTP:
		if c.EngineURL == "" {
			return fmt.Errorf("ENGINE_URL is required")
		}
		u, err := url.Parse(c.EngineURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("ENGINE_URL must be an absolute URL, got %q", c.EngineURL)
		}
		if c.EngineKey == "" {
			return fmt.Errorf("ENGINE_KEY is required")
		}
	case BackendVision:
	default:
		return fmt.Errorf("ENGINE_BACKEND must be %q or %q, got %q", BackendHTTP, BackendVision, c.EngineBackend)
	}

	if c.StorageDriver != DriverGCS && c.StorageDriver != DriverS3 {
		return fmt.Errorf("STORAGE_DRIVER must be %q or %q, got %q", DriverGCS, DriverS3, c.StorageDriver)
	}
	if (c.GCSAccessID == "") != (c.GCSPrivateKeyFile == "") {
		return fmt.Errorf("GCS_ACCESS_ID and GCS_PRIVATE_KEY_FILE must be set together")
	}
	if c.SignedURLTTL <= 0 {
		return fmt.Errorf("SIGNED_URL_TTL must be positive")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	if len(c.AcceptedMIMETypes) == 0 {
		return fmt.Errorf("ACCEPTED_MIME_TYPES must name at least one type")
	}
	if c.RateLimitRPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS cannot be negative")
	}
	return nil
}

// StorageConfigured reports whether reference requests can be served.
func (c *Config) StorageConfigured() bool {
	return c.StorageBucket != ""
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
