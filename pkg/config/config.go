// Package config provides configuration loading and validation for linedex.
package config

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"

	"github.com/linedex/linedex/pkg/lineindex"
	"github.com/linedex/linedex/pkg/stream"
)

// Sentinel validation errors.
var (
	ErrInvalidCheckpointInterval = errors.New("index.checkpoint_interval must be positive")
	ErrInvalidReadBufferSize     = errors.New("index.read_buffer_size must be a positive byte size")
	ErrInvalidBatchSize          = errors.New("stream.batch_size must be positive")
	ErrInvalidDecodePolicy       = errors.New("stream.decode_error_policy must be raise, skip, or raw")
	ErrInvalidLogLevel           = errors.New("observability.log_level must be debug, info, warn, or error")
)

// Config is the top-level configuration struct for linedex.
// Field tags use mapstructure for viper unmarshalling.
type Config struct {
	Index         IndexConfig         `mapstructure:"index"`
	Stream        StreamConfig        `mapstructure:"stream"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// IndexConfig holds index build and persistence knobs.
type IndexConfig struct {
	CheckpointInterval uint32 `mapstructure:"checkpoint_interval"`
	ReadBufferSize     string `mapstructure:"read_buffer_size"`
	Compression        bool   `mapstructure:"compression"`
	AutoSave           bool   `mapstructure:"auto_save"`
	KeepOpen           bool   `mapstructure:"keep_open"`
}

// StreamConfig holds streaming iteration knobs.
type StreamConfig struct {
	BatchSize         int    `mapstructure:"batch_size"`
	DecodeErrorPolicy string `mapstructure:"decode_error_policy"`
}

// ObservabilityConfig holds logging and telemetry export settings.
type ObservabilityConfig struct {
	ServiceName  string `mapstructure:"service_name"`
	Environment  string `mapstructure:"environment"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`
	LogLevel     string `mapstructure:"log_level"`
	LogJSON      bool   `mapstructure:"log_json"`
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Index.CheckpointInterval == 0 {
		return ErrInvalidCheckpointInterval
	}

	size, err := humanize.ParseBytes(c.Index.ReadBufferSize)
	if err != nil || size == 0 {
		return fmt.Errorf("%w: %q", ErrInvalidReadBufferSize, c.Index.ReadBufferSize)
	}

	if c.Stream.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}

	if _, err := decodePolicy(c.Stream.DecodeErrorPolicy); err != nil {
		return err
	}

	if _, err := logLevel(c.Observability.LogLevel); err != nil {
		return err
	}

	return nil
}

// ReadBufferBytes returns the parsed read buffer size.
// Validate must have accepted the config first.
func (c *IndexConfig) ReadBufferBytes() int {
	size, err := humanize.ParseBytes(c.ReadBufferSize)
	if err != nil {
		return lineindex.DefaultReadBufferSize
	}

	return int(size)
}

// IndexOptions converts the index section into open options.
func (c *IndexConfig) IndexOptions() []lineindex.Option {
	return []lineindex.Option{
		lineindex.WithCheckpointInterval(c.CheckpointInterval),
		lineindex.WithReadBufferSize(c.ReadBufferBytes()),
		lineindex.WithCompression(c.Compression),
		lineindex.WithAutoSave(c.AutoSave),
		lineindex.WithKeepOpen(c.KeepOpen),
	}
}

// StreamOptions converts the stream section into stream options.
// Validate must have accepted the config first.
func (c *StreamConfig) StreamOptions() []stream.Option {
	policy, err := decodePolicy(c.DecodeErrorPolicy)
	if err != nil {
		policy = stream.Raise
	}

	return []stream.Option{
		stream.WithBatchSize(c.BatchSize),
		stream.WithDecodeErrorPolicy(policy),
	}
}

// SlogLevel returns the configured log level.
// Validate must have accepted the config first.
func (c *ObservabilityConfig) SlogLevel() slog.Level {
	level, err := logLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}

	return level
}

func decodePolicy(name string) (stream.DecodeErrorPolicy, error) {
	switch name {
	case "raise":
		return stream.Raise, nil
	case "skip":
		return stream.Skip, nil
	case "raw":
		return stream.Raw, nil
	default:
		return stream.Raise, fmt.Errorf("%w: %q", ErrInvalidDecodePolicy, name)
	}
}

func logLevel(name string) (slog.Level, error) {
	switch name {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%w: %q", ErrInvalidLogLevel, name)
	}
}
