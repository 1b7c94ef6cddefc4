package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// configName is the config file name without extension.
const configName = ".linedex"

// configType is the config file format.
const configType = "yaml"

// envPrefix is the environment variable prefix for linedex settings.
const envPrefix = "LINEDEX"

// envKeySeparator is the nested key separator in environment variable names.
const envKeySeparator = "_"

// Default configuration values.
const (
	DefaultCheckpointInterval = 100
	DefaultReadBufferSize     = "256KiB"
	DefaultCompression        = false
	DefaultAutoSave           = true
	DefaultKeepOpen           = false
	DefaultBatchSize          = 100
	DefaultDecodeErrorPolicy  = "raise"
	DefaultServiceName        = "linedex"
	DefaultEnvironment        = "development"
	DefaultLogLevel           = "info"
	DefaultLogJSON            = false
)

// LoadConfig loads configuration from file, env vars, and defaults.
// If configPath is non-empty, it is used as the explicit config file path.
// Otherwise, the config file is searched in CWD and $HOME.
// Missing config file is not an error; defaults are used.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	applyDefaults(viperCfg)

	viperCfg.SetConfigType(configType)
	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	viperCfg.AutomaticEnv()

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)
		viperCfg.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viperCfg.AddConfigPath(home)
		}
	}

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFound) {
			return nil, fmt.Errorf("read config: %w", readErr)
		}
	}

	var cfg Config

	unmarshalErr := viperCfg.Unmarshal(&cfg)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal config: %w", unmarshalErr)
	}

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}

	return &cfg, nil
}

func applyDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("index.checkpoint_interval", DefaultCheckpointInterval)
	viperCfg.SetDefault("index.read_buffer_size", DefaultReadBufferSize)
	viperCfg.SetDefault("index.compression", DefaultCompression)
	viperCfg.SetDefault("index.auto_save", DefaultAutoSave)
	viperCfg.SetDefault("index.keep_open", DefaultKeepOpen)

	viperCfg.SetDefault("stream.batch_size", DefaultBatchSize)
	viperCfg.SetDefault("stream.decode_error_policy", DefaultDecodeErrorPolicy)

	viperCfg.SetDefault("observability.service_name", DefaultServiceName)
	viperCfg.SetDefault("observability.environment", DefaultEnvironment)
	viperCfg.SetDefault("observability.otlp_endpoint", "")
	viperCfg.SetDefault("observability.otlp_insecure", false)
	viperCfg.SetDefault("observability.log_level", DefaultLogLevel)
	viperCfg.SetDefault("observability.log_json", DefaultLogJSON)
}
