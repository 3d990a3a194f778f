package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// DirName is the project-local settings directory.
	DirName = ".composer"
	// SettingsName is the settings file inside DirName.
	SettingsName = "settings.yaml"
	envPrefix    = "COMPOSER"
)

// Config represents the application configuration
type Config struct {
	Backend     BackendConfig    `mapstructure:"backend"`
	Assistant   string           `mapstructure:"assistant"`
	Chat        ChatConfig       `mapstructure:"chat"`
	Attachments AttachmentConfig `mapstructure:"attachments"`
	Catalog     CatalogConfig    `mapstructure:"catalog"`
	Metrics     MetricsConfig    `mapstructure:"metrics"`
	Logging     LoggingConfig    `mapstructure:"logging"`
}

// BackendConfig points at the assistant service
type BackendConfig struct {
	URL        string        `mapstructure:"url"`
	Timeout    time.Duration `mapstructure:"-"`
	TimeoutStr string        `mapstructure:"timeout"`
}

// ChatConfig holds streaming turn behaviour
type ChatConfig struct {
	TurnTimeout         time.Duration `mapstructure:"-"`
	TurnTimeoutStr      string        `mapstructure:"turn_timeout"`
	TimeoutVisible      bool          `mapstructure:"timeout_visible"`
	LegacySourceFraming bool          `mapstructure:"legacy_source_framing"`
	ReadSize            int           `mapstructure:"read_size"`
}

// AttachmentConfig limits files sent with a turn
type AttachmentConfig struct {
	MaxFiles       int    `mapstructure:"max_files"`
	MaxFileSize    int64  `mapstructure:"-"`
	MaxFileSizeStr string `mapstructure:"max_file_size"`
}

// CatalogConfig controls assistant list caching
type CatalogConfig struct {
	TTL    time.Duration `mapstructure:"-"`
	TTLStr string        `mapstructure:"ttl"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	LogFile  string `mapstructure:"log_file"`
	Preserve bool   `mapstructure:"preserve"`
	Level    string `mapstructure:"level"`
}

var cfg *Config

// Get returns the global config instance
func Get() *Config {
	if cfg == nil {
		panic("config not initialized")
	}
	return cfg
}

// Set replaces the global config instance.
func Set(c *Config) {
	cfg = c
}

// Load loads configuration from file, .env and environment
func Load(cfgFile string) (*Config, error) {
	setDefaults()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}

		xdgConfigHome := os.Getenv("XDG_CONFIG_HOME")
		if xdgConfigHome == "" {
			xdgConfigHome = filepath.Join(home, ".config")
		}

		viper.AddConfigPath("./" + DirName)
		viper.AddConfigPath(filepath.Join(xdgConfigHome, DirName))
		viper.SetConfigType("yaml")
		viper.SetConfigName(strings.TrimSuffix(SettingsName, filepath.Ext(SettingsName)))
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	bindEnvironmentVariables()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !(cfgFile != "" && errors.Is(err, os.ErrNotExist)) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	loaded := &Config{}
	if err := viper.Unmarshal(loaded); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := processDurations(loaded); err != nil {
		return nil, fmt.Errorf("failed to process durations: %w", err)
	}
	if err := processSizes(loaded); err != nil {
		return nil, fmt.Errorf("failed to process sizes: %w", err)
	}

	cfg = loaded
	return cfg, nil
}

// setDefaults sets all default configuration values
func setDefaults() {
	viper.SetDefault("backend.url", "http://localhost:8080")
	viper.SetDefault("backend.timeout", "30s")

	viper.SetDefault("assistant", "")

	viper.SetDefault("chat.turn_timeout", "60s")
	viper.SetDefault("chat.timeout_visible", true)
	viper.SetDefault("chat.legacy_source_framing", false)
	viper.SetDefault("chat.read_size", 4096)

	viper.SetDefault("attachments.max_files", 2)
	viper.SetDefault("attachments.max_file_size", "200MB")

	viper.SetDefault("catalog.ttl", "5m")

	viper.SetDefault("metrics.addr", "")

	viper.SetDefault("logging.log_file", "./"+DirName+"/system.log")
	viper.SetDefault("logging.preserve", false)
	viper.SetDefault("logging.level", "info")
}

// bindEnvironmentVariables binds specific environment variables to Viper keys
func bindEnvironmentVariables() {
	viper.BindEnv("backend.url", "COMPOSER_BACKEND_URL", "REACT_APP_BACKEND_URL")
	viper.BindEnv("backend.timeout", "COMPOSER_BACKEND_TIMEOUT")
	viper.BindEnv("assistant", "COMPOSER_ASSISTANT")
	viper.BindEnv("chat.turn_timeout", "COMPOSER_TURN_TIMEOUT")
	viper.BindEnv("chat.timeout_visible", "COMPOSER_TIMEOUT_VISIBLE")
	viper.BindEnv("chat.legacy_source_framing", "COMPOSER_LEGACY_SOURCE_FRAMING")
	viper.BindEnv("metrics.addr", "COMPOSER_METRICS_ADDR")
	viper.BindEnv("logging.log_file", "COMPOSER_LOG_FILE")
	viper.BindEnv("logging.level", "COMPOSER_LOG_LEVEL")
	viper.BindEnv("logging.preserve", "COMPOSER_LOG_PRESERVE")
}

// processDurations converts string durations to time.Duration
func processDurations(cfg *Config) error {
	if cfg.Backend.TimeoutStr != "" {
		d, err := time.ParseDuration(cfg.Backend.TimeoutStr)
		if err != nil {
			return fmt.Errorf("invalid backend.timeout: %w", err)
		}
		cfg.Backend.Timeout = d
	} else if cfg.Backend.Timeout == 0 {
		cfg.Backend.Timeout = 30 * time.Second
	}

	if cfg.Chat.TurnTimeoutStr != "" {
		d, err := time.ParseDuration(cfg.Chat.TurnTimeoutStr)
		if err != nil {
			return fmt.Errorf("invalid chat.turn_timeout: %w", err)
		}
		cfg.Chat.TurnTimeout = d
	}

	if cfg.Catalog.TTLStr != "" {
		d, err := time.ParseDuration(cfg.Catalog.TTLStr)
		if err != nil {
			return fmt.Errorf("invalid catalog.ttl: %w", err)
		}
		cfg.Catalog.TTL = d
	} else if cfg.Catalog.TTL == 0 {
		cfg.Catalog.TTL = 5 * time.Minute
	}

	return nil
}

// processSizes converts human readable sizes such as "200MB" to bytes
func processSizes(cfg *Config) error {
	if cfg.Attachments.MaxFileSizeStr == "" {
		return nil
	}
	n, err := humanize.ParseBytes(cfg.Attachments.MaxFileSizeStr)
	if err != nil {
		return fmt.Errorf("invalid attachments.max_file_size: %w", err)
	}
	cfg.Attachments.MaxFileSize = int64(n)
	return nil
}

// GetConfigFileUsed returns the path to the config file being used
func GetConfigFileUsed() string {
	return viper.ConfigFileUsed()
}

// WriteDefaults writes a settings file with every default to path unless
// one already exists. It reports whether a file was written.
func WriteDefaults(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, fmt.Errorf("failed to create settings directory: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.Set("backend.url", "http://localhost:8080")
	v.Set("backend.timeout", "30s")
	v.Set("assistant", "")
	v.Set("chat.turn_timeout", "60s")
	v.Set("chat.timeout_visible", true)
	v.Set("chat.legacy_source_framing", false)
	v.Set("attachments.max_files", 2)
	v.Set("attachments.max_file_size", "200MB")
	v.Set("catalog.ttl", "5m")
	v.Set("logging.log_file", "./"+DirName+"/system.log")
	v.Set("logging.preserve", false)
	v.Set("logging.level", "info")

	if err := v.WriteConfigAs(path); err != nil {
		return false, fmt.Errorf("failed to write settings: %w", err)
	}
	return true, nil
}
