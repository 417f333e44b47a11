package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/marmos91/dittores/internal/logger"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the complete DittoRes configuration.
//
// This structure captures all configurable aspects of a resolution pipeline:
//   - Logging configuration
//   - Metrics collection
//   - Retry policy for probing helpers
//   - Resolver selection, priority and backend-specific options
//   - Shared namespace (root and links)
//   - Stream processors
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (DITTORES_*), including those from a .env file
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority, see GetDefaultConfig)
//
// Resolver Configuration Pattern:
// Each backend defines its own option struct decoded from the resolver's
// options map, so only the options of enabled resolvers are ever looked at.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Metrics controls Prometheus metrics collection
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Retry is the policy used by the retrying helpers
	Retry RetryConfig `mapstructure:"retry" yaml:"retry"`

	// Resolvers enables and configures the URI resolvers
	Resolvers ResolversConfig `mapstructure:"resolvers" yaml:"resolvers"`

	// Shared configures the shared: namespace
	Shared SharedConfig `mapstructure:"shared" yaml:"shared"`

	// Processors configures stream processors
	Processors ProcessorsConfig `mapstructure:"processors" yaml:"processors"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// MetricsConfig controls metrics collection.
type MetricsConfig struct {
	// Enabled turns on Prometheus collection and the metrics HTTP server
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port for the metrics HTTP server
	Port int `mapstructure:"port" yaml:"port" validate:"omitempty,min=1,max=65535"`
}

// RetryConfig bounds retries of transient failures.
type RetryConfig struct {
	// Attempts is the total number of tries (1 disables retrying)
	Attempts int `mapstructure:"attempts" yaml:"attempts" validate:"required,min=1,max=100"`

	// MaxDelay caps the randomized pause between tries
	MaxDelay time.Duration `mapstructure:"max_delay" yaml:"max_delay" validate:"gte=0"`
}

// ResolverConfig is the common shape of every resolver section.
type ResolverConfig struct {
	// Enabled registers the resolver in the pipeline
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Priority orders resolvers; higher runs first
	Priority int `mapstructure:"priority" yaml:"priority"`

	// Options holds backend-specific settings
	Options map[string]any `mapstructure:"options" yaml:"options,omitempty"`
}

// ResolversConfig lists every known resolver.
type ResolversConfig struct {
	Local     ResolverConfig `mapstructure:"local" yaml:"local"`
	Memory    ResolverConfig `mapstructure:"memory" yaml:"memory"`
	Classpath ResolverConfig `mapstructure:"classpath" yaml:"classpath"`
	Web       ResolverConfig `mapstructure:"web" yaml:"web"`
	Archive   ResolverConfig `mapstructure:"archive" yaml:"archive"`
	S3        ResolverConfig `mapstructure:"s3" yaml:"s3"`
	SFTP      ResolverConfig `mapstructure:"sftp" yaml:"sftp"`
	KV        ResolverConfig `mapstructure:"kv" yaml:"kv"`
}

// SharedConfig configures the shared: namespace.
type SharedConfig struct {
	// Enabled registers the shared: resolver
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Priority of the shared: resolver
	Priority int `mapstructure:"priority" yaml:"priority"`

	// Root is the URI that shared: paths are resolved under when no link
	// matches (e.g. "memory:/shared"). Empty means only links resolve.
	Root string `mapstructure:"root" yaml:"root"`

	// Links maps shared: path prefixes to target directory URIs
	Links map[string]string `mapstructure:"links" yaml:"links,omitempty"`
}

// ProcessorsConfig configures stream processors.
type ProcessorsConfig struct {
	Decompress DecompressConfig `mapstructure:"decompress" yaml:"decompress"`
}

// DecompressConfig configures transparent decompression.
type DecompressConfig struct {
	// Enabled installs the processor
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Priority orders processors; higher runs first
	Priority int `mapstructure:"priority" yaml:"priority"`

	// Codecs restricts detection to these codecs (empty means all)
	// Valid values: gzip, bzip2, zstd, lz4
	Codecs []string `mapstructure:"codecs" yaml:"codecs,omitempty" validate:"dive,oneof=gzip gz bzip2 bz2 zstd zst lz4"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (DITTORES_*)
//  2. Configuration file
//  3. Default values
//
// A .env file next to the configuration file (or in the working directory)
// is loaded into the environment first; variables already set win.
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	if err := loadDotEnv(configPath); err != nil {
		return nil, err
	}

	v := viper.New()

	// Configure viper
	setupViper(v, configPath)

	// Seed defaults so every key is known to viper (and to AutomaticEnv)
	if err := setDefaults(v); err != nil {
		return nil, err
	}

	// Read configuration file if it exists
	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	// Unmarshal into config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Apply defaults for any missing values
	ApplyDefaults(&cfg)

	// Validate configuration
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// loadDotEnv loads the first .env file found next to the config file or in
// the working directory.
func loadDotEnv(configPath string) error {
	candidates := []string{".env"}
	if configPath != "" {
		candidates = append([]string{filepath.Join(filepath.Dir(configPath), ".env")}, candidates...)
	} else {
		candidates = append([]string{filepath.Join(getConfigDir(), ".env")}, candidates...)
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
		logger.Debug("Loaded environment from %s", path)
		return nil
	}
	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use DITTORES_ prefix and underscores
	// Example: DITTORES_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("DITTORES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Configure config file search
	if configPath != "" {
		// Use explicitly specified config file
		v.SetConfigFile(configPath)
	} else {
		// Use default location: $XDG_CONFIG_HOME/dittores/config.{yaml,toml}
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml") // Primary format
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper, configPath string) error {
	// An explicit path that does not exist is treated like a missing default
	if configPath != "" {
		if _, err := os.Stat(configPath); errors.Is(err, fs.ErrNotExist) {
			return nil
		}
	}

	if err := v.ReadInConfig(); err != nil {
		// Check if error is "config file not found"
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found is acceptable - use defaults
			return nil
		}
		// Other errors are problems
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// setDefaults registers every value of GetDefaultConfig as a viper default.
func setDefaults(v *viper.Viper) error {
	data, err := yaml.Marshal(GetDefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to encode defaults: %w", err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("failed to decode defaults: %w", err)
	}
	setDefaultTree(v, "", tree)
	return nil
}

func setDefaultTree(v *viper.Viper, prefix string, tree map[string]any) {
	for key, value := range tree {
		if prefix != "" {
			key = prefix + "." + key
		}
		if sub, ok := value.(map[string]any); ok && len(sub) > 0 {
			setDefaultTree(v, key, sub)
			continue
		}
		v.SetDefault(key, value)
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	// Check XDG_CONFIG_HOME
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dittores")
	}

	// Fall back to ~/.config
	home, err := os.UserHomeDir()
	if err != nil {
		// If we can't get home dir, use current directory as last resort
		return "."
	}

	return filepath.Join(home, ".config", "dittores")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	path := GetDefaultConfigPath()
	_, err := os.Stat(path)
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
