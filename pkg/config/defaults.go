package config

import (
	"strings"
	"time"
)

// Default resolver priorities. Archive and shared URIs wrap other URIs, so
// their resolvers are consulted before the plain backends.
const (
	DefaultArchivePriority = 100
	DefaultSharedPriority  = 90
	DefaultBackendPriority = 0
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", nil) are replaced with defaults
//   - Explicit values are preserved
//   - Backend-specific option defaults are handled by the backends themselves
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyMetricsDefaults(&cfg.Metrics)
	applyRetryDefaults(&cfg.Retry)
	applyResolversDefaults(&cfg.Resolvers)
	applySharedDefaults(&cfg.Shared)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
}

func applyRetryDefaults(cfg *RetryConfig) {
	if cfg.Attempts == 0 {
		cfg.Attempts = 3
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = 2 * time.Second
	}
}

// applyResolversDefaults makes sure every options map exists so factories
// can decode without nil checks.
func applyResolversDefaults(cfg *ResolversConfig) {
	for _, rc := range cfg.all() {
		if rc.config.Options == nil {
			rc.config.Options = make(map[string]any)
		}
	}
	if cfg.Archive.Priority == 0 {
		cfg.Archive.Priority = DefaultArchivePriority
	}
}

func applySharedDefaults(cfg *SharedConfig) {
	if cfg.Priority == 0 {
		cfg.Priority = DefaultSharedPriority
	}
	if cfg.Links == nil {
		cfg.Links = make(map[string]string)
	}
}

// namedResolver pairs a resolver section with its configuration key.
type namedResolver struct {
	name   string
	config *ResolverConfig
}

// all returns the resolver sections in a stable order.
func (r *ResolversConfig) all() []namedResolver {
	return []namedResolver{
		{"local", &r.Local},
		{"memory", &r.Memory},
		{"classpath", &r.Classpath},
		{"web", &r.Web},
		{"archive", &r.Archive},
		{"s3", &r.S3},
		{"sftp", &r.SFTP},
		{"kv", &r.KV},
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// The local, memory, web and archive resolvers are enabled, the shared:
// namespace falls back to an in-memory directory, and decompression is on.
// Backends that need credentials or storage paths (s3, sftp, kv) start
// disabled with their options spelled out.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Resolvers: ResolversConfig{
			Local:  ResolverConfig{Enabled: true, Options: map[string]any{"root": ""}},
			Memory: ResolverConfig{Enabled: true},
			Classpath: ResolverConfig{
				Options: map[string]any{"roots": []any{}},
			},
			Web: ResolverConfig{
				Enabled: true,
				Options: map[string]any{"timeout": "30s", "user_agent": "dittores"},
			},
			Archive: ResolverConfig{
				Enabled: true,
				Options: map[string]any{"formats": []any{}},
			},
			S3: ResolverConfig{
				Options: map[string]any{
					"region":      "us-east-1",
					"endpoint":    "",
					"key_prefix":  "",
					"max_retries": 10,
				},
			},
			SFTP: ResolverConfig{
				Options: map[string]any{
					"user":             "",
					"key_file":         "",
					"known_hosts_file": "~/.ssh/known_hosts",
					"timeout":          "10s",
				},
			},
			KV: ResolverConfig{
				Options: map[string]any{
					"default_root":         "",
					"sweep_interval":       "1m",
					"min_cleanup_interval": "10s",
					"block_cache_size_mb":  32,
					"index_cache_size_mb":  16,
					"mem_table_size_mb":    16,
					"compression":          false,
				},
			},
		},
		Shared: SharedConfig{
			Enabled: true,
			Root:    "memory:/shared",
		},
		Processors: ProcessorsConfig{
			Decompress: DecompressConfig{Enabled: true},
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
