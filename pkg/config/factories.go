package config

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/marmos91/dittores/internal/logger"
	"github.com/marmos91/dittores/pkg/backend/archive"
	"github.com/marmos91/dittores/pkg/backend/classpath"
	"github.com/marmos91/dittores/pkg/backend/kv"
	"github.com/marmos91/dittores/pkg/backend/local"
	"github.com/marmos91/dittores/pkg/backend/memory"
	"github.com/marmos91/dittores/pkg/backend/s3"
	"github.com/marmos91/dittores/pkg/backend/sftp"
	"github.com/marmos91/dittores/pkg/backend/web"
	"github.com/marmos91/dittores/pkg/pipeline"
	"github.com/marmos91/dittores/pkg/processor"
	"github.com/marmos91/dittores/pkg/resource"
	"github.com/mitchellh/mapstructure"
)

// BuildPipeline creates a resolution pipeline from configuration.
//
// Every enabled resolver is created from its options map, the shared:
// resolver and its links are installed, and the configured processors are
// attached. Resources resolved through the returned pipeline report to the
// metrics in m (which may be nil).
//
// The kv engine table, when enabled, is started and closed together with
// the pipeline. Callers must Close the pipeline.
func BuildPipeline(ctx context.Context, cfg *Config, m *MetricsResult) (*pipeline.Pipeline, error) {
	if m == nil {
		m = &MetricsResult{}
	}

	var (
		resolvers []pipeline.Resolver
		opts      []pipeline.Option
	)
	for _, nr := range cfg.Resolvers.all() {
		if !nr.config.Enabled {
			continue
		}
		r, err := createResolver(nr.name, nr.config, m)
		if err != nil {
			closeResolvers(resolvers)
			return nil, err
		}
		if c, ok := r.(interface{ Close() error }); ok {
			opts = append(opts, pipeline.WithCloser(c))
		}
		resolvers = append(resolvers, r)
		logger.Debug("Resolver %s enabled (priority %d)", nr.name, r.Priority())
	}

	if cfg.Shared.Enabled {
		resolvers = append(resolvers, pipeline.NewSharedResolver(cfg.Shared.Root, cfg.Shared.Priority))
	}

	processors, err := createProcessors(&cfg.Processors)
	if err != nil {
		closeResolvers(resolvers)
		return nil, err
	}

	opts = append(opts, pipeline.WithMetrics(m.Resources))
	p := pipeline.New(resolvers, processors, opts...)

	if err := installLinks(ctx, p, cfg.Shared.Links); err != nil {
		_ = p.Close()
		return nil, err
	}

	return p, nil
}

// createResolver creates the resolver registered under name.
//
// Supported names:
//   - "local": local filesystem (options: root)
//   - "memory": process-wide in-memory store
//   - "classpath": ordered list of directories (options: roots)
//   - "web": http and https (options: timeout, user_agent)
//   - "archive": zip, tar, 7z and compressed single streams (options: formats)
//   - "s3": Amazon S3 or compatible storage (options: see s3.Config)
//   - "sftp": SSH file transfer (options: see sftp.Config)
//   - "kv": badger-backed key/value trees (options: default_root, see kv.ManagerConfig)
func createResolver(name string, rc *ResolverConfig, m *MetricsResult) (pipeline.Resolver, error) {
	switch name {
	case "local":
		return createLocalResolver(rc)
	case "memory":
		return memory.NewResolver(memory.NewBackend(nil), rc.Priority), nil
	case "classpath":
		return createClasspathResolver(rc)
	case "web":
		return createWebResolver(rc)
	case "archive":
		return createArchiveResolver(rc)
	case "s3":
		return createS3Resolver(rc)
	case "sftp":
		return createSFTPResolver(rc)
	case "kv":
		return createKVResolver(rc, m)
	default:
		return nil, fmt.Errorf("unknown resolver: %q", name)
	}
}

func createLocalResolver(rc *ResolverConfig) (pipeline.Resolver, error) {
	type LocalResolverConfig struct {
		Root string `mapstructure:"root"`
	}

	var opts LocalResolverConfig
	if err := decodeOptions(rc.Options, &opts); err != nil {
		return nil, fmt.Errorf("failed to decode local resolver config: %w", err)
	}

	return local.NewResolver(local.New(expandHome(opts.Root)), rc.Priority), nil
}

func createClasspathResolver(rc *ResolverConfig) (pipeline.Resolver, error) {
	type ClasspathResolverConfig struct {
		Roots []string `mapstructure:"roots"`
	}

	var opts ClasspathResolverConfig
	if err := decodeOptions(rc.Options, &opts); err != nil {
		return nil, fmt.Errorf("failed to decode classpath resolver config: %w", err)
	}

	roots := make([]classpath.Root, 0, len(opts.Roots))
	for _, dir := range opts.Roots {
		dir = expandHome(dir)
		info, err := os.Stat(dir)
		if err != nil {
			return nil, fmt.Errorf("classpath root %s: %w", dir, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("classpath root %s is not a directory", dir)
		}
		roots = append(roots, classpath.Root{Name: dir, FS: os.DirFS(dir)})
	}

	return classpath.NewResolver(classpath.New(roots...), rc.Priority), nil
}

func createWebResolver(rc *ResolverConfig) (pipeline.Resolver, error) {
	type WebResolverConfig struct {
		Timeout   time.Duration `mapstructure:"timeout"`
		UserAgent string        `mapstructure:"user_agent"`
	}

	var opts WebResolverConfig
	if err := decodeOptions(rc.Options, &opts); err != nil {
		return nil, fmt.Errorf("failed to decode web resolver config: %w", err)
	}

	var webOpts []web.Option
	if opts.Timeout > 0 {
		webOpts = append(webOpts, web.WithClient(&http.Client{Timeout: opts.Timeout}))
	}
	if opts.UserAgent != "" {
		webOpts = append(webOpts, web.WithUserAgent(opts.UserAgent))
	}

	return web.NewResolver(web.New(webOpts...), rc.Priority), nil
}

func createArchiveResolver(rc *ResolverConfig) (pipeline.Resolver, error) {
	type ArchiveResolverConfig struct {
		Formats []string `mapstructure:"formats"`
	}

	var opts ArchiveResolverConfig
	if err := decodeOptions(rc.Options, &opts); err != nil {
		return nil, fmt.Errorf("failed to decode archive resolver config: %w", err)
	}

	formats := make([]archive.Format, 0, len(opts.Formats))
	for _, name := range opts.Formats {
		f, err := archive.ParseFormat(strings.ToLower(name))
		if err != nil {
			return nil, fmt.Errorf("archive resolver: %w", err)
		}
		formats = append(formats, f)
	}

	return archive.NewResolver(rc.Priority, formats...), nil
}

func createS3Resolver(rc *ResolverConfig) (pipeline.Resolver, error) {
	var opts s3.Config
	if err := decodeOptions(rc.Options, &opts); err != nil {
		return nil, fmt.Errorf("failed to decode s3 resolver config: %w", err)
	}

	if err := validate.Struct(&opts); err != nil {
		return nil, fmt.Errorf("s3 resolver: %w", formatValidationError(err))
	}

	return s3.NewResolver(opts, rc.Priority), nil
}

func createSFTPResolver(rc *ResolverConfig) (pipeline.Resolver, error) {
	var opts sftp.Config
	if err := decodeOptions(rc.Options, &opts); err != nil {
		return nil, fmt.Errorf("failed to decode sftp resolver config: %w", err)
	}

	opts.KeyFile = expandHome(opts.KeyFile)
	opts.KnownHostsFile = expandHome(opts.KnownHostsFile)

	return sftp.NewResolver(opts, rc.Priority), nil
}

func createKVResolver(rc *ResolverConfig, m *MetricsResult) (pipeline.Resolver, error) {
	type KVResolverConfig struct {
		DefaultRoot      string `mapstructure:"default_root"`
		kv.ManagerConfig `mapstructure:",squash"`
	}

	var opts KVResolverConfig
	if err := decodeOptions(rc.Options, &opts); err != nil {
		return nil, fmt.Errorf("failed to decode kv resolver config: %w", err)
	}

	opts.Metrics = m.Engines
	manager := kv.NewManager(opts.ManagerConfig)
	manager.Start()

	return kv.NewResolver(manager, expandHome(opts.DefaultRoot), rc.Priority), nil
}

// createProcessors creates the configured stream processors.
func createProcessors(cfg *ProcessorsConfig) ([]pipeline.Processor, error) {
	var processors []pipeline.Processor

	if cfg.Decompress.Enabled {
		codecs := make([]processor.Codec, 0, len(cfg.Decompress.Codecs))
		for _, name := range cfg.Decompress.Codecs {
			c, err := processor.ParseCodec(strings.ToLower(name))
			if err != nil {
				return nil, fmt.Errorf("decompress processor: %w", err)
			}
			codecs = append(codecs, c)
		}
		processors = append(processors, processor.NewDecompress(cfg.Decompress.Priority, codecs...))
	}

	return processors, nil
}

// installLinks resolves every link target as a directory and links it
// into the shared: namespace. Prefixes are installed in sorted order.
func installLinks(ctx context.Context, p *pipeline.Pipeline, links map[string]string) error {
	prefixes := make([]string, 0, len(links))
	for prefix := range links {
		prefixes = append(prefixes, prefix)
	}
	sort.Strings(prefixes)

	for _, prefix := range prefixes {
		target, err := p.Resolve(ctx, links[prefix], pipeline.AsType(resource.TypeDirectory))
		if err != nil {
			return fmt.Errorf("shared link %s: %w", prefix, err)
		}
		if err := p.Link(prefix, target); err != nil {
			return fmt.Errorf("shared link %s: %w", prefix, err)
		}
		logger.Debug("Linked shared:%s to %s", prefix, target)
	}
	return nil
}

// decodeOptions decodes a resolver options map into out.
//
// Durations accept strings like "30s", lists accept comma separated
// strings (as set through environment variables), and unknown keys are
// rejected.
func decodeOptions(options map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(options)
}

// expandHome replaces a leading "~/" with the user's home directory.
func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

func closeResolvers(resolvers []pipeline.Resolver) {
	for _, r := range resolvers {
		if c, ok := r.(interface{ Close() error }); ok {
			_ = c.Close()
		}
	}
}
