package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/marmos91/dittores/internal/logger"
	"github.com/marmos91/dittores/pkg/config"
	"github.com/marmos91/dittores/pkg/pipeline"
	"github.com/marmos91/dittores/pkg/resource"
	"github.com/spf13/pflag"
)

// app is the state shared by every subcommand.
type app struct {
	cfg      *config.Config
	pipeline *pipeline.Pipeline
	cred     resource.Credential
	stdin    io.Reader
	stdout   io.Writer
}

// resolve resolves raw through the pipeline, attaching the command line
// credential when one was given.
func (a *app) resolve(ctx context.Context, raw string, opts ...pipeline.ResolveOption) (*resource.Resource, error) {
	if a.cred != nil {
		opts = append(opts, pipeline.WithCredential(a.cred))
	}
	return a.pipeline.Resolve(ctx, raw, opts...)
}

// mustExist is resolve followed by an existence check, retried with the
// configured policy.
func (a *app) mustExist(ctx context.Context, raw string, opts ...pipeline.ResolveOption) (*resource.Resource, error) {
	r, err := a.resolve(ctx, raw, opts...)
	if err != nil {
		return nil, err
	}
	var probeErr error
	found := resource.RetryBool(ctx, a.cfg.Retry.Attempts, a.cfg.Retry.MaxDelay, func() bool {
		var ok bool
		ok, probeErr = r.Exists(ctx)
		return ok
	})
	if probeErr != nil {
		return nil, probeErr
	}
	if !found {
		return nil, resource.NewIOError("open", r.String(), resource.ReasonNotFound, nil)
	}
	return r, nil
}

// globalFlags are accepted before the subcommand name.
type globalFlags struct {
	configPath      string
	logLevel        string
	user            string
	password        string
	keyFile         string
	accessKeyID     string
	secretAccessKey string
	sessionToken    string
}

func (g *globalFlags) register(flags *pflag.FlagSet) {
	flags.StringVarP(&g.configPath, "config", "c", "", "path to config file (default: "+config.GetDefaultConfigPath()+")")
	flags.StringVar(&g.logLevel, "log-level", "", "override the configured log level (DEBUG, INFO, WARN, ERROR)")
	flags.StringVarP(&g.user, "user", "u", "", "login for sftp resources")
	flags.StringVarP(&g.password, "password", "p", "", "password for sftp resources (or passphrase with --key-file)")
	flags.StringVar(&g.keyFile, "key-file", "", "PEM private key for sftp resources")
	flags.StringVar(&g.accessKeyID, "access-key-id", "", "access key id for s3 resources")
	flags.StringVar(&g.secretAccessKey, "secret-access-key", "", "secret access key for s3 resources")
	flags.StringVar(&g.sessionToken, "session-token", "", "session token for s3 resources")
}

// credential builds the credential requested on the command line, if any.
func (g *globalFlags) credential() (resource.Credential, error) {
	switch {
	case g.accessKeyID != "":
		return resource.AccessKey{
			AccessKeyID:     g.accessKeyID,
			SecretAccessKey: g.secretAccessKey,
			SessionToken:    g.sessionToken,
		}, nil
	case g.keyFile != "":
		pem, err := os.ReadFile(g.keyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read key file: %w", err)
		}
		return resource.PrivateKey{User: g.user, PEM: pem, Passphrase: g.password}, nil
	case g.password != "":
		return resource.UserPassword{User: g.user, Password: g.password}, nil
	default:
		return nil, nil
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout)
	stop()

	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "dittores: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	var global globalFlags
	flags := pflag.NewFlagSet("dittores", pflag.ContinueOnError)
	flags.SetInterspersed(false)
	global.register(flags)
	flags.Usage = func() { printUsage(flags) }

	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() == 0 {
		printUsage(flags)
		return pflag.ErrHelp
	}

	name, rest := flags.Arg(0), flags.Args()[1:]
	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q (run 'dittores --help')", name)
	}

	cmdFlags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	if cmd.flags != nil {
		cmd.flags(cmdFlags)
	}
	cmdFlags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: dittores %s %s\n\n%s\n\n", name, cmd.usage, cmd.summary)
		cmdFlags.PrintDefaults()
	}
	if err := cmdFlags.Parse(rest); err != nil {
		return err
	}
	if cmd.args >= 0 && cmdFlags.NArg() != cmd.args {
		cmdFlags.Usage()
		return fmt.Errorf("%s: expected %d argument(s), got %d", name, cmd.args, cmdFlags.NArg())
	}

	// init writes the config file and needs neither config nor pipeline
	if cmd.standalone {
		return cmd.run(ctx, &app{stdout: stdout}, cmdFlags, cmdFlags.Args())
	}

	cfg, err := config.Load(global.configPath)
	if err != nil {
		return err
	}
	if global.logLevel != "" {
		cfg.Logging.Level = global.logLevel
	}
	if err := logger.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
		return err
	}

	cred, err := global.credential()
	if err != nil {
		return err
	}

	m := config.InitializeMetrics(cfg)
	if m.Server != nil {
		go func() {
			if err := m.Server.Start(ctx); err != nil {
				logger.Error("Metrics server: %v", err)
			}
		}()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := m.Server.Stop(stopCtx); err != nil {
				logger.Warn("Metrics server shutdown: %v", err)
			}
		}()
	}

	p, err := config.BuildPipeline(ctx, cfg, m)
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	defer func() {
		if err := p.Close(); err != nil {
			logger.Warn("Pipeline shutdown: %v", err)
		}
	}()

	a := &app{cfg: cfg, pipeline: p, cred: cred, stdin: stdin, stdout: stdout}
	return cmd.run(ctx, a, cmdFlags, cmdFlags.Args())
}

func printUsage(flags *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `DittoRes - uniform access to files, objects and archives by URI.

Usage:
  dittores [global flags] <command> [flags] <uri>...

Commands:
`)
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "  %-7s %s\n", name, commands[name].summary)
	}

	fmt.Fprintf(os.Stderr, `
Examples:
  dittores cat file:/etc/hosts
  dittores ls -l s3://bucket/logs/
  dittores cp file:/tmp/site.zip/index.html memory:/index.html
  dittores -u deploy --key-file ~/.ssh/id_ed25519 tree sftp://host/srv/www

Global flags:
`)
	flags.PrintDefaults()
}
