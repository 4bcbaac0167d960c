package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Sternrassler/osf-archiver/pkg/cache"
	"github.com/Sternrassler/osf-archiver/pkg/client"
	"github.com/Sternrassler/osf-archiver/pkg/logging"
	"github.com/Sternrassler/osf-archiver/pkg/metrics"
	"github.com/Sternrassler/osf-archiver/pkg/sink"
	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := NewMain()

	if err := m.Run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Main represents the program.
type Main struct {
	// HTTPClient replaces the OSF client's transport. Set before Run() in
	// tests.
	HTTPClient *http.Client

	redis *redis.Client
}

// NewMain returns a new instance of Main with defaults.
func NewMain() *Main {
	return &Main{}
}

// Close releases resources opened by Run.
func (m *Main) Close() error {
	if m.redis != nil {
		return m.redis.Close()
	}
	return nil
}

// Run executes the CLI with the given arguments.
func (m *Main) Run(ctx context.Context, args []string, stdout, stderr io.Writer) (err error) {
	deps := &Dependencies{
		Ctx:    ctx,
		Stdout: stdout,
		Stderr: stderr,
	}

	cli := &CLI{}
	parser, err := kong.New(cli,
		kong.Name("osf-archive"),
		kong.Description("Archive OSF registration wikis and files for long-term preservation."),
		kong.Writers(stdout, stderr),
		kong.Exit(func(int) {}), // Don't exit on help
		kong.Bind(deps),
	)
	if err != nil {
		return fmt.Errorf("failed to create parser: %w", err)
	}

	if len(args) == 0 {
		_, _ = parser.Parse([]string{"--help"})
		return fmt.Errorf("no command specified. Run 'osf-archive --help' to see available commands")
	}

	if args[0] == "help" || args[0] == "--help" || args[0] == "-h" {
		_, _ = parser.Parse([]string{"--help"})
		return nil
	}

	kongCtx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	cmd := strings.Fields(kongCtx.Command())[0]

	g := cli.Globals
	if err := logging.ValidateLevel(g.LogLevel); err != nil {
		return err
	}

	deps.RunID = logging.NewRunID()
	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.LogLevel(g.LogLevel)
	logCfg.Pretty = g.LogPretty
	logCfg.Output = stderr
	logCfg.RunID = deps.RunID
	logging.Setup(logCfg)

	if g.MetricsFile != "" {
		defer func() {
			if werr := metrics.WriteTextfile(g.MetricsFile); werr != nil {
				err = errors.Join(err, werr)
			}
		}()
	}

	cooldown, err := parseCooldown(g.Cooldown)
	if err != nil {
		return err
	}

	cfg := client.DefaultConfig()
	cfg.BaseURL = g.APIURL
	cfg.UserAgent = g.UserAgent
	cfg.Token = g.Token
	cfg.Retry.Cooldown = cooldown
	cfg.Retry.MaxAttempts = g.MaxAttempts
	cfg.RequestsPerSecond = g.RequestsPerSecond
	cfg.ResponseHeaderTimeout = g.HeaderTimeout

	if g.RedisURL != "" {
		opts, err := redis.ParseURL(g.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid redis url: %w", err)
		}
		m.redis = redis.NewClient(opts)
		defer m.Close()

		if err := m.redis.Ping(ctx).Err(); err != nil {
			fmt.Fprintln(stderr, "Hint: unset REDIS_URL to run without the response cache")
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		cfg.Redis = m.redis
		deps.Cache = cache.NewManager(m.redis)
	}

	deps.Client, err = client.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create OSF client: %w", err)
	}
	if m.HTTPClient != nil {
		deps.Client.SetHTTPClient(m.HTTPClient)
	}

	// Wire command-specific dependencies based on command
	if cmd == "upload" || (cmd == "wiki" && cli.Wiki.Sink == "s3") {
		bucket := cli.Upload.Bucket
		prefix := ""
		ext := ""
		if cmd == "wiki" {
			bucket = cli.Wiki.Bucket
			prefix = cli.Wiki.Prefix
			ext = sink.DefaultExt
		}
		if bucket == "" {
			return fmt.Errorf("--bucket is required for object storage")
		}

		deps.Objects, err = sink.NewObjectStore(sink.ObjectStoreConfig{
			Endpoint:   g.S3.Endpoint,
			AccessKey:  g.S3.AccessKey,
			SecretKey:  g.S3.SecretKey,
			Region:     g.S3.Region,
			UseSSL:     !g.S3.Insecure,
			Bucket:     bucket,
			Prefix:     prefix,
			Ext:        ext,
			Collection: g.S3.Collection,
		}, logging.NewLogger("object-store"))
		if err != nil {
			return err
		}
	}

	return kongCtx.Run(deps)
}
