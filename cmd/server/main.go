package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/iudanet/doccollab/internal/config"
	"github.com/iudanet/doccollab/internal/logging"
	"github.com/iudanet/doccollab/internal/server/audit"
	"github.com/iudanet/doccollab/internal/server/collab"
	"github.com/iudanet/doccollab/internal/server/handlers"
	"github.com/iudanet/doccollab/internal/server/httpserver"
	"github.com/iudanet/doccollab/internal/server/notify"
	"github.com/iudanet/doccollab/internal/server/storage/sqlite"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Parse flags
	showVersion := flag.Bool("version", false, "Show version information")
	configPath := flag.String("config", "", "Path to YAML config file (env DOCCOLLAB_* overrides it)")
	issueToken := flag.String("issue-token", "", "Print an access token for the given actor id and exit")
	displayName := flag.String("display-name", "", "Display name embedded into the issued token")
	flag.Parse()

	// Show version and exit if requested
	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if *issueToken != "" {
		if err := printToken(os.Stdout, cfg.Auth, *issueToken, *displayName); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to issue token: %v\n", err)
			os.Exit(1)
		}
		return
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to configure logging: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("DocCollab server starting", "version", Version, "commit", GitCommit)
	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Server stopped with error", "error", err)
		stop()
		os.Exit(1)
	}
	logger.Info("Server stopped")
}

// run собирает зависимости и обслуживает запросы до отмены ctx
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) (err error) {
	store, err := sqlite.New(ctx, cfg.Storage.SQLitePath)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		err = errors.Join(err, store.Close())
	}()

	sink, closeSink, err := openAuditSink(cfg.Storage.AuditPath, logger)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, closeSink())
	}()

	pub, err := newPublisher(ctx, cfg.Notify)
	if err != nil {
		return err
	}
	notifier := notify.NewNotifier(pub, cfg.Notify.Prefix, logger.With("component", "notify"))
	defer func() {
		err = errors.Join(err, notifier.Close())
	}()

	svc := collab.Build(store, cfg.Collaboration,
		audit.NewRecorder(sink, logger.With("component", "audit")),
		notifier, logger, nil,
	)

	go svc.RunSweeper(ctx, cfg.Collaboration.SweepInterval)

	srv := httpserver.New(cfg.Server, httpserver.Deps{
		Logger:  logger,
		Service: svc,
		DB:      store,
		JWT:     jwtConfig(cfg.Auth),
		Version: Version,
	})
	return srv.Run(ctx)
}

// openAuditSink открывает журнал аудита BoltDB; пустой путь хранит журнал в памяти
func openAuditSink(path string, logger *slog.Logger) (audit.Sink, func() error, error) {
	if path == "" {
		logger.Warn("Audit path is empty, audit records are kept in memory only")
		return audit.NewMemorySink(), func() error { return nil }, nil
	}

	sink, err := audit.OpenBolt(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	return sink, sink.Close, nil
}

// newPublisher выбирает брокер событий по конфигурации
func newPublisher(ctx context.Context, cfg config.NotifyConfig) (notify.Publisher, error) {
	switch cfg.Driver {
	case "", config.DriverNone:
		return notify.Nop{}, nil
	case config.DriverRedis:
		pub, err := notify.NewRedisPublisher(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return pub, nil
	case config.DriverNATS:
		pub, err := notify.NewNATSPublisher(cfg.NATSServers, "doccollab")
		if err != nil {
			return nil, fmt.Errorf("failed to connect to nats: %w", err)
		}
		return pub, nil
	default:
		return nil, fmt.Errorf("unknown notify driver %q", cfg.Driver)
	}
}

func jwtConfig(cfg config.AuthConfig) handlers.JWTConfig {
	return handlers.JWTConfig{
		Secret:         []byte(cfg.JWTSecret),
		AccessTokenTTL: cfg.AccessTokenTTL,
	}
}

func printToken(w io.Writer, cfg config.AuthConfig, actorID, displayName string) error {
	token, expiresIn, err := handlers.GenerateAccessToken(jwtConfig(cfg), actorID, displayName)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n# expires in %ds\n", token, expiresIn)
	return err
}

func printVersion() {
	fmt.Printf("DocCollab Server\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
