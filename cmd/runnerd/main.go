// Command runnerd is the Calpol scheduler/coordinator daemon. It loads a
// YAML configuration file, opens a ProbeStore (Postgres or embedded SQLite),
// wires up the notification dispatcher, and runs probes on a fixed interval
// until it receives SIGTERM or SIGINT.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jacobpro/calpol/internal/config"
	"github.com/jacobpro/calpol/internal/engine"
	"github.com/jacobpro/calpol/internal/notify"
	"github.com/jacobpro/calpol/internal/store"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "/etc/calpol/runnerd.yaml", "path to the runnerd YAML configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	probeStore, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to open probe store", slog.Any("error", err))
		os.Exit(1)
	}
	defer closeStore()

	dispatcher := &notify.Dispatcher{
		Email: notify.NewSMTPEmailSink(cfg.Mailer.Host, int(cfg.Mailer.Port), cfg.Mailer.Username, cfg.Mailer.Password, cfg.Mailer.SendFrom, cfg.Mailer.ReplyTo, logger),
	}
	if cfg.SMS.AccessKey != "" {
		dispatcher.SMS = notify.NewHTTPSMSSink(cfg.SMS.AccessKey)
		logger.Info("SMS dispatch enabled")
	} else {
		logger.Warn("sms.access_key not configured; SMS dispatch disabled")
	}

	coordinator := &engine.Coordinator{
		Store:        probeStore,
		Notifier:     dispatcher,
		Clock:        engine.SystemClock{},
		Logger:       logger,
		Concurrency:  int(cfg.Runner.Concurrency),
		RunTimeout:   cfg.Runner.Timeout(),
		RetentionAge: cfg.Runner.RetentionAge(),
	}

	scheduler := engine.NewScheduler(coordinator, cfg.Runner.Interval(), logger)

	logger.Info("runnerd starting",
		slog.Duration("interval", cfg.Runner.Interval()),
		slog.Duration("timeout", cfg.Runner.Timeout()),
		slog.Int("concurrency", int(cfg.Runner.Concurrency)),
	)

	scheduler.Run(ctx)

	logger.Info("runnerd exited cleanly")
}

// openStore selects and opens the ProbeStore backend named by cfg, returning
// it alongside a cleanup func. DatabasePath takes precedence when both are
// somehow set, though LoadConfig's validation already rejects that case.
func openStore(ctx context.Context, cfg *config.Config) (engine.ProbeStore, func(), error) {
	if cfg.DatabasePath != "" {
		s, err := store.NewSQLite(cfg.DatabasePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	}
	s, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	return s, s.Close, nil
}

// newLogger constructs a *slog.Logger that writes JSON-structured log records
// to stderr at the requested minimum level.
func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
