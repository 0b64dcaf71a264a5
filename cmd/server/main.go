// Command server is the Calpol operator API binary. It loads a YAML
// configuration file, opens a ProbeStore (Postgres or embedded SQLite),
// exposes the REST API over HTTP, and shuts down gracefully on SIGTERM or
// SIGINT. It shares its ProbeStore with a runnerd process (or embeds its own
// scheduler when run standalone with -embed-runner) but owns no probe
// evaluation of its own by default.
package main

import (
	"context"
	"crypto/rsa"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	rest "github.com/jacobpro/calpol/internal/api"
	"github.com/jacobpro/calpol/internal/config"
	"github.com/jacobpro/calpol/internal/engine"
	"github.com/jacobpro/calpol/internal/notify"
	"github.com/jacobpro/calpol/internal/store"
)

func main() {
	var (
		configPath  string
		httpAddr    string
		embedRunner bool
	)
	flag.StringVar(&configPath, "config", "/etc/calpol/server.yaml", "path to the server YAML configuration file")
	flag.StringVar(&httpAddr, "http-addr", ":8080", "HTTP REST API listener address")
	flag.BoolVar(&embedRunner, "embed-runner", false, "also run the probe scheduler in this process (single-binary deployments)")
	flag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("calpol server starting", slog.String("http_addr", httpAddr))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	db, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to open probe store", slog.Any("error", err))
		os.Exit(1)
	}
	defer closeStore()

	pubKey, err := loadPubKey(cfg.JWTPublicKeyPath)
	if err != nil {
		logger.Error("failed to load JWT public key", slog.Any("error", err))
		os.Exit(1)
	}

	var trigger rest.Trigger
	if embedRunner {
		dispatcher := &notify.Dispatcher{
			Email: notify.NewSMTPEmailSink(cfg.Mailer.Host, int(cfg.Mailer.Port), cfg.Mailer.Username, cfg.Mailer.Password, cfg.Mailer.SendFrom, cfg.Mailer.ReplyTo, logger),
		}
		if cfg.SMS.AccessKey != "" {
			dispatcher.SMS = notify.NewHTTPSMSSink(cfg.SMS.AccessKey)
		}
		coordinator := &engine.Coordinator{
			Store:        db,
			Notifier:     dispatcher,
			Clock:        engine.SystemClock{},
			Logger:       logger,
			Concurrency:  int(cfg.Runner.Concurrency),
			RunTimeout:   cfg.Runner.Timeout(),
			RetentionAge: cfg.Runner.RetentionAge(),
		}
		scheduler := engine.NewScheduler(coordinator, cfg.Runner.Interval(), logger)
		trigger = scheduler
		go scheduler.Run(ctx)
		logger.Info("embedded scheduler running alongside API")
	} else {
		trigger = noopTrigger{logger: logger}
	}

	restSrv := rest.NewServer(db, trigger)
	httpHandler := rest.NewRouter(restSrv, pubKey)

	httpServer := &http.Server{
		Addr:         httpAddr,
		Handler:      httpHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	httpErrCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP REST server listening", slog.String("addr", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			httpErrCh <- fmt.Errorf("HTTP server: %w", err)
		}
		close(httpErrCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-httpErrCh:
		if err != nil {
			logger.Error("HTTP server error", slog.Any("error", err))
		}
	}

	logger.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown error", slog.Any("error", err))
	}

	logger.Info("calpol server exited cleanly")
}

// noopTrigger satisfies rest.Trigger for deployments where the scheduler
// runs in a separate runnerd process; queueing a run from this process has
// no local effect since there is no local scheduler to wake.
type noopTrigger struct {
	logger *slog.Logger
}

func (t noopTrigger) Trigger() {
	t.logger.Warn("run queue requested but no embedded scheduler is running in this process")
}

// probeDB is satisfied directly by *store.Postgres and *store.SQLite: both
// already implement engine.ProbeStore plus the InsertProbe/ListRunLogs
// admin methods rest.Store needs.
type probeDB interface {
	engine.ProbeStore
	rest.Store
}

// openStore selects and opens the ProbeStore backend named by cfg, returning
// it alongside a cleanup func.
func openStore(ctx context.Context, cfg *config.Config) (probeDB, func(), error) {
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

func loadPubKey(path string) (*rsa.PublicKey, error) {
	pemBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read JWT public key %q: %w", path, err)
	}
	return rest.ParseRSAPublicKey(pemBytes)
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
