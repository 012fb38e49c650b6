package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "gocloud.dev/blob/azureblob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"

	app "github.com/kode4food/cadence"
	"github.com/kode4food/cadence/internal/archive"
	"github.com/kode4food/cadence/internal/client"
	"github.com/kode4food/cadence/internal/config"
	"github.com/kode4food/cadence/internal/engine"
	"github.com/kode4food/cadence/internal/ledger"
	"github.com/kode4food/cadence/internal/monitor"
	"github.com/kode4food/cadence/internal/reconcile"
	"github.com/kode4food/cadence/internal/report"
	"github.com/kode4food/cadence/internal/sequence"
	"github.com/kode4food/cadence/internal/server"
	"github.com/kode4food/cadence/internal/state"
	"github.com/kode4food/cadence/internal/store"
	"github.com/kode4food/cadence/pkg/log"
)

type cadence struct {
	cfg        *config.Config
	env        string
	reporter   report.Reporter
	store      *store.Store
	ledger     *ledger.Ledger
	archive    *archive.Archive
	clients    *client.Registry
	engine     *engine.Engine
	monitor    *monitor.Monitor
	apiServer  *server.Server
	httpServer *http.Server
	quit       chan os.Signal
}

var (
	ErrOpenStore   = errors.New("failed to open store")
	ErrOpenLedger  = errors.New("failed to open ledger")
	ErrOpenArchive = errors.New("failed to open archive")
	ErrReporter    = errors.New("failed to create error reporter")
)

const flushTimeout = 2 * time.Second

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env file", log.Error(err))
	}

	cfg := config.NewDefaultConfig()
	if err := cfg.LoadFromEnv(); err != nil {
		slog.Error("Invalid configuration", log.Error(err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", log.Error(err))
		os.Exit(1)
	}

	s := &cadence{
		cfg:  cfg,
		env:  os.Getenv("ENV"),
		quit: make(chan os.Signal, 1),
	}
	s.setupLogging()

	if err := s.run(); err != nil {
		slog.Error("Failed to start application", log.Error(err))
		s.close()
		os.Exit(1)
	}
}

func (s *cadence) run() error {
	if err := s.initializeReporter(); err != nil {
		return err
	}

	if err := s.initializeStores(); err != nil {
		return err
	}

	if err := s.initializeEngine(); err != nil {
		return err
	}
	s.startServer()

	signal.Notify(s.quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(s.quit)
	<-s.quit

	s.shutdown()
	return nil
}

func (s *cadence) setupLogging() {
	level, ok := log.ParseLevel(s.cfg.LogLevel)
	if !ok {
		level = slog.LevelInfo
	}

	logger := log.NewWithLevel(app.Name, s.env, app.Version, level)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level)

	slog.Info("Cadence engine starting",
		slog.String("log_level", s.cfg.LogLevel))

	slog.Info("Configuration loaded",
		slog.String("agent_base_url", s.cfg.Agent.BaseURL),
		slog.String("database_driver", s.cfg.Database.Driver),
		slog.String("redis_addr", s.cfg.Redis.Addr),
		slog.Int("redis_db", s.cfg.Redis.DB),
		slog.Bool("archive_enabled", s.cfg.ArchiveBucketURL != ""),
		slog.Bool("stop_on_reply", s.cfg.StopOnReply),
		slog.String("api_host", s.cfg.APIHost),
		slog.Int("api_port", s.cfg.APIPort))
}

func (s *cadence) initializeReporter() error {
	if s.cfg.SentryDSN == "" {
		s.reporter = report.NewLogger(slog.Default())
		return nil
	}
	rep, err := report.NewSentry(s.cfg.SentryDSN, s.env, app.Version)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrReporter, err)
	}
	s.reporter = rep
	return nil
}

func (s *cadence) initializeStores() error {
	ctx := context.Background()
	var err error

	s.store, err = store.Open(
		s.cfg.Database.Driver, s.cfg.Database.DSN, slog.Default(),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrOpenStore, err)
	}
	if err := s.store.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrOpenStore, err)
	}

	s.ledger, err = ledger.Open(ctx, ledger.Config{
		Addr:     s.cfg.Redis.Addr,
		Password: s.cfg.Redis.Password,
		DB:       s.cfg.Redis.DB,
		Prefix:   s.cfg.Redis.Prefix,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrOpenLedger, err)
	}

	if s.cfg.ArchiveBucketURL != "" {
		s.archive, err = archive.Open(
			ctx, s.cfg.ArchiveBucketURL, s.cfg.ArchivePrefix,
		)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrOpenArchive, err)
		}
	}
	return nil
}

func (s *cadence) initializeEngine() error {
	s.clients = client.NewRegistry(s.cfg.Agent, client.Dependencies{
		Logger: slog.Default(),
	})
	sched := sequence.NewScheduler(sequence.Policy{
		StopOnReply: s.cfg.StopOnReply,
		MaxRetries:  s.cfg.Retry.MaxRetries,
	}, nil)
	machine := state.NewMachine(s.cfg.StopOnReply, nil)

	eng, err := engine.New(engine.Dependencies{
		Store:     s.store,
		Clients:   s.clients,
		Caps:      s.ledger,
		Scheduler: sched,
		Machine:   machine,
		Reporter:  s.reporter,
	}, s.cfg)
	if err != nil {
		return err
	}
	s.engine = eng

	deps := reconcile.Dependencies{
		Store:     s.store,
		Claims:    s.ledger,
		Scheduler: sched,
		Machine:   machine,
	}
	if s.archive != nil {
		deps.Archive = s.archive
	}
	rec, err := reconcile.New(deps, s.cfg.DedupTTL)
	if err != nil {
		return err
	}

	s.monitor = monitor.New(monitor.Dependencies{
		Clients:  s.clients,
		Accounts: s.store,
		Usage:    s.ledger,
	}, s.cfg.HealthInterval)
	s.apiServer = server.NewServer(s.engine, rec, s.monitor, slog.Default())

	s.engine.Start()
	s.monitor.Start()
	return nil
}

func (s *cadence) startServer() {
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.APIHost, s.cfg.APIPort),
		Handler:           s.apiServer.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("HTTP server starting",
			slog.String("addr", s.httpServer.Addr))
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", log.Error(err))
			s.quit <- syscall.SIGTERM
		}
	}()
}

func (s *cadence) shutdown() {
	slog.Info("Shutting down")

	ctx, cancel := context.WithTimeout(
		context.Background(), s.cfg.ShutdownTimeout,
	)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		slog.Error("Shutdown failed", log.Error(err))
	}

	s.monitor.Stop()
	if err := s.engine.Stop(); err != nil {
		slog.Error("Engine shutdown failed", log.Error(err))
	}

	s.close()
	slog.Info("Server exited")
}

func (s *cadence) close() {
	if s.clients != nil {
		s.clients.Close()
	}
	if s.archive != nil {
		_ = s.archive.Close()
	}
	if s.ledger != nil {
		_ = s.ledger.Close()
	}
	if s.store != nil {
		_ = s.store.Close()
	}
	if s.reporter != nil {
		s.reporter.Flush(flushTimeout)
	}
}
