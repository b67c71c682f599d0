// Contextlog is the journal server: HTTP API, notification scheduler and an
// optional Temporal worker for weekly reflections.
//
// Configuration is loaded from ~/.config/contextlog/config.yaml (or -config)
// and CONTEXTLOG_* environment variables. See internal/config for details.
//
// Usage:
//
//	# Start server with defaults
//	contextlog
//
//	# Configure via environment
//	CONTEXTLOG_SERVER_PORT=8080 CONTEXTLOG_EVENTS_URL=nats://localhost:4222 contextlog
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contextlog/internal/config"
	httpserver "github.com/fyrsmithlabs/contextlog/internal/http"
	"github.com/fyrsmithlabs/contextlog/internal/events"
	"github.com/fyrsmithlabs/contextlog/internal/logging"
	"github.com/fyrsmithlabs/contextlog/internal/scheduler"
	"github.com/fyrsmithlabs/contextlog/internal/service"
	"github.com/fyrsmithlabs/contextlog/internal/store"
	"github.com/fyrsmithlabs/contextlog/internal/telemetry"
	"github.com/fyrsmithlabs/contextlog/internal/workflows"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default ~/.config/contextlog/config.yaml)")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  contextlog [-config path]   Start the journal server\n")
			fmt.Fprintf(os.Stderr, "  contextlog version          Show version information\n")
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("contextlog by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts every component and blocks until ctx is cancelled:
//  1. load configuration
//  2. telemetry, then the logger bridged to it
//  3. store, event publisher and journal service
//  4. scheduler, optional Temporal worker
//  5. HTTP server
//  6. graceful shutdown in reverse order
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.FromConfig(cfg.Observability, version), nil)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()

	logCfg, err := logging.FromConfig(cfg.Logging, cfg.Observability.ServiceName)
	if err != nil {
		return fmt.Errorf("invalid logging configuration: %w", err)
	}
	logger, err := logging.NewLogger(logCfg, tel.LoggerProvider())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	zl := logger.Underlying()

	logger.Info(ctx, "starting contextlog",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("store", cfg.Store.Path),
		zap.Bool("telemetry", tel.IsEnabled()))

	deps, err := initDependencies(ctx, cfg, zl)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.Close()

	svc, err := service.New(deps.store,
		service.WithPublisher(deps.publisher),
		service.WithLogger(zl.Named("service")),
		service.WithDeadZoneWindow(cfg.Engine.DeadZoneWindowDays),
	)
	if err != nil {
		return fmt.Errorf("failed to create journal service: %w", err)
	}

	watcher := watchConfig(ctx, configPath, logger)
	if watcher != nil {
		defer watcher.Stop()
	}

	var sweeper scheduler.Sweeper = svc
	if deps.temporal != nil {
		w := workflows.NewWorker(deps.temporal, cfg.Temporal.TaskQueue, svc)
		if err := w.Start(); err != nil {
			return fmt.Errorf("failed to start temporal worker: %w", err)
		}
		defer w.Stop()
		logger.Info(ctx, "temporal worker started", zap.String("task_queue", cfg.Temporal.TaskQueue))

		sweeper = workflows.NewDispatcher(deps.temporal, svc, cfg.Temporal.TaskQueue, svc.Now, zl.Named("workflows")).
			Sweeper(svc)
	}

	if cfg.Scheduler.Enabled {
		sched, err := scheduler.New(sweeper, zl.Named("scheduler"),
			scheduler.WithInterval(cfg.Scheduler.Interval.Duration()))
		if err != nil {
			return fmt.Errorf("failed to create scheduler: %w", err)
		}
		if err := sched.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		defer sched.Stop()
	}

	srv, err := httpserver.NewServer(svc, zl.Named("http"), &httpserver.Config{
		Host:      cfg.Server.Host,
		Port:      cfg.Server.Port,
		RateLimit: cfg.Server.RateLimit,
		RateBurst: cfg.Server.RateBurst,
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	case <-ctx.Done():
		logger.Info(context.Background(), "shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

// dependencies holds the infrastructure the journal service runs on.
type dependencies struct {
	store     *store.Store
	natsConn  *nats.Conn
	publisher events.Publisher
	temporal  client.Client
	logger    *zap.Logger
}

// Close releases all infrastructure resources.
func (d *dependencies) Close() {
	if d.temporal != nil {
		d.temporal.Close()
	}
	if d.natsConn != nil {
		if err := d.natsConn.Drain(); err != nil {
			d.natsConn.Close()
		}
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			d.logger.Warn("failed to close store", zap.Error(err))
		}
	}
}

// initDependencies opens the store and connects to NATS and Temporal when
// they are configured. NATS and Temporal are optional; the store is not.
func initDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*dependencies, error) {
	st, err := store.New(ctx, store.Config{
		Path:        cfg.Store.Path,
		BusyTimeout: cfg.Store.BusyTimeout.Duration(),
	}, logger.Named("store"))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	deps := &dependencies{store: st, publisher: events.Nop{}, logger: logger}

	if cfg.Events.URL.IsSet() {
		nc, err := events.Connect(cfg.Events.URL.Value(), logger.Named("events"))
		if err != nil {
			deps.Close()
			return nil, err
		}
		deps.natsConn = nc
		deps.publisher = events.NewNATSPublisher(nc, cfg.Events.SubjectPrefix)
		logger.Info("connected to NATS", zap.String("subject_prefix", cfg.Events.SubjectPrefix))
	}

	if cfg.Temporal.Enabled {
		c, err := client.Dial(client.Options{
			HostPort:  cfg.Temporal.HostPort,
			Namespace: cfg.Temporal.Namespace,
		})
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("unable to create Temporal client: %w", err)
		}
		deps.temporal = c
		logger.Info("temporal client connected", zap.String("host", cfg.Temporal.HostPort))
	}

	return deps, nil
}

// watchConfig reloads the log level when the config file changes. Other
// settings need a restart. It returns nil when the file cannot be watched.
func watchConfig(ctx context.Context, configPath string, logger *logging.Logger) *config.Watcher {
	if configPath == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return nil
		}
		configPath = p
	}
	w, err := config.NewWatcher(configPath, logger.Underlying().Named("config"))
	if err != nil {
		logger.Warn(ctx, "config watcher unavailable", zap.Error(err))
		return nil
	}
	err = w.Start(ctx, func(c *config.Config) {
		level, err := logging.LevelFromString(c.Logging.Level)
		if err != nil {
			return
		}
		if level != logger.Level() {
			logger.SetLevel(level)
			logger.Info(ctx, "log level changed", zap.String("level", level.String()))
		}
	})
	if err != nil {
		logger.Debug(ctx, "config file not watched", zap.Error(err))
		w.Stop()
		return nil
	}
	return w
}
