// Command worker runs extraction batches without a terminal.  Batches start
// on a cron schedule, when documents change under the watched directory, or
// when a batch.requested event arrives.  A Redis lock keeps concurrent
// workers from running overlapping batches.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/turtacn/Regolith-Intelligence/internal/app"
	"github.com/turtacn/Regolith-Intelligence/internal/config"
	"github.com/turtacn/Regolith-Intelligence/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/Regolith-Intelligence/internal/infrastructure/monitoring/logging"
	httpserver "github.com/turtacn/Regolith-Intelligence/internal/interfaces/http"
	"github.com/turtacn/Regolith-Intelligence/internal/interfaces/http/handlers"
	"github.com/turtacn/Regolith-Intelligence/pkg/errors"
	"github.com/turtacn/Regolith-Intelligence/pkg/types/simulant"
)

// Build-time variables injected via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

const shutdownTimeout = 5 * time.Minute

type options struct {
	configPath string
	envFile    string
	once       bool
	source     string
	docsDir    string
	dryRun     bool
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "", "path to configuration file (default: search regolith.yaml, ~/.regolith, /etc/regolith)")
	flag.StringVar(&o.envFile, "env-file", ".env", "dotenv file loaded before configuration")
	flag.BoolVar(&o.once, "once", false, "run a single batch and exit")
	flag.StringVar(&o.source, "source", "", "document source, local or minio (overrides worker.source)")
	flag.StringVar(&o.docsDir, "docs", "", "local documents directory (overrides worker.docs_dir)")
	flag.BoolVar(&o.dryRun, "dry-run", false, "with --once, report without writing")
	flag.Parse()

	if err := run(o); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func run(o options) error {
	if err := config.LoadDotEnv(o.envFile); err != nil {
		return err
	}
	cfg, used, err := config.Resolve(o.configPath)
	if err != nil {
		return err
	}
	if o.source != "" {
		cfg.Worker.Source = o.source
	}
	if o.docsDir != "" {
		cfg.Worker.DocsDir = o.docsDir
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()
	logger = logger.Named("worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	infra, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer infra.Close()

	runner := NewRunner(
		RunnerConfig{Source: cfg.Worker.Source, DocsDir: cfg.Worker.DocsDir},
		func(ctx context.Context) (Pipeline, error) {
			svc, err := infra.NewService(ctx)
			if err != nil {
				return nil, err
			}
			return svc, nil
		},
		infra.Documents,
		infra.BatchLock(),
		logger,
	)

	if o.once {
		report, err := runner.Trigger(ctx, "once", simulant.BatchRequested{DryRun: o.dryRun})
		if report != nil {
			report.Print(os.Stdout)
		}
		return err
	}

	// Runs outlive the signal so an in-flight batch can finish within
	// shutdownTimeout.
	runCtx, cancelRuns := context.WithCancel(context.Background())
	defer cancelRuns()
	trigger := func(name string, req simulant.BatchRequested) error {
		_, err := runner.Trigger(runCtx, name, req)
		if errors.Is(err, ErrBatchRunning) || errors.Is(err, ErrShuttingDown) {
			return nil
		}
		return err
	}

	var scheduler *cron.Cron
	if cfg.Worker.Schedule != "" {
		cl := cronLogger{logger.Named("cron")}
		scheduler = cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl)))
		_, err := scheduler.AddFunc(cfg.Worker.Schedule, func() {
			if err := trigger("schedule", simulant.BatchRequested{}); err != nil {
				logger.Error("scheduled batch failed", logging.Err(err))
			}
		})
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeValidation, "worker.schedule").WithDetail(cfg.Worker.Schedule)
		}
		scheduler.Start()
	}

	if cfg.Worker.WatchDocs && cfg.Worker.Source == "local" {
		w := NewDocWatcher(cfg.Worker.DocsDir, cfg.Worker.WatchDebounce, func(context.Context) {
			if err := trigger("watch", simulant.BatchRequested{}); err != nil {
				logger.Error("watched batch failed", logging.Err(err))
			}
		}, logger.Named("watch"))
		go func() {
			if err := w.Run(ctx); err != nil {
				logger.Error("document watcher stopped", logging.Err(err))
			}
		}()
	}

	if cfg.Kafka.Enabled {
		consumer, err := infra.NewConsumer("worker", kafka.TopicBatchRequested)
		if err != nil {
			return err
		}
		defer consumer.Close()
		err = consumer.Subscribe(kafka.TopicBatchRequested, kafka.BatchHandler(func(_ context.Context, req simulant.BatchRequested) error {
			return trigger("event", req)
		}))
		if err != nil {
			return err
		}
		if err := consumer.Start(ctx); err != nil {
			return err
		}
	}

	if used != "" {
		watchLogLevel(used, logger)
	}

	srv := metricsServer(cfg, infra, logger)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("metrics server stopped", logging.Err(err))
		}
	}()

	logger.Info("worker started",
		logging.String("version", version),
		logging.String("commit", commit),
		logging.String("source", cfg.Worker.Source),
		logging.String("schedule", cfg.Worker.Schedule),
		logging.Bool("watch_docs", cfg.Worker.WatchDocs),
		logging.Bool("kafka", cfg.Kafka.Enabled),
		logging.Bool("distributed_lock", infra.Redis != nil),
		logging.String("metrics_addr", srv.Addr()))

	<-ctx.Done()
	logger.Info("shutting down")

	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := runner.Shutdown(shutdownCtx); err != nil {
		logger.Warn("cancelling in-flight batch", logging.Err(err))
		cancelRuns()
	}
	return srv.Stop(shutdownCtx)
}

// metricsServer exposes the probes and /metrics on worker.metrics_port.
func metricsServer(cfg *config.Config, infra *app.Infrastructure, logger logging.Logger) *httpserver.Server {
	checks := make(map[string]handlers.CheckFunc)
	for name, fn := range infra.HealthChecks() {
		checks[name] = fn
	}
	sc := cfg.Server
	sc.Port = cfg.Worker.MetricsPort
	sc.RateLimit = 0
	sc.CORSOrigins = nil
	router := httpserver.NewRouter(httpserver.RouterConfig{
		Server:           sc,
		HealthHandler:    handlers.NewHealthHandler(version, checks, infra.Metrics),
		Logger:           logger,
		MetricsCollector: infra.Collector,
	})
	return httpserver.NewServer(sc, router, logger)
}

// watchLogLevel applies log level changes from the config file without a
// restart.
func watchLogLevel(path string, logger logging.Logger) {
	err := config.Watch(path, func(c *config.Config) {
		if logging.SetLevel(logger, c.Log.Level) {
			logger.Info("log level changed", logging.String("level", c.Log.Level))
		}
	}, logger)
	if err != nil {
		logger.Warn("config watch disabled", logging.Err(err))
	}
}

// cronLogger adapts Logger to cron.Logger.
type cronLogger struct{ l logging.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, kvFields(keysAndValues)...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(msg, append(kvFields(keysAndValues), logging.Err(err))...)
}

func kvFields(kv []interface{}) []logging.Field {
	fields := make([]logging.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		fields = append(fields, logging.Any(key, kv[i+1]))
	}
	return fields
}
