// Command apiserver serves the simulant records and the review queue over
// HTTP.  Review items raised by worker runs arrive on the review topic when
// Kafka is enabled.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/turtacn/Regolith-Intelligence/internal/app"
	"github.com/turtacn/Regolith-Intelligence/internal/application/extraction"
	"github.com/turtacn/Regolith-Intelligence/internal/config"
	"github.com/turtacn/Regolith-Intelligence/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/Regolith-Intelligence/internal/infrastructure/monitoring/logging"
	httpserver "github.com/turtacn/Regolith-Intelligence/internal/interfaces/http"
	"github.com/turtacn/Regolith-Intelligence/internal/interfaces/http/handlers"
	"github.com/turtacn/Regolith-Intelligence/pkg/types/simulant"
)

// Build-time variables injected via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "", "path to configuration file (default: search regolith.yaml, ~/.regolith, /etc/regolith)")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before configuration")
	port := flag.Int("port", 0, "HTTP port (overrides server.port)")
	flag.Parse()

	if err := run(*configPath, *envFile, *port); err != nil {
		fmt.Fprintf(os.Stderr, "apiserver: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, envFile string, port int) error {
	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}
	cfg, used, err := config.Resolve(configPath)
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Server.Port = port
	}
	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()
	logger = logger.Named("apiserver")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	infra, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer infra.Close()

	queue := extraction.NewReviewQueue()
	svc, err := infra.NewService(ctx, extraction.WithReviewQueue(queue))
	if err != nil {
		return err
	}

	if cfg.Kafka.Enabled {
		consumer, err := infra.NewConsumer("api", kafka.TopicReviewRequired)
		if err != nil {
			return err
		}
		defer consumer.Close()
		err = consumer.Subscribe(kafka.TopicReviewRequired, kafka.ReviewHandler(func(_ context.Context, item simulant.ReviewItem) error {
			added := queue.Add(item)
			infra.Metrics.SetReviewQueueDepth("review", queue.Len())
			logger.Debug("review item queued", logging.String("id", added.ID), logging.String("field", added.Field))
			return nil
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

	checks := make(map[string]handlers.CheckFunc)
	for name, fn := range infra.HealthChecks() {
		checks[name] = fn
	}
	router := httpserver.NewRouter(httpserver.RouterConfig{
		Server:           cfg.Server,
		SimulantHandler:  handlers.NewSimulantHandler(infra.Store),
		ReviewHandler:    handlers.NewReviewHandler(svc, infra.Metrics),
		HealthHandler:    handlers.NewHealthHandler(version, checks, infra.Metrics),
		Logger:           logger,
		MetricsCollector: infra.Collector,
		Metrics:          infra.Metrics,
	})
	srv := httpserver.NewServer(cfg.Server, router, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()
	logger.Info("apiserver started",
		logging.String("addr", srv.Addr()),
		logging.String("version", version),
		logging.String("commit", commit),
		logging.String("store", cfg.Store.Driver),
		logging.Bool("kafka", cfg.Kafka.Enabled))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Stop(shutdownCtx)
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
