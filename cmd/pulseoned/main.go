// Command pulseoned is PulseOne's daemon: it loads configuration, opens
// the persistence store, wires the repository layer, registers the
// built-in protocol drivers, starts a worker for every enabled device,
// and serves until signalled. It is the composition root spec §1 scopes
// out of the core ("all HTTP/CLI glue") — everything it does is wiring,
// not policy.
//
// Usage:
//
//	pulseoned [-config /etc/pulseone/config.yaml]
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/pulseone/pulseone/internal/config"
	"github.com/pulseone/pulseone/internal/factory"
	"github.com/pulseone/pulseone/internal/logging"
	"github.com/pulseone/pulseone/internal/metrics"
	"github.com/pulseone/pulseone/internal/pipeline"
	"github.com/pulseone/pulseone/internal/repository"
	"github.com/pulseone/pulseone/internal/store"
	"github.com/pulseone/pulseone/internal/telemetry"
	"github.com/pulseone/pulseone/internal/worker"
)

var configPath = flag.String("config", "", "path to config.yaml (optional; env and defaults apply regardless)")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pulseoned: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(&logging.Config{Level: parseLevel(cfg.Daemon.LogLevel)})
	logging.SetDefault(log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Errorf("fatal: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *logging.Logger) error {
	db, err := openStore(cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = db.Close() }()
	sqlStore := store.NewSQLStore(db)

	devices := repository.NewDeviceRepository(sqlStore, repoLogf(log, "device"))
	dataPoints := repository.NewDataPointRepository(sqlStore, repoLogf(log, "data_point"))
	currentValues := repository.NewCurrentValueRepository(sqlStore, repoLogf(log, "current_value"))

	consumer, closeConsumer := wireConsumer(cfg.Telemetry, log)
	if closeConsumer != nil {
		defer closeConsumer()
	}
	bridge := pipeline.New(consumer)
	bridge.Start(ctx)
	defer bridge.Stop()

	var statusPublisher worker.StatusPublisher
	if cfg.Telemetry.RedisAddr != "" {
		publisher, err := telemetry.NewRedisPublisher(cfg.Telemetry.RedisAddr)
		if err != nil {
			log.Warnf("telemetry: redis publisher disabled: %v", err)
		} else {
			defer func() { _ = publisher.Close() }()
			statusPublisher = publisher
		}
	}

	f := factory.New(factory.Dependencies{
		Devices:       devices,
		DataPoints:    dataPoints,
		CurrentValues: currentValues,
		Sink:          bridge,
		Publisher:     statusPublisher,
	})
	f.RegisterDefaults()

	recorder := metrics.NewRecorder()
	collector := metrics.NewCollector(recorder, 10*time.Second, f, bridge, map[string]metrics.CacheSource{
		"device":        devices.Cache(),
		"data_point":    dataPoints.Cache(),
		"current_value": currentValues.Cache(),
	})
	go collector.Run(ctx)

	if cfg.Daemon.WatchConfig && cfg.Daemon.ConfigPath != "" {
		watcher, err := config.NewWatcher(cfg.Daemon.ConfigPath, func(_ *config.Config, err error) {
			if err != nil {
				log.Warnf("config: reload failed: %v", err)
				return
			}
			log.Infof("config: reloaded from %s", cfg.Daemon.ConfigPath)
		})
		if err != nil {
			log.Warnf("config: watch disabled: %v", err)
		} else {
			defer func() { _ = watcher.Close() }()
		}
	}

	workers, errs := f.CreateAllActiveWorkers(ctx, 0)
	for _, werr := range errs {
		log.Warnf("factory: %v", werr)
	}
	log.Infof("started %d workers (%d failed)", len(workers), len(errs))

	for _, w := range workers {
		w := w
		if err := w.Start(ctx); err != nil {
			log.Errorf("worker %s: start failed: %v", w.ID(), err)
		}
	}

	if cfg.Daemon.MetricsAddr != "" {
		go serveHealth(ctx, cfg.Daemon.MetricsAddr, log)
	}

	<-ctx.Done()
	log.Infof("shutting down")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	for _, w := range workers {
		if err := w.Stop(stopCtx); err != nil {
			log.Warnf("worker %s: stop: %v", w.ID(), err)
		}
	}
	return nil
}

// openStore opens the *sql.DB behind internal/store.SQLStore. The
// driver name comes from config (spec §1 treats the SQL store as an
// external collaborator; this is the one place its concrete driver is
// named), defaulting to MySQL-compatible wire protocol the way the
// teacher's own daemon defaults to its bundled SQLite/Dolt backend when
// unconfigured.
func openStore(cfg config.StoreConfig) (*sql.DB, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "mysql"
	}
	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// wireConsumer picks the pipeline's downstream Consumer from telemetry
// config: an InfluxSink when an address is configured, otherwise a
// no-op sink, since spec §6 requires telemetry absence to never affect
// correctness.
func wireConsumer(cfg config.TelemetryConfig, log *logging.Logger) (pipeline.Consumer, func()) {
	if cfg.InfluxAddr == "" {
		return noopConsumer{}, nil
	}
	sink := telemetry.NewInfluxSink(cfg.InfluxAddr, cfg.InfluxToken, "pulseone", "pulseone")
	log.Infof("telemetry: influx sink writing to %s", cfg.InfluxAddr)
	return sink, sink.Close
}

type noopConsumer struct{}

func (noopConsumer) Consume(context.Context, *worker.DeviceDataMessage) {}

func repoLogf(log *logging.Logger, kind string) func(string, ...any) {
	l := log.With("repository").With(kind)
	return func(format string, args ...any) { l.Warnf(format, args...) }
}

func parseLevel(s string) logging.Level {
	switch s {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

// serveHealth exposes a minimal liveness endpoint on the configured
// metrics address. PulseOne's own OTel instruments export through
// whatever exporter the process is configured with (spec §6 scopes
// "HTTP/CLI glue" out of the core); this handler exists only so an
// orchestrator can probe the process is alive.
func serveHealth(ctx context.Context, addr string, log *logging.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Warnf("health endpoint: %v", err)
	}
}
