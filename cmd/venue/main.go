package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/uhyunpark/matchcore/params"
	"github.com/uhyunpark/matchcore/pkg/aggregate"
	"github.com/uhyunpark/matchcore/pkg/api"
	"github.com/uhyunpark/matchcore/pkg/bus"
	"github.com/uhyunpark/matchcore/pkg/loadgen"
	"github.com/uhyunpark/matchcore/pkg/metrics"
	"github.com/uhyunpark/matchcore/pkg/projection"
	"github.com/uhyunpark/matchcore/pkg/sequence"
	"github.com/uhyunpark/matchcore/pkg/sink"
	"github.com/uhyunpark/matchcore/pkg/storage"
	"github.com/uhyunpark/matchcore/pkg/util"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("")

	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Log.File != "" {
		logger, err = util.NewLoggerWithFile(cfg.Log.File, cfg.Log.Level)
	} else {
		logger, err = util.NewLogger(cfg.Log.Level)
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Log.File, "level", cfg.Log.Level)

	// ---- Metrics ----
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(promReg)

	// ---- Read model ----
	store, err := openStore(cfg.Projection)
	if err != nil {
		sugar.Fatalw("projection_store_failed", "backend", cfg.Projection.Backend, "err", err)
	}
	proj := projection.New(store, sugar.Named("projection"), m)
	sugar.Infow("projection_ready", "backend", cfg.Projection.Backend)

	// ---- Event sinks ----
	listeners := []aggregate.Listener{proj}
	var closers []io.Closer

	if cfg.Sinks.JournalFile != "" {
		j, err := storage.NewJournal(cfg.Sinks.JournalFile, sugar.Named("journal"))
		if err != nil {
			sugar.Fatalw("journal_open_failed", "path", cfg.Sinks.JournalFile, "err", err)
		}
		listeners = append(listeners, j)
		closers = append(closers, j)
		sugar.Infow("journal_enabled", "path", cfg.Sinks.JournalFile)
	}
	if len(cfg.Sinks.KafkaBrokers) > 0 {
		k := sink.NewKafka(cfg.Sinks.KafkaBrokers, cfg.Sinks.KafkaTopic, sugar.Named("kafka"))
		listeners = append(listeners, k)
		closers = append(closers, k)
		sugar.Infow("kafka_enabled", "brokers", cfg.Sinks.KafkaBrokers, "topic", cfg.Sinks.KafkaTopic)
	}

	// ---- Instruments and routing ----
	registry := aggregate.NewRegistry(aggregate.Config{
		IDs:     sequence.New(0),
		Clock:   util.RealClock{},
		Logger:  sugar.Named("book"),
		Metrics: m,
	}, listeners...)

	router := bus.NewRouter(registry, bus.Config{
		Concurrency: cfg.Router.Concurrency,
		Logger:      sugar.Named("bus"),
		Metrics:     m,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Load generator (optional) ----
	// Enable with: ENABLE_LOADGEN=true LOADGEN_MODE=steady|burst
	feederDone := make(chan struct{})
	feederCtx, cancelFeeder := context.WithCancel(ctx)
	if cfg.LoadGen.Enabled {
		fcfg := loadgen.ConfigForMode(cfg.LoadGen.Mode, cfg.LoadGen.Instruments)
		feeder := loadgen.NewFeeder(router, fcfg, sugar.Named("loadgen"))
		go func() {
			defer close(feederDone)
			feeder.Run(feederCtx)
		}()
	} else {
		close(feederDone)
		sugar.Info("loadgen_disabled")
	}

	// ---- API Server ----
	apiServer := api.NewServer(cfg.API, api.Deps{
		Bus:        router,
		Registry:   registry,
		Projection: proj,
		Gatherer:   promReg,
		Logger:     sugar.Named("api"),
	})

	serveErr := make(chan error, 1)
	go func() {
		if err := apiServer.Start(cfg.API.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	sugar.Infow("venue_started",
		"api_addr", cfg.API.Addr,
		"concurrency", cfg.Router.Concurrency,
		"loadgen", cfg.LoadGen.Enabled)

	select {
	case <-ctx.Done():
		sugar.Info("shutdown_requested")
	case err := <-serveErr:
		sugar.Errorw("api_server_failed", "err", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	cancelFeeder()
	<-feederDone

	err = apiServer.Shutdown(shutdownCtx)
	err = multierr.Append(err, router.Close(shutdownCtx))
	registry.Close()
	for _, c := range closers {
		err = multierr.Append(err, c.Close())
	}
	err = multierr.Append(err, proj.Close())

	if err != nil {
		for _, e := range multierr.Errors(err) {
			sugar.Errorw("shutdown_error", "err", e)
		}
		os.Exit(1)
	}
	sugar.Info("venue_stopped")
}

func openStore(cfg params.Projection) (projection.Store, error) {
	switch cfg.Backend {
	case "pebble":
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, err
		}
		return storage.NewPebbleStore(cfg.Path)
	case "memory", "":
		return projection.NewMemoryStore(cfg.Shards), nil
	default:
		return nil, errors.New("unknown projection backend " + cfg.Backend)
	}
}
