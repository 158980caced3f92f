package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"

	"github.com/AntonStoeckl/library-circulation-go/circulation/oteladapters"
	"github.com/AntonStoeckl/library-circulation-go/circulation/postgresengine"
	"github.com/AntonStoeckl/library-circulation-go/circulation/promadapters"
	"github.com/AntonStoeckl/library-circulation-go/config"
)

const instrumentationName = "circulationctl"

var jsonOutput = jsoniter.ConfigCompatibleWithStandardLibrary

// app holds what the subcommands share. It is populated in the root command's PersistentPreRunE.
type app struct {
	out      io.Writer
	cfg      config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *promadapters.MetricsCollector
	engine   *postgresengine.Engine
	closeDB  func()
}

func (a *app) setUp(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = promadapters.NewMetricsCollector(a.registry)

	engine, closeDB, err := openEngine(ctx, cfg,
		postgresengine.WithLogger(a.logger),
		postgresengine.WithMetrics(a.metrics),
		postgresengine.WithTracing(oteladapters.NewTracingCollector(otel.Tracer(instrumentationName))),
		postgresengine.WithLoanPeriod(cfg.LoanPeriod),
		postgresengine.WithLockTimeout(cfg.LockTimeout),
	)
	if err != nil {
		return err
	}

	a.engine = engine
	a.closeDB = closeDB

	return nil
}

func (a *app) tearDown() {
	if a.closeDB != nil {
		a.closeDB()
	}
}

func (a *app) print(v any) error {
	encoder := jsonOutput.NewEncoder(a.out)
	encoder.SetIndent("", "  ")

	return encoder.Encode(v)
}

// openEngine connects with the configured driver. The returned func closes the connections.
func openEngine(ctx context.Context, cfg config.Config, options ...postgresengine.Option) (*postgresengine.Engine, func(), error) {
	switch cfg.Driver {
	case config.DriverSQLDB:
		db, err := config.OpenSQLDB(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}

		engine, err := postgresengine.NewEngineFromSQLDB(db, options...)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}

		return engine, func() { _ = db.Close() }, nil

	case config.DriverSQLXDB:
		db, err := config.OpenSQLX(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}

		engine, err := postgresengine.NewEngineFromSQLX(db, options...)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}

		return engine, func() { _ = db.Close() }, nil

	case config.DriverPGXPool:
		pool, err := config.OpenPGXPool(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}

		if !cfg.HasReplica() {
			engine, engineErr := postgresengine.NewEngineFromPGXPool(pool, options...)
			if engineErr != nil {
				pool.Close()
				return nil, nil, engineErr
			}

			return engine, pool.Close, nil
		}

		replica, err := config.OpenPGXPool(ctx, cfg.ReplicaDSN)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}

		closeAll := func() {
			replica.Close()
			pool.Close()
		}

		engine, err := postgresengine.NewEngineFromPGXPoolAndReplica(pool, replica, options...)
		if err != nil {
			closeAll()
			return nil, nil, err
		}

		return engine, closeAll, nil

	default:
		return nil, nil, errors.Join(config.ErrUnsupportedDriver, errors.New(cfg.Driver))
	}
}
