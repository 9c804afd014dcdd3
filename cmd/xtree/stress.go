package main

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/benz9527/xtree/lib/infra"
	"github.com/benz9527/xtree/lib/tree"
	"github.com/benz9527/xtree/lib/tree/bulk"
	"github.com/benz9527/xtree/observability"
	"github.com/benz9527/xtree/xlog"
)

type stressConfig struct {
	workers     int
	values      int
	deletes     int
	finds       int
	retryBudget int64
	metrics     string
	metricsAddr string
	interval    time.Duration
	logLevel    string
}

func (cfg *stressConfig) bindFlags(flags *pflag.FlagSet) {
	flags.IntVarP(&cfg.workers, "workers", "w", 8, "concurrent workers")
	flags.IntVarP(&cfg.values, "values", "n", 100_000, "values to insert")
	flags.IntVarP(&cfg.deletes, "deletes", "d", 50_000, "values to delete")
	flags.IntVar(&cfg.finds, "finds", 100_000, "guarded finds per round")
	flags.Int64Var(&cfg.retryBudget, "retry-budget", 0, "cas retry budget of a single operation, 0 means unbounded")
	flags.StringVar(&cfg.metrics, "metrics", string(observability.NoneExporter), "metrics exporter: console|prometheus|none")
	flags.StringVar(&cfg.metricsAddr, "metrics-addr", ":9464", "prometheus scrape address")
	flags.DurationVar(&cfg.interval, "metrics-interval", 5*time.Second, "console exporter interval")
	flags.StringVar(&cfg.logLevel, "log-level", "", "DEBUG|INFO|WARN|ERROR, XLOG_LVL by default")
}

func (cfg *stressConfig) validate() error {
	if cfg.workers <= 0 {
		return infra.NewErrorStack("workers must be positive")
	}
	if cfg.values <= 0 || cfg.deletes < 0 || cfg.finds < 0 {
		return infra.NewErrorStack("values must be positive, deletes and finds must be non-negative")
	}
	if cfg.deletes > cfg.values {
		cfg.deletes = cfg.values
	}
	return nil
}

func newStressCmd() *cobra.Command {
	cfg := &stressConfig{}
	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Run concurrent inserts, guarded finds and deletes against a tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return runStress(cmd.Context(), cfg)
		},
	}
	cfg.bindFlags(cmd.Flags())
	return cmd
}

func newLogger(cfg *stressConfig) xlog.XLogger {
	opts := []xlog.XLoggerOption{
		xlog.WithXLoggerEncoder(xlog.PlainText),
		xlog.WithXLoggerLevelEncoder(zapcore.CapitalColorLevelEncoder),
	}
	if len(cfg.logLevel) > 0 {
		opts = append(opts, xlog.WithXLoggerLevelName(cfg.logLevel))
	}
	return xlog.NewXLogger(opts...)
}

func newMetrics(lc fx.Lifecycle, cfg *stressConfig, logger xlog.XLogger) (observability.ShutdownFunc, error) {
	shutdown, err := observability.NewMetricsExporter(
		observability.MetricsExporterType(cfg.metrics),
		observability.WithExportInterval(cfg.interval, 0),
	)
	if err != nil {
		return nil, err
	}
	if _, err = observability.InitAppStats("stress"); err != nil {
		return nil, err
	}

	var srv *http.Server
	if observability.MetricsExporterType(cfg.metrics) == observability.PrometheusExporter {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv = &http.Server{Addr: cfg.metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if srv == nil {
				return nil
			}
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.ErrorStack(infra.WrapErrorStack(err), "metrics server stopped")
				}
			}()
			logger.Info("metrics server started", zap.String("addr", cfg.metricsAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			var err error
			if srv != nil {
				err = multierr.Append(err, srv.Shutdown(ctx))
			}
			return multierr.Append(err, shutdown(ctx))
		},
	})
	return shutdown, nil
}

func newTree(lc fx.Lifecycle, cfg *stressConfig, logger xlog.XLogger, _ observability.ShutdownFunc) (tree.XConcBST[int64], error) {
	bst, err := tree.NewXConcBST[int64](
		tree.WithXConcBSTLogger[int64](logger),
		tree.WithXConcBSTStats[int64]("stress"),
		tree.WithXConcBSTRetryBudget[int64](cfg.retryBudget),
		tree.WithXConcBSTNodePrewarm[int64](cfg.workers*64),
	)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return bst.Close()
		},
	})
	return bst, nil
}

func newLoader(lc fx.Lifecycle, cfg *stressConfig, logger xlog.XLogger, bst tree.XConcBST[int64]) (*bulk.Loader[int64], error) {
	loader, err := bulk.NewLoader[int64](bst,
		bulk.WithLoaderPoolSize(cfg.workers),
		bulk.WithLoaderBatchSize(1024),
		bulk.WithLoaderLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return loader.Release()
		},
	})
	return loader, nil
}

type stressRunner struct {
	cfg    *stressConfig
	logger xlog.XLogger
	bst    tree.XConcBST[int64]
	loader *bulk.Loader[int64]
}

func runStress(ctx context.Context, cfg *stressConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := newLogger(cfg)
	undo, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		logger.Logf(zapcore.InfoLevel, format, args...)
	}))
	defer undo()
	if err != nil {
		logger.Warn("unable to set GOMAXPROCS", zap.Error(err))
	}

	var runner stressRunner
	app := fx.New(
		fx.Supply(cfg),
		fx.Provide(
			func() xlog.XLogger { return logger },
			newMetrics,
			newTree,
			newLoader,
		),
		fx.WithLogger(func(logger xlog.XLogger) fxevent.Logger {
			return xlog.NewFxXLogger(logger)
		}),
		fx.Invoke(func(cfg *stressConfig, logger xlog.XLogger, bst tree.XConcBST[int64], loader *bulk.Loader[int64]) {
			runner = stressRunner{cfg: cfg, logger: logger, bst: bst, loader: loader}
		}),
	)
	if err = app.Err(); err != nil {
		return err
	}
	startCtx, cancel := context.WithTimeout(ctx, app.StartTimeout())
	defer cancel()
	if err = app.Start(startCtx); err != nil {
		return err
	}

	runErr := runner.run(ctx)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), app.StopTimeout())
	defer stopCancel()
	err = multierr.Combine(runErr, app.Stop(stopCtx))
	_ = logger.Sync()
	return err
}

func (r *stressRunner) run(ctx context.Context) error {
	values := lo.Shuffle(lo.Map(lo.Range(r.cfg.values), func(v int, _ int) int64 {
		return int64(v)
	}))

	begin := time.Now()
	inserted, err := r.loader.InsertAll(ctx, values)
	if err != nil {
		return err
	}
	r.logger.Info("inserted",
		zap.Int64("values", inserted),
		zap.Duration("cost", time.Since(begin)),
	)

	begin = time.Now()
	var (
		wg      sync.WaitGroup
		missing = make([]int64, r.cfg.workers)
	)
	wg.Add(r.cfg.workers + 1)
	for w := 0; w < r.cfg.workers; w++ {
		go func(w int) {
			defer wg.Done()
			rnd := rand.New(rand.NewSource(int64(w)))
			for i := 0; i < r.cfg.finds/r.cfg.workers; i++ {
				v := int64(rnd.Intn(r.cfg.values))
				g, err := r.bst.Find(v)
				if err != nil {
					missing[w]++
					continue
				}
				if g.Value() != v {
					r.logger.ErrorStack(infra.NewErrorStack("guarded value changed"), "find",
						zap.Int64("expected", v),
					)
				}
				g.Release()
			}
		}(w)
	}
	var (
		deleted   int64
		deleteErr error
	)
	go func() {
		defer wg.Done()
		deleted, deleteErr = r.loader.DeleteAll(ctx, values[:r.cfg.deletes])
	}()
	wg.Wait()
	if deleteErr != nil {
		return deleteErr
	}
	r.logger.Info("deleted while finding",
		zap.Int64("deleted", deleted),
		zap.Int64("missing", lo.Sum(missing)),
		zap.Duration("cost", time.Since(begin)),
	)

	if err = multierr.Combine(
		tree.OrderViolationValidate[int64](r.bst),
		tree.DuplicateViolationValidate[int64](r.bst),
	); err != nil {
		return err
	}
	r.bst.Reclaim()
	stats := r.bst.Stats()
	r.logger.Info("tree stats",
		zap.Int64("len", stats.Len),
		zap.Uint64("retired", stats.Retired),
		zap.Uint64("reclaimed", stats.Reclaimed),
		zap.Int64("pending", stats.Pending),
		zap.Uint64("casRetries", stats.CASRetries),
		zap.Uint64("relocated", stats.Relocated),
	)
	return nil
}
