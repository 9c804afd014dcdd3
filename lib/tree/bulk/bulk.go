package bulk

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/samber/lo"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/benz9527/xtree/lib/infra"
	"github.com/benz9527/xtree/lib/tree"
	"github.com/benz9527/xtree/xlog"
)

// Loader applies the batches of values to a concurrent bst by a
// worker pool. The failures of the single values are not fatal, they
// are combined and returned after all submitted batches finished.
type Loader[T any] struct {
	bst     tree.XConcBST[T]
	pool    *ants.Pool
	batch   int
	logger  xlog.XLogger
	timeout time.Duration
}

type loaderCfg struct {
	poolSize int
	batch    int
	logger   xlog.XLogger
	timeout  time.Duration
}

type LoaderOption func(cfg *loaderCfg) error

func WithLoaderPoolSize(size int) LoaderOption {
	return func(cfg *loaderCfg) error {
		if size <= 0 {
			return infra.NewErrorStack("[x-conc-bst-bulk] non-positive pool size")
		}
		cfg.poolSize = size
		return nil
	}
}

func WithLoaderBatchSize(batch int) LoaderOption {
	return func(cfg *loaderCfg) error {
		if batch <= 0 {
			return infra.NewErrorStack("[x-conc-bst-bulk] non-positive batch size")
		}
		cfg.batch = batch
		return nil
	}
}

func WithLoaderLogger(logger xlog.XLogger) LoaderOption {
	return func(cfg *loaderCfg) error {
		cfg.logger = logger
		return nil
	}
}

// WithLoaderReleaseTimeout bounds the waiting of the workers exit in Release.
func WithLoaderReleaseTimeout(timeout time.Duration) LoaderOption {
	return func(cfg *loaderCfg) error {
		if timeout > 0 {
			cfg.timeout = timeout
		}
		return nil
	}
}

func NewLoader[T any](bst tree.XConcBST[T], opts ...LoaderOption) (*Loader[T], error) {
	if bst == nil {
		return nil, infra.NewErrorStack("[x-conc-bst-bulk] nil tree")
	}
	cfg := &loaderCfg{
		poolSize: 8,
		batch:    256,
		timeout:  3 * time.Second,
	}
	for _, o := range opts {
		if o == nil {
			continue
		}
		if err := o(cfg); err != nil {
			return nil, err
		}
	}

	poolOpts := []ants.Option{
		ants.WithPreAlloc(false),
	}
	if cfg.logger != nil {
		poolOpts = append(poolOpts, ants.WithLogger(xlog.NewAntsXLogger(cfg.logger)))
	}
	pool, err := ants.NewPool(cfg.poolSize, poolOpts...)
	if err != nil {
		return nil, infra.WrapErrorStackWithMessage(err, "[x-conc-bst-bulk] unable to create worker pool")
	}
	return &Loader[T]{
		bst:     bst,
		pool:    pool,
		batch:   cfg.batch,
		logger:  cfg.logger,
		timeout: cfg.timeout,
	}, nil
}

// InsertAll inserts the values concurrently. It returns the number of the
// inserted values and the combined errors, the duplicates are reported by
// tree.ErrXConcBSTDuplicateValue.
func (l *Loader[T]) InsertAll(ctx context.Context, values []T) (int64, error) {
	return l.apply(ctx, "insert", values, l.bst.Insert)
}

// DeleteAll deletes the values concurrently. The absent values are reported
// by tree.ErrXConcBSTNotFound.
func (l *Loader[T]) DeleteAll(ctx context.Context, values []T) (int64, error) {
	return l.apply(ctx, "delete", values, l.bst.Delete)
}

// apply stops submitting the batches once the ctx is done, the batches
// that have been submitted run to the end.
func (l *Loader[T]) apply(ctx context.Context, op string, values []T, fn func(val T) error) (int64, error) {
	if len(values) == 0 {
		return 0, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var (
		wg        sync.WaitGroup
		lock      sync.Mutex
		errs      error
		succeeded atomic.Int64
	)
	appendErr := func(err error) {
		lock.Lock()
		defer lock.Unlock()
		errs = multierr.Append(errs, err)
	}

	for _, chunk := range lo.Chunk(values, l.batch) {
		if err := ctx.Err(); err != nil {
			appendErr(err)
			break
		}
		chunk := chunk
		wg.Add(1)
		if err := l.pool.Submit(func() {
			defer wg.Done()
			for _, v := range chunk {
				if err := fn(v); err != nil {
					appendErr(fmt.Errorf("[x-conc-bst-bulk] %s %v: %w", op, v, err))
					continue
				}
				succeeded.Add(1)
			}
		}); err != nil {
			wg.Done()
			appendErr(err)
			break
		}
	}
	wg.Wait()

	if errs != nil && l.logger != nil {
		l.logger.Warn("[x-conc-bst-bulk] partial failure",
			zap.String("op", op),
			zap.Int("values", len(values)),
			zap.Int64("succeeded", succeeded.Load()),
			zap.Int("errors", len(multierr.Errors(errs))),
		)
	}
	return succeeded.Load(), errs
}

func (l *Loader[T]) Running() int {
	return l.pool.Running()
}

func (l *Loader[T]) Release() error {
	return l.pool.ReleaseTimeout(l.timeout)
}
