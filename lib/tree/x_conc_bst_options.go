package tree

import (
	"strings"

	"github.com/benz9527/xtree/lib/infra"
	"github.com/benz9527/xtree/xlog"
)

type XConcBSTOption[T any] func(*xConcBSTOptions[T]) error

type xConcBSTOptions[T any] struct {
	logger      xlog.XLogger
	statsName   string
	isStats     bool
	isDesc      bool
	retryBudget int64
	prewarm     int
}

func (opts *xConcBSTOptions[T]) comparator(cmp infra.Comparator[T]) infra.Comparator[T] {
	if !opts.isDesc {
		return cmp
	}
	return func(i, j T) int64 {
		return cmp(j, i)
	}
}

// WithXConcBSTDesc reverses the order of the elements.
func WithXConcBSTDesc[T any]() XConcBSTOption[T] {
	return func(opts *xConcBSTOptions[T]) error {
		opts.isDesc = true
		return nil
	}
}

func WithXConcBSTLogger[T any](logger xlog.XLogger) XConcBSTOption[T] {
	return func(opts *xConcBSTOptions[T]) error {
		if logger == nil {
			return infra.NewErrorStack("[x-conc-bst] nil logger")
		}
		opts.logger = logger
		return nil
	}
}

// WithXConcBSTStats enables the OpenTelemetry instruments.
// The meter name is "xtree/xbst/<name>".
func WithXConcBSTStats[T any](name string) XConcBSTOption[T] {
	return func(opts *xConcBSTOptions[T]) error {
		if len(strings.TrimSpace(name)) == 0 {
			name = "default"
		}
		opts.isStats = true
		opts.statsName = name
		return nil
	}
}

// WithXConcBSTRetryBudget bounds the restarts of a single operation caused
// by lost compare-and-swap races. The operation fails with
// ErrXConcBSTRetryExhausted once the budget is used up.
// Zero (default) means unbounded, the tree is lock-free but not wait-free.
func WithXConcBSTRetryBudget[T any](budget int64) XConcBSTOption[T] {
	return func(opts *xConcBSTOptions[T]) error {
		if budget < 0 {
			return infra.NewErrorStack("[x-conc-bst] negative retry budget")
		}
		opts.retryBudget = budget
		return nil
	}
}

// WithXConcBSTNodePrewarm puts n detached nodes into the node pool.
func WithXConcBSTNodePrewarm[T any](n int) XConcBSTOption[T] {
	return func(opts *xConcBSTOptions[T]) error {
		if n < 0 {
			return infra.NewErrorStack("[x-conc-bst] negative node prewarm size")
		}
		opts.prewarm = n
		return nil
	}
}
