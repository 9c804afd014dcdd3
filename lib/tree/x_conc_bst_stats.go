package tree

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	XConcBSTStatsName = "xtree/xbst"

	opInsert = "insert"
	opFind   = "find"
	opDelete = "delete"
	opPop    = "pop"
)

type xConcBSTStats struct {
	opCount       metric.Int64Counter
	length        metric.Int64ObservableGauge
	activeReaders metric.Int64ObservableGauge
	pending       metric.Int64ObservableGauge
	retired       metric.Int64ObservableCounter
	reclaimed     metric.Int64ObservableCounter
	casRetries    metric.Int64ObservableCounter
	relocated     metric.Int64ObservableCounter
}

func (stats *xConcBSTStats) recordOp(op string, err error) {
	if stats == nil {
		return
	}
	result := "ok"
	switch err {
	case nil:
	case ErrXConcBSTDuplicateValue:
		result = "duplicate"
	case ErrXConcBSTNotFound, ErrXConcBSTIsEmpty:
		result = "not_found"
	case ErrXConcBSTRetryExhausted:
		result = "retry_exhausted"
	default:
		result = "error"
	}
	as := attribute.NewSet(
		attribute.String("xbst.op", op),
		attribute.String("xbst.result", result),
	)
	stats.opCount.Add(context.Background(), 1, metric.WithAttributeSet(as))
}

func newXConcBSTStats[T any](ref *xConcBST[T], name string) *xConcBSTStats {
	meter := otel.Meter(fmt.Sprintf("%s/%s", XConcBSTStatsName, name))
	stats := &xConcBSTStats{
		opCount: lo.Must[metric.Int64Counter](meter.Int64Counter(
			"xbst.op.count",
			metric.WithDescription("The number of the tree operations by result."),
		)),
		length: lo.Must[metric.Int64ObservableGauge](meter.Int64ObservableGauge(
			"xbst.len",
			metric.WithDescription("The number of live elements."),
			metric.WithInt64Callback(func(ctx context.Context, ob metric.Int64Observer) error {
				ob.Observe(ref.Len())
				return nil
			}),
		)),
		activeReaders: lo.Must[metric.Int64ObservableGauge](meter.Int64ObservableGauge(
			"xbst.readers.active",
			metric.WithDescription("The number of pinned readers, including the unreleased guards."),
			metric.WithInt64Callback(func(ctx context.Context, ob metric.Int64Observer) error {
				ob.Observe(ref.ledger.active.Load())
				return nil
			}),
		)),
		pending: lo.Must[metric.Int64ObservableGauge](meter.Int64ObservableGauge(
			"xbst.nodes.pending",
			metric.WithDescription("The number of retired nodes waiting for the reclamation."),
			metric.WithInt64Callback(func(ctx context.Context, ob metric.Int64Observer) error {
				ob.Observe(ref.ledger.pending.Load())
				return nil
			}),
		)),
		retired: lo.Must[metric.Int64ObservableCounter](meter.Int64ObservableCounter(
			"xbst.nodes.retired",
			metric.WithDescription("The number of unlinked nodes handed to the reclamation ledger."),
			metric.WithInt64Callback(func(ctx context.Context, ob metric.Int64Observer) error {
				ob.Observe(int64(ref.ledger.retiredN.Load()))
				return nil
			}),
		)),
		reclaimed: lo.Must[metric.Int64ObservableCounter](meter.Int64ObservableCounter(
			"xbst.nodes.reclaimed",
			metric.WithDescription("The number of recycled nodes."),
			metric.WithInt64Callback(func(ctx context.Context, ob metric.Int64Observer) error {
				ob.Observe(int64(ref.ledger.reclaimedN.Load()))
				return nil
			}),
		)),
		casRetries: lo.Must[metric.Int64ObservableCounter](meter.Int64ObservableCounter(
			"xbst.cas.retries",
			metric.WithDescription("The number of restarts caused by lost compare-and-swap races."),
			metric.WithInt64Callback(func(ctx context.Context, ob metric.Int64Observer) error {
				ob.Observe(int64(ref.casRetries.Load()))
				return nil
			}),
		)),
		relocated: lo.Must[metric.Int64ObservableCounter](meter.Int64ObservableCounter(
			"xbst.nodes.relocated",
			metric.WithDescription("The number of deleted nodes with two children replaced by a successor copy."),
			metric.WithInt64Callback(func(ctx context.Context, ob metric.Int64Observer) error {
				ob.Observe(int64(ref.relocated.Load()))
				return nil
			}),
		)),
	}
	return stats
}
