package observability

// https://opentelemetry.io/docs/languages/go/exporters/

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/multierr"

	"github.com/benz9527/xtree/lib/infra"
)

type MetricsExporterType string

const (
	ConsoleExporter    MetricsExporterType = "console"
	PrometheusExporter MetricsExporterType = "prometheus"
	NoneExporter       MetricsExporterType = "none"
)

type ShutdownFunc func(ctx context.Context) error

func noopShutdown(context.Context) error { return nil }

func shutdownProvider(mp *metric.MeterProvider) ShutdownFunc {
	return func(ctx context.Context) error {
		return multierr.Combine(
			mp.ForceFlush(ctx),
			mp.Shutdown(ctx),
		)
	}
}

// Serves for test/dev environment.
func newConsoleMetricsExporter(interval, timeout time.Duration, opts ...stdoutmetric.Option) (ShutdownFunc, error) {
	exporter, err := stdoutmetric.New(opts...)
	if err != nil {
		return nil, err
	}
	mp := metric.NewMeterProvider(metric.WithReader(metric.NewPeriodicReader(
		exporter,
		metric.WithInterval(interval),
		metric.WithTimeout(timeout),
	)))
	otel.SetMeterProvider(mp)
	return shutdownProvider(mp), nil
}

// Serves for the product environment and fetch stats metrics by HTTP.
// The metrics are registered into the prometheus default registry.
func newPrometheusMetricsExporter() (ShutdownFunc, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, err
	}
	mp := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(mp)
	return shutdownProvider(mp), nil
}

type exporterCfg struct {
	interval time.Duration
	timeout  time.Duration
	stdout   []stdoutmetric.Option
}

type ExporterOption func(cfg *exporterCfg)

func WithExportInterval(interval, timeout time.Duration) ExporterOption {
	return func(cfg *exporterCfg) {
		if interval > 0 {
			cfg.interval = interval
		}
		if timeout > 0 {
			cfg.timeout = timeout
		}
	}
}

func WithConsoleOptions(opts ...stdoutmetric.Option) ExporterOption {
	return func(cfg *exporterCfg) {
		cfg.stdout = append(cfg.stdout, opts...)
	}
}

// NewMetricsExporter installs the exporter's meter provider as the otel
// global one. The returned shutdown flushes and stops it.
func NewMetricsExporter(typ MetricsExporterType, opts ...ExporterOption) (ShutdownFunc, error) {
	cfg := &exporterCfg{
		interval: 10 * time.Second,
		timeout:  5 * time.Second,
	}
	for _, o := range opts {
		if o != nil {
			o(cfg)
		}
	}
	switch typ {
	case ConsoleExporter:
		return newConsoleMetricsExporter(cfg.interval, cfg.timeout, cfg.stdout...)
	case PrometheusExporter:
		return newPrometheusMetricsExporter()
	case NoneExporter, "":
		return noopShutdown, nil
	default:
	}
	return nil, infra.NewErrorStack("[observability] unknown metrics exporter " + string(typ))
}
