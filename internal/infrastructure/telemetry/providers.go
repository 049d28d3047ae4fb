// Package telemetry ships the traces, metrics and log records of an audit
// run to an OpenTelemetry collector. Each signal is optional; a signal that
// is off keeps the global no-op provider.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/stockaudit/internal/infrastructure/config"
	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// TracerName is the instrumentation scope of audit spans and instruments.
const TracerName = "stockaudit"

const (
	shutdownTimeout = 10 * time.Second
	// a run is short, the final flush on shutdown carries most points
	metricInterval = 30 * time.Second
)

// Config selects the signals exported by one audit process.
type Config struct {
	Traces         bool
	Metrics        bool
	Logs           bool
	Endpoint       string
	Insecure       bool
	SamplingRatio  float64
	ServiceName    string
	ServiceVersion string
}

// ConfigFrom maps the telemetry section of the job configuration.
func ConfigFrom(cfg config.TelemetryConfig, version string) Config {
	return Config{
		Traces:         cfg.Enabled,
		Metrics:        cfg.MetricsEnabled,
		Logs:           cfg.LogsEnabled,
		Endpoint:       cfg.CollectorEndpoint,
		Insecure:       cfg.Insecure,
		SamplingRatio:  cfg.SamplingRatio,
		ServiceName:    cfg.ServiceName,
		ServiceVersion: version,
	}
}

func (c Config) enabled() bool {
	return c.Traces || c.Metrics || c.Logs
}

// Providers owns the SDK providers started for the process.
type Providers struct {
	cfg    Config
	traces *sdktrace.TracerProvider
	meters *sdkmetric.MeterProvider
	logs   *sdklog.LoggerProvider
	logger *zap.Logger
}

// Setup starts an OTLP exporter for every enabled signal and installs the
// providers globally. Providers already started are shut down when a later
// one fails.
func Setup(ctx context.Context, cfg Config, logger *zap.Logger) (*Providers, error) {
	p := &Providers{cfg: cfg, logger: logger}
	if !cfg.enabled() {
		logger.Debug("Telemetry export disabled")
		return p, nil
	}

	res, err := newResource(cfg.ServiceName, cfg.ServiceVersion)
	if err != nil {
		return nil, err
	}

	start := []struct {
		on bool
		fn func(context.Context, *resource.Resource) error
	}{
		{cfg.Traces, p.startTraces},
		{cfg.Metrics, p.startMetrics},
		{cfg.Logs, p.startLogs},
	}
	for _, s := range start {
		if !s.on {
			continue
		}
		if err := s.fn(ctx, res); err != nil {
			return nil, errors.Join(err, p.Shutdown(context.Background()))
		}
	}

	logger.Info("Telemetry export started",
		zap.String("collector_endpoint", cfg.Endpoint),
		zap.Bool("traces", cfg.Traces),
		zap.Bool("metrics", cfg.Metrics),
		zap.Bool("logs", cfg.Logs),
		zap.Float64("sampling_ratio", cfg.SamplingRatio),
	)
	return p, nil
}

func (p *Providers) startTraces(ctx context.Context, res *resource.Resource) error {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(p.cfg.Endpoint)}
	if p.cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("create OTLP trace exporter: %w", err)
	}

	p.traces = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(newSampler(p.cfg.SamplingRatio)),
	)
	otel.SetTracerProvider(p.traces)
	return nil
}

func (p *Providers) startMetrics(ctx context.Context, res *resource.Resource) error {
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(p.cfg.Endpoint)}
	if p.cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("create OTLP metric exporter: %w", err)
	}

	p.meters = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(metricInterval))),
	)
	otel.SetMeterProvider(p.meters)
	return nil
}

func (p *Providers) startLogs(ctx context.Context, res *resource.Resource) error {
	opts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(p.cfg.Endpoint)}
	if p.cfg.Insecure {
		opts = append(opts, otlploggrpc.WithInsecure())
	}
	exporter, err := otlploggrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("create OTLP log exporter: %w", err)
	}

	p.logs = sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	)
	global.SetLoggerProvider(p.logs)
	return nil
}

// Meter returns the meter for audit instruments. It is a no-op meter when
// metrics are off.
func (p *Providers) Meter() metric.Meter {
	if p.meters == nil {
		return otel.GetMeterProvider().Meter(TracerName)
	}
	return p.meters.Meter(TracerName)
}

// Bridge returns a logger that writes to base and, when logs are exported,
// also ships records at or above level to the collector.
func (p *Providers) Bridge(base *zap.Logger, level zapcore.Level) *zap.Logger {
	if p.logs == nil {
		return base
	}
	otelCore, err := zapcore.NewIncreaseLevelCore(
		otelzap.NewCore(p.cfg.ServiceName, otelzap.WithLoggerProvider(p.logs)),
		level,
	)
	if err != nil {
		p.logger.Warn("Log export level rejected, logging locally only",
			zap.Stringer("level", level), zap.Error(err))
		return base
	}
	return zap.New(zapcore.NewTee(base.Core(), otelCore), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
}

// Shutdown flushes and stops every started provider. The log provider goes
// last so failures of the others can still be exported.
func (p *Providers) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	var errs []error
	if p.traces != nil {
		if err := p.traces.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer provider: %w", err))
		}
	}
	if p.meters != nil {
		if err := p.meters.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter provider: %w", err))
		}
	}
	if p.logs != nil {
		if err := p.logs.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown logger provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

func newSampler(ratio float64) sdktrace.Sampler {
	switch {
	case ratio >= 1.0:
		return sdktrace.AlwaysSample()
	case ratio <= 0.0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(ratio)
	}
}

func newResource(serviceName, serviceVersion string) (*resource.Resource, error) {
	if serviceVersion == "" {
		serviceVersion = "dev"
	}
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}
	return res, nil
}
