// Package telemetry provides OpenTelemetry metrics for the sync agent,
// collected through the OTel SDK and exported in Prometheus format for
// scraping.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const (
	// DefaultServiceName is the default service name for telemetry
	DefaultServiceName = "feedsync-agent"
)

// Telemetry encapsulates the meter provider and the Prometheus registry
// backing it, and handles their lifecycle.
type Telemetry struct {
	meterProvider metric.MeterProvider
	registry      *prometheus.Registry
}

// Option is a function that configures the telemetry setup
type Option func(*telemetryConfig)

// telemetryConfig holds the configuration for creating telemetry
type telemetryConfig struct {
	enabled        bool
	serviceName    string
	serviceVersion string
}

// WithEnabled controls whether real providers are created. When false,
// a no-op meter provider is used and no registry exists.
func WithEnabled(enabled bool) Option {
	return func(tc *telemetryConfig) {
		tc.enabled = enabled
	}
}

// WithServiceName sets the service name attached to all metrics
func WithServiceName(name string) Option {
	return func(tc *telemetryConfig) {
		tc.serviceName = name
	}
}

// WithServiceVersion sets the service version attached to all metrics
func WithServiceVersion(version string) Option {
	return func(tc *telemetryConfig) {
		tc.serviceVersion = version
	}
}

// New creates and initializes a Telemetry instance. The caller is
// responsible for calling Shutdown when the process exits.
func New(ctx context.Context, opts ...Option) (*Telemetry, error) {
	cfg := &telemetryConfig{
		serviceName:    DefaultServiceName,
		serviceVersion: "unknown",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if !cfg.enabled {
		slog.Debug("Telemetry disabled, using no-op meter provider")
		return &Telemetry{meterProvider: noop.NewMeterProvider()}, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.serviceName),
			semconv.ServiceVersion(cfg.serviceVersion),
		),
		resource.WithHost(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(mp)

	slog.Info("Telemetry initialized",
		"service_name", cfg.serviceName,
		"service_version", cfg.serviceVersion)

	return &Telemetry{
		meterProvider: mp,
		registry:      registry,
	}, nil
}

// MeterProvider returns the configured meter provider
func (t *Telemetry) MeterProvider() metric.MeterProvider {
	return t.meterProvider
}

// Registry returns the Prometheus registry serving /metrics, or nil when
// telemetry is disabled.
func (t *Telemetry) Registry() *prometheus.Registry {
	return t.registry
}

// Shutdown flushes and stops the underlying providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if shutdownable, ok := t.meterProvider.(*sdkmetric.MeterProvider); ok {
		if err := shutdownable.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shut down meter provider: %w", err)
		}
	}
	return nil
}
