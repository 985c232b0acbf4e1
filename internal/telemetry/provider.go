package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// Config selects the OTLP collector endpoint. When Enabled is false the
// provider hands out instruments from the global (no-op) meter.
type Config struct {
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`
	Environment    string `mapstructure:"environment"`
	CollectorURL   string `mapstructure:"collector_url"`
	Enabled        bool   `mapstructure:"enabled"`
}

// Provider owns the meter provider and the warehouse instrument set.
type Provider struct {
	MeterProvider *metric.MeterProvider
	Metrics       *Metrics
}

// NewProvider builds an OTLP-backed meter provider, or a no-op one when
// telemetry is disabled.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		m, err := NewMetrics(otel.Meter("warehouse"))
		if err != nil {
			return nil, err
		}
		return &Provider{Metrics: m}, nil
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}
	exp, err := otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpointURL(cfg.CollectorURL))
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}
	mp := metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(metric.NewPeriodicReader(exp, metric.WithInterval(30*time.Second))),
	)
	otel.SetMeterProvider(mp)
	m, err := NewMetrics(mp.Meter("warehouse"))
	if err != nil {
		return nil, err
	}
	return &Provider{MeterProvider: mp, Metrics: m}, nil
}

// Shutdown flushes and stops the meter provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.MeterProvider == nil {
		return nil
	}
	return p.MeterProvider.Shutdown(ctx)
}
