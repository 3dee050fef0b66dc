// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry installs the process-wide OpenTelemetry tracer and
// meter providers.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// DefaultMetricInterval is how often stdout metrics are exported.
const DefaultMetricInterval = 30 * time.Second

// Options selects exporters.
type Options struct {
	ServiceName string

	// TraceStdout writes finished spans to Writer.
	TraceStdout bool

	// MetricsStdout periodically writes OTel metrics to Writer.
	MetricsStdout  bool
	MetricInterval time.Duration

	// Writer receives stdout exports. Nil uses os.Stderr.
	Writer io.Writer

	// Registerer receives OTel instruments for /metrics. Nil uses the
	// Prometheus default registerer, next to the promauto metrics.
	Registerer prometheus.Registerer
}

// Shutdown flushes and stops the providers.
type Shutdown func(ctx context.Context) error

// Setup installs global tracer and meter providers and the W3C propagator.
//
// # Description
//
// Spans are always sampled and recorded; without TraceStdout they are not
// exported anywhere but still carry trace ids for log correlation. OTel
// metrics are always bridged into Prometheus.
//
// # Outputs
//
//   - Shutdown: Flushes exporters. Safe to call once.
//   - error: Non-nil when an exporter cannot be created.
func Setup(opts Options) (Shutdown, error) {
	if opts.ServiceName == "" {
		opts.ServiceName = "framework-assistant"
	}
	if opts.Writer == nil {
		opts.Writer = os.Stderr
	}
	if opts.Registerer == nil {
		opts.Registerer = prometheus.DefaultRegisterer
	}
	if opts.MetricInterval <= 0 {
		opts.MetricInterval = DefaultMetricInterval
	}
	res := resource.NewSchemaless(attribute.String("service.name", opts.ServiceName))

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	traceOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if opts.TraceStdout {
		exp, err := stdouttrace.New(stdouttrace.WithWriter(opts.Writer), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("telemetry: stdout trace exporter: %w", err)
		}
		traceOpts = append(traceOpts, sdktrace.WithBatcher(exp))
	}
	tp := sdktrace.NewTracerProvider(traceOpts...)

	promExp, err := otelprom.New(otelprom.WithRegisterer(opts.Registerer))
	if err != nil {
		_ = tp.Shutdown(context.Background())
		return nil, fmt.Errorf("telemetry: prometheus exporter: %w", err)
	}
	meterOpts := []sdkmetric.Option{sdkmetric.WithResource(res), sdkmetric.WithReader(promExp)}
	if opts.MetricsStdout {
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(opts.Writer))
		if err != nil {
			_ = tp.Shutdown(context.Background())
			return nil, fmt.Errorf("telemetry: stdout metric exporter: %w", err)
		}
		meterOpts = append(meterOpts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(opts.MetricInterval)),
		))
	}
	mp := sdkmetric.NewMeterProvider(meterOpts...)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}
