// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestSetup_StdoutExporters(t *testing.T) {
	prevTP, prevMP := otel.GetTracerProvider(), otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetMeterProvider(prevMP)
	})

	var buf bytes.Buffer
	reg := prometheus.NewRegistry()
	shutdown, err := Setup(Options{
		ServiceName:   "assistant-test",
		TraceStdout:   true,
		MetricsStdout: true,
		Writer:        &buf,
		Registerer:    reg,
	})
	require.NoError(t, err)

	ctx := context.Background()
	_, span := otel.Tracer("telemetry.test").Start(ctx, "unit-span")
	span.End()

	counter, err := otel.Meter("telemetry.test").Int64Counter("unit_events")
	require.NoError(t, err)
	counter.Add(ctx, 3)

	families, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, f := range families {
		if f.GetName() == "unit_events_total" {
			found = true
		}
	}
	assert.True(t, found, "otel counter bridged to prometheus")

	require.NoError(t, shutdown(ctx))
	assert.Contains(t, buf.String(), "unit-span")
}
