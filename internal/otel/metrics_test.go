package otel

import (
	"context"
	"testing"

	"github.com/pbinitiative/zentask/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestRequestInstrumentsAreUsableBeforeSetup(t *testing.T) {
	assert.NotPanics(t, func() {
		RequestTotal.Add(context.Background(), 1)
		RequestDuration.Record(context.Background(), 12)
	})
}

func TestSetupOtelWithoutTracing(t *testing.T) {
	// when
	o, err := SetupOtel(config.Tracing{Name: "zentask-test"})
	require.NoError(t, err)
	defer o.Stop(context.Background())

	// then
	assert.Nil(t, o.tracerprovider)
	assert.Same(t, o.meterProvider, otel.GetMeterProvider())
	assert.NotPanics(t, func() {
		RequestTotal.Add(context.Background(), 1)
	})
}

func TestStopIsIdempotent(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	o := &Otel{meterProvider: sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))}

	o.Stop(context.Background())
	o.Stop(context.Background())

	assert.Nil(t, o.meterProvider)
	var rm metricdata.ResourceMetrics
	assert.Error(t, reader.Collect(context.Background(), &rm), "reader is shut down with its provider")
}
