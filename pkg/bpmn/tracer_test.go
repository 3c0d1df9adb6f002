// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package bpmn

import (
	"strings"
	"testing"

	"github.com/pbinitiative/zentask/pkg/bpmn/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTracer(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tracerprovider := trace.NewTracerProvider(
		trace.WithSyncer(exporter),
	)
	origTracer := otel.GetTracerProvider()
	defer otel.SetTracerProvider(origTracer)
	otel.SetTracerProvider(tracerprovider)

	// the engine picks its tracer up when created
	engine := newStartedEngine(t)
	ctx, parent := tracerprovider.Tracer("test-tracer").Start(t.Context(), "parent-test-span")

	process, err := engine.Deploy(ctx, orderItemsProcess("traced").Parallel().MultiInstanceDone().EndEvent("").Done())
	require.NoError(t, err)
	instance, err := engine.StartProcessInstance(ctx, process, map[string]any{"orderItems": []string{"Tic", "Tac"}})
	require.NoError(t, err)
	tasks, err := engine.NewTaskQuery().ProcessInstanceKey(instance.Key).List(ctx)
	require.NoError(t, err)
	for _, task := range tasks {
		require.NoError(t, engine.CompleteTask(ctx, task.Key, nil))
	}
	stored, err := engine.FindProcessInstance(ctx, instance.Key)
	require.NoError(t, err)
	assert.Equal(t, runtime.ActivityStateCompleted, stored.State)

	parent.End()

	spans := exporter.GetSpans()
	taskSpans := 0
	for _, span := range spans {
		if span.SpanContext.SpanID() == parent.SpanContext().SpanID() {
			continue
		}
		assert.Equal(t, parent.SpanContext().TraceID(), span.Parent.TraceID())
		if strings.HasPrefix(span.Name, "task:") {
			taskSpans++
		}
	}
	assert.Len(t, spans, 4)
	assert.Equal(t, 2, taskSpans)
}
