// Copyright 2025 mjanez
// SPDX-License-Identifier: Apache-2.0

// Package telemetry wires OpenTelemetry tracing for the harvest stages.
// All helpers degrade to no-op spans when the tracer was never
// initialized, so library code can create spans unconditionally.
package telemetry

import (
	"context"
	"runtime"

	log "github.com/sirupsen/logrus"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const DefaultTracingEndpoint = "127.0.0.1:4317"

var (
	tracer         trace.Tracer
	tracerProvider *sdktrace.TracerProvider
)

// SubSpanFromCtx starts a child span named after the calling function.
func SubSpanFromCtx(ctx context.Context) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(context.Background())
	}
	pc, _, _, _ := runtime.Caller(1)
	name := runtime.FuncForPC(pc).Name()
	return tracer.Start(ctx, name)
}

// SubSpanFromCtxWithName starts a child span with an explicit name.
func SubSpanFromCtxWithName(ctx context.Context, name string) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(context.Background())
	}
	return tracer.Start(ctx, name)
}

// InitTracer sets up the global tracer exporting to an OTLP endpoint.
func InitTracer(serviceName, endpoint string) {
	ctx := context.Background()

	res, err := resource.New(ctx,
		resource.WithAttributes(attribute.String("service.name", serviceName)),
	)
	if err != nil {
		log.Fatal(err)
	}

	client := otlptracegrpc.NewClient(
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	exporter, err := otlptrace.New(ctx, client)
	if err != nil {
		log.Fatal(err)
	}

	tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)
	tracer = tracerProvider.Tracer(serviceName)

	log.Infof("OpenTelemetry tracer initialized, sending traces to %s", endpoint)
}

// Shutdown flushes any pending spans.
func Shutdown() {
	if tracerProvider == nil {
		return
	}
	if err := tracerProvider.Shutdown(context.Background()); err != nil {
		log.Errorf("error shutting down tracer provider: %v", err)
	}
}
