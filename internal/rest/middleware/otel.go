// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pbinitiative/zentask/internal/appcontext"
	"github.com/pbinitiative/zentask/internal/config"
	otelint "github.com/pbinitiative/zentask/internal/otel"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconvV4 "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
)

const unmatchedRoute = "unmatched"

// countingBody counts the bytes the handler reads from the request body
type countingBody struct {
	io.ReadCloser
	read int64
	err  error
}

func (b *countingBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	b.read += int64(n)
	b.err = err
	return n, err
}

// countingWriter counts written bytes and injects the trace context into the response headers
type countingWriter struct {
	http.ResponseWriter
	ctx   context.Context
	props propagation.TextMapPropagator

	written     int64
	statusCode  int
	err         error
	wroteHeader bool
}

func (w *countingWriter) Write(p []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(p)
	w.written += int64(n)
	w.err = err
	return n, err
}

func (w *countingWriter) WriteHeader(statusCode int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.statusCode = statusCode
	w.props.Inject(w.ctx, propagation.HeaderCarrier(w.Header()))
	w.ResponseWriter.WriteHeader(statusCode)
}

// Opentelemetry returns middleware that will trace and meter incoming requests.
// Spans are named by the chi route pattern, so it must be mounted on a chi router.
func Opentelemetry(conf config.Config) func(next http.Handler) http.Handler {
	tracer := otel.GetTracerProvider().Tracer("http-request-middleware")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			props := otel.GetTextMapPropagator()
			ctx := props.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

			opts := []trace.SpanStartOption{
				trace.WithLinks(trace.LinkFromContext(r.Context())),
				trace.WithAttributes(semconvV4.NetAttributesFromHTTPRequest("tcp", r)...),
				trace.WithAttributes(semconvV4.EndUserAttributesFromHTTPRequest(r)...),
				trace.WithAttributes(transferHeaderAttributes(r, conf.Tracing.TransferHeaders)...),
				trace.WithSpanKind(trace.SpanKindServer),
			}
			if requestId, ok := appcontext.RequestIdFromContext(r.Context()); ok {
				opts = append(opts, trace.WithAttributes(otelint.RequestIdKey.String(requestId)))
			}
			ctx = withTransferHeaders(ctx, r, conf.Tracing.TransferHeaders)
			ctx, span := tracer.Start(ctx, r.Method, opts...)
			defer span.End()

			r = r.WithContext(ctx)
			// a nil body stays nil, handlers check for it
			var body *countingBody
			if r.Body != nil {
				body = &countingBody{ReadCloser: r.Body}
				r.Body = body
			}
			cw := &countingWriter{ResponseWriter: w, ctx: ctx, props: props}

			startTime := time.Now()
			next.ServeHTTP(cw, r)

			routePattern := unmatchedRoute
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				routePattern = rctx.RoutePattern()
			}
			span.SetName(r.Method + " " + routePattern)
			span.SetAttributes(semconvV4.HTTPServerAttributesFromHTTPRequest(conf.Tracing.Name, routePattern, r)...)

			var read int64
			var readErr error
			if body != nil {
				read, readErr = body.read, body.err
			}
			recordSpan(span, read, readErr, cw)
			recordMetrics(r, routePattern, cw, time.Since(startTime))
		})
	}
}

func recordMetrics(r *http.Request, routePattern string, cw *countingWriter, latency time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("path", routePattern),
		attribute.String("method", r.Method),
		attribute.Int("status", cw.statusCode),
	)
	ctx := r.Context()
	otelint.RequestTotal.Add(ctx, 1)
	otelint.RequestUriTotal.Add(ctx, 1, attrs)
	if r.ContentLength > 0 {
		otelint.RequestBodySize.Add(ctx, float64(r.ContentLength), attrs)
	}
	if cw.written > 0 {
		otelint.ResponseBodySize.Add(ctx, float64(cw.written), attrs)
	}
	otelint.RequestDuration.Record(ctx, float64(latency.Microseconds())/1000, attrs)
}

func recordSpan(span trace.Span, read int64, readErr error, cw *countingWriter) {
	var attributes []attribute.KeyValue
	if read > 0 {
		attributes = append(attributes, otelint.ReadBytesKey.Int64(read))
	}
	if readErr != nil && !errors.Is(readErr, io.EOF) {
		attributes = append(attributes, otelint.ReadErrorKey.String(readErr.Error()))
	}
	if cw.written > 0 {
		attributes = append(attributes, otelint.WroteBytesKey.Int64(cw.written))
	}
	if cw.statusCode > 0 {
		attributes = append(attributes, semconvV4.HTTPAttributesFromHTTPStatusCode(cw.statusCode)...)
		span.SetStatus(semconvV4.SpanStatusFromHTTPStatusCode(cw.statusCode))
	}
	if cw.err != nil && !errors.Is(cw.err, io.EOF) {
		span.RecordError(cw.err)
		attributes = append(attributes, otelint.WriteErrorKey.String(cw.err.Error()))
	}
	span.SetAttributes(attributes...)
}

// withTransferHeaders stores the configured headers in the context under otel.TransferHeaderKey
func withTransferHeaders(ctx context.Context, r *http.Request, transferHeaders []string) context.Context {
	for _, header := range transferHeaders {
		ctx = context.WithValue(ctx, otelint.TransferHeaderKey(header), r.Header.Get(header))
	}
	return ctx
}

func transferHeaderAttributes(r *http.Request, transferHeaders []string) []attribute.KeyValue {
	attributes := make([]attribute.KeyValue, len(transferHeaders))
	for i, header := range transferHeaders {
		attributes[i] = attribute.String(header, r.Header.Get(header))
	}
	return attributes
}
