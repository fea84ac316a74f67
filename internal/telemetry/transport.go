package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const httpScopeName = "github.com/steveyegge/gitlab-artifact-cleaner/http"

// InstrumentedTransport wraps an http.RoundTripper with OTel tracing and
// metrics. Every request gets a client span and is counted in glac.http.*
// metrics. Use WrapTransport to create one.
type InstrumentedTransport struct {
	inner    http.RoundTripper
	tracer   trace.Tracer
	requests metric.Int64Counter
	dur      metric.Float64Histogram
	errs     metric.Int64Counter
}

// WrapTransport returns rt decorated with OTel instrumentation. When
// telemetry is disabled, rt is returned as-is. A nil rt means
// http.DefaultTransport.
func WrapTransport(rt http.RoundTripper) http.RoundTripper {
	if rt == nil {
		rt = http.DefaultTransport
	}
	if !Enabled() {
		return rt
	}
	m := Meter(httpScopeName)
	dur, err := m.Float64Histogram("glac.http.request.duration",
		metric.WithDescription("GitLab API request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return rt
	}
	return &InstrumentedTransport{
		inner:    rt,
		tracer:   Tracer(httpScopeName),
		requests: Int64Counter(m, "glac.http.requests", "GitLab API requests sent", "{request}"),
		dur:      dur,
		errs:     Int64Counter(m, "glac.http.errors", "GitLab API requests that failed or returned non-2xx", "{request}"),
	}
}

// RoundTrip implements http.RoundTripper.
func (t *InstrumentedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	attrs := []attribute.KeyValue{
		attribute.String("http.request.method", req.Method),
		attribute.String("server.address", req.URL.Host),
	}
	ctx, span := t.tracer.Start(req.Context(), "gitlab."+req.Method,
		trace.WithAttributes(append(attrs, attribute.String("url.path", req.URL.Path))...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	defer span.End()
	start := time.Now()

	resp, err := t.inner.RoundTrip(req.WithContext(ctx))

	t.requests.Add(ctx, 1, metric.WithAttributes(attrs...))
	t.dur.Record(ctx, float64(time.Since(start).Milliseconds()), metric.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		t.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
		return nil, err
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		span.SetStatus(codes.Error, strconv.Itoa(resp.StatusCode))
		t.errs.Add(ctx, 1, metric.WithAttributes(append(attrs, attribute.Int("http.response.status_code", resp.StatusCode))...))
	}
	return resp, nil
}
