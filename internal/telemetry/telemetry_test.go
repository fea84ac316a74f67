package telemetry

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitDisabledInstallsNoop(t *testing.T) {
	t.Setenv("GLAC_OTEL_ENABLED", "")
	require.NoError(t, Init(context.Background(), "gitlab-artifact-cleaner", "test"))
	assert.False(t, Enabled())

	// Instruments from the no-op provider accept writes.
	c := Int64Counter(Meter(""), "glac.test.counter", "test", "1")
	c.Add(context.Background(), 1)
	Shutdown(context.Background())
}

func TestStdoutExportersWriteToExportWriter(t *testing.T) {
	t.Setenv("GLAC_OTEL_ENABLED", "true")
	t.Setenv("GLAC_OTEL_STDOUT", "true")
	t.Setenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	var buf bytes.Buffer
	orig := exportWriter
	exportWriter = &buf
	t.Cleanup(func() { exportWriter = orig })

	ctx := context.Background()
	require.NoError(t, Init(ctx, "gitlab-artifact-cleaner", "test"))
	_, span := Tracer("").Start(ctx, "cleaner.project")
	span.End()
	Int64Counter(Meter(""), "glac.test.export", "test", "1").Add(ctx, 1)
	Shutdown(ctx)

	assert.Contains(t, buf.String(), "cleaner.project")
	assert.Contains(t, buf.String(), "glac.test.export")
}

func TestExportWriterDefaultsToStderr(t *testing.T) {
	assert.Equal(t, os.Stderr, exportWriter)
}

func TestWrapTransportDisabled(t *testing.T) {
	t.Setenv("GLAC_OTEL_ENABLED", "")
	rt := &http.Transport{}
	assert.Same(t, rt, WrapTransport(rt))
	assert.Equal(t, http.DefaultTransport, WrapTransport(nil))
}

func TestWrapTransportEnabled(t *testing.T) {
	t.Setenv("GLAC_OTEL_ENABLED", "true")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	rt := WrapTransport(http.DefaultTransport)
	_, ok := rt.(*InstrumentedTransport)
	require.True(t, ok, "WrapTransport() = %T, want *InstrumentedTransport", rt)

	client := &http.Client{Transport: rt}
	for path, want := range map[string]int{"/ok": http.StatusOK, "/missing": http.StatusNotFound} {
		resp, err := client.Get(srv.URL + path)
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, want, resp.StatusCode, path)
	}
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "b", firstNonEmpty("", "b", "c"))
	assert.Equal(t, "", firstNonEmpty("", ""))
}
