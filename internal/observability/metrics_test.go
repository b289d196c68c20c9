package observability

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel"

	"github.com/aaleta/C72h-whiteworms/internal/logging"
)

func TestCollector_ObserveTrial(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	c.ObserveTrial(true, 120, 0.4, 5*time.Millisecond)
	c.ObserveTrial(true, 80, 0.6, 3*time.Millisecond)
	c.ObserveTrial(false, 1000, 0.1, time.Second)

	if got := testutil.ToFloat64(c.Trials.WithLabelValues(OutcomeAbsorbed)); got != 2 {
		t.Errorf("absorbed trials = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.Trials.WithLabelValues(OutcomeTruncated)); got != 1 {
		t.Errorf("truncated trials = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(c.ProtectedFraction); got != 1 {
		t.Errorf("protected fraction collectors = %d, want 1", got)
	}
}

func TestCollector_RegisterTwiceReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	second, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("second NewCollector: %v", err)
	}
	second.ObserveTrial(true, 1, 1, time.Millisecond)
	if got := testutil.ToFloat64(first.Trials.WithLabelValues(OutcomeAbsorbed)); got != 1 {
		t.Errorf("shared counter = %v, want 1", got)
	}
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector
	c.ObserveTrial(true, 1, 0.5, time.Millisecond)
	c.SetNetworkNodes(10)
}

func TestCollector_HandlerExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	c.SetNetworkNodes(10000)
	c.ObserveTrial(true, 10, 0.5, time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		"whiteworms_trials_total",
		"whiteworms_network_nodes 10000",
		"whiteworms_trial_duration_seconds_bucket",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestInitTracing_DisabledIsNoop(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{}, logging.Discard())
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	_, span := otel.Tracer("test").Start(context.Background(), "noop")
	if span.SpanContext().IsValid() {
		t.Error("noop provider should produce invalid span contexts")
	}
	span.End()
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestInitTracing_StdoutExporter(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := InitTracing(context.Background(), TracingConfig{
		Enabled:  true,
		Exporter: "stdout",
		Writer:   &buf,
	}, logging.Discard())
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	t.Cleanup(func() {
		_, _ = InitTracing(context.Background(), TracingConfig{}, logging.Discard())
	})

	_, span := otel.Tracer("test").Start(context.Background(), "montecarlo.run")
	span.End()
	ShutdownWithTimeout(context.Background(), shutdown, logging.Discard())

	if !strings.Contains(buf.String(), "montecarlo.run") {
		t.Errorf("expected span in exporter output, got %q", buf.String())
	}
}

func TestInitTracing_UnknownExporter(t *testing.T) {
	_, err := InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: "zipkin"}, logging.Discard())
	if err == nil {
		t.Fatal("expected error for unsupported exporter")
	}
}
