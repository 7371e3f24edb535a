package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsCountsByProcedureAndCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveRPC("candidate.list", "OK", 10*time.Millisecond)
	m.ObserveRPC("candidate.list", "OK", 20*time.Millisecond)
	m.ObserveRPC("candidate.getById", "NOT_FOUND", time.Millisecond)
	m.RateLimited("auth.register")
	m.Uploaded("photo", 1024)

	if got := testutil.ToFloat64(m.requests.WithLabelValues("candidate.list", "OK")); got != 2 {
		t.Fatalf("expected 2 ok calls, got %v", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues("candidate.getById", "NOT_FOUND")); got != 1 {
		t.Fatalf("expected 1 not found call, got %v", got)
	}
	if got := testutil.ToFloat64(m.uploadsBytes.WithLabelValues("photo")); got != 1024 {
		t.Fatalf("expected 1024 bytes, got %v", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveRPC("x", "OK", time.Second)
	m.RateLimited("x")
	m.Uploaded("x", 1)
}

func TestInitTracingWithoutEndpoint(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), "")
	if err != nil {
		t.Fatalf("InitTracing() error = %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error = %v", err)
	}
}
