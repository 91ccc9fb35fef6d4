package middleware

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMetrics_Register(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics()
	if err := m.Register(reg); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := m.Register(reg); err == nil {
		t.Error("registering twice should fail")
	}
	if got := len(m.Collectors()); got != 5 {
		t.Errorf("Collectors() = %d, want 5", got)
	}
}

func TestMetrics_IncAuthFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics()
	if err := m.Register(reg); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	m.IncAuthFailures("missing")
	m.IncAuthFailures("invalid")
	m.IncAuthFailures("invalid")

	for reason, want := range map[string]float64{"missing": 1, "invalid": 2, "disabled": 0} {
		metric := findMetric(t, reg, MetricAuthFailures, map[string]string{"reason": reason})
		var got float64
		if metric != nil {
			got = metric.GetCounter().GetValue()
		}
		if got != want {
			t.Errorf("auth failures[%s] = %v, want %v", reason, got, want)
		}
	}
}

func TestMetrics_ObserveHTTPRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics()
	if err := m.Register(reg); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	m.ObserveHTTPRequest("GET", "/api/v1/matrix", "200", 0.02, 0, 4096)

	duration := findMetric(t, reg, MetricHTTPRequestDuration, map[string]string{"path": "/api/v1/matrix"})
	if duration == nil || duration.GetHistogram().GetSampleCount() != 1 {
		t.Fatalf("expected one duration sample, got %v", duration)
	}
	size := findMetric(t, reg, MetricHTTPResponseSizeBytes, map[string]string{"path": "/api/v1/matrix"})
	if size == nil || size.GetHistogram().GetSampleSum() != 4096 {
		t.Errorf("expected response size 4096, got %v", size)
	}
}
