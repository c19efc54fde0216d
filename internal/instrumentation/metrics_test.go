package instrumentation

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics backed by a manual reader so tests can
// inspect what was recorded.
func newTestMetrics(t *testing.T, detailedLabels bool) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp.Meter("test"), detailedLabels)
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}
	return m, reader
}

// counterTotal sums all data points of the named int64 counter.
func counterTotal(t *testing.T, reader *sdkmetric.ManualReader, name string) (int64, []metricdata.DataPoint[int64]) {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %s is not an int64 sum", name)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total, sum.DataPoints
		}
	}
	return 0, nil
}

func hasAttr(dp metricdata.DataPoint[int64], key, value string) bool {
	v, ok := dp.Attributes.Value(attribute.Key(key))
	return ok && v.Emit() == value
}

func TestMetrics_RecordHTTPRequest(t *testing.T) {
	m, reader := newTestMetrics(t, false)
	ctx := context.Background()

	m.RecordHTTPRequest(ctx, "GET", "/mcp", 200, 100*time.Millisecond)
	m.RecordHTTPRequest(ctx, "POST", "/random/probe", 404, 50*time.Millisecond)

	total, points := counterTotal(t, reader, "http_requests_total")
	if total != 2 {
		t.Fatalf("http_requests_total = %d, want 2", total)
	}
	foundOther := false
	for _, dp := range points {
		if hasAttr(dp, attrPath, "other") {
			foundOther = true
		}
	}
	if !foundOther {
		t.Error("expected unknown path to be normalized to \"other\"")
	}
}

func TestMetrics_RecordCalendarAPIRequest(t *testing.T) {
	m, reader := newTestMetrics(t, false)
	ctx := context.Background()

	m.RecordCalendarAPIRequest(ctx, "GET", 200, 10*time.Millisecond)
	m.RecordCalendarAPIRequest(ctx, "POST", 409, 10*time.Millisecond)
	m.RecordCalendarAPIRequest(ctx, "POST", 0, 10*time.Millisecond)

	total, points := counterTotal(t, reader, "calendar_api_requests_total")
	if total != 3 {
		t.Fatalf("calendar_api_requests_total = %d, want 3", total)
	}
	statuses := map[string]bool{}
	for _, dp := range points {
		v, _ := dp.Attributes.Value(attribute.Key(attrStatus))
		statuses[v.Emit()] = true
	}
	for _, want := range []string{"2xx", "4xx", "error"} {
		if !statuses[want] {
			t.Errorf("missing status label %q in %v", want, statuses)
		}
	}
}

func TestMetrics_RecordTokenRefresh(t *testing.T) {
	m, reader := newTestMetrics(t, false)
	ctx := context.Background()

	m.RecordTokenRefresh(ctx, "success")
	m.RecordTokenRefresh(ctx, "error")
	m.RecordTokenRefresh(ctx, "success")

	total, _ := counterTotal(t, reader, "oauth_token_refresh_total")
	if total != 3 {
		t.Errorf("oauth_token_refresh_total = %d, want 3", total)
	}
}

func TestMetrics_RecordIdempotencyRequest(t *testing.T) {
	m, reader := newTestMetrics(t, false)
	ctx := context.Background()

	m.RecordIdempotencyRequest(ctx, "create_event", "executed")
	m.RecordIdempotencyRequest(ctx, "create_event", "replayed")

	total, points := counterTotal(t, reader, "idempotency_requests_total")
	if total != 2 {
		t.Fatalf("idempotency_requests_total = %d, want 2", total)
	}
	for _, dp := range points {
		if !hasAttr(dp, attrOperation, "create_event") {
			t.Errorf("expected operation label on every point, got %v", dp.Attributes)
		}
	}
}

func TestMetrics_RecordToolInvocation_DetailedLabels(t *testing.T) {
	tests := []struct {
		name     string
		detailed bool
		wantCode bool
	}{
		{name: "basic labels", detailed: false, wantCode: false},
		{name: "detailed labels", detailed: true, wantCode: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, reader := newTestMetrics(t, tt.detailed)
			m.RecordToolInvocation(context.Background(), "create_event", StatusError, "CONFLICT", time.Second)

			total, points := counterTotal(t, reader, "mcp_tool_invocations_total")
			if total != 1 {
				t.Fatalf("mcp_tool_invocations_total = %d, want 1", total)
			}
			if got := hasAttr(points[0], attrErrorCode, "CONFLICT"); got != tt.wantCode {
				t.Errorf("error_code label present = %v, want %v", got, tt.wantCode)
			}
		})
	}
}

func TestMetrics_NilAndZeroAreNoOp(t *testing.T) {
	ctx := context.Background()
	recorders := []*Metrics{nil, {}}

	for _, m := range recorders {
		// Should not panic
		m.RecordHTTPRequest(ctx, "GET", "/mcp", 200, time.Millisecond)
		m.RecordCalendarAPIRequest(ctx, "GET", 200, time.Millisecond)
		m.RecordTokenRefresh(ctx, "success")
		m.RecordIdempotencyRequest(ctx, "delete_event", "executed")
		m.RecordStorageLockWait(ctx, "file", "idempotency.json", time.Millisecond, true)
		m.RecordToolInvocation(ctx, "list_events", StatusSuccess, "", time.Millisecond)
	}
}

func TestMetrics_FromProvider(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider, err := NewProvider(ctx, Config{
		ServiceName:     "test-service",
		ServiceVersion:  "1.0.0",
		Enabled:         true,
		MetricsExporter: "prometheus",
		TracingExporter: "none",
	})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	defer func() { _ = provider.Shutdown(ctx) }()

	metrics := provider.Metrics()
	if metrics == nil {
		t.Fatal("expected metrics to be non-nil")
	}

	// Should not panic
	metrics.RecordStorageLockWait(ctx, "file", "google-calendar-tokens.json", 5*time.Millisecond, true)
}
