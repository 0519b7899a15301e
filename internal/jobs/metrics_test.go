package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	if err := m.Track("reports:snapshot:generate").End(nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	boom := errors.New("boom")
	if err := m.Track("reports:snapshot:generate").End(boom); !errors.Is(err, boom) {
		t.Fatalf("expected error to pass through, got %v", err)
	}

	if got := testutil.ToFloat64(m.runs.WithLabelValues("reports:snapshot:generate", "success")); got != 1 {
		t.Fatalf("expected 1 success, got %v", got)
	}
	if got := testutil.ToFloat64(m.failures.WithLabelValues("reports:snapshot:generate")); got != 1 {
		t.Fatalf("expected 1 failure, got %v", got)
	}
}

func TestAddWidgetsIgnoresEmptyBatches(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddWidgets("ok", 3)
	m.AddWidgets("failed", 0)

	if got := testutil.ToFloat64(m.widgets.WithLabelValues("ok")); got != 3 {
		t.Fatalf("expected 3 ok widgets, got %v", got)
	}

	var nilMetrics *Metrics
	nilMetrics.AddWidgets("ok", 1)
	if err := nilMetrics.Track("x").End(nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
