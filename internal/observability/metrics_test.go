package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordSweep(t *testing.T) {
	before := testutil.ToFloat64(sweepRemovals.WithLabelValues("test_target"))

	RecordSweep("test_target", 3)
	RecordSweep("test_target", 0)

	if got := testutil.ToFloat64(sweepRemovals.WithLabelValues("test_target")) - before; got != 3 {
		t.Errorf("Expected 3 removals recorded, got %v", got)
	}
}

func TestTurnMetrics(t *testing.T) {
	before := testutil.ToFloat64(turnsTotal.WithLabelValues("test_flow", "success"))

	m := NewTurnMetrics("test_flow")
	m.StageStart("transcribe")
	m.StageEnd("transcribe", true)
	// Ending a stage that never started is ignored
	m.StageEnd("synthesize", false)
	m.Finish("success")

	if got := testutil.ToFloat64(turnsTotal.WithLabelValues("test_flow", "success")) - before; got != 1 {
		t.Errorf("Expected one finished turn, got %v", got)
	}
}

func TestGauges(t *testing.T) {
	SetActiveSessions(7)
	if got := testutil.ToFloat64(activeSessions); got != 7 {
		t.Errorf("Expected 7 active sessions, got %v", got)
	}

	RecordProviderCall("test_provider", "success", 10*time.Millisecond)
	if got := testutil.ToFloat64(providerCalls.WithLabelValues("test_provider", "success")); got < 1 {
		t.Errorf("Expected provider call counted, got %v", got)
	}
}
