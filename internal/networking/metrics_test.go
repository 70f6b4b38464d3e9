package networking

import "testing"

func TestDeliveryMetricsObserveAndForget(t *testing.T) {
	metrics := NewDeliveryMetrics()
	dropped := map[string]int{"track_sensor": 2}
	metrics.Observe("client-1", 128, dropped)

	bytes := metrics.BytesPerClient()
	if bytes["client-1"] != 128 {
		t.Fatalf("unexpected bytes recorded: %+v", bytes)
	}

	counts := metrics.DropCounts()
	if counts["track_sensor"] != 2 {
		t.Fatalf("unexpected drop counts: %+v", counts)
	}

	metrics.ForgetClient("client-1")
	if remaining := metrics.BytesPerClient(); len(remaining) != 0 {
		t.Fatalf("expected client removal, got %+v", remaining)
	}
}
