package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorCountersByKind(t *testing.T) {
	c := NewCollector()

	c.IncDispatched("kline")
	c.IncDispatched("kline")
	c.IncDecodeError("aggTrade")
	c.IncUnknownFrame()

	if got := testutil.ToFloat64(c.dispatched.WithLabelValues("kline")); got != 2 {
		t.Fatalf("expected 2 kline dispatches, got %v", got)
	}
	if got := testutil.ToFloat64(c.decodeErrors.WithLabelValues("aggTrade")); got != 1 {
		t.Fatalf("expected 1 aggTrade decode error, got %v", got)
	}
	if got := testutil.ToFloat64(c.unknownFrames); got != 1 {
		t.Fatalf("expected 1 unknown frame, got %v", got)
	}
}

func TestRegistryGathers(t *testing.T) {
	c := NewCollector()
	c.IncFrames(3)

	families, err := c.Registry().Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	found := false
	for _, mf := range families {
		if mf.GetName() == "binstream_frames_in_total" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected binstream_frames_in_total in registry")
	}
}
