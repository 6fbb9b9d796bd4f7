package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCollectorCountersIncrement(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ThroughputEvents.Add(3)
	c.WhalesTotal.Inc()
	c.DropsTotal.WithLabelValues("event_dispatcher").Inc()
	c.OverloadsTotal.WithLabelValues("event_dispatcher").Add(2)

	if v := counterValue(t, c.ThroughputEvents); v != 3 {
		t.Fatalf("ThroughputEvents = %v, want 3", v)
	}
	if v := counterValue(t, c.WhalesTotal); v != 1 {
		t.Fatalf("WhalesTotal = %v, want 1", v)
	}
}

func TestSystemSamplerPublishesToCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	s := NewSystemSampler()
	s.Sample()
	s.PublishTo(c)

	if s.HeapAllocBytes() == 0 {
		t.Fatal("expected non-zero heap allocation after Sample")
	}
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return m.GetCounter().GetValue()
}
