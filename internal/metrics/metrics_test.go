package metrics

import (
	"testing"
)

func TestRegisterDefaultIdempotent(t *testing.T) {
	RegisterDefault()
	RegisterDefault()

	SegmentRecalculations.WithLabelValues("straight", "calculated").Inc()
	mfs, err := Registry.Gather()
	if err != nil { t.Fatalf("gather: %v", err) }
	var got float64
	for _, mf := range mfs {
		if mf.GetName() != "segment_recalculations_total" { continue }
		for _, m := range mf.GetMetric() { got += m.GetCounter().GetValue() }
	}
	if got < 1 { t.Fatalf("segment_recalculations_total = %v, want >= 1", got) }
}
