package sortmgr

import "testing"

func baseParams() Params {
	return Params{K: 21, LutPrefixLen: 6, MaxX: 3, BothStrands: true, CutoffMin: 2, CounterSize: 4}
}

func TestEstimateBytesPositive(t *testing.T) {
	p := baseParams()
	b := BinStats{BinID: 0, FileSize: 1 << 20, NRec: 10000, NPlusXRecs: 6000}
	got := EstimateBytes(p, b)
	if got <= 0 {
		t.Fatalf("EstimateBytes = %d, want > 0", got)
	}
}

func TestEstimateBytesGrowsWithSize(t *testing.T) {
	p := baseParams()
	small := EstimateBytes(p, BinStats{BinID: 0, FileSize: 1 << 10, NRec: 100, NPlusXRecs: 60})
	big := EstimateBytes(p, BinStats{BinID: 1, FileSize: 1 << 20, NRec: 100000, NPlusXRecs: 60000})
	if big <= small {
		t.Errorf("expected larger bin to need more bytes: small=%d big=%d", small, big)
	}
}

func TestPlanRunOrdersByDecreasingSizeAndDiverts(t *testing.T) {
	p := baseParams()
	bins := []BinStats{
		{BinID: 0, FileSize: 1 << 10, NRec: 100, NPlusXRecs: 60},
		{BinID: 1, FileSize: 1 << 26, NRec: 5_000_000, NPlusXRecs: 3_000_000},
		{BinID: 2, FileSize: 1 << 14, NRec: 1000, NPlusXRecs: 600},
	}
	plan := PlanRun(p, bins, 1<<20, 8)

	if len(plan.Diverted) != 1 || plan.Diverted[0].BinID != 1 {
		t.Fatalf("expected bin 1 diverted, got %+v", plan.Diverted)
	}
	if len(plan.Admitted) != 2 {
		t.Fatalf("expected 2 admitted bins, got %d", len(plan.Admitted))
	}
	if plan.Admitted[0].Bytes < plan.Admitted[1].Bytes {
		t.Errorf("admitted bins not in decreasing size order: %+v", plan.Admitted)
	}
}

func TestThreadMultiplierBounds(t *testing.T) {
	if got := ThreadMultiplier(100, 0, 8); got != 1 {
		t.Errorf("zero total should give 1 thread, got %d", got)
	}
	if got := ThreadMultiplier(1000, 1000, 8); got != 8 {
		t.Errorf("whole-share bin should get all threads, got %d", got)
	}
	if got := ThreadMultiplier(1, 1000, 8); got != 1 {
		t.Errorf("tiny-share bin should get at least 1 thread, got %d", got)
	}
}
