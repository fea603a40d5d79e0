package metrics

import (
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"lendboard/lending/fixedpoint"
	"lendboard/lending/health"
	"lendboard/lending/portfolio"
)

func usd(units uint64) fixedpoint.Amount {
	return fixedpoint.Known(new(uint256.Int).Mul(uint256.NewInt(units), fixedpoint.One))
}

func TestObserveEvaluation(t *testing.T) {
	m := newEngineMetrics()
	totals := portfolio.Totals{
		Limit:       usd(100),
		BorrowValue: usd(150),
		Included:    2,
		Pending:     1,
	}
	m.ObserveEvaluation(1, totals, health.Evaluate(totals), time.Millisecond)

	if got := testutil.ToFloat64(m.evaluations.WithLabelValues("1", "partial")); got != 1 {
		t.Fatalf("expected one partial evaluation, got %v", got)
	}
	if got := testutil.ToFloat64(m.entries.WithLabelValues("1", "exists")); got != 2 {
		t.Fatalf("expected two exists entries, got %v", got)
	}
	if got := testutil.ToFloat64(m.entries.WithLabelValues("1", "loading")); got != 1 {
		t.Fatalf("expected one loading entry, got %v", got)
	}
	if got := testutil.ToFloat64(m.overLimit.WithLabelValues("1")); got != 1 {
		t.Fatalf("expected over limit to be counted, got %v", got)
	}
	if got := testutil.CollectAndCount(m.usedLimit); got != 1 {
		t.Fatalf("expected one used limit series, got %d", got)
	}
}

func TestSnapshotsAndSubscribers(t *testing.T) {
	m := newEngineMetrics()
	m.RecordSnapshot(10, "stored")
	m.RecordSnapshot(10, "stored")
	m.RecordSnapshot(10, "duplicate")
	m.AddSubscribers(3)
	m.AddSubscribers(-1)

	if got := testutil.ToFloat64(m.snapshots.WithLabelValues("10", "stored")); got != 2 {
		t.Fatalf("unexpected stored count %v", got)
	}
	if got := testutil.ToFloat64(m.subscribers); got != 2 {
		t.Fatalf("unexpected subscriber gauge %v", got)
	}

	var nilMetrics *EngineMetrics
	nilMetrics.RecordSnapshot(1, "stored")
	nilMetrics.AddSubscribers(1)
}

func TestEngineRegistersOnce(t *testing.T) {
	if Engine() != Engine() {
		t.Fatalf("expected a single engine registry")
	}
}
