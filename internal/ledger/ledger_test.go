package ledger

import (
	"testing"
	"time"

	"tokokasir/backend/internal/domain"
)

func saleAt(id string, ts time.Time, total int64) domain.SaleRecord {
	return domain.SaleRecord{
		ID:        id,
		StoreID:   "toko-1",
		Lines:     []domain.SaleLine{{ProductID: "PRD-1", ProductName: "Indomie Goreng", UnitPrice: 3500, Quantity: 1}},
		Subtotal:  total,
		Total:     total,
		CreatedAt: ts,
	}
}

func TestAppendKeepsOrder(t *testing.T) {
	l := New()
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	l.Append(saleAt("TRX-1", base, 1000))
	l.Append(saleAt("TRX-2", base.Add(time.Minute), 2000))
	l.Append(saleAt("TRX-3", base.Add(2*time.Minute), 3000))

	if l.Len() != 3 {
		t.Fatalf("len = %d, want 3", l.Len())
	}
	all := l.All()
	if all[0].ID != "TRX-1" || all[1].ID != "TRX-2" || all[2].ID != "TRX-3" {
		t.Fatalf("unexpected order: %+v", all)
	}
}

func TestRecordsAreCloned(t *testing.T) {
	l := New()
	rec := saleAt("TRX-1", time.Now(), 3500)
	l.Append(rec)

	// Mutating the caller's copy or the returned copy must not leak in.
	rec.Lines[0].Quantity = 99
	got := l.All()
	got[0].Lines[0].ProductName = "tampered"

	again := l.All()
	if again[0].Lines[0].Quantity != 1 || again[0].Lines[0].ProductName != "Indomie Goreng" {
		t.Fatalf("ledger record was mutated through a shared slice: %+v", again[0].Lines[0])
	}
}

func TestQueryAndSince(t *testing.T) {
	l := New()
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	l.Append(saleAt("TRX-1", base, 1000))
	l.Append(saleAt("TRX-2", base.Add(time.Hour), 9000))
	l.Append(saleAt("TRX-3", base.Add(2*time.Hour), 5000))

	big := l.Query(func(rec domain.SaleRecord) bool { return rec.Total >= 5000 })
	if len(big) != 2 || big[0].ID != "TRX-2" || big[1].ID != "TRX-3" {
		t.Fatalf("unexpected query result: %+v", big)
	}

	recent := l.Since(base.Add(time.Hour))
	if len(recent) != 2 || recent[0].ID != "TRX-2" {
		t.Fatalf("unexpected since result: %+v", recent)
	}
}

func TestGet(t *testing.T) {
	l := New()
	l.Append(saleAt("TRX-1", time.Now(), 3500))

	if _, ok := l.Get("TRX-404"); ok {
		t.Fatal("expected miss for unknown id")
	}
	rec, ok := l.Get("TRX-1")
	if !ok || rec.Total != 3500 {
		t.Fatalf("get TRX-1: %+v, %v", rec, ok)
	}
}
