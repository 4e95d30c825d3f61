package catalog

import (
	"errors"
	"sync"
	"testing"
	"time"

	"tokokasir/backend/internal/domain"
)

func testProduct(id string, price int64, stock int) domain.Product {
	return domain.Product{ID: id, Name: "Produk " + id, Price: price, Stock: stock, Category: "makanan"}
}

func TestUpsertValidation(t *testing.T) {
	c := New()

	if err := c.Upsert(domain.Product{Name: "Tanpa ID", Price: 1000}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for missing id, got %v", err)
	}
	if err := c.Upsert(domain.Product{ID: "PRD-1", Name: "Murah", Price: -1}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for negative price, got %v", err)
	}
	if err := c.Upsert(domain.Product{ID: "PRD-1", Name: "Kosong", Price: 100, Stock: -5}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for negative stock, got %v", err)
	}
	if err := c.Upsert(testProduct("PRD-1", 3500, 10)); err != nil {
		t.Fatalf("valid upsert failed: %v", err)
	}
}

func TestUpsertReplacesMutableFields(t *testing.T) {
	c := New()
	if err := c.Upsert(testProduct("PRD-1", 3500, 10)); err != nil {
		t.Fatalf("insert: %v", err)
	}

	updated := testProduct("PRD-1", 4000, 7)
	updated.Name = "Indomie Goreng Jumbo"
	if err := c.Upsert(updated); err != nil {
		t.Fatalf("update: %v", err)
	}

	p, err := c.GetByID("PRD-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.Name != "Indomie Goreng Jumbo" || p.Price != 4000 || p.Stock != 7 {
		t.Fatalf("unexpected product after update: %+v", p)
	}
	if got := len(c.Snapshot()); got != 1 {
		t.Fatalf("expected 1 product after upsert, got %d", got)
	}
}

func TestBarcodeLookupAndUniqueness(t *testing.T) {
	c := New()
	a := testProduct("PRD-1", 3500, 10)
	a.Barcode = "8998866200011"
	if err := c.Upsert(a); err != nil {
		t.Fatalf("insert: %v", err)
	}

	p, err := c.GetByBarcode("8998866200011")
	if err != nil || p.ID != "PRD-1" {
		t.Fatalf("barcode lookup: got %+v, %v", p, err)
	}

	b := testProduct("PRD-2", 4000, 5)
	b.Barcode = "8998866200011"
	if err := c.Upsert(b); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for duplicate barcode, got %v", err)
	}

	// Re-pointing the barcode frees the old code.
	a.Barcode = "8993675113021"
	if err := c.Upsert(a); err != nil {
		t.Fatalf("rebind barcode: %v", err)
	}
	if _, err := c.GetByBarcode("8998866200011"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("old barcode should be gone, got %v", err)
	}
}

func TestListByCategoryKeepsInsertionOrder(t *testing.T) {
	c := New()
	first := testProduct("PRD-9", 1000, 1)
	second := testProduct("PRD-1", 2000, 1)
	third := testProduct("PRD-5", 3000, 1)
	third.Category = "minuman"
	for _, p := range []domain.Product{first, second, third} {
		if err := c.Upsert(p); err != nil {
			t.Fatalf("insert %s: %v", p.ID, err)
		}
	}

	all := c.ListByCategory("all")
	if len(all) != 3 || all[0].ID != "PRD-9" || all[1].ID != "PRD-1" || all[2].ID != "PRD-5" {
		t.Fatalf("unexpected order: %+v", all)
	}

	makanan := c.ListByCategory("makanan")
	if len(makanan) != 2 || makanan[0].ID != "PRD-9" || makanan[1].ID != "PRD-1" {
		t.Fatalf("unexpected category filter result: %+v", makanan)
	}
}

func TestDecrementStock(t *testing.T) {
	c := New()
	if err := c.Upsert(testProduct("PRD-1", 3500, 3)); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err := c.DecrementStock("PRD-1", 2); err != nil {
		t.Fatalf("decrement: %v", err)
	}
	if err := c.DecrementStock("PRD-1", 2); !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if stock, _ := c.StockOf("PRD-1"); stock != 1 {
		t.Fatalf("failed decrement must not mutate stock, got %d", stock)
	}
	if err := c.DecrementStock("PRD-404", 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestIncreaseAndSetStock(t *testing.T) {
	c := New()
	if err := c.Upsert(testProduct("PRD-1", 3500, 2)); err != nil {
		t.Fatal(err)
	}

	if err := c.IncreaseStock("PRD-1", 10); err != nil {
		t.Fatalf("increase: %v", err)
	}
	if stock, _ := c.StockOf("PRD-1"); stock != 12 {
		t.Fatalf("stock = %d, want 12", stock)
	}
	if err := c.IncreaseStock("PRD-1", 0); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for zero quantity, got %v", err)
	}
	if err := c.IncreaseStock("PRD-404", 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := c.SetStock("PRD-1", 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	if stock, _ := c.StockOf("PRD-1"); stock != 0 {
		t.Fatalf("stock = %d, want 0", stock)
	}
	if err := c.SetStock("PRD-1", -1); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for negative stock, got %v", err)
	}
}

func TestDecrementAllIsAtomic(t *testing.T) {
	c := New()
	if err := c.Upsert(testProduct("PRD-1", 3500, 10)); err != nil {
		t.Fatal(err)
	}
	if err := c.Upsert(testProduct("PRD-2", 4000, 1)); err != nil {
		t.Fatal(err)
	}

	err := c.DecrementAll(map[string]int{"PRD-1": 3, "PRD-2": 2})
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if stock, _ := c.StockOf("PRD-1"); stock != 10 {
		t.Fatalf("shortfall must leave all stocks untouched, PRD-1 has %d", stock)
	}

	if err := c.DecrementAll(map[string]int{"PRD-1": 3, "PRD-2": 1}); err != nil {
		t.Fatalf("decrement all: %v", err)
	}
	if stock, _ := c.StockOf("PRD-1"); stock != 7 {
		t.Fatalf("PRD-1 stock = %d, want 7", stock)
	}
	if stock, _ := c.StockOf("PRD-2"); stock != 0 {
		t.Fatalf("PRD-2 stock = %d, want 0", stock)
	}
}

func TestDecrementLastUnitRace(t *testing.T) {
	c := New()
	if err := c.Upsert(testProduct("PRD-1", 3500, 1)); err != nil {
		t.Fatal(err)
	}

	const racers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.DecrementAll(map[string]int{"PRD-1": 1}); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("exactly one racer should win the last unit, got %d", successes)
	}
	if stock, _ := c.StockOf("PRD-1"); stock != 0 {
		t.Fatalf("stock = %d, want 0", stock)
	}
}

func TestUpsertDuringDecrementAllDoesNotWedge(t *testing.T) {
	c := New()
	if err := c.Upsert(testProduct("PRD-1", 3500, 1<<30)); err != nil {
		t.Fatal(err)
	}
	if err := c.Upsert(testProduct("PRD-2", 4000, 1<<30)); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				p := testProduct("PRD-1", int64(3500+j), 1<<30)
				if err := c.Upsert(p); err != nil {
					t.Errorf("upsert: %v", err)
					return
				}
			}
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if err := c.DecrementAll(map[string]int{"PRD-1": 1, "PRD-2": 1}); err != nil {
					t.Errorf("decrement all: %v", err)
					return
				}
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("concurrent Upsert and DecrementAll did not finish; catalog locking is wedged")
	}

	if stock, _ := c.StockOf("PRD-2"); stock != 1<<30-8*200 {
		t.Fatalf("PRD-2 stock = %d, want %d", stock, 1<<30-8*200)
	}
}

func TestDecrementAllConcurrentDisjointAndOverlapping(t *testing.T) {
	c := New()
	for _, id := range []string{"PRD-1", "PRD-2", "PRD-3"} {
		if err := c.Upsert(testProduct(id, 1000, 1000)); err != nil {
			t.Fatal(err)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.DecrementAll(map[string]int{"PRD-1": 1, "PRD-2": 2})
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.DecrementAll(map[string]int{"PRD-2": 1, "PRD-3": 3})
		}()
	}
	wg.Wait()

	s1, _ := c.StockOf("PRD-1")
	s2, _ := c.StockOf("PRD-2")
	s3, _ := c.StockOf("PRD-3")
	if s1 != 900 || s2 != 700 || s3 != 700 {
		t.Fatalf("stocks after mixed decrements: %d %d %d, want 900 700 700", s1, s2, s3)
	}
}
