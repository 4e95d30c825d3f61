package cart

import (
	"errors"
	"testing"

	"tokokasir/backend/internal/catalog"
	"tokokasir/backend/internal/domain"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c := catalog.New()
	seed := []domain.Product{
		{ID: "PRD-1", Name: "Indomie Goreng", Price: 3500, Stock: 5, Category: "makanan"},
		{ID: "PRD-2", Name: "Aqua 600ml", Price: 4000, Stock: 2, Category: "minuman"},
		{ID: "PRD-3", Name: "Teh Botol Sosro", Price: 5000, Stock: 0, Category: "minuman"},
	}
	for _, p := range seed {
		if err := c.Upsert(p); err != nil {
			t.Fatalf("seed %s: %v", p.ID, err)
		}
	}
	return c
}

func TestAddItemMergesAndSnapshotsPrice(t *testing.T) {
	cat := testCatalog(t)
	c := New(cat)

	if _, err := c.AddItem("PRD-1", 2); err != nil {
		t.Fatalf("add: %v", err)
	}
	line, err := c.AddItem("PRD-1", 1)
	if err != nil {
		t.Fatalf("second add: %v", err)
	}
	if line.Quantity != 3 || line.UnitPrice != 3500 || line.Name != "Indomie Goreng" {
		t.Fatalf("unexpected merged line: %+v", line)
	}
	if got := c.Subtotal(); got != 10500 {
		t.Fatalf("subtotal = %d, want 10500", got)
	}

	// Repricing the product must not touch the line already in the cart.
	if err := cat.Upsert(domain.Product{ID: "PRD-1", Name: "Indomie Goreng", Price: 4500, Stock: 5, Category: "makanan"}); err != nil {
		t.Fatalf("reprice: %v", err)
	}
	if got := c.Subtotal(); got != 10500 {
		t.Fatalf("subtotal after reprice = %d, want 10500", got)
	}
}

func TestAddItemClampsToStock(t *testing.T) {
	c := New(testCatalog(t))

	line, err := c.AddItem("PRD-2", 10)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if line.Quantity != 2 {
		t.Fatalf("quantity = %d, want clamp to 2", line.Quantity)
	}

	line, err = c.AddItem("PRD-2", 1)
	if err != nil {
		t.Fatalf("add at cap: %v", err)
	}
	if line.Quantity != 2 {
		t.Fatalf("quantity = %d, want to stay at 2", line.Quantity)
	}
}

func TestAddItemErrors(t *testing.T) {
	c := New(testCatalog(t))

	if _, err := c.AddItem("PRD-3", 1); !errors.Is(err, ErrOutOfStock) {
		t.Fatalf("expected ErrOutOfStock, got %v", err)
	}
	if _, err := c.AddItem("PRD-404", 1); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := c.AddItem("PRD-1", 0); !errors.Is(err, catalog.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestSetQuantity(t *testing.T) {
	c := New(testCatalog(t))
	if _, err := c.AddItem("PRD-1", 1); err != nil {
		t.Fatal(err)
	}

	if err := c.SetQuantity("PRD-1", 4); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got := c.ItemCount(); got != 4 {
		t.Fatalf("item count = %d, want 4", got)
	}

	if err := c.SetQuantity("PRD-1", 99); err != nil {
		t.Fatalf("set above stock: %v", err)
	}
	if got := c.ItemCount(); got != 5 {
		t.Fatalf("item count = %d, want clamp to 5", got)
	}

	if err := c.SetQuantity("PRD-1", 0); err != nil {
		t.Fatalf("set to zero: %v", err)
	}
	if !c.IsEmpty() {
		t.Fatal("setting quantity to zero should remove the line")
	}
	if err := c.SetQuantity("PRD-1", 1); !errors.Is(err, ErrNotInCart) {
		t.Fatalf("expected ErrNotInCart after removal, got %v", err)
	}
}

func TestRemoveAndClear(t *testing.T) {
	c := New(testCatalog(t))
	if _, err := c.AddItem("PRD-1", 1); err != nil {
		t.Fatal(err)
	}
	if _, err := c.AddItem("PRD-2", 1); err != nil {
		t.Fatal(err)
	}

	c.RemoveItem("PRD-1")
	// Removing a line that is already gone changes nothing.
	c.RemoveItem("PRD-1")
	c.RemoveItem("PRD-404")

	lines := c.Lines()
	if len(lines) != 1 || lines[0].ProductID != "PRD-2" {
		t.Fatalf("unexpected lines after remove: %+v", lines)
	}

	c.Clear()
	if !c.IsEmpty() || c.Subtotal() != 0 {
		t.Fatal("clear should empty the cart")
	}
}

func TestLinesKeepAddOrder(t *testing.T) {
	c := New(testCatalog(t))
	if _, err := c.AddItem("PRD-2", 1); err != nil {
		t.Fatal(err)
	}
	if _, err := c.AddItem("PRD-1", 1); err != nil {
		t.Fatal(err)
	}
	if _, err := c.AddItem("PRD-2", 1); err != nil {
		t.Fatal(err)
	}

	lines := c.Lines()
	if len(lines) != 2 || lines[0].ProductID != "PRD-2" || lines[1].ProductID != "PRD-1" {
		t.Fatalf("unexpected order: %+v", lines)
	}
}
