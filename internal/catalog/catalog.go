package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"tokokasir/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("product not found")
	ErrValidation        = errors.New("invalid product")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Catalog holds every sellable product for one store. Stock mutations
// are serialized per product: each entry carries its own lock, so
// checkouts touching disjoint products never contend with each other.
type Catalog struct {
	mu        sync.RWMutex
	entries   map[string]*entry
	byBarcode map[string]string
	order     []string
}

type entry struct {
	mu      sync.Mutex
	product domain.Product
}

func New() *Catalog {
	return &Catalog{
		entries:   make(map[string]*entry),
		byBarcode: make(map[string]string),
	}
}

// NewSeeded returns a catalog preloaded with the demo assortment.
func NewSeeded() *Catalog {
	c := New()
	seed := []domain.Product{
		{ID: "PRD-001", Name: "Indomie Goreng", Price: 3500, Stock: 120, Category: "makanan", Barcode: "8998866200011"},
		{ID: "PRD-002", Name: "Aqua 600ml", Price: 4000, Stock: 150, Category: "minuman", Barcode: "8993675113021"},
		{ID: "PRD-003", Name: "Beras Rojo Lele 5kg", Price: 60000, Stock: 25, Category: "sembako", Barcode: "8997011320056"},
		{ID: "PRD-004", Name: "Minyak Goreng Bimoli 1L", Price: 25000, Stock: 40, Category: "sembako", Barcode: "8992628063227"},
		{ID: "PRD-005", Name: "Teh Botol Sosro", Price: 5000, Stock: 80, Category: "minuman", Barcode: "8998009010015"},
		{ID: "PRD-006", Name: "Roti Tawar Sari Roti", Price: 17800, Stock: 30, Category: "makanan", Barcode: "8992907651041"},
		{ID: "PRD-007", Name: "Sabun Mandi Lifebuoy", Price: 7400, Stock: 60, Category: "kebersihan", Barcode: "8999999537791"},
		{ID: "PRD-008", Name: "Kopi Kapal Api Sachet", Price: 2600, Stock: 200, Category: "minuman", Barcode: "8996001410023"},
		{ID: "PRD-009", Name: "Gula Pasir 1kg", Price: 17400, Stock: 45, Category: "sembako", Barcode: "8997212800018"},
		{ID: "PRD-010", Name: "Keripik Singkong Qtela", Price: 12800, Stock: 55, Category: "makanan", Barcode: "8993175535886"},
	}
	for _, p := range seed {
		// Seed data is known-valid; an error here is a programming bug.
		if err := c.Upsert(p); err != nil {
			panic(fmt.Sprintf("catalog seed: %v", err))
		}
	}
	return c
}

func validate(p domain.Product) error {
	if strings.TrimSpace(p.ID) == "" || strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: id and name are required", ErrValidation)
	}
	if p.Price < 0 {
		return fmt.Errorf("%w: price must not be negative", ErrValidation)
	}
	if p.Stock < 0 {
		return fmt.Errorf("%w: stock must not be negative", ErrValidation)
	}
	return nil
}

// Upsert inserts a new product or replaces the mutable fields of an
// existing one. Barcodes stay unique across the catalog.
func (c *Catalog) Upsert(p domain.Product) error {
	if err := validate(p); err != nil {
		return err
	}
	p.ID = strings.TrimSpace(p.ID)
	p.Name = strings.TrimSpace(p.Name)
	p.Category = strings.TrimSpace(p.Category)
	p.Barcode = strings.TrimSpace(p.Barcode)
	if p.Category == "" {
		p.Category = "lainnya"
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if p.Barcode != "" {
		if ownerID, taken := c.byBarcode[p.Barcode]; taken && ownerID != p.ID {
			return fmt.Errorf("%w: barcode %s already registered to %s", ErrValidation, p.Barcode, ownerID)
		}
	}

	existing, ok := c.entries[p.ID]
	if !ok {
		c.entries[p.ID] = &entry{product: p}
		c.order = append(c.order, p.ID)
		if p.Barcode != "" {
			c.byBarcode[p.Barcode] = p.ID
		}
		return nil
	}

	existing.mu.Lock()
	old := existing.product
	existing.product = p
	existing.mu.Unlock()

	if old.Barcode != "" && old.Barcode != p.Barcode {
		delete(c.byBarcode, old.Barcode)
	}
	if p.Barcode != "" {
		c.byBarcode[p.Barcode] = p.ID
	}
	return nil
}

func (c *Catalog) lookup(id string) (*entry, error) {
	c.mu.RLock()
	e, ok := c.entries[id]
	c.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

func (c *Catalog) GetByID(id string) (domain.Product, error) {
	e, err := c.lookup(id)
	if err != nil {
		return domain.Product{}, err
	}
	e.mu.Lock()
	p := e.product
	e.mu.Unlock()
	return p, nil
}

func (c *Catalog) GetByBarcode(code string) (domain.Product, error) {
	code = strings.TrimSpace(code)
	c.mu.RLock()
	id, ok := c.byBarcode[code]
	c.mu.RUnlock()
	if !ok {
		return domain.Product{}, ErrNotFound
	}
	return c.GetByID(id)
}

// ListByCategory returns products in insertion order. The pseudo
// category "all" (or empty) matches everything.
func (c *Catalog) ListByCategory(category string) []domain.Product {
	category = strings.ToLower(strings.TrimSpace(category))
	all := category == "" || category == "all"

	c.mu.RLock()
	ids := make([]string, len(c.order))
	copy(ids, c.order)
	c.mu.RUnlock()

	result := make([]domain.Product, 0, len(ids))
	for _, id := range ids {
		p, err := c.GetByID(id)
		if err != nil {
			continue
		}
		if all || strings.ToLower(p.Category) == category {
			result = append(result, p)
		}
	}
	return result
}

// Categories returns the distinct categories currently in the catalog,
// sorted, for the filter dropdown.
func (c *Catalog) Categories() []string {
	seen := make(map[string]struct{})
	for _, p := range c.ListByCategory("all") {
		seen[p.Category] = struct{}{}
	}
	result := make([]string, 0, len(seen))
	for cat := range seen {
		result = append(result, cat)
	}
	sort.Strings(result)
	return result
}

func (c *Catalog) Snapshot() []domain.Product {
	return c.ListByCategory("all")
}

// StockOf reports the current stock level for one product.
func (c *Catalog) StockOf(id string) (int, error) {
	p, err := c.GetByID(id)
	if err != nil {
		return 0, err
	}
	return p.Stock, nil
}

// SetStock overwrites the stock level (stock editor path).
func (c *Catalog) SetStock(id string, stock int) error {
	if stock < 0 {
		return fmt.Errorf("%w: stock must not be negative", ErrValidation)
	}
	e, err := c.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.product.Stock = stock
	e.mu.Unlock()
	return nil
}

// IncreaseStock adds received quantity to a product.
func (c *Catalog) IncreaseStock(id string, qty int) error {
	if qty < 1 {
		return fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	e, err := c.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.product.Stock += qty
	e.mu.Unlock()
	return nil
}

// DecrementStock removes qty units from one product. The read, the
// sufficiency check, and the write happen under the product's lock, so
// two callers racing for the last unit cannot both succeed.
func (c *Catalog) DecrementStock(id string, qty int) error {
	if qty < 1 {
		return fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	e, err := c.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.product.Stock < qty {
		return fmt.Errorf("%w: %s has %d left, want %d", ErrInsufficientStock, id, e.product.Stock, qty)
	}
	e.product.Stock -= qty
	return nil
}

// DecrementAll applies every decrement or none of them. Locks are taken
// in ascending product-id order so two overlapping checkouts can never
// deadlock; every line is validated before the first write, so a
// shortfall leaves the catalog exactly as it was.
func (c *Catalog) DecrementAll(decrements map[string]int) error {
	if len(decrements) == 0 {
		return fmt.Errorf("%w: nothing to decrement", ErrValidation)
	}

	ids := make([]string, 0, len(decrements))
	for id, qty := range decrements {
		if qty < 1 {
			return fmt.Errorf("%w: quantity for %s must be positive", ErrValidation, id)
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	// Resolve every entry before taking the first entry lock. Entries
	// are never removed from the map, so the pointers stay valid, and
	// holding no entry lock while touching c.mu keeps the lock order
	// (map lock, then entry lock) consistent with Upsert and the
	// single-product paths.
	entries := make([]*entry, len(ids))
	for i, id := range ids {
		e, err := c.lookup(id)
		if err != nil {
			return fmt.Errorf("%s: %w", id, err)
		}
		entries[i] = e
	}

	for _, e := range entries {
		e.mu.Lock()
	}
	defer func() {
		for i := len(entries) - 1; i >= 0; i-- {
			entries[i].mu.Unlock()
		}
	}()

	for i, id := range ids {
		if entries[i].product.Stock < decrements[id] {
			return fmt.Errorf("%w: %s has %d left, want %d", ErrInsufficientStock, id, entries[i].product.Stock, decrements[id])
		}
	}
	for i, id := range ids {
		entries[i].product.Stock -= decrements[id]
	}
	return nil
}
