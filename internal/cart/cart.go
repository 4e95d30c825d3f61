package cart

import (
	"errors"
	"fmt"
	"sync"

	"tokokasir/backend/internal/catalog"
	"tokokasir/backend/internal/domain"
)

var (
	ErrOutOfStock = errors.New("product out of stock")
	ErrNotInCart  = errors.New("product not in cart")
)

// Cart is the working set of one terminal's in-progress sale. Lines
// carry a snapshot of the product name and unit price taken at add
// time, so a later catalog edit does not silently reprice the basket.
type Cart struct {
	mu      sync.Mutex
	catalog *catalog.Catalog
	lines   map[string]*domain.CartLine
	order   []string
}

func New(c *catalog.Catalog) *Cart {
	return &Cart{
		catalog: c,
		lines:   make(map[string]*domain.CartLine),
	}
}

// AddItem puts qty more units of a product into the cart, merging with
// any existing line. The resulting quantity is clamped to the stock on
// hand; a product with zero stock cannot be added at all.
func (c *Cart) AddItem(productID string, qty int) (domain.CartLine, error) {
	if qty < 1 {
		return domain.CartLine{}, fmt.Errorf("%w: quantity must be positive", catalog.ErrValidation)
	}
	p, err := c.catalog.GetByID(productID)
	if err != nil {
		return domain.CartLine{}, err
	}
	if p.Stock == 0 {
		return domain.CartLine{}, fmt.Errorf("%w: %s", ErrOutOfStock, p.Name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	line, ok := c.lines[productID]
	if !ok {
		line = &domain.CartLine{ProductID: p.ID, Name: p.Name, UnitPrice: p.Price}
		c.lines[productID] = line
		c.order = append(c.order, productID)
	}
	line.Quantity += qty
	if line.Quantity > p.Stock {
		line.Quantity = p.Stock
	}
	return *line, nil
}

// SetQuantity overwrites a line's quantity. Zero or less removes the
// line; anything above the stock on hand is clamped down to it.
func (c *Cart) SetQuantity(productID string, qty int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	line, ok := c.lines[productID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotInCart, productID)
	}
	if qty <= 0 {
		c.removeLocked(productID)
		return nil
	}
	p, err := c.catalog.GetByID(productID)
	if err != nil {
		return err
	}
	if qty > p.Stock {
		qty = p.Stock
	}
	if qty == 0 {
		c.removeLocked(productID)
		return nil
	}
	line.Quantity = qty
	return nil
}

// RemoveItem drops a line from the cart. Removing a product that is
// not in the cart is a no-op.
func (c *Cart) RemoveItem(productID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(productID)
}

func (c *Cart) removeLocked(productID string) {
	delete(c.lines, productID)
	for i, id := range c.order {
		if id == productID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *Cart) Clear() {
	c.mu.Lock()
	c.lines = make(map[string]*domain.CartLine)
	c.order = nil
	c.mu.Unlock()
}

// Lines returns the cart contents in the order products were first
// added. The slice is a copy and safe to hold.
func (c *Cart) Lines() []domain.CartLine {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := make([]domain.CartLine, 0, len(c.order))
	for _, id := range c.order {
		result = append(result, *c.lines[id])
	}
	return result
}

// Subtotal is the sum of unitPrice*quantity over all lines, before tax.
func (c *Cart) Subtotal() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total int64
	for _, line := range c.lines {
		total += line.UnitPrice * int64(line.Quantity)
	}
	return total
}

// ItemCount is the total unit count across all lines.
func (c *Cart) ItemCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for _, line := range c.lines {
		count += line.Quantity
	}
	return count
}

func (c *Cart) IsEmpty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lines) == 0
}

// View assembles the cart summary the terminal renders.
func (c *Cart) View() domain.CartView {
	return domain.CartView{
		Lines:     c.Lines(),
		Total:     c.Subtotal(),
		ItemCount: c.ItemCount(),
	}
}
