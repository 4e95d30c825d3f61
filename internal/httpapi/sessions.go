package httpapi

import (
	"strings"
	"sync"

	"tokokasir/backend/internal/cart"
	"tokokasir/backend/internal/catalog"
)

// defaultTerminalID is used when a request carries no terminal id, so
// a single-terminal shop works without any session bookkeeping.
const defaultTerminalID = "kasir-1"

// cartSessions holds one live cart per terminal. Carts are created on
// first use and live for the process lifetime; a confirmed checkout
// empties the cart but keeps the session.
type cartSessions struct {
	mu      sync.Mutex
	catalog *catalog.Catalog
	carts   map[string]*cart.Cart
}

func newCartSessions(cat *catalog.Catalog) *cartSessions {
	return &cartSessions{catalog: cat, carts: make(map[string]*cart.Cart)}
}

func (s *cartSessions) get(terminalID string) (*cart.Cart, string) {
	terminalID = strings.TrimSpace(terminalID)
	if terminalID == "" {
		terminalID = defaultTerminalID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[terminalID]
	if !ok {
		c = cart.New(s.catalog)
		s.carts[terminalID] = c
	}
	return c, terminalID
}
