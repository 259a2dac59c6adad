// Package cart holds the in-progress checkout basket for each cashier.
// Carts live in memory only; they are never persisted and are dropped
// when the cashier's shift closes or the server restarts.
package cart

import (
	"sync"

	"cedipos/backend/internal/domain"
	"cedipos/backend/internal/store"
)

// lastScan is the single-slot undo register. It remembers only the most
// recent Add and whether that Add created a new line or bumped an
// existing one, so undo can reverse exactly that effect.
type lastScan struct {
	productID  string
	wasNewLine bool
}

type Cart struct {
	mu    sync.Mutex
	lines []domain.CartLine
	last  *lastScan
}

func New() *Cart {
	return &Cart{}
}

// Add appends one unit of the product, merging into an existing line when
// present. Quantities are capped by the product's known stock at scan time.
func (c *Cart) Add(p domain.Product) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !p.Active || p.Stock <= 0 {
		return store.ErrOutOfStock
	}
	for i := range c.lines {
		if c.lines[i].ProductID == p.ID {
			if c.lines[i].Qty+1 > p.Stock {
				return store.ErrInsufficientStock
			}
			c.lines[i].Qty++
			c.last = &lastScan{productID: p.ID, wasNewLine: false}
			return nil
		}
	}
	c.lines = append(c.lines, domain.CartLine{
		ProductID:      p.ID,
		Barcode:        p.Barcode,
		Name:           p.Name,
		UnitPriceCents: p.PriceCents,
		Qty:            1,
	})
	c.last = &lastScan{productID: p.ID, wasNewLine: true}
	return nil
}

// UndoLastScan reverses the most recent Add and consumes the register.
// It reports whether anything was undone; calling it again without an
// intervening Add is a no-op.
func (c *Cart) UndoLastScan() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.last == nil {
		return false
	}
	reg := *c.last
	c.last = nil

	for i := range c.lines {
		if c.lines[i].ProductID != reg.productID {
			continue
		}
		if reg.wasNewLine {
			c.lines = append(c.lines[:i], c.lines[i+1:]...)
			return true
		}
		c.lines[i].Qty--
		if c.lines[i].Qty <= 0 {
			c.lines = append(c.lines[:i], c.lines[i+1:]...)
		}
		return true
	}
	return false
}

// Remove deletes the product's line entirely. The undo register is cleared
// only when it points at the removed product; an undo armed for another
// line stays valid.
func (c *Cart) Remove(productID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.last != nil && c.last.productID == productID {
		c.last = nil
	}
	for i := range c.lines {
		if c.lines[i].ProductID == productID {
			c.lines = append(c.lines[:i], c.lines[i+1:]...)
			return true
		}
	}
	return false
}

// SetQty replaces a line's quantity. Zero removes the line; quantities
// above stockCeiling are rejected. Like Remove, the undo register is
// cleared only when it points at the edited product.
func (c *Cart) SetQty(productID string, qty int, stockCeiling int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.last != nil && c.last.productID == productID {
		c.last = nil
	}
	for i := range c.lines {
		if c.lines[i].ProductID != productID {
			continue
		}
		if qty <= 0 {
			c.lines = append(c.lines[:i], c.lines[i+1:]...)
			return nil
		}
		if qty > stockCeiling {
			return store.ErrInsufficientStock
		}
		c.lines[i].Qty = qty
		return nil
	}
	return store.ErrNotFound
}

func (c *Cart) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = nil
	c.last = nil
}

// Lines returns a copy of the cart contents in scan order.
func (c *Cart) Lines() []domain.CartLine {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.CartLine, len(c.lines))
	copy(out, c.lines)
	return out
}

func (c *Cart) TotalCents() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total int64
	for _, l := range c.lines {
		total += l.LineTotalCents()
	}
	return total
}

func (c *Cart) Empty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lines) == 0
}

// Registry maps cashier IDs to their working carts.
type Registry struct {
	mu    sync.Mutex
	carts map[string]*Cart
}

func NewRegistry() *Registry {
	return &Registry{carts: make(map[string]*Cart)}
}

// Get returns the cashier's cart, creating an empty one on first use.
func (r *Registry) Get(cashierID string) *Cart {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.carts[cashierID]
	if !ok {
		c = New()
		r.carts[cashierID] = c
	}
	return c
}

// Drop discards the cashier's cart, if any.
func (r *Registry) Drop(cashierID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.carts, cashierID)
}
