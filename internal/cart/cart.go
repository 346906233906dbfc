package cart

import (
	"errors"
	"time"
)

// ErrInvalidItem is returned when an add request carries no product or a
// quantity below one.
var ErrInvalidItem = errors.New("invalid cart item")

// Product is the catalog view of an item at the moment it is added.
type Product struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Image    string  `json:"image,omitempty"`
	Category string  `json:"category,omitempty"`
}

// LineItem is one product entry in a cart, uniquely keyed by ProductID.
// UnitPrice is snapshotted at add time and never tracks later catalog
// changes; quantity is always >= 1 while the line exists.
type LineItem struct {
	ProductID string    `json:"productId"`
	Name      string    `json:"name"`
	UnitPrice float64   `json:"unitPrice"`
	Quantity  int       `json:"quantity"`
	Image     string    `json:"image,omitempty"`
	Category  string    `json:"category,omitempty"`
	AddedAt   time.Time `json:"addedAt"`
}

// Totals are derived aggregates, recomputed from the lines on every read.
type Totals struct {
	TotalItemCount int     `json:"totalItemCount"`
	TotalAmount    float64 `json:"totalAmount"`
}

// Cart is an ordered sequence of line items. Insertion order is preserved
// across merges; only deletion changes the sequence.
type Cart struct {
	ID        string     `json:"cartId"`
	Items     []LineItem `json:"items"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

func New(id string) *Cart {
	now := time.Now().UTC()
	return &Cart{ID: id, CreatedAt: now, UpdatedAt: now}
}

// AddItem merges quantity into an existing line for the same product, or
// appends a new line snapshotting the product's current name, price, image
// and category. A product is never represented by two lines.
func (c *Cart) AddItem(p Product, quantity int) error {
	if p.ID == "" || quantity < 1 {
		return ErrInvalidItem
	}
	for i := range c.Items {
		if c.Items[i].ProductID == p.ID {
			c.Items[i].Quantity += quantity
			c.touch()
			return nil
		}
	}
	c.Items = append(c.Items, LineItem{
		ProductID: p.ID,
		Name:      p.Name,
		UnitPrice: p.Price,
		Quantity:  quantity,
		Image:     p.Image,
		Category:  p.Category,
		AddedAt:   time.Now().UTC(),
	})
	c.touch()
	return nil
}

// RemoveItem deletes the line for productID, keeping remaining order intact.
// Removing an absent product is a no-op.
func (c *Cart) RemoveItem(productID string) {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			c.touch()
			return
		}
	}
}

// UpdateQuantity sets the line's quantity to the given absolute value.
// A quantity <= 0 removes the line; an absent product is a no-op.
func (c *Cart) UpdateQuantity(productID string, quantity int) {
	if quantity <= 0 {
		c.RemoveItem(productID)
		return
	}
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items[i].Quantity = quantity
			c.touch()
			return
		}
	}
}

// Clear empties the cart unconditionally.
func (c *Cart) Clear() {
	c.Items = nil
	c.touch()
}

// Totals recomputes the aggregates from the current lines. They are never
// stored, so they cannot drift from the item sequence.
func (c *Cart) Totals() Totals {
	var t Totals
	for _, it := range c.Items {
		t.TotalItemCount += it.Quantity
		t.TotalAmount += it.UnitPrice * float64(it.Quantity)
	}
	return t
}

func (c *Cart) touch() {
	c.UpdatedAt = time.Now().UTC()
}
