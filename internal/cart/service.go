package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"shopinfra/internal/blob"
	"shopinfra/internal/events"
)

// ErrPersist reports that the mutation was applied but the snapshot write
// failed. The returned cart is still valid; callers surface this as a
// warning, not a rollback.
var ErrPersist = errors.New("cart persistence failed")

// Service loads carts from the blob store, applies mutations, and writes the
// full snapshot back after every mutation. One cart belongs to one session;
// no cross-session coordination happens here.
type Service struct {
	store blob.Store
	pub   events.Publisher
	log   *zap.Logger
}

func NewService(store blob.Store, pub events.Publisher, log *zap.Logger) *Service {
	if pub == nil {
		pub = events.Noop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, pub: pub, log: log}
}

func snapshotKey(cartID string) string {
	return fmt.Sprintf("cart:%s", cartID)
}

// Get loads the cart for cartID. A missing or corrupt snapshot yields an
// empty cart, never an error.
func (s *Service) Get(ctx context.Context, cartID string) *Cart {
	data, err := s.store.Get(ctx, snapshotKey(cartID))
	if err != nil {
		if !errors.Is(err, blob.ErrNotFound) {
			s.log.Warn("cart snapshot read failed, starting empty",
				zap.String("cart_id", cartID), zap.Error(err))
		}
		return New(cartID)
	}
	var c Cart
	if err := json.Unmarshal(data, &c); err != nil {
		s.log.Warn("cart snapshot corrupt, starting empty",
			zap.String("cart_id", cartID), zap.Error(err))
		return New(cartID)
	}
	c.ID = cartID
	return &c
}

// AddItem merges the product into the cart and persists the result.
func (s *Service) AddItem(ctx context.Context, cartID string, p Product, quantity int) (*Cart, error) {
	c := s.Get(ctx, cartID)
	if err := c.AddItem(p, quantity); err != nil {
		return nil, err
	}
	return c, s.finish(ctx, c, "add")
}

// UpdateQuantity sets the absolute quantity (<= 0 removes) and persists.
func (s *Service) UpdateQuantity(ctx context.Context, cartID, productID string, quantity int) (*Cart, error) {
	c := s.Get(ctx, cartID)
	c.UpdateQuantity(productID, quantity)
	return c, s.finish(ctx, c, "update")
}

// RemoveItem deletes the product's line if present and persists.
func (s *Service) RemoveItem(ctx context.Context, cartID, productID string) (*Cart, error) {
	c := s.Get(ctx, cartID)
	c.RemoveItem(productID)
	return c, s.finish(ctx, c, "remove")
}

// Clear empties the cart and drops its snapshot.
func (s *Service) Clear(ctx context.Context, cartID string) (*Cart, error) {
	c := s.Get(ctx, cartID)
	c.Clear()
	var perr error
	if err := s.store.Delete(ctx, snapshotKey(cartID)); err != nil {
		s.log.Warn("cart snapshot delete failed",
			zap.String("cart_id", cartID), zap.Error(err))
		perr = fmt.Errorf("%w: %w", ErrPersist, err)
	}
	s.publish(c, "clear")
	return c, perr
}

// finish write-through persists the cart and publishes the mutation event.
// A failed write keeps the in-memory mutation and reports ErrPersist.
func (s *Service) finish(ctx context.Context, c *Cart, action string) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("%w: marshal snapshot: %w", ErrPersist, err)
	}
	if err := s.store.Put(ctx, snapshotKey(c.ID), data); err != nil {
		s.log.Warn("cart snapshot write failed",
			zap.String("cart_id", c.ID), zap.Error(err))
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	s.publish(c, action)
	return nil
}

func (s *Service) publish(c *Cart, action string) {
	t := c.Totals()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := s.pub.PublishCartUpdated(ctx, events.CartUpdated{
		CartID:         c.ID,
		Action:         action,
		TotalItemCount: t.TotalItemCount,
		TotalAmount:    t.TotalAmount,
		OccurredAt:     time.Now().UTC(),
	})
	if err != nil {
		s.log.Warn("cart event publish failed",
			zap.String("cart_id", c.ID), zap.Error(err))
	}
}
