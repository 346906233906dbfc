package cart

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopinfra/internal/blob"
	"shopinfra/internal/events"
)

func TestService_PersistenceRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemoryStore()
	svc := NewService(store, nil, nil)

	_, err := svc.AddItem(ctx, "u1", ring, 2)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, "u1", pendant, 1)
	require.NoError(t, err)
	original, err := svc.AddItem(ctx, "u1", brooch, 3)
	require.NoError(t, err)

	// A fresh service over the same store sees the identical cart.
	reloaded := NewService(store, nil, nil).Get(ctx, "u1")
	require.Len(t, reloaded.Items, 3)
	assert.Equal(t, original.Items, reloaded.Items)
	assert.Equal(t, original.Totals(), reloaded.Totals())
}

func TestService_MissingSnapshotIsEmptyCart(t *testing.T) {
	svc := NewService(blob.NewMemoryStore(), nil, nil)
	c := svc.Get(context.Background(), "nobody")
	assert.Empty(t, c.Items)
	assert.Equal(t, "nobody", c.ID)
}

func TestService_CorruptSnapshotIsEmptyCart(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemoryStore()
	require.NoError(t, store.Put(ctx, "cart:u1", []byte("{not json")))

	c := NewService(store, nil, nil).Get(ctx, "u1")
	assert.Empty(t, c.Items)
}

func TestService_MutationsPersistThrough(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemoryStore()
	svc := NewService(store, nil, nil)

	_, err := svc.AddItem(ctx, "u1", ring, 2)
	require.NoError(t, err)
	_, err = svc.UpdateQuantity(ctx, "u1", "p-ring", 5)
	require.NoError(t, err)

	c := svc.Get(ctx, "u1")
	require.Len(t, c.Items, 1)
	assert.Equal(t, 5, c.Items[0].Quantity)

	_, err = svc.RemoveItem(ctx, "u1", "p-ring")
	require.NoError(t, err)
	assert.Empty(t, svc.Get(ctx, "u1").Items)
}

func TestService_ClearDropsSnapshot(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemoryStore()
	svc := NewService(store, nil, nil)

	_, err := svc.AddItem(ctx, "u1", ring, 2)
	require.NoError(t, err)
	_, err = svc.Clear(ctx, "u1")
	require.NoError(t, err)

	_, err = store.Get(ctx, "cart:u1")
	assert.ErrorIs(t, err, blob.ErrNotFound)
	assert.Empty(t, svc.Get(ctx, "u1").Items)
}

type capturePublisher struct {
	got []events.CartUpdated
}

func (p *capturePublisher) PublishCartUpdated(_ context.Context, ev events.CartUpdated) error {
	p.got = append(p.got, ev)
	return nil
}

func TestService_PublishesCartUpdated(t *testing.T) {
	ctx := context.Background()
	pub := &capturePublisher{}
	svc := NewService(blob.NewMemoryStore(), pub, nil)

	_, err := svc.AddItem(ctx, "u1", ring, 2)
	require.NoError(t, err)
	_, err = svc.RemoveItem(ctx, "u1", "p-ring")
	require.NoError(t, err)

	require.Len(t, pub.got, 2)
	assert.Equal(t, "add", pub.got[0].Action)
	assert.Equal(t, 2, pub.got[0].TotalItemCount)
	assert.Equal(t, "remove", pub.got[1].Action)
	assert.Equal(t, 0, pub.got[1].TotalItemCount)
}

// failingStore reads fine but refuses writes.
type failingStore struct {
	blob.Store
}

func (f failingStore) Put(context.Context, string, []byte) error {
	return errors.New("store down")
}

func TestService_WriteFailureKeepsMutation(t *testing.T) {
	ctx := context.Background()
	svc := NewService(failingStore{Store: blob.NewMemoryStore()}, nil, nil)

	c, err := svc.AddItem(ctx, "u1", ring, 2)
	require.ErrorIs(t, err, ErrPersist)
	require.NotNil(t, c)
	require.Len(t, c.Items, 1)
	assert.Equal(t, 2, c.Items[0].Quantity)
}
