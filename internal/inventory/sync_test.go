package inventory

import (
	"context"
	"testing"

	"github.com/playforge/warehouse/internal/cache"
	"github.com/playforge/warehouse/internal/ports"
)

// failingStore wraps an in-memory store and fails Save on demand.
type failingStore struct {
	items    map[string][]ports.InventoryItem
	failSave bool
}

func newFailingStore() *failingStore {
	return &failingStore{items: map[string][]ports.InventoryItem{}}
}

func (s *failingStore) key(p ports.Player) string { return p.GameID + "/" + p.ClientID + "/" + p.Env }

func (s *failingStore) Load(ctx context.Context, p ports.Player) ([]ports.InventoryItem, error) {
	items, ok := s.items[s.key(p)]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return items, nil
}

func (s *failingStore) Save(ctx context.Context, p ports.Player, items []ports.InventoryItem) error {
	if s.failSave {
		return context.DeadlineExceeded
	}
	s.items[s.key(p)] = items
	return nil
}

func TestFlushDirtyPersistsAndClears(t *testing.T) {
	store := newFailingStore()
	c := cache.New(cache.NewMemTransport())
	l := NewLedger(c, store)
	ctx := context.Background()

	if _, err := l.Add(ctx, player, "main", "gold", "5", nil); err != nil {
		t.Fatal(err)
	}
	key := cache.InventoryKey(player.GameID, "main", player.ClientID, player.Env)
	if !c.IsDirty(ctx, DirtyTable, key) {
		t.Fatal("mutation should mark the key dirty")
	}

	flushed, failed := l.FlushDirty(ctx)
	if flushed != 1 || failed != 0 {
		t.Fatalf("flush: %d/%d", flushed, failed)
	}
	if c.IsDirty(ctx, DirtyTable, key) {
		t.Fatal("key should be clean after successful persist")
	}
	durable, err := store.Load(ctx, player)
	if err != nil {
		t.Fatal(err)
	}
	if len(durable) != 1 || durable[0].Quantity != "5" {
		t.Fatalf("durable: %+v", durable)
	}
}

func TestFlushDirtyKeepsKeyOnFailure(t *testing.T) {
	store := newFailingStore()
	c := cache.New(cache.NewMemTransport())
	l := NewLedger(c, store)
	ctx := context.Background()

	if _, err := l.Add(ctx, player, "main", "gold", "5", nil); err != nil {
		t.Fatal(err)
	}
	store.failSave = true
	flushed, failed := l.FlushDirty(ctx)
	if flushed != 0 || failed != 1 {
		t.Fatalf("flush: %d/%d", flushed, failed)
	}
	key := cache.InventoryKey(player.GameID, "main", player.ClientID, player.Env)
	if !c.IsDirty(ctx, DirtyTable, key) {
		t.Fatal("key must stay dirty after failed persist")
	}

	// Recovery: the next cycle persists.
	store.failSave = false
	if flushed, failed = l.FlushDirty(ctx); flushed != 1 || failed != 0 {
		t.Fatalf("recovery flush: %d/%d", flushed, failed)
	}
}

func TestFlushSkipsUnchangedPayload(t *testing.T) {
	store := newFailingStore()
	c := cache.New(cache.NewMemTransport())
	l := NewLedger(c, store)
	ctx := context.Background()

	if _, err := l.Add(ctx, player, "main", "gold", "5", nil); err != nil {
		t.Fatal(err)
	}
	if flushed, _ := l.FlushDirty(ctx); flushed != 1 {
		t.Fatal("initial flush")
	}

	// Re-mark without changing the payload: the flush should clear the flag
	// without rewriting.
	key := cache.InventoryKey(player.GameID, "main", player.ClientID, player.Env)
	c.MarkDirty(ctx, DirtyTable, key, true)
	store.failSave = true // a Save attempt would fail the batch
	flushed, failed := l.FlushDirty(ctx)
	if flushed != 1 || failed != 0 {
		t.Fatalf("unchanged flush: %d/%d", flushed, failed)
	}
	if c.IsDirty(ctx, DirtyTable, key) {
		t.Fatal("flag should clear when payload is unchanged")
	}
}

func TestFlushIsolatesBadKeys(t *testing.T) {
	store := newFailingStore()
	c := cache.New(cache.NewMemTransport())
	l := NewLedger(c, store)
	ctx := context.Background()

	c.MarkDirty(ctx, DirtyTable, "garbage-key", true)
	if _, err := l.Add(ctx, player, "main", "gold", "5", nil); err != nil {
		t.Fatal(err)
	}
	flushed, failed := l.FlushDirty(ctx)
	if flushed != 1 || failed != 1 {
		t.Fatalf("flush: %d/%d", flushed, failed)
	}
	if c.IsDirty(ctx, DirtyTable, "garbage-key") {
		t.Fatal("unparseable key should be dropped from the dirty set")
	}
}
