package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"

	"github.com/playforge/warehouse/internal/ports"
)

// FlushDirty drains the inventory dirty set into durable storage. For each
// dirty key the cached inventory is compared to the durable payload by JSON
// equality and upserted only on difference; the dirty flag clears only after
// a successful persist. One key's failure never aborts the batch.
func (l *Ledger) FlushDirty(ctx context.Context) (flushed, failed int) {
	for _, key := range l.cache.DirtyKeys(ctx, DirtyTable) {
		if err := l.flushKey(ctx, key); err != nil {
			l.log.Error("inventory flush", "key", key, "err", err)
			failed++
			continue
		}
		flushed++
	}
	return flushed, failed
}

func (l *Ledger) flushKey(ctx context.Context, key string) error {
	p, ok := parseInventoryKey(key)
	if !ok {
		// A key this package cannot parse can never be persisted; drop it
		// from the dirty set instead of retrying forever.
		l.cache.MarkDirty(ctx, DirtyTable, key, false)
		return errors.New("unparseable inventory key")
	}

	raw, hit := l.cache.Get(ctx, key)
	if !hit {
		// Cache lost the payload; keep the key dirty and let a later
		// mutation repopulate it.
		return errors.New("cached inventory missing")
	}
	var cached []ports.InventoryItem
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		return err
	}

	durable, err := l.store.Load(ctx, p)
	if err != nil && !errors.Is(err, ports.ErrNotFound) {
		return err
	}
	if err == nil && sameItems(cached, durable) {
		l.cache.MarkDirty(ctx, DirtyTable, key, false)
		return nil
	}

	if err := l.store.Save(ctx, p, cached); err != nil {
		return err
	}
	l.cache.MarkDirty(ctx, DirtyTable, key, false)
	return nil
}

// sameItems compares two inventories by their canonical JSON forms.
func sameItems(a, b []ports.InventoryItem) bool {
	ja, err1 := json.Marshal(a)
	jb, err2 := json.Marshal(b)
	if err1 != nil || err2 != nil {
		return reflect.DeepEqual(a, b)
	}
	return string(ja) == string(jb)
}

// parseInventoryKey recovers the player from a {game}:{branch}:inventory:
// {client}:{env} cache key.
func parseInventoryKey(key string) (ports.Player, bool) {
	parts := strings.Split(key, ":")
	if len(parts) != 5 || parts[2] != "inventory" {
		return ports.Player{}, false
	}
	return ports.Player{GameID: parts[0], ClientID: parts[3], Env: parts[4]}, true
}
