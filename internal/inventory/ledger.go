package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"strings"

	"github.com/playforge/warehouse/internal/cache"
	"github.com/playforge/warehouse/internal/ports"
)

// DirtyTable names the dirty set backing inventory write-behind.
const DirtyTable = "inventories"

// Validation failures surfaced to callers.
var (
	ErrSlotTaken   = errors.New("inventory: slot occupied by a different item")
	ErrBadQuantity = errors.New("inventory: malformed quantity")
)

// SegmentRecalculator re-evaluates segments referencing the mutated node.
type SegmentRecalculator interface {
	Recalculate(ctx context.Context, p ports.Player, branch, elementID string) error
}

// Ledger manages per-player item quantities and slots. Reads are cache-first
// with durable fallback; mutations write the full inventory back to cache and
// mark it dirty, leaving durable persistence to FlushDirty.
type Ledger struct {
	cache    *cache.Cache
	store    ports.InventoryStore
	segments SegmentRecalculator
	log      *slog.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

func WithSegments(s SegmentRecalculator) Option { return func(l *Ledger) { l.segments = s } }
func WithLogger(lg *slog.Logger) Option         { return func(l *Ledger) { l.log = lg } }

// NewLedger wires the inventory ledger.
func NewLedger(c *cache.Cache, store ports.InventoryStore, opts ...Option) *Ledger {
	l := &Ledger{cache: c, store: store, log: slog.Default()}
	for _, o := range opts {
		o(l)
	}
	return l
}

// parseAmount converts a decimal string into a non-negative big integer,
// truncating (not rounding) any fractional part.
func parseAmount(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	if s == "" || s == "-" {
		return nil, ErrBadQuantity
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, ErrBadQuantity
	}
	if n.Sign() < 0 {
		return nil, ErrBadQuantity
	}
	return n, nil
}

func quantity(item ports.InventoryItem) (*big.Int, error) {
	n, ok := new(big.Int).SetString(item.Quantity, 10)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("%w: %q", ErrBadQuantity, item.Quantity)
	}
	return n, nil
}

// load returns the player's inventory, cache-first. A corrupt cache payload
// is treated as a miss; a durable miss yields an empty inventory.
func (l *Ledger) load(ctx context.Context, p ports.Player, branch string) ([]ports.InventoryItem, error) {
	key := cache.InventoryKey(p.GameID, branch, p.ClientID, p.Env)
	if raw, ok := l.cache.Get(ctx, key); ok {
		var items []ports.InventoryItem
		if err := json.Unmarshal([]byte(raw), &items); err == nil {
			return items, nil
		}
		l.log.Warn("inventory cache payload corrupt", "key", key)
	}
	items, err := l.store.Load(ctx, p)
	if errors.Is(err, ports.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(items); err == nil {
		l.cache.Set(ctx, key, string(raw))
	}
	return items, nil
}

// writeBack stores the mutated inventory in cache and marks it dirty.
func (l *Ledger) writeBack(ctx context.Context, p ports.Player, branch string, items []ports.InventoryItem) error {
	if items == nil {
		items = []ports.InventoryItem{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return err
	}
	key := cache.InventoryKey(p.GameID, branch, p.ClientID, p.Env)
	l.cache.Set(ctx, key, string(raw))
	l.cache.MarkDirty(ctx, DirtyTable, key, true)
	return nil
}

func totalFor(items []ports.InventoryItem, nodeID string) (*big.Int, error) {
	total := new(big.Int)
	for _, it := range items {
		if it.NodeID != nodeID {
			continue
		}
		q, err := quantity(it)
		if err != nil {
			return nil, err
		}
		total.Add(total, q)
	}
	return total, nil
}

// lowestFreeSlot returns the smallest slot index not occupied by any item.
func lowestFreeSlot(items []ports.InventoryItem) int {
	used := map[int]struct{}{}
	for _, it := range items {
		if it.Slot != nil {
			used[*it.Slot] = struct{}{}
		}
	}
	for i := 0; ; i++ {
		if _, ok := used[i]; !ok {
			return i
		}
	}
}

// Add adds amount of nodeID to the player's inventory. With an explicit slot,
// the slot must be free or already hold the same node; without one the amount
// merges into an existing stack of the node or claims the lowest free slot.
// Returns the node's new total quantity.
func (l *Ledger) Add(ctx context.Context, p ports.Player, branch, nodeID, amount string, slot *int) (string, error) {
	amt, err := parseAmount(amount)
	if err != nil {
		return "", err
	}
	items, err := l.load(ctx, p, branch)
	if err != nil {
		return "", err
	}

	if slot != nil {
		idx := -1
		for i, it := range items {
			if it.Slot != nil && *it.Slot == *slot {
				if it.NodeID != nodeID {
					return "", ErrSlotTaken
				}
				idx = i
				break
			}
		}
		if idx >= 0 {
			q, err := quantity(items[idx])
			if err != nil {
				return "", err
			}
			items[idx].Quantity = q.Add(q, amt).String()
		} else {
			s := *slot
			items = append(items, ports.InventoryItem{NodeID: nodeID, Quantity: amt.String(), Slot: &s})
		}
	} else {
		idx := -1
		for i, it := range items {
			if it.NodeID == nodeID {
				idx = i
				break
			}
		}
		if idx >= 0 {
			q, err := quantity(items[idx])
			if err != nil {
				return "", err
			}
			items[idx].Quantity = q.Add(q, amt).String()
		} else {
			s := lowestFreeSlot(items)
			items = append(items, ports.InventoryItem{NodeID: nodeID, Quantity: amt.String(), Slot: &s})
		}
	}

	if err := l.writeBack(ctx, p, branch, items); err != nil {
		return "", err
	}
	l.recalcSegments(ctx, p, branch, nodeID)
	total, err := totalFor(items, nodeID)
	if err != nil {
		return "", err
	}
	return total.String(), nil
}

// Remove subtracts amount of nodeID, clamping at zero and deleting exhausted
// stacks. With a slot only that stack is touched; otherwise the amount drains
// across the node's stacks starting from the highest slot index. Returns the
// node's new total quantity.
func (l *Ledger) Remove(ctx context.Context, p ports.Player, branch, nodeID, amount string, slot *int) (string, error) {
	amt, err := parseAmount(amount)
	if err != nil {
		return "", err
	}
	items, err := l.load(ctx, p, branch)
	if err != nil {
		return "", err
	}

	if slot != nil {
		for i, it := range items {
			if it.Slot != nil && *it.Slot == *slot && it.NodeID == nodeID {
				q, err := quantity(it)
				if err != nil {
					return "", err
				}
				q.Sub(q, amt)
				if q.Sign() <= 0 {
					items = append(items[:i], items[i+1:]...)
				} else {
					items[i].Quantity = q.String()
				}
				break
			}
		}
	} else {
		// Unslotted stacks drain first, then slotted stacks from the
		// highest slot index down.
		idxs := make([]int, 0, len(items))
		for i, it := range items {
			if it.NodeID == nodeID {
				idxs = append(idxs, i)
			}
		}
		sort.Slice(idxs, func(a, b int) bool {
			sa, sb := items[idxs[a]].Slot, items[idxs[b]].Slot
			switch {
			case sa == nil:
				return true
			case sb == nil:
				return false
			default:
				return *sa > *sb
			}
		})
		remaining := new(big.Int).Set(amt)
		removed := map[int]struct{}{}
		for _, i := range idxs {
			if remaining.Sign() <= 0 {
				break
			}
			q, err := quantity(items[i])
			if err != nil {
				return "", err
			}
			if q.Cmp(remaining) <= 0 {
				remaining.Sub(remaining, q)
				removed[i] = struct{}{}
			} else {
				items[i].Quantity = new(big.Int).Sub(q, remaining).String()
				remaining.SetInt64(0)
			}
		}
		if len(removed) > 0 {
			next := items[:0]
			for i, it := range items {
				if _, ok := removed[i]; !ok {
					next = append(next, it)
				}
			}
			items = next
		}
	}

	if err := l.writeBack(ctx, p, branch, items); err != nil {
		return "", err
	}
	l.recalcSegments(ctx, p, branch, nodeID)
	total, err := totalFor(items, nodeID)
	if err != nil {
		return "", err
	}
	return total.String(), nil
}

// Items returns the player's current inventory.
func (l *Ledger) Items(ctx context.Context, p ports.Player, branch string) ([]ports.InventoryItem, error) {
	return l.load(ctx, p, branch)
}

func (l *Ledger) recalcSegments(ctx context.Context, p ports.Player, branch, nodeID string) {
	if l.segments == nil {
		return
	}
	if err := l.segments.Recalculate(ctx, p, branch, nodeID); err != nil {
		l.log.Warn("segment recalc", "player", p.ClientID, "node", nodeID, "err", err)
	}
}
