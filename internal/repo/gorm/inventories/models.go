package inventories

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/playforge/warehouse/internal/ports"
)

// Inventory is one player's whole inventory as a JSON payload. The ledger
// mutates the deserialized item list and writes it back as a unit; the
// durable row only changes during write-behind sync.
type Inventory struct {
	ID       uint   `gorm:"primaryKey"`
	GameID   string `gorm:"size:64;not null;uniqueIndex:ux_inventory,priority:1"`
	ClientID string `gorm:"size:128;not null;uniqueIndex:ux_inventory,priority:2"`
	Env      string `gorm:"size:32;not null;uniqueIndex:ux_inventory,priority:3"`

	Items datatypes.JSON `gorm:"type:json"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Inventory) TableName() string { return "inventories" }

func (m *Inventory) items() []ports.InventoryItem {
	if len(m.Items) == 0 {
		return nil
	}
	var items []ports.InventoryItem
	_ = json.Unmarshal(m.Items, &items)
	return items
}

func (m *Inventory) setItems(items []ports.InventoryItem) {
	if items == nil {
		items = []ports.InventoryItem{}
	}
	b, _ := json.Marshal(items)
	m.Items = b
}
