package inventories

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/playforge/warehouse/internal/ports"
)

// Repo provides GORM-based persistence for whole-inventory payloads.
type Repo struct{ db *gorm.DB }

func AutoMigrate(db *gorm.DB) error { return db.AutoMigrate(&Inventory{}) }
func NewRepo(db *gorm.DB) *Repo     { return &Repo{db: db} }

func (r *Repo) Load(ctx context.Context, p ports.Player) ([]ports.InventoryItem, error) {
	var m Inventory
	err := r.db.WithContext(ctx).
		Where("game_id = ? AND client_id = ? AND env = ?", p.GameID, p.ClientID, p.Env).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ports.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return m.items(), nil
}

// Save upserts the player's inventory, replacing the item list wholesale.
func (r *Repo) Save(ctx context.Context, p ports.Player, items []ports.InventoryItem) error {
	var m Inventory
	err := r.db.WithContext(ctx).
		Where("game_id = ? AND client_id = ? AND env = ?", p.GameID, p.ClientID, p.Env).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		m = Inventory{GameID: p.GameID, ClientID: p.ClientID, Env: p.Env}
		m.setItems(items)
		return r.db.WithContext(ctx).Create(&m).Error
	}
	if err != nil {
		return err
	}
	m.setItems(items)
	return r.db.WithContext(ctx).Save(&m).Error
}

var _ ports.InventoryStore = (*Repo)(nil)
