package players

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/playforge/warehouse/internal/ports"
)

// Repo provides GORM-based persistence for player element rows.
type Repo struct{ db *gorm.DB }

func AutoMigrate(db *gorm.DB) error { return db.AutoMigrate(&PlayerElement{}) }
func NewRepo(db *gorm.DB) *Repo     { return &Repo{db: db} }

func (r *Repo) scope(ctx context.Context, p ports.Player, elementID string) *gorm.DB {
	return r.db.WithContext(ctx).Model(&PlayerElement{}).
		Where("game_id = ? AND client_id = ? AND env = ? AND element_id = ?",
			p.GameID, p.ClientID, p.Env, elementID)
}

func (r *Repo) GetElement(ctx context.Context, p ports.Player, elementID string) (*ports.Element, error) {
	var m PlayerElement
	err := r.scope(ctx, p, elementID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ports.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return m.toDomain(), nil
}

func (r *Repo) CreateElement(ctx context.Context, el *ports.Element) error {
	m := PlayerElement{
		GameID:    el.Player.GameID,
		ClientID:  el.Player.ClientID,
		Env:       el.Player.Env,
		ElementID: el.ElementID,
	}
	m.setValue(el.Value)
	m.setHistory(el.History)
	return r.db.WithContext(ctx).Create(&m).Error
}

func (r *Repo) SetValue(ctx context.Context, p ports.Player, elementID string, v ports.Value) error {
	m := PlayerElement{}
	m.setValue(v)
	res := r.scope(ctx, p, elementID).Updates(map[string]any{
		"kind":       m.Kind,
		"num_value":  m.NumValue,
		"str_value":  m.StrValue,
		"bool_value": m.BoolValue,
		"date_value": m.DateValue,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ports.ErrNotFound
	}
	return nil
}

func (r *Repo) SetHistory(ctx context.Context, p ports.Player, elementID string, v ports.Value, hist []ports.HistoryEntry) error {
	m := PlayerElement{}
	m.setValue(v)
	m.setHistory(hist)
	res := r.scope(ctx, p, elementID).Updates(map[string]any{
		"kind":       m.Kind,
		"num_value":  m.NumValue,
		"str_value":  m.StrValue,
		"bool_value": m.BoolValue,
		"date_value": m.DateValue,
		"history":    m.History,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ports.ErrNotFound
	}
	return nil
}

// AddWithinRange applies a conditional increment: the delta lands only if the
// resulting num_value stays inside the optional bounds. The WHERE predicate
// runs inside the store's own update, which is what protects concurrent
// add/subtract sequences from escaping the range.
func (r *Repo) AddWithinRange(ctx context.Context, p ports.Player, elementID string, delta float64, min, max *float64) (bool, error) {
	tx := r.scope(ctx, p, elementID)
	if min != nil {
		tx = tx.Where("num_value + ? >= ?", delta, *min)
	}
	if max != nil {
		tx = tx.Where("num_value + ? <= ?", delta, *max)
	}
	res := tx.Update("num_value", gorm.Expr("num_value + ?", delta))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *Repo) ListElements(ctx context.Context, p ports.Player) ([]*ports.Element, error) {
	var arr []*PlayerElement
	err := r.db.WithContext(ctx).
		Where("game_id = ? AND client_id = ? AND env = ?", p.GameID, p.ClientID, p.Env).
		Order("element_id ASC").
		Find(&arr).Error
	if err != nil {
		return nil, err
	}
	out := make([]*ports.Element, 0, len(arr))
	for _, m := range arr {
		out = append(out, m.toDomain())
	}
	return out, nil
}

// ListPlayers pages through distinct players of a game/env, ordered by
// client_id for stable batching.
func (r *Repo) ListPlayers(ctx context.Context, gameID, env string, offset, limit int) ([]ports.Player, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&PlayerElement{}).
		Distinct("client_id").
		Where("game_id = ? AND env = ?", gameID, env).
		Order("client_id ASC").
		Offset(offset).Limit(limit).
		Pluck("client_id", &ids).Error
	if err != nil {
		return nil, err
	}
	out := make([]ports.Player, 0, len(ids))
	for _, id := range ids {
		out = append(out, ports.Player{GameID: gameID, ClientID: id, Env: env})
	}
	return out, nil
}

var _ ports.PlayerStore = (*Repo)(nil)
