package templates

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/playforge/warehouse/internal/ports"
)

// Repo provides GORM-based persistence for element templates.
type Repo struct{ db *gorm.DB }

func AutoMigrate(db *gorm.DB) error { return db.AutoMigrate(&TemplateRow{}) }
func NewRepo(db *gorm.DB) *Repo     { return &Repo{db: db} }

func (r *Repo) Template(ctx context.Context, gameID, branch, elementID string) (*ports.Template, error) {
	var m TemplateRow
	err := r.db.WithContext(ctx).
		Where("game_id = ? AND branch = ? AND element_id = ?", gameID, branch, elementID).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ports.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return m.toDomain()
}

// Upsert writes one template definition.
func (r *Repo) Upsert(ctx context.Context, gameID, branch string, t *ports.Template) error {
	raw, err := t.Default.MarshalJSON()
	if err != nil {
		return err
	}
	var m TemplateRow
	err = r.db.WithContext(ctx).
		Where("game_id = ? AND branch = ? AND element_id = ?", gameID, branch, t.ID).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		m = TemplateRow{GameID: gameID, Branch: branch, ElementID: t.ID}
	} else if err != nil {
		return err
	}
	m.Kind = string(t.Kind)
	m.ValueKind = string(t.ValueKind)
	m.DefaultRaw = string(raw)
	m.RangeMin = t.RangeMin
	m.RangeMax = t.RangeMax
	m.Method = string(t.Method)
	m.WindowDays = t.WindowDays
	return r.db.WithContext(ctx).Save(&m).Error
}

var _ ports.TemplateProvider = (*Repo)(nil)
