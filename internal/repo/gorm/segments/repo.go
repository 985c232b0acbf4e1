package segments

import (
	"context"
	"encoding/json"
	"errors"
	"sort"

	"gorm.io/gorm"

	"github.com/playforge/warehouse/internal/ports"
)

// Repo provides GORM-based persistence for segments and their incrementally
// maintained player counts.
type Repo struct{ db *gorm.DB }

func AutoMigrate(db *gorm.DB) error { return db.AutoMigrate(&SegmentRow{}, &SegmentElement{}) }
func NewRepo(db *gorm.DB) *Repo     { return &Repo{db: db} }

func (r *Repo) Get(ctx context.Context, id string) (*ports.Segment, error) {
	var m SegmentRow
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ports.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return m.toDomain(), nil
}

func (r *Repo) List(ctx context.Context, gameID, branch string) ([]*ports.Segment, error) {
	var arr []*SegmentRow
	err := r.db.WithContext(ctx).
		Where("game_id = ? AND branch = ?", gameID, branch).
		Order("id ASC").
		Find(&arr).Error
	if err != nil {
		return nil, err
	}
	out := make([]*ports.Segment, 0, len(arr))
	for _, m := range arr {
		out = append(out, m.toDomain())
	}
	return out, nil
}

func (r *Repo) ListByElement(ctx context.Context, gameID, branch, elementID string) ([]*ports.Segment, error) {
	var arr []*SegmentRow
	err := r.db.WithContext(ctx).
		Joins("JOIN segment_elements se ON se.segment_id = segments.id").
		Where("segments.game_id = ? AND segments.branch = ? AND se.element_id = ?", gameID, branch, elementID).
		Order("segments.id ASC").
		Find(&arr).Error
	if err != nil {
		return nil, err
	}
	out := make([]*ports.Segment, 0, len(arr))
	for _, m := range arr {
		out = append(out, m.toDomain())
	}
	return out, nil
}

// Save upserts the definition and rebuilds the element mirror. The player
// count column is left to the Adjust/Set operations.
func (r *Repo) Save(ctx context.Context, s *ports.Segment) error {
	var def []byte
	if s.Root != nil {
		def, _ = json.Marshal(s.Root)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m SegmentRow
		err := tx.Where("id = ?", s.ID).First(&m).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			m = SegmentRow{ID: s.ID, GameID: s.GameID, Branch: s.Branch, Name: s.Name, Definition: def, PlayerCount: s.PlayerCount}
			if err := tx.Create(&m).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		} else {
			m.Name = s.Name
			m.Definition = def
			if err := tx.Save(&m).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("segment_id = ?", s.ID).Delete(&SegmentElement{}).Error; err != nil {
			return err
		}
		ids := ElementIDs(s.Root)
		sort.Strings(ids)
		for _, el := range ids {
			if err := tx.Create(&SegmentElement{SegmentID: s.ID, ElementID: el}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// AdjustPlayerCount applies an atomic relative update, clamped at zero.
func (r *Repo) AdjustPlayerCount(ctx context.Context, id string, delta int64) error {
	return r.db.WithContext(ctx).Model(&SegmentRow{}).
		Where("id = ?", id).
		Update("player_count", gorm.Expr("CASE WHEN player_count + ? < 0 THEN 0 ELSE player_count + ? END", delta, delta)).Error
}

// SetPlayerCount overwrites the count; only forced full recalculation uses it.
func (r *Repo) SetPlayerCount(ctx context.Context, id string, count int64) error {
	return r.db.WithContext(ctx).Model(&SegmentRow{}).
		Where("id = ?", id).
		Update("player_count", count).Error
}

var _ ports.SegmentStore = (*Repo)(nil)
