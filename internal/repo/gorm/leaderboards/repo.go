package leaderboards

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/playforge/warehouse/internal/ports"
)

// Repo provides GORM-based persistence for leaderboard configuration,
// windowed score rows and per-timeframe rebuild state.
type Repo struct{ db *gorm.DB }

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Board{}, &BoardElement{}, &BoardRow{}, &TimeframeStateRow{})
}
func NewRepo(db *gorm.DB) *Repo { return &Repo{db: db} }

// SaveBoard upserts a board and rebuilds its element mirror.
func (r *Repo) SaveBoard(ctx context.Context, lb *ports.Leaderboard) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(fromDomain(lb)).Error; err != nil {
			return err
		}
		if err := tx.Where("board_id = ?", lb.ID).Delete(&BoardElement{}).Error; err != nil {
			return err
		}
		seen := map[string]struct{}{}
		add := func(el string) error {
			if el == "" {
				return nil
			}
			if _, ok := seen[el]; ok {
				return nil
			}
			seen[el] = struct{}{}
			return tx.Create(&BoardElement{BoardID: lb.ID, ElementID: el}).Error
		}
		if err := add(lb.AggregateElementID); err != nil {
			return err
		}
		for _, el := range lb.AdditionalElementIDs {
			if err := add(el); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *Repo) ListBoards(ctx context.Context, gameID, branch string) ([]*ports.Leaderboard, error) {
	var arr []*Board
	err := r.db.WithContext(ctx).
		Where("game_id = ? AND branch = ?", gameID, branch).
		Order("id ASC").
		Find(&arr).Error
	if err != nil {
		return nil, err
	}
	out := make([]*ports.Leaderboard, 0, len(arr))
	for _, b := range arr {
		out = append(out, b.toDomain())
	}
	return out, nil
}

func (r *Repo) BoardsByElement(ctx context.Context, gameID, branch, elementID string) ([]*ports.Leaderboard, error) {
	var arr []*Board
	err := r.db.WithContext(ctx).
		Joins("JOIN leaderboard_elements le ON le.board_id = leaderboards.id").
		Where("leaderboards.game_id = ? AND leaderboards.branch = ? AND le.element_id = ?", gameID, branch, elementID).
		Find(&arr).Error
	if err != nil {
		return nil, err
	}
	out := make([]*ports.Leaderboard, 0, len(arr))
	for _, b := range arr {
		out = append(out, b.toDomain())
	}
	return out, nil
}

func (r *Repo) GetRow(ctx context.Context, p ports.Player, timeframeKey string) (*ports.Row, error) {
	var m BoardRow
	err := r.db.WithContext(ctx).
		Where("game_id = ? AND env = ? AND timeframe_key = ? AND client_id = ?",
			p.GameID, p.Env, timeframeKey, p.ClientID).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ports.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	row := m.toDomain()
	return &row, nil
}

func (r *Repo) UpsertRow(ctx context.Context, row *ports.Row) error {
	var addl []byte
	if len(row.Additional) > 0 {
		addl, _ = json.Marshal(row.Additional)
	}
	var m BoardRow
	err := r.db.WithContext(ctx).
		Where("game_id = ? AND env = ? AND timeframe_key = ? AND client_id = ?",
			row.Player.GameID, row.Player.Env, row.TimeframeKey, row.Player.ClientID).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		m = BoardRow{
			GameID:       row.Player.GameID,
			Env:          row.Player.Env,
			TimeframeKey: row.TimeframeKey,
			ClientID:     row.Player.ClientID,
			Score:        row.Score,
			Additional:   addl,
		}
		return r.db.WithContext(ctx).Create(&m).Error
	}
	if err != nil {
		return err
	}
	m.Score = row.Score
	m.Additional = addl
	return r.db.WithContext(ctx).Save(&m).Error
}

// TopRows returns up to limit rows ordered by score descending, then
// client_id ascending as the deterministic tie-break.
func (r *Repo) TopRows(ctx context.Context, gameID, env, timeframeKey string, limit int) ([]ports.Row, error) {
	var arr []BoardRow
	tx := r.db.WithContext(ctx).
		Where("game_id = ? AND env = ? AND timeframe_key = ?", gameID, env, timeframeKey).
		Order("score DESC").Order("client_id ASC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	if err := tx.Find(&arr).Error; err != nil {
		return nil, err
	}
	out := make([]ports.Row, 0, len(arr))
	for i := range arr {
		out = append(out, arr[i].toDomain())
	}
	return out, nil
}

func (r *Repo) RowsInTimeframe(ctx context.Context, gameID, env, timeframeKey string) ([]ports.Row, error) {
	return r.TopRows(ctx, gameID, env, timeframeKey, 0)
}

// DeleteRowsBefore purges rows last written before the current window start.
func (r *Repo) DeleteRowsBefore(ctx context.Context, gameID, env, timeframeKey string, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("game_id = ? AND env = ? AND timeframe_key = ? AND updated_at < ?",
			gameID, env, timeframeKey, cutoff).
		Delete(&BoardRow{})
	return res.RowsAffected, res.Error
}

// DeleteRowsForTimeframes removes rows of timeframes that no longer exist.
func (r *Repo) DeleteRowsForTimeframes(ctx context.Context, gameID string, keys []string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Where("game_id = ? AND timeframe_key IN ?", gameID, keys).
		Delete(&BoardRow{})
	return res.RowsAffected, res.Error
}

func (r *Repo) ListRowTimeframeKeys(ctx context.Context, gameID string) ([]string, error) {
	var keys []string
	err := r.db.WithContext(ctx).Model(&BoardRow{}).
		Distinct("timeframe_key").
		Where("game_id = ?", gameID).
		Pluck("timeframe_key", &keys).Error
	return keys, err
}

func (r *Repo) GetState(ctx context.Context, gameID, env, timeframeKey string) (*ports.TimeframeState, error) {
	var m TimeframeStateRow
	err := r.db.WithContext(ctx).
		Where("game_id = ? AND env = ? AND timeframe_key = ?", gameID, env, timeframeKey).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ports.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ports.TimeframeState{GameID: m.GameID, Env: m.Env, TimeframeKey: m.TimeframeKey, LastUpdate: m.LastUpdate}, nil
}

func (r *Repo) SetState(ctx context.Context, st *ports.TimeframeState) error {
	var m TimeframeStateRow
	err := r.db.WithContext(ctx).
		Where("game_id = ? AND env = ? AND timeframe_key = ?", st.GameID, st.Env, st.TimeframeKey).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		m = TimeframeStateRow{GameID: st.GameID, Env: st.Env, TimeframeKey: st.TimeframeKey, LastUpdate: st.LastUpdate}
		return r.db.WithContext(ctx).Create(&m).Error
	}
	if err != nil {
		return err
	}
	m.LastUpdate = st.LastUpdate
	return r.db.WithContext(ctx).Save(&m).Error
}

var _ ports.LeaderboardStore = (*Repo)(nil)
