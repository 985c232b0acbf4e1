package leaderboards

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/playforge/warehouse/internal/ports"
)

// Board is the leaderboard configuration row. Element references are also
// mirrored into board_elements so lookups by element stay plain SQL instead
// of JSON containment queries.
type Board struct {
	ID     string `gorm:"primaryKey;size:64"`
	GameID string `gorm:"size:64;not null;index"`
	Branch string `gorm:"size:32;not null;index"`

	AggregateElementID   string         `gorm:"size:64"`
	AdditionalElementIDs datatypes.JSON `gorm:"type:json"`
	Timeframes           datatypes.JSON `gorm:"type:json"`

	AlternativeCalculation bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Board) TableName() string { return "leaderboards" }

// BoardElement mirrors one element reference of a board.
type BoardElement struct {
	BoardID   string `gorm:"primaryKey;size:64"`
	ElementID string `gorm:"primaryKey;size:64;index"`
}

func (BoardElement) TableName() string { return "leaderboard_elements" }

// BoardRow is one player's windowed score.
type BoardRow struct {
	ID           uint   `gorm:"primaryKey"`
	GameID       string `gorm:"size:64;not null;uniqueIndex:ux_board_row,priority:1"`
	Env          string `gorm:"size:32;not null;uniqueIndex:ux_board_row,priority:2"`
	TimeframeKey string `gorm:"size:64;not null;uniqueIndex:ux_board_row,priority:3;index"`
	ClientID     string `gorm:"size:128;not null;uniqueIndex:ux_board_row,priority:4"`

	Score      float64        `gorm:"index"`
	Additional datatypes.JSON `gorm:"type:json"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (BoardRow) TableName() string { return "leaderboard_rows" }

// TimeframeStateRow records the last rebuild time per (game, env, timeframe).
type TimeframeStateRow struct {
	ID           uint   `gorm:"primaryKey"`
	GameID       string `gorm:"size:64;not null;uniqueIndex:ux_tf_state,priority:1"`
	Env          string `gorm:"size:32;not null;uniqueIndex:ux_tf_state,priority:2"`
	TimeframeKey string `gorm:"size:64;not null;uniqueIndex:ux_tf_state,priority:3"`
	LastUpdate   time.Time
}

func (TimeframeStateRow) TableName() string { return "leaderboard_timeframe_states" }

func (b *Board) toDomain() *ports.Leaderboard {
	out := &ports.Leaderboard{
		ID:                     b.ID,
		GameID:                 b.GameID,
		Branch:                 b.Branch,
		AggregateElementID:     b.AggregateElementID,
		AlternativeCalculation: b.AlternativeCalculation,
	}
	if len(b.AdditionalElementIDs) > 0 {
		_ = json.Unmarshal(b.AdditionalElementIDs, &out.AdditionalElementIDs)
	}
	if len(b.Timeframes) > 0 {
		_ = json.Unmarshal(b.Timeframes, &out.Timeframes)
	}
	return out
}

func fromDomain(lb *ports.Leaderboard) *Board {
	b := &Board{
		ID:                     lb.ID,
		GameID:                 lb.GameID,
		Branch:                 lb.Branch,
		AggregateElementID:     lb.AggregateElementID,
		AlternativeCalculation: lb.AlternativeCalculation,
	}
	if len(lb.AdditionalElementIDs) > 0 {
		raw, _ := json.Marshal(lb.AdditionalElementIDs)
		b.AdditionalElementIDs = raw
	}
	if len(lb.Timeframes) > 0 {
		raw, _ := json.Marshal(lb.Timeframes)
		b.Timeframes = raw
	}
	return b
}

func (m *BoardRow) toDomain() ports.Row {
	row := ports.Row{
		Player:       ports.Player{GameID: m.GameID, ClientID: m.ClientID, Env: m.Env},
		TimeframeKey: m.TimeframeKey,
		Score:        m.Score,
		UpdatedAt:    m.UpdatedAt,
	}
	if len(m.Additional) > 0 {
		_ = json.Unmarshal(m.Additional, &row.Additional)
	}
	return row
}
