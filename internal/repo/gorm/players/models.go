package players

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/playforge/warehouse/internal/ports"
)

// PlayerElement is the durable row for one (player, element) pair. The value
// union is flattened into typed columns so statistic mutations can run as
// conditional SQL updates against num_value.
type PlayerElement struct {
	ID        uint   `gorm:"primaryKey"`
	GameID    string `gorm:"size:64;not null;uniqueIndex:ux_player_element,priority:1"`
	ClientID  string `gorm:"size:128;not null;uniqueIndex:ux_player_element,priority:2"`
	Env       string `gorm:"size:32;not null;uniqueIndex:ux_player_element,priority:3"`
	ElementID string `gorm:"size:64;not null;uniqueIndex:ux_player_element,priority:4"`

	Kind      string `gorm:"size:16;not null"`
	NumValue  float64
	StrValue  string `gorm:"type:text"`
	BoolValue bool
	DateValue *time.Time

	History datatypes.JSON `gorm:"type:json"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (PlayerElement) TableName() string { return "player_elements" }

func (m *PlayerElement) setValue(v ports.Value) {
	m.Kind = string(v.Kind)
	m.NumValue, m.StrValue, m.BoolValue, m.DateValue = 0, "", false, nil
	switch v.Kind {
	case ports.KindInt:
		m.NumValue = float64(v.Int)
	case ports.KindFloat:
		m.NumValue = v.Float
	case ports.KindString:
		m.StrValue = v.Str
	case ports.KindBool:
		m.BoolValue = v.Bool
	case ports.KindDate:
		t := v.Date
		m.DateValue = &t
	}
}

func (m *PlayerElement) value() ports.Value {
	switch ports.ValueKind(m.Kind) {
	case ports.KindInt:
		return ports.IntValue(int64(m.NumValue))
	case ports.KindFloat:
		return ports.FloatValue(m.NumValue)
	case ports.KindString:
		return ports.StringValue(m.StrValue)
	case ports.KindBool:
		return ports.BoolValue(m.BoolValue)
	case ports.KindDate:
		if m.DateValue != nil {
			return ports.DateValue(*m.DateValue)
		}
		return ports.DateValue(time.Time{})
	}
	return ports.Value{}
}

func (m *PlayerElement) setHistory(hist []ports.HistoryEntry) {
	if len(hist) == 0 {
		m.History = nil
		return
	}
	b, _ := json.Marshal(hist)
	m.History = b
}

func (m *PlayerElement) history() []ports.HistoryEntry {
	if len(m.History) == 0 {
		return nil
	}
	var hist []ports.HistoryEntry
	_ = json.Unmarshal(m.History, &hist)
	return hist
}

func (m *PlayerElement) toDomain() *ports.Element {
	return &ports.Element{
		Player:    ports.Player{GameID: m.GameID, ClientID: m.ClientID, Env: m.Env},
		ElementID: m.ElementID,
		Value:     m.value(),
		History:   m.history(),
		UpdatedAt: m.UpdatedAt,
	}
}
