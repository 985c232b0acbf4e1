package templates

import (
	"time"

	"github.com/playforge/warehouse/internal/ports"
)

// TemplateRow is a designer-configured element definition scoped to a
// (game, branch) pair.
type TemplateRow struct {
	ID        uint   `gorm:"primaryKey"`
	GameID    string `gorm:"size:64;not null;uniqueIndex:ux_template,priority:1"`
	Branch    string `gorm:"size:32;not null;uniqueIndex:ux_template,priority:2"`
	ElementID string `gorm:"size:64;not null;uniqueIndex:ux_template,priority:3"`

	Kind       string `gorm:"size:16;not null"`
	ValueKind  string `gorm:"size:16;not null"`
	DefaultRaw string `gorm:"type:text"` // JSON-encoded ports.Value
	RangeMin   *float64
	RangeMax   *float64
	Method     string `gorm:"size:16"`
	WindowDays int

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (TemplateRow) TableName() string { return "element_templates" }

func (m *TemplateRow) toDomain() (*ports.Template, error) {
	t := &ports.Template{
		ID:         m.ElementID,
		Kind:       ports.TemplateKind(m.Kind),
		ValueKind:  ports.ValueKind(m.ValueKind),
		RangeMin:   m.RangeMin,
		RangeMax:   m.RangeMax,
		Method:     ports.AggregateMethod(m.Method),
		WindowDays: m.WindowDays,
	}
	if m.DefaultRaw != "" {
		if err := t.Default.UnmarshalJSON([]byte(m.DefaultRaw)); err != nil {
			return nil, err
		}
	} else {
		t.Default = ports.Value{Kind: t.ValueKind}
	}
	return t, nil
}
