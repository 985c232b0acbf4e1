package segments

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/playforge/warehouse/internal/ports"
)

// SegmentRow stores a segment definition. The condition tree is JSON; the
// element references inside it are mirrored into segment_elements so
// "segments touching element X" stays a join, not a JSON scan.
type SegmentRow struct {
	ID     string `gorm:"primaryKey;size:64"`
	GameID string `gorm:"size:64;not null;index"`
	Branch string `gorm:"size:32;not null;index"`
	Name   string `gorm:"size:128"`

	Definition  datatypes.JSON `gorm:"type:json"`
	PlayerCount int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (SegmentRow) TableName() string { return "segments" }

// SegmentElement mirrors one element reference of a segment's tree.
type SegmentElement struct {
	SegmentID string `gorm:"primaryKey;size:64"`
	ElementID string `gorm:"primaryKey;size:64;index"`
}

func (SegmentElement) TableName() string { return "segment_elements" }

func (m *SegmentRow) toDomain() *ports.Segment {
	s := &ports.Segment{
		ID:          m.ID,
		GameID:      m.GameID,
		Branch:      m.Branch,
		Name:        m.Name,
		PlayerCount: m.PlayerCount,
	}
	if len(m.Definition) > 0 {
		var root ports.SegmentNode
		if err := json.Unmarshal(m.Definition, &root); err == nil {
			s.Root = &root
		}
	}
	return s
}

// ElementIDs walks a condition tree and collects referenced element IDs,
// skipping segment-membership conditions (those reference segments, not
// elements).
func ElementIDs(n *ports.SegmentNode) []string {
	seen := map[string]struct{}{}
	var walk func(*ports.SegmentNode)
	walk = func(n *ports.SegmentNode) {
		if n == nil {
			return
		}
		if n.Cond != nil && n.Cond.ElementID != "" {
			switch n.Cond.Op {
			case "inSegment", "notInSegment":
			default:
				seen[n.Cond.ElementID] = struct{}{}
			}
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(n)
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	return out
}
