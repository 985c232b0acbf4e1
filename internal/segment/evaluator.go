package segment

import (
	"strconv"
	"strings"
	"time"

	"github.com/playforge/warehouse/internal/ports"
)

// Snapshot is the player state a segment definition is evaluated against:
// current element values (inventory quantities are merged in as numeric
// pseudo-elements keyed by node ID) and the player's current segment set.
type Snapshot struct {
	Elements map[string]*ports.Element
	Segments map[string]struct{}
}

// Evaluate walks the condition tree with short-circuit boolean semantics.
// A group node requires all children (and) or at least one child (or); a
// leaf compares one element. Absent player data fails the leaf, it never
// errors.
func Evaluate(root *ports.SegmentNode, snap *Snapshot) bool {
	if root == nil {
		return false
	}
	if root.Cond != nil {
		return evalLeaf(root.Cond, snap)
	}
	if len(root.Children) == 0 {
		return false
	}
	if root.Operator == "or" {
		for _, c := range root.Children {
			if Evaluate(c, snap) {
				return true
			}
		}
		return false
	}
	// "and" is the default group operator.
	for _, c := range root.Children {
		if !Evaluate(c, snap) {
			return false
		}
	}
	return true
}

func evalLeaf(c *ports.SegmentCondition, snap *Snapshot) bool {
	switch c.Op {
	case "inSegment":
		// All-of: every listed segment must be in the player's set.
		for _, id := range splitList(c.Value) {
			if _, ok := snap.Segments[id]; !ok {
				return false
			}
		}
		return true
	case "notInSegment":
		for _, id := range splitList(c.Value) {
			if _, ok := snap.Segments[id]; ok {
				return false
			}
		}
		return true
	}

	el := snap.Elements[c.ElementID]
	if el == nil {
		return false
	}

	switch c.Op {
	case "is":
		switch el.Value.Kind {
		case ports.KindBool:
			want, err := strconv.ParseBool(c.Value)
			return err == nil && el.Value.Bool == want
		case ports.KindString:
			return el.Value.Str == c.Value
		}
		return false
	case "isNot":
		if el.Value.Kind != ports.KindString {
			return false
		}
		return el.Value.Str != c.Value
	case "includes", "notIncludes":
		want, err := strconv.ParseFloat(c.Value, 64)
		if err != nil {
			return false
		}
		found := false
		for _, h := range el.History {
			if h.Value == want {
				found = true
				break
			}
		}
		if c.Op == "includes" {
			return found
		}
		return !found
	case "date":
		if el.Value.Kind != ports.KindDate {
			return false
		}
		from, ok1 := parseDate(c.Value)
		to, ok2 := parseDate(c.SecondValue)
		if !ok1 || !ok2 {
			return false
		}
		d := el.Value.Date
		return !d.Before(from) && !d.After(to) // inclusive bounds
	}

	cur, ok := el.Value.Numeric()
	if !ok {
		return false
	}
	want, err := strconv.ParseFloat(c.Value, 64)
	if err != nil {
		return false
	}
	switch c.Op {
	case "=":
		return cur == want
	case "!=":
		return cur != want
	case ">":
		return cur > want
	case "<":
		return cur < want
	case ">=":
		return cur >= want
	case "<=":
		return cur <= want
	case "range":
		upper, err := strconv.ParseFloat(c.SecondValue, 64)
		if err != nil {
			return false
		}
		return cur >= want && cur <= upper
	}
	return false
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseDate(s string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true
	}
	return time.Time{}, false
}
