package segment

import (
	"testing"
	"time"

	"github.com/playforge/warehouse/internal/ports"
)

func leaf(elementID, op, value string) *ports.SegmentNode {
	return &ports.SegmentNode{Cond: &ports.SegmentCondition{ElementID: elementID, Op: op, Value: value}}
}

func leaf2(elementID, op, value, second string) *ports.SegmentNode {
	return &ports.SegmentNode{Cond: &ports.SegmentCondition{ElementID: elementID, Op: op, Value: value, SecondValue: second}}
}

func group(op string, children ...*ports.SegmentNode) *ports.SegmentNode {
	return &ports.SegmentNode{Operator: op, Children: children}
}

func snapWith(elements map[string]ports.Value) *Snapshot {
	snap := &Snapshot{Elements: map[string]*ports.Element{}, Segments: map[string]struct{}{}}
	for id, v := range elements {
		snap.Elements[id] = &ports.Element{ElementID: id, Value: v}
	}
	return snap
}

func TestEvaluateSingleNumericLeaf(t *testing.T) {
	root := leaf("level", ">=", "10")
	if !Evaluate(root, snapWith(map[string]ports.Value{"level": ports.IntValue(12)})) {
		t.Fatal("level=12 should satisfy level>=10")
	}
	if Evaluate(root, snapWith(map[string]ports.Value{"level": ports.IntValue(5)})) {
		t.Fatal("level=5 should not satisfy level>=10")
	}
}

func TestEvaluateNumericOperators(t *testing.T) {
	snap := snapWith(map[string]ports.Value{"v": ports.FloatValue(7)})
	cases := []struct {
		op, val, second string
		want            bool
	}{
		{"=", "7", "", true},
		{"=", "8", "", false},
		{"!=", "8", "", true},
		{">", "6", "", true},
		{"<", "6", "", false},
		{"<=", "7", "", true},
		{"range", "5", "9", true},
		{"range", "8", "9", false},
	}
	for _, c := range cases {
		if got := Evaluate(leaf2("v", c.op, c.val, c.second), snap); got != c.want {
			t.Errorf("op %q %q..%q: got %v, want %v", c.op, c.val, c.second, got, c.want)
		}
	}
}

func TestEvaluateStringAndBool(t *testing.T) {
	snap := snapWith(map[string]ports.Value{
		"tier":    ports.StringValue("gold"),
		"premium": ports.BoolValue(true),
	})
	if !Evaluate(leaf("tier", "is", "gold"), snap) {
		t.Fatal("string is")
	}
	if Evaluate(leaf("tier", "is", "silver"), snap) {
		t.Fatal("string is mismatch")
	}
	if !Evaluate(leaf("tier", "isNot", "silver"), snap) {
		t.Fatal("string isNot")
	}
	if !Evaluate(leaf("premium", "is", "true"), snap) {
		t.Fatal("bool is")
	}
	if Evaluate(leaf("premium", "is", "false"), snap) {
		t.Fatal("bool is mismatch")
	}
}

func TestEvaluateHistoryMembership(t *testing.T) {
	snap := snapWith(nil)
	snap.Elements["scores"] = &ports.Element{
		ElementID: "scores",
		Value:     ports.FloatValue(3),
		History: []ports.HistoryEntry{
			{Value: 5}, {Value: 1}, {Value: 3},
		},
	}
	if !Evaluate(leaf("scores", "includes", "5"), snap) {
		t.Fatal("includes")
	}
	if Evaluate(leaf("scores", "includes", "9"), snap) {
		t.Fatal("includes absent")
	}
	if !Evaluate(leaf("scores", "notIncludes", "9"), snap) {
		t.Fatal("notIncludes")
	}
}

func TestEvaluateDateRangeInclusive(t *testing.T) {
	snap := snapWith(map[string]ports.Value{
		"joined": ports.DateValue(time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)),
	})
	if !Evaluate(leaf2("joined", "date", "2024-03-01", "2024-03-15"), snap) {
		t.Fatal("upper bound is inclusive")
	}
	if !Evaluate(leaf2("joined", "date", "2024-03-15", "2024-04-01"), snap) {
		t.Fatal("lower bound is inclusive")
	}
	if Evaluate(leaf2("joined", "date", "2024-03-16", "2024-04-01"), snap) {
		t.Fatal("out of range")
	}
}

func TestEvaluateSegmentMembershipAllOf(t *testing.T) {
	snap := snapWith(nil)
	snap.Segments["s1"] = struct{}{}
	snap.Segments["s2"] = struct{}{}
	if !Evaluate(leaf("", "inSegment", "s1, s2"), snap) {
		t.Fatal("all listed segments present")
	}
	if Evaluate(leaf("", "inSegment", "s1,s3"), snap) {
		t.Fatal("one listed segment missing")
	}
	if !Evaluate(leaf("", "notInSegment", "s3,s4"), snap) {
		t.Fatal("none present")
	}
	if Evaluate(leaf("", "notInSegment", "s3,s1"), snap) {
		t.Fatal("one present")
	}
}

func TestEvaluateBooleanGroups(t *testing.T) {
	snap := snapWith(map[string]ports.Value{
		"level": ports.IntValue(12),
		"gold":  ports.IntValue(3),
	})
	and := group("and", leaf("level", ">=", "10"), leaf("gold", ">", "100"))
	if Evaluate(and, snap) {
		t.Fatal("and with one false child")
	}
	or := group("or", leaf("level", ">=", "10"), leaf("gold", ">", "100"))
	if !Evaluate(or, snap) {
		t.Fatal("or with one true child")
	}
	// Nested groups keep strict boolean semantics: two true or-branches do
	// not "overflow" into an enclosing and.
	nested := group("and",
		group("or", leaf("level", ">=", "10"), leaf("level", ">=", "1")),
		leaf("gold", ">", "100"),
	)
	if Evaluate(nested, snap) {
		t.Fatal("nested and must stay false when any child is false")
	}
}

func TestEvaluateAbsentDataFailsLeaf(t *testing.T) {
	snap := snapWith(nil)
	if Evaluate(leaf("missing", ">=", "1"), snap) {
		t.Fatal("missing element")
	}
	if Evaluate(nil, snap) {
		t.Fatal("nil tree")
	}
	if Evaluate(&ports.SegmentNode{Operator: "and"}, snap) {
		t.Fatal("empty group")
	}
}

func TestValidateDefinition(t *testing.T) {
	good := group("and", leaf("level", ">=", "10"), leaf("tier", "is", "gold"))
	if err := ValidateNode(good); err != nil {
		t.Fatalf("valid tree rejected: %v", err)
	}
	if err := ValidateNode(nil); err == nil {
		t.Fatal("nil tree accepted")
	}
	// A node must be a leaf or a group, never both, never neither.
	if err := ValidateNode(&ports.SegmentNode{Operator: "and"}); err == nil {
		t.Fatal("empty group accepted")
	}
	both := group("and", leaf("level", ">=", "10"))
	both.Cond = &ports.SegmentCondition{Op: ">=", Value: "1"}
	if err := ValidateNode(both); err == nil {
		t.Fatal("leaf+group hybrid accepted")
	}
	if err := ValidateDefinition([]byte(`{"cond":{"condition":"definitely-not-an-op","conditionValue":"1"}}`)); err == nil {
		t.Fatal("unknown operator accepted")
	}
}
