package ports

// SegmentCondition is one leaf comparison against a player's element,
// inventory, segment set or value history.
type SegmentCondition struct {
	ElementID   string `json:"elementId"`
	Op          string `json:"condition"`
	Value       string `json:"conditionValue"`
	SecondValue string `json:"conditionSecondaryValue,omitempty"`
}

// SegmentNode is a node of the condition tree: either a leaf with Cond set,
// or a group joining Children with Operator ("and"/"or").
type SegmentNode struct {
	Operator string            `json:"operator,omitempty"`
	Cond     *SegmentCondition `json:"cond,omitempty"`
	Children []*SegmentNode    `json:"children,omitempty"`
}

// Segment is a named cohort with incrementally maintained membership count.
type Segment struct {
	ID          string
	GameID      string
	Branch      string
	Name        string
	Root        *SegmentNode
	PlayerCount int64
}
