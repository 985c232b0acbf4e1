package ports

// InventoryItem is one stack of a node in a player's inventory. Quantity is a
// non-negative arbitrary-precision integer encoded as a decimal string; it is
// never parsed into a fixed-width integer. Slot is nil for unslotted stacks.
type InventoryItem struct {
	NodeID   string `json:"nodeId"`
	Quantity string `json:"quantity"`
	Slot     *int   `json:"slot,omitempty"`
}
