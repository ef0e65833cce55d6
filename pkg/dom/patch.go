package dom

import "encoding/json"

// PatchOp is the type of a mutation recorded by an observer.
type PatchOp uint8

const (
	PatchSetText    PatchOp = 0x01 // Replace text content
	PatchSetAttr    PatchOp = 0x02 // Set/update attribute
	PatchRemoveAttr PatchOp = 0x03 // Remove attribute
	PatchInsertNode PatchOp = 0x04 // Insert markup at Index under Path
	PatchRemoveNode PatchOp = 0x05 // Remove node
	PatchSetHTML    PatchOp = 0x06 // Replace inner markup
)

// String returns the string representation of the PatchOp.
func (op PatchOp) String() string {
	switch op {
	case PatchSetText:
		return "SetText"
	case PatchSetAttr:
		return "SetAttr"
	case PatchRemoveAttr:
		return "RemoveAttr"
	case PatchInsertNode:
		return "InsertNode"
	case PatchRemoveNode:
		return "RemoveNode"
	case PatchSetHTML:
		return "SetHTML"
	default:
		return "Unknown"
	}
}

// MarshalJSON encodes the op by name.
func (op PatchOp) MarshalJSON() ([]byte, error) {
	return json.Marshal(op.String())
}

// Patch is a single mutation of an attached node. Path is the child index
// of each node on the way down from the document root, counting every node
// type.
type Patch struct {
	Op    PatchOp `json:"op"`
	Path  []int   `json:"path"`
	Key   string  `json:"key,omitempty"`
	Value string  `json:"value,omitempty"`
	Index int     `json:"index,omitempty"`
}
