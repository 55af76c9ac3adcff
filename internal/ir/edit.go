package ir

// Op names an edit operation. Edit records are the uniform currency between
// front-ends (CLI, scenario harness), the engine dispatcher and the journal.
type Op string

const (
	OpAddTrack     Op = "add_track"
	OpAddLayer     Op = "add_layer"
	OpRemoveLayer  Op = "remove_layer"
	OpMoveLayer    Op = "move_layer"
	OpAddElement   Op = "add"
	OpRemove       Op = "remove"
	OpMove         Op = "move"
	OpTrim         Op = "trim"
	OpSetPriority  Op = "set_priority"
	OpSetActive    Op = "set_active"
	OpCreateObject Op = "create_object"
	OpRemoveObject Op = "remove_object"
	OpMoveObject   Op = "move_object"
	OpTrimObject   Op = "trim_object"
	OpSplit        Op = "split"
	OpGroup        Op = "group"
	OpUngroup      Op = "ungroup"
	OpMoveToLayer  Op = "move_to_layer"
	OpSetKeyframe  Op = "set_keyframe"
	OpRemoveKey    Op = "remove_keyframe"
	OpSeek         Op = "seek"
	OpAssetInfo    Op = "asset_resolved"
)

// KnownOps lists every op the engine dispatches, in documentation order.
var KnownOps = []Op{
	OpAddTrack, OpAddLayer, OpRemoveLayer, OpMoveLayer,
	OpAddElement, OpRemove, OpMove, OpTrim, OpSetPriority, OpSetActive,
	OpCreateObject, OpRemoveObject, OpMoveObject, OpTrimObject,
	OpSplit, OpGroup, OpUngroup, OpMoveToLayer,
	OpSetKeyframe, OpRemoveKey, OpSeek, OpAssetInfo,
}

// EditRecord is one applied edit: the op, its fully resolved arguments
// (generated ids included) and the logical clock value it was applied at.
// Replaying the same records in Seq order rebuilds the same timeline.
type EditRecord struct {
	Seq  int64    `json:"seq"`
	Op   Op       `json:"op"`
	Args IRObject `json:"args"`
}
