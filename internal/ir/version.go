package ir

// Version constants for edit records and the engine.
const (
	// IRVersion is the edit record schema version.
	IRVersion = "1"

	// EngineVersion is the stackline engine version.
	EngineVersion = "0.3.0"
)
