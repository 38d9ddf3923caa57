package ir

// Version constants for the graph schema and engine.
const (
	// SchemaVersion is the NodeSpec schema version.
	SchemaVersion = "1"

	// EngineVersion is the requex engine version.
	EngineVersion = "0.1.0"
)
