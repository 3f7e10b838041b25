package ir

// Version constants for persisted formats and the engine.
const (
	// PlanFormatVersion is the binary plan file format version.
	PlanFormatVersion = 1

	// SpecVersion is the compiled stencil spec schema version.
	SpecVersion = "1"

	// EngineVersion is the stencil engine version.
	EngineVersion = "0.1.0"
)
