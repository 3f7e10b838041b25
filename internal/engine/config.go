package engine

// DefaultThresholdBytes bounds the data touched by one base region.
const DefaultThresholdBytes = 32 << 10

// Config holds the tunables of a Stencil.
type Config struct {
	// ThresholdBytes is divided by the element size to give the largest
	// number of point updates in a base region.
	ThresholdBytes int

	// Codegen is the argv prefix of the kernel code generator. The planner
	// appends -order <color> <mode> <colorfile> <outfile>.
	Codegen []string
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		ThresholdBytes: DefaultThresholdBytes,
		Codegen:        []string{"stencil", "genkernels"},
	}
}

// threshold converts ThresholdBytes into points for elemSize-byte elements.
func (c Config) threshold(elemSize int) int {
	if elemSize <= 0 {
		elemSize = 1
	}
	return max(1, c.ThresholdBytes/elemSize)
}
