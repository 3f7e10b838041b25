package ir

// StencilSpec is a compiled declarative stencil description.
//
// Guard and kernel bodies are Go expressions over the time variable t and
// the axis variables i, j, k (axes 0, 1, 2). Array reads are written as
// calls: u(t, i-1). Generated kernel modules embed them verbatim.
type StencilSpec struct {
	Name      string      `json:"name"`
	Rank      int         `json:"rank"`
	Arrays    []ArraySpec `json:"arrays"`
	Shape     []Shift     `json:"shape"`
	Guards    []GuardSpec `json:"guards"`
	Tiles     []TileSpec  `json:"tiles"`
	Domain    []Domain    `json:"domain,omitempty"`
	Timesteps int         `json:"timesteps,omitempty"`
}

// ArraySpec declares one storage container.
type ArraySpec struct {
	Name string `json:"name"`
	Dims []int  `json:"dims"`
	// Init is an optional expression over i, j, k for the value at t=0.
	Init string `json:"init,omitempty"`
	// Boundary selects out-of-range reads: "zero" (default) or "clamp".
	Boundary string `json:"boundary,omitempty"`
}

// GuardSpec declares a named spatial predicate.
type GuardSpec struct {
	Name string `json:"name"`
	Expr string `json:"expr"`
}

// TileSpec binds a guard to a row-major tile of kernels.
type TileSpec struct {
	Guard   string       `json:"guard"`
	Dims    []int        `json:"dims"`
	Kernels []KernelSpec `json:"kernels"`
}

// KernelSpec is one per-cell update: Array(At, i, ...) = Expr.
type KernelSpec struct {
	Name  string  `json:"name"`
	Array string  `json:"array"`
	At    string  `json:"at"`
	Expr  string  `json:"expr"`
	Shape []Shift `json:"shape,omitempty"`
}

// GuardIndex returns the position of the named guard, or -1.
func (s *StencilSpec) GuardIndex(name string) int {
	for i, g := range s.Guards {
		if g.Name == name {
			return i
		}
	}
	return -1
}

// ArrayIndex returns the position of the named array, or -1.
func (s *StencilSpec) ArrayIndex(name string) int {
	for i, a := range s.Arrays {
		if a.Name == name {
			return i
		}
	}
	return -1
}

// KernelShape returns the kernel's own shape, falling back to the stencil
// shape.
func (s *StencilSpec) KernelShape(k KernelSpec) []Shift {
	if len(k.Shape) > 0 {
		return k.Shape
	}
	return s.Shape
}
