package harness

// RunResult records one execution of a scenario.
type RunResult struct {
	Mode    string `json:"mode"`
	Tiled   bool   `json:"tiled"`
	PlanID  string `json:"plan_id"`
	Color   int    `json:"color"`
	Regions int    `json:"regions"`
	Epochs  int    `json:"epochs"`
	// Colors is the number of distinct region indices of the plan.
	Colors   int     `json:"colors"`
	Checksum float64 `json:"checksum"`
	// MaxDiff is the largest deviation from the sequential sweep.
	MaxDiff float64 `json:"max_diff"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	Pass bool `json:"pass"`

	Stencil   string `json:"stencil"`
	Slope     []int  `json:"slope"`
	Toggle    int    `json:"toggle"`
	TimeShift int    `json:"time_shift"`
	Timesteps int    `json:"timesteps"`

	// Sweep is the checksum of the sequential reference sweep.
	Sweep float64 `json:"sweep"`

	// Runs holds one entry per scenario run, in order.
	Runs []RunResult `json:"runs"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Runs:   []RunResult{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddRun appends the record of one execution.
func (r *Result) AddRun(run RunResult) {
	r.Runs = append(r.Runs, run)
}
