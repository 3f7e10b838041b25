package ir

import "fmt"

// SyncEnd terminates a plan's sync vector. Valid offsets are never negative.
const SyncEnd = -1

// Plan is a linearized, replayable schedule: regions grouped into epochs by
// the sync vector, plus the color id of the catalog generation it was built
// from.
//
// Sync holds exclusive end offsets into Regions, one per epoch, strictly
// increasing, followed by SyncEnd.
type Plan struct {
	Regions []Region `json:"regions"`
	Sync    []int    `json:"sync"`
	Color   int      `json:"color"`
}

// Epoch is the half-open region index range [Begin, End) of one barrier-free
// run of regions.
type Epoch struct {
	Begin int
	End   int
}

// Len returns the number of regions in the epoch.
func (e Epoch) Len() int { return e.End - e.Begin }

// SyncFromCounts turns per-epoch region counts into prefix offsets
// terminated by SyncEnd.
func SyncFromCounts(counts []int) []int {
	sync := make([]int, 0, len(counts)+1)
	total := 0
	for _, c := range counts {
		total += c
		sync = append(sync, total)
	}
	return append(sync, SyncEnd)
}

// Epochs resolves the sync vector into region ranges.
func (p *Plan) Epochs() ([]Epoch, error) {
	var epochs []Epoch
	offset := 0
	for j, end := range p.Sync {
		if end == SyncEnd {
			if j != len(p.Sync)-1 {
				return nil, fmt.Errorf("sync vector: sentinel at %d of %d", j, len(p.Sync))
			}
			return epochs, nil
		}
		if end <= offset {
			return nil, fmt.Errorf("sync vector: offset %d at %d does not increase past %d", end, j, offset)
		}
		if end > len(p.Regions) {
			return nil, fmt.Errorf("sync vector: offset %d at %d exceeds %d regions", end, j, len(p.Regions))
		}
		epochs = append(epochs, Epoch{Begin: offset, End: end})
		offset = end
	}
	return nil, fmt.Errorf("sync vector: missing sentinel")
}

// Counts returns the number of regions per epoch.
func (p *Plan) Counts() ([]int, error) {
	epochs, err := p.Epochs()
	if err != nil {
		return nil, err
	}
	counts := make([]int, len(epochs))
	for i, e := range epochs {
		counts[i] = e.Len()
	}
	return counts, nil
}

// Rank returns the rank of the plan's grids, or 0 for an empty plan.
func (p *Plan) Rank() int {
	if len(p.Regions) == 0 {
		return 0
	}
	return p.Regions[0].Grid.Rank()
}

// Validate checks the structural invariants of a plan.
func (p *Plan) Validate() error {
	epochs, err := p.Epochs()
	if err != nil {
		return err
	}
	covered := 0
	if len(epochs) > 0 {
		covered = epochs[len(epochs)-1].End
	}
	if covered != len(p.Regions) {
		return fmt.Errorf("sync vector covers %d of %d regions", covered, len(p.Regions))
	}
	rank := p.Rank()
	for i, r := range p.Regions {
		if r.Index < 0 {
			return fmt.Errorf("region %d: negative index %d", i, r.Index)
		}
		if r.T0 >= r.T1 {
			return fmt.Errorf("region %d: empty time interval [%d, %d)", i, r.T0, r.T1)
		}
		if err := r.Grid.Validate(); err != nil {
			return fmt.Errorf("region %d: %w", i, err)
		}
		if r.Grid.Rank() != rank {
			return fmt.Errorf("region %d: rank %d, plan rank %d", i, r.Grid.Rank(), rank)
		}
	}
	return nil
}

// TimeSpan returns the smallest T0 and largest T1 over all regions.
func (p *Plan) TimeSpan() (t0, t1 int) {
	for i, r := range p.Regions {
		if i == 0 || r.T0 < t0 {
			t0 = r.T0
		}
		if i == 0 || r.T1 > t1 {
			t1 = r.T1
		}
	}
	return t0, t1
}
