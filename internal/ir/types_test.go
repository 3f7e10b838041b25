package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGridAdvance(t *testing.T) {
	g := Grid{X0: []int{2}, X1: []int{10}, DX0: []int{1}, DX1: []int{-1}}
	c := g.Clone()
	c.Advance(3)

	assert.Equal(t, []int{5}, c.X0)
	assert.Equal(t, []int{7}, c.X1)
	assert.Equal(t, []int{2}, g.X0, "Clone must not share storage")
	assert.Equal(t, 2, c.Volume())
}

func TestGridVolumeEmpty(t *testing.T) {
	g := Grid{X0: []int{0, 4}, X1: []int{10, 4}, DX0: []int{0, 0}, DX1: []int{0, 0}}
	assert.Equal(t, 0, g.Volume())
}

func TestGridValidate(t *testing.T) {
	assert.Error(t, Grid{}.Validate())
	assert.Error(t, Grid{X0: []int{0}, X1: []int{1, 2}, DX0: []int{0}, DX1: []int{0}}.Validate())
	assert.NoError(t, NewGrid(2).Validate())
}

func TestShiftAccessors(t *testing.T) {
	s := Shift{1, -1, 2}
	assert.Equal(t, 1, s.T())
	assert.Equal(t, -1, s.X(0))
	assert.Equal(t, 2, s.X(1))
	assert.Equal(t, 2, s.Rank())
}

func TestColorVectorAddUnique(t *testing.T) {
	var cv ColorVector
	assert.Equal(t, 0, cv.AddUnique(Homogeneity{O: 1, A: 1}))
	assert.Equal(t, 1, cv.AddUnique(Homogeneity{O: 0, A: 3}))
	assert.Equal(t, 0, cv.AddUnique(Homogeneity{O: 1, A: 1}))
	assert.Len(t, cv.Colors, 2)
	assert.True(t, cv.Colors[1].Heterogeneous())
	assert.Equal(t, 2, cv.Colors[1].Active())
}

func TestJSONFieldNaming(t *testing.T) {
	data, err := json.Marshal(Region{Index: 1, T0: 0, T1: 2, Grid: NewGrid(1)})
	require.NoError(t, err)

	assert.Contains(t, string(data), `"index"`)
	assert.Contains(t, string(data), `"t0"`)
	assert.Contains(t, string(data), `"dx1"`)
}

func TestSyncFromCounts(t *testing.T) {
	assert.Equal(t, []int{3, 5, SyncEnd}, SyncFromCounts([]int{3, 2}))
	assert.Equal(t, []int{SyncEnd}, SyncFromCounts(nil))
}

func TestPlanEpochs(t *testing.T) {
	p := &Plan{Regions: make([]Region, 5), Sync: []int{3, 5, SyncEnd}}
	epochs, err := p.Epochs()
	require.NoError(t, err)
	assert.Equal(t, []Epoch{{0, 3}, {3, 5}}, epochs)

	counts, err := p.Counts()
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2}, counts)
}

func TestPlanEpochsErrors(t *testing.T) {
	tests := []struct {
		name string
		sync []int
	}{
		{"missing sentinel", []int{3, 5}},
		{"non-increasing", []int{3, 3, SyncEnd}},
		{"past end", []int{6, SyncEnd}},
		{"early sentinel", []int{3, SyncEnd, 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Plan{Regions: make([]Region, 5), Sync: tt.sync}
			_, err := p.Epochs()
			assert.Error(t, err)
		})
	}
}

func TestPlanValidate(t *testing.T) {
	g := NewGrid(1)
	g.X1[0] = 10
	good := &Plan{
		Regions: []Region{{T0: 0, T1: 2, Grid: g}, {Index: 1, T0: 2, T1: 4, Grid: g}},
		Sync:    []int{1, 2, SyncEnd},
	}
	require.NoError(t, good.Validate())

	t0, t1 := good.TimeSpan()
	assert.Equal(t, 0, t0)
	assert.Equal(t, 4, t1)

	short := &Plan{Regions: good.Regions, Sync: []int{1, SyncEnd}}
	assert.Error(t, short.Validate(), "sync must cover every region")

	empty := &Plan{Regions: []Region{{T0: 2, T1: 2, Grid: g}}, Sync: []int{1, SyncEnd}}
	assert.Error(t, empty.Validate())

	neg := &Plan{Regions: []Region{{Index: -1, T0: 0, T1: 1, Grid: g}}, Sync: []int{1, SyncEnd}}
	assert.Error(t, neg.Validate())
}
