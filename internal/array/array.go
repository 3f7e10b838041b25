// Package array is the reference storage container: a dense row-major
// array with one layer per live time step.
package array

import (
	"fmt"
	"reflect"

	"github.com/roach88/stencil/internal/ir"
)

// BoundaryFunc supplies the value read at an index outside the array.
type BoundaryFunc[T any] func(a *Array[T], t int, idx []int) T

// Array holds Toggle() time layers of a dense grid. Time t maps to layer
// t mod Toggle().
//
// Concurrent Set calls on disjoint points are safe; the schedule guarantees
// regions running together never write the same point.
type Array[T any] struct {
	name     string
	dims     []int
	strides  []int
	volume   int
	toggle   int
	data     []T
	boundary BoundaryFunc[T]
}

// New allocates a single-layer array with the given extents.
func New[T any](name string, dims []int) (*Array[T], error) {
	if len(dims) == 0 || len(dims) > ir.MaxRank {
		return nil, fmt.Errorf("array %s: rank %d out of range [1, %d]", name, len(dims), ir.MaxRank)
	}
	volume := 1
	for i, d := range dims {
		if d <= 0 {
			return nil, fmt.Errorf("array %s: extent %d on axis %d", name, d, i)
		}
		volume *= d
	}
	strides := make([]int, len(dims))
	acc := 1
	for i := len(dims) - 1; i >= 0; i-- {
		strides[i] = acc
		acc *= dims[i]
	}
	return &Array[T]{
		name:    name,
		dims:    append([]int(nil), dims...),
		strides: strides,
		volume:  volume,
		toggle:  1,
		data:    make([]T, volume),
	}, nil
}

// Name returns the array's label.
func (a *Array[T]) Name() string { return a.name }

// Rank returns the number of axes.
func (a *Array[T]) Rank() int { return len(a.dims) }

// Size returns the extent of axis.
func (a *Array[T]) Size(axis int) int { return a.dims[axis] }

// ElemSize returns the size of one element in bytes.
func (a *Array[T]) ElemSize() int { return int(reflect.TypeFor[T]().Size()) }

// Toggle returns the number of time layers held.
func (a *Array[T]) Toggle() int { return a.toggle }

// RegisterShape grows the layer count to cover the shape's time span.
// Existing layers keep their contents.
func (a *Array[T]) RegisterShape(shape []ir.Shift) {
	lo, hi := 0, 0
	for _, s := range shape {
		lo = min(lo, s.T())
		hi = max(hi, s.T())
	}
	toggle := hi - lo + 1
	if toggle <= a.toggle {
		return
	}
	data := make([]T, toggle*a.volume)
	copy(data, a.data)
	a.data = data
	a.toggle = toggle
}

// SetBoundary installs the function used for out-of-range reads.
func (a *Array[T]) SetBoundary(fn BoundaryFunc[T]) { a.boundary = fn }

// At reads the value at time t. Out-of-range reads go through the boundary
// function, or yield the zero value when none is set.
func (a *Array[T]) At(t int, idx ...int) T {
	off, ok := a.offset(t, idx)
	if !ok {
		if a.boundary != nil {
			return a.boundary(a, t, idx)
		}
		var zero T
		return zero
	}
	return a.data[off]
}

// Set writes v at time t. Writing outside the array panics.
func (a *Array[T]) Set(t int, v T, idx ...int) {
	off, ok := a.offset(t, idx)
	if !ok {
		panic(fmt.Sprintf("array %s: write outside extents %v at %v", a.name, a.dims, idx))
	}
	a.data[off] = v
}

// Fill sets every point of time layer t from fn.
func (a *Array[T]) Fill(t int, fn func(idx []int) T) {
	idx := make([]int, len(a.dims))
	for n := 0; n < a.volume; n++ {
		rem := n
		for i, s := range a.strides {
			idx[i] = rem / s
			rem %= s
		}
		a.Set(t, fn(idx), idx...)
	}
}

// Clear zeroes every layer.
func (a *Array[T]) Clear() { clear(a.data) }

// Snapshot copies the layer holding time t in row-major order.
func (a *Array[T]) Snapshot(t int) []T {
	base := a.layer(t) * a.volume
	return append([]T(nil), a.data[base:base+a.volume]...)
}

// Clone returns a deep copy sharing the boundary function.
func (a *Array[T]) Clone() *Array[T] {
	c := *a
	c.dims = append([]int(nil), a.dims...)
	c.strides = append([]int(nil), a.strides...)
	c.data = append([]T(nil), a.data...)
	return &c
}

func (a *Array[T]) layer(t int) int {
	l := t % a.toggle
	if l < 0 {
		l += a.toggle
	}
	return l
}

func (a *Array[T]) offset(t int, idx []int) (int, bool) {
	if len(idx) != len(a.dims) {
		panic(fmt.Sprintf("array %s: rank %d index %v", a.name, len(a.dims), idx))
	}
	off := a.layer(t) * a.volume
	for i, x := range idx {
		if x < 0 || x >= a.dims[i] {
			return 0, false
		}
		off += x * a.strides[i]
	}
	return off, true
}

// Constant returns a boundary function yielding v.
func Constant[T any](v T) BoundaryFunc[T] {
	return func(*Array[T], int, []int) T { return v }
}

// Clamp returns a boundary function reading the nearest in-range point.
func Clamp[T any]() BoundaryFunc[T] {
	return func(a *Array[T], t int, idx []int) T {
		c := make([]int, len(idx))
		for i, x := range idx {
			c[i] = min(max(x, 0), a.dims[i]-1)
		}
		return a.At(t, c...)
	}
}
