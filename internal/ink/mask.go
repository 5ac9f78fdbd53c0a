// Package ink provides binary ink masks and the projections and connected
// component analysis the layout and crop stages are built on.
package ink

import (
	"stele-slicer/pkg/geometry"
)

// Mask is a binary ink mask with origin (0,0).
type Mask struct {
	W, H int
	Bits []bool
}

// NewMask allocates an empty mask.
func NewMask(w, h int) *Mask {
	return &Mask{W: w, H: h, Bits: make([]bool, w*h)}
}

// Bounds returns the full mask as a box.
func (m *Mask) Bounds() geometry.Box {
	return geometry.Box{X0: 0, Y0: 0, X1: m.W, Y1: m.H}
}

// At reports whether (x, y) is ink. Out-of-range pixels are not ink.
func (m *Mask) At(x, y int) bool {
	if x < 0 || y < 0 || x >= m.W || y >= m.H {
		return false
	}
	return m.Bits[y*m.W+x]
}

// Set marks (x, y).
func (m *Mask) Set(x, y int, v bool) {
	if x < 0 || y < 0 || x >= m.W || y >= m.H {
		return
	}
	m.Bits[y*m.W+x] = v
}

// Count returns the number of ink pixels inside box.
func (m *Mask) Count(box geometry.Box) int {
	box = box.Intersect(m.Bounds())
	n := 0
	for y := box.Y0; y < box.Y1; y++ {
		row := m.Bits[y*m.W:]
		for x := box.X0; x < box.X1; x++ {
			if row[x] {
				n++
			}
		}
	}
	return n
}

// BoundingBox returns the tight box around ink inside box.
func (m *Mask) BoundingBox(box geometry.Box) (geometry.Box, bool) {
	box = box.Intersect(m.Bounds())
	out := geometry.Box{X0: box.X1, Y0: box.Y1, X1: box.X0, Y1: box.Y0}
	found := false
	for y := box.Y0; y < box.Y1; y++ {
		row := m.Bits[y*m.W:]
		for x := box.X0; x < box.X1; x++ {
			if !row[x] {
				continue
			}
			found = true
			out.X0 = min(out.X0, x)
			out.Y0 = min(out.Y0, y)
			out.X1 = max(out.X1, x+1)
			out.Y1 = max(out.Y1, y+1)
		}
	}
	if !found {
		return geometry.Box{}, false
	}
	return out, true
}

// ColumnProfile returns, for each x in box, the number of ink pixels in that column.
func (m *Mask) ColumnProfile(box geometry.Box) []float64 {
	box = box.Intersect(m.Bounds())
	p := make([]float64, box.W())
	for y := box.Y0; y < box.Y1; y++ {
		row := m.Bits[y*m.W:]
		for x := box.X0; x < box.X1; x++ {
			if row[x] {
				p[x-box.X0]++
			}
		}
	}
	return p
}

// RowProfile returns, for each y in box, the number of ink pixels in that row.
func (m *Mask) RowProfile(box geometry.Box) []float64 {
	box = box.Intersect(m.Bounds())
	p := make([]float64, box.H())
	for y := box.Y0; y < box.Y1; y++ {
		row := m.Bits[y*m.W:]
		for x := box.X0; x < box.X1; x++ {
			if row[x] {
				p[y-box.Y0]++
			}
		}
	}
	return p
}

// Transpose returns a new mask with the axes swapped.
func (m *Mask) Transpose() *Mask {
	t := NewMask(m.H, m.W)
	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			if m.Bits[y*m.W+x] {
				t.Bits[x*t.W+y] = true
			}
		}
	}
	return t
}

// Sub copies the region box into a new mask with origin at box.X0, box.Y0.
func (m *Mask) Sub(box geometry.Box) *Mask {
	box = box.Intersect(m.Bounds())
	s := NewMask(box.W(), box.H())
	for y := box.Y0; y < box.Y1; y++ {
		copy(s.Bits[(y-box.Y0)*s.W:(y-box.Y0+1)*s.W], m.Bits[y*m.W+box.X0:y*m.W+box.X1])
	}
	return s
}
