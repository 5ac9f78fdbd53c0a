package ink

import (
	"image"
	"testing"

	"stele-slicer/pkg/geometry"
)

func grayFilled(w, h int, v uint8) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, w, h))
	for i := range g.Pix {
		g.Pix[i] = v
	}
	return g
}

func fill(g *image.Gray, b geometry.Box, v uint8) {
	for y := b.Y0; y < b.Y1; y++ {
		for x := b.X0; x < b.X1; x++ {
			g.Pix[y*g.Stride+x] = v
		}
	}
}

func TestOtsuSeparatesTwoLevels(t *testing.T) {
	g := grayFilled(40, 40, 230)
	fill(g, geometry.Box{X0: 5, Y0: 5, X1: 20, Y1: 20}, 20)
	level := Otsu{}.Level(g)
	if level <= 20 || level > 230 {
		t.Fatalf("level %d does not separate 20 and 230", level)
	}
	if level != 125 {
		t.Fatalf("level = %d, want the middle of the tie run (125)", level)
	}
	m := Threshold(g, level)
	if got := m.Count(m.Bounds()); got != 15*15 {
		t.Fatalf("ink count = %d, want %d", got, 15*15)
	}

	pair, base := Masks(g, Otsu{}, 24, 32)
	if base != level {
		t.Fatalf("Masks base = %d, want %d", base, level)
	}
	if pair.Strict.Count(pair.Strict.Bounds()) != 15*15 || pair.Loose.Count(pair.Loose.Bounds()) != 15*15 {
		t.Fatalf("strict/loose masks disagree on a two-tone image")
	}
}

func TestOtsuWithBlurStillSeparates(t *testing.T) {
	g := grayFilled(60, 60, 230)
	fill(g, geometry.Box{X0: 10, Y0: 10, X1: 40, Y1: 40}, 20)
	level := Otsu{BlurKernel: 5}.Level(g)
	if level <= 20 || level > 230 {
		t.Fatalf("blurred level %d does not separate 20 and 230", level)
	}
	m := Threshold(g, level)
	if !m.At(25, 25) || m.At(50, 50) {
		t.Fatalf("blurred level %d misclassifies glyph or ground", level)
	}
}

func TestThresholdIsStrictlyBelowLevel(t *testing.T) {
	g := grayFilled(4, 1, 0)
	g.Pix[0], g.Pix[1], g.Pix[2], g.Pix[3] = 99, 100, 101, 0
	m := Threshold(g, 100)
	if !m.At(0, 0) || m.At(1, 0) || m.At(2, 0) || !m.At(3, 0) {
		t.Fatalf("threshold at 100 = %v", m.Bits)
	}
	if n := Threshold(g, 0).Count(m.Bounds()); n != 0 {
		t.Fatalf("level 0 marked %d pixels", n)
	}
}

func TestGapLevel(t *testing.T) {
	hist := make([]float64, 256)
	hist[40], hist[200] = 10, 30
	for _, split := range []int{40, 90, 199} {
		if got := gapLevel(hist, split); got != 120 {
			t.Fatalf("gapLevel(split %d) = %d, want 120", split, got)
		}
	}
	hist[41] = 1
	if got := gapLevel(hist, 40); got != 41 {
		t.Fatalf("adjacent bins: level %d, want 41", got)
	}
}

func TestLevelsClamp(t *testing.T) {
	s, l := Levels(10, 40, 300)
	if s != 1 || l != 255 {
		t.Fatalf("Levels clamp = %d,%d", s, l)
	}
}

func TestProfilesAndBoundingBox(t *testing.T) {
	m := NewMask(10, 8)
	for y := 2; y < 5; y++ {
		for x := 3; x < 7; x++ {
			m.Set(x, y, true)
		}
	}
	bb, ok := m.BoundingBox(m.Bounds())
	if !ok || bb != (geometry.Box{X0: 3, Y0: 2, X1: 7, Y1: 5}) {
		t.Fatalf("bounding box = %v %v", bb, ok)
	}
	cols := m.ColumnProfile(m.Bounds())
	if cols[3] != 3 || cols[0] != 0 {
		t.Fatalf("column profile = %v", cols)
	}
	rows := m.RowProfile(geometry.Box{X0: 0, Y0: 2, X1: 10, Y1: 4})
	if len(rows) != 2 || rows[0] != 4 {
		t.Fatalf("row profile = %v", rows)
	}
	tr := m.Transpose()
	if tr.W != 8 || tr.H != 10 || !tr.At(2, 3) || tr.At(3, 2) {
		t.Fatalf("transpose mismatch")
	}
	if _, ok := m.BoundingBox(geometry.Box{X0: 8, Y0: 0, X1: 10, Y1: 8}); ok {
		t.Fatalf("expected no ink in right strip")
	}
}

func TestComponentsOrderedByArea(t *testing.T) {
	m := NewMask(20, 20)
	// small blob first in scan order
	m.Set(1, 1, true)
	m.Set(2, 2, true) // diagonal: same component under 8-connectivity
	for y := 10; y < 15; y++ {
		for x := 10; x < 15; x++ {
			m.Set(x, y, true)
		}
	}
	comps, labels := m.Components(geometry.Box{X0: 0, Y0: 0, X1: 20, Y1: 20})
	if len(comps) != 2 {
		t.Fatalf("got %d components, want 2", len(comps))
	}
	if comps[0].Area != 25 || comps[1].Area != 2 {
		t.Fatalf("areas = %d,%d", comps[0].Area, comps[1].Area)
	}
	if comps[0].Box != (geometry.Box{X0: 10, Y0: 10, X1: 15, Y1: 15}) {
		t.Fatalf("box = %v", comps[0].Box)
	}
	if comps[0].Centroid.X != 12.5 || comps[0].Centroid.Y != 12.5 {
		t.Fatalf("centroid = %+v", comps[0].Centroid)
	}
	if labels.At(12, 12) != comps[0].Label || labels.At(0, 0) != 0 {
		t.Fatalf("label lookup mismatch")
	}
}

func TestComponentsLabelInScanOrder(t *testing.T) {
	m := NewMask(12, 6)
	// equal areas: the first one met in a raster scan keeps label 1
	for _, p := range [][2]int{{8, 1}, {9, 1}, {1, 4}, {2, 4}} {
		m.Set(p[0], p[1], true)
	}
	comps, labels := m.Components(m.Bounds())
	if len(comps) != 2 || comps[0].Label != 1 || comps[0].Box.X0 != 8 || comps[1].Box.Y0 != 4 {
		t.Fatalf("components = %+v", comps)
	}
	if labels.At(9, 1) != 1 || labels.At(2, 4) != 2 {
		t.Fatalf("labels disagree with scan order")
	}
}

func TestComponentsInSubRegionUseAbsoluteCoordinates(t *testing.T) {
	m := NewMask(30, 30)
	for y := 20; y < 22; y++ {
		for x := 20; x < 23; x++ {
			m.Set(x, y, true)
		}
	}
	comps, labels := m.Components(geometry.Box{X0: 15, Y0: 15, X1: 30, Y1: 30})
	if len(comps) != 1 {
		t.Fatalf("got %d components", len(comps))
	}
	if comps[0].Box != (geometry.Box{X0: 20, Y0: 20, X1: 23, Y1: 22}) {
		t.Fatalf("box = %v", comps[0].Box)
	}
	if labels.At(21, 21) == 0 {
		t.Fatalf("expected label at absolute coordinate")
	}
}
