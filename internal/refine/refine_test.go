package refine

import (
	"testing"

	"stele-slicer/internal/ink"
	"stele-slicer/pkg/geometry"
)

type canvas struct {
	strict, loose *ink.Mask
}

func newCanvas(w, h int) *canvas {
	return &canvas{strict: ink.NewMask(w, h), loose: ink.NewMask(w, h)}
}

// solid marks strict (and therefore loose) ink.
func (c *canvas) solid(b geometry.Box) {
	for y := b.Y0; y < b.Y1; y++ {
		for x := b.X0; x < b.X1; x++ {
			c.strict.Set(x, y, true)
			c.loose.Set(x, y, true)
		}
	}
}

// faint marks loose-only ink.
func (c *canvas) faint(b geometry.Box) {
	for y := b.Y0; y < b.Y1; y++ {
		for x := b.X0; x < b.X1; x++ {
			c.loose.Set(x, y, true)
		}
	}
}

func (c *canvas) pair() ink.Pair {
	return ink.Pair{Strict: c.strict, Loose: c.loose}
}

func TestRefineTightGlyph(t *testing.T) {
	c := newCanvas(100, 100)
	c.solid(geometry.Box{X0: 30, Y0: 30, X1: 50, Y1: 50})
	cell := geometry.Box{X0: 20, Y0: 20, X1: 60, Y1: 60}
	safe := geometry.Box{X0: 10, Y0: 10, X1: 70, Y1: 70}

	r := Refine(c.pair(), cell, safe, DefaultParams())
	if r.Flags != (Flags{}) {
		t.Fatalf("flags = %+v", r.Flags)
	}
	if want := (geometry.Box{X0: 28, Y0: 28, X1: 52, Y1: 52}); r.Box != want {
		t.Fatalf("box = %v, want %v", r.Box, want)
	}
	if r.Iterations != 1 {
		t.Fatalf("iterations = %d", r.Iterations)
	}
}

func TestRefineExpandsTowardFaintStroke(t *testing.T) {
	c := newCanvas(120, 100)
	c.solid(geometry.Box{X0: 28, Y0: 28, X1: 52, Y1: 52})
	// faint stroke leaves the glyph and ends 3 px past the default context
	c.faint(geometry.Box{X0: 52, Y0: 38, X1: 67, Y1: 42})
	cell := geometry.Box{X0: 20, Y0: 20, X1: 60, Y1: 60}
	p := DefaultParams().WithMargin(4)
	// context right edge is 64; 5 px of headroom to the safe bound
	safe := geometry.Box{X0: 0, Y0: 0, X1: 69, Y1: 100}

	r := Refine(c.pair(), cell, safe, p)
	if r.Flags.Clipped {
		t.Fatalf("clipped after expansion: %+v", r.Evidence)
	}
	if r.Iterations != 2 {
		t.Fatalf("iterations = %d, want 2", r.Iterations)
	}
	if r.Context.X1 != 67 {
		t.Fatalf("context right = %d, want 67 (expanded by 3)", r.Context.X1)
	}
	if r.InkBox.X1 != 67 {
		t.Fatalf("ink box = %v", r.InkBox)
	}
	if !safe.Contains(r.Box) {
		t.Fatalf("box %v escapes safe %v", r.Box, safe)
	}
	if r.Evidence[Right].Contact == 0 {
		t.Fatalf("expected right-side contact evidence")
	}
}

func TestRefineFlagsClippedWithoutHeadroom(t *testing.T) {
	c := newCanvas(120, 100)
	c.solid(geometry.Box{X0: 28, Y0: 28, X1: 52, Y1: 52})
	c.faint(geometry.Box{X0: 52, Y0: 38, X1: 90, Y1: 42})
	cell := geometry.Box{X0: 20, Y0: 20, X1: 60, Y1: 60}
	safe := geometry.Box{X0: 0, Y0: 0, X1: 64, Y1: 100}

	r := Refine(c.pair(), cell, safe, DefaultParams().WithMargin(4))
	if !r.Flags.Clipped || !r.Exhausted() {
		t.Fatalf("expected residual clipped flag")
	}
	if !r.Evidence[Right].Unresolved || r.Evidence[Right].Headroom != 0 {
		t.Fatalf("right evidence = %+v", r.Evidence[Right])
	}
	if r.Box.X1 > safe.X1 {
		t.Fatalf("box %v escapes safe bound", r.Box)
	}
}

func TestRefineIterationCap(t *testing.T) {
	c := newCanvas(200, 100)
	c.solid(geometry.Box{X0: 28, Y0: 28, X1: 52, Y1: 52})
	// a long faint stroke that needs more passes than allowed
	c.faint(geometry.Box{X0: 52, Y0: 38, X1: 150, Y1: 42})
	cell := geometry.Box{X0: 20, Y0: 20, X1: 60, Y1: 60}
	safe := geometry.Box{X0: 0, Y0: 0, X1: 200, Y1: 100}

	p := DefaultParams().WithMargin(4).WithMaxIterations(1)
	r := Refine(c.pair(), cell, safe, p)
	if r.Iterations != 1 || !r.Flags.Clipped {
		t.Fatalf("iterations %d clipped %v", r.Iterations, r.Flags.Clipped)
	}
}

func TestRefineMissing(t *testing.T) {
	c := newCanvas(100, 100)
	c.solid(geometry.Box{X0: 40, Y0: 40, X1: 42, Y1: 42})
	cell := geometry.Box{X0: 20, Y0: 20, X1: 60, Y1: 60}
	r := Refine(c.pair(), cell, geometry.Box{X0: 0, Y0: 0, X1: 100, Y1: 100}, DefaultParams())
	if !r.Flags.Missing {
		t.Fatalf("expected missing")
	}
	if r.Box != cell {
		t.Fatalf("missing crop should keep the provisional box, got %v", r.Box)
	}
}

func TestRefineMultiGlyph(t *testing.T) {
	c := newCanvas(100, 100)
	c.solid(geometry.Box{X0: 25, Y0: 22, X1: 55, Y1: 36})
	c.solid(geometry.Box{X0: 25, Y0: 44, X1: 55, Y1: 58})
	cell := geometry.Box{X0: 20, Y0: 20, X1: 60, Y1: 60}
	r := Refine(c.pair(), cell, geometry.Box{X0: 0, Y0: 0, X1: 100, Y1: 100}, DefaultParams())
	if !r.Flags.MultiGlyph || r.Components != 2 {
		t.Fatalf("flags %+v components %d", r.Flags, r.Components)
	}
}

func TestRefineIgnoresNeighbourNotTouchingGlyph(t *testing.T) {
	c := newCanvas(100, 100)
	c.solid(geometry.Box{X0: 30, Y0: 30, X1: 50, Y1: 50})
	// neighbour bleed in the ring, not connected to the glyph
	c.faint(geometry.Box{X0: 60, Y0: 20, X1: 66, Y1: 60})
	cell := geometry.Box{X0: 20, Y0: 20, X1: 60, Y1: 60}
	r := Refine(c.pair(), cell, geometry.Box{X0: 0, Y0: 0, X1: 100, Y1: 100}, DefaultParams())
	if r.Evidence[Right].Contact != 0 || r.Flags.Clipped {
		t.Fatalf("neighbour bleed counted as contact: %+v", r.Evidence[Right])
	}
	if r.Box.X1 != 52 {
		t.Fatalf("box = %v", r.Box)
	}
}
