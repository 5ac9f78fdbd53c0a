// Package refine tightens a provisional cell into a crop box using
// directional ink evidence.
//
// Two masks drive the loop: the strict mask decides which ink belongs to the
// glyph (loose components that hold strict ink inside the cell), and the
// loose mask gives that ink its full extent, faint strokes included. Ink of
// the glyph that runs into the margin ring and continues past the context
// edge is contact evidence; the context grows on that side, up to the safe
// bound, and the pass repeats.
package refine

import (
	"sort"

	"stele-slicer/internal/ink"
	"stele-slicer/pkg/geometry"
)

// Side is one edge of a box.
type Side int

const (
	Left Side = iota
	Top
	Right
	Bottom
)

// Sides lists all sides in a fixed order.
var Sides = [4]Side{Left, Top, Right, Bottom}

func (s Side) String() string {
	switch s {
	case Left:
		return "left"
	case Top:
		return "top"
	case Right:
		return "right"
	case Bottom:
		return "bottom"
	}
	return "unknown"
}

// Params are the refiner tunables.
type Params struct {
	Margin          int     // default context margin around the cell
	Padding         int     // padding added around the final ink box
	MaxIterations   int     // expand-and-retry cap
	MinInk          int     // fewer strict pixels than this in the cell means missing
	MinComponent    int     // components smaller than this are speckle
	MultiGlyphRatio float64 // second component >= ratio * largest means multi_glyph
}

// DefaultParams returns the tuned defaults.
func DefaultParams() Params {
	return Params{
		Margin:          6,
		Padding:         2,
		MaxIterations:   3,
		MinInk:          12,
		MinComponent:    4,
		MultiGlyphRatio: 0.6,
	}
}

// WithMargin returns a copy with a different context margin.
func (p Params) WithMargin(n int) Params {
	p.Margin = n
	return p
}

// WithMaxIterations returns a copy with a different iteration cap.
func (p Params) WithMaxIterations(n int) Params {
	p.MaxIterations = n
	return p
}

// Evidence is the contact record of one side after the last pass.
type Evidence struct {
	Side         Side `json:"-"`
	Contact      int  `json:"contact"`      // glyph pixels in the ring strip on this side
	Continuation int  `json:"continuation"` // px the glyph continues past the context edge
	Headroom     int  `json:"headroom"`     // px left between the context edge and the safe bound
	Unresolved   bool `json:"unresolved"`
}

// Flags are the refiner's advisory findings.
type Flags struct {
	Missing    bool
	MultiGlyph bool
	Clipped    bool
}

// Result is the refined crop of one cell.
type Result struct {
	Box        geometry.Box // final crop box
	InkBox     geometry.Box // glyph extent in the last pass
	Context    geometry.Box // context box of the last pass
	Evidence   [4]Evidence
	Iterations int
	Flags      Flags
	Components int // significant strict components inside the cell
}

// Exhausted reports whether the loop ended with unresolved contact evidence.
func (r Result) Exhausted() bool {
	return r.Flags.Clipped
}

// Refine runs the bounded expand-and-retry loop for one cell. safe is the
// hard bound; the result box never leaves it.
func Refine(masks ink.Pair, cell, safe geometry.Box, p Params) Result {
	safe = safe.Intersect(masks.Loose.Bounds())
	core := cell.Intersect(safe)
	ctx := cell.Expand(p.Margin, p.Margin, p.Margin, p.Margin).Intersect(safe)

	res := Result{Box: core, Context: ctx}
	for iter := 1; iter <= max(1, p.MaxIterations); iter++ {
		res.Iterations = iter
		res.Context = ctx

		glyph := attached(masks, ctx, core, p.MinComponent)
		if glyph.strict < p.MinInk {
			res.Flags.Missing = true
			res.Box = core
			res.InkBox = geometry.Box{}
			return res
		}
		res.InkBox = glyph.box
		res.Components = glyph.significant
		res.Flags.MultiGlyph = multiGlyph(glyph.areas, p.MultiGlyphRatio)

		grow := [4]int{}
		pending := false
		for _, s := range Sides {
			ev := evidence(masks.Loose, glyph, s, ctx, core, safe)
			res.Evidence[s] = ev
			if ev.Unresolved && ev.Headroom > 0 {
				grow[s] = min(ev.Continuation, ev.Headroom)
				pending = true
			}
		}
		if !pending || iter == max(1, p.MaxIterations) {
			break
		}
		ctx = ctx.Expand(grow[Left], grow[Top], grow[Right], grow[Bottom]).Intersect(safe)
	}

	for _, ev := range res.Evidence {
		if ev.Unresolved {
			res.Flags.Clipped = true
		}
	}
	res.Box = Finalize(res.InkBox, safe, p.Padding)
	return res
}

// Finalize pads an ink box and clamps it to bound.
func Finalize(inkBox, bound geometry.Box, padding int) geometry.Box {
	return inkBox.Inset(-padding).Intersect(bound)
}

// glyphInk is the ink attributed to the cell's glyph within a context box.
type glyphInk struct {
	labels      *ink.Labels
	keep        map[int]bool
	box         geometry.Box
	strict      int
	areas       []int // strict areas of significant components, descending
	significant int
}

func (g glyphInk) at(x, y int) bool {
	return g.keep[g.labels.At(x, y)]
}

// attached finds loose components inside ctx that hold strict ink inside core.
func attached(masks ink.Pair, ctx, core geometry.Box, minComponent int) glyphInk {
	comps, labels := masks.Loose.Components(ctx)
	g := glyphInk{labels: labels, keep: map[int]bool{}}
	strictByLabel := map[int]int{}
	for y := core.Y0; y < core.Y1; y++ {
		for x := core.X0; x < core.X1; x++ {
			if masks.Strict.At(x, y) {
				if id := labels.At(x, y); id != 0 {
					strictByLabel[id]++
				}
			}
		}
	}
	for _, c := range comps {
		n := strictByLabel[c.Label]
		if n == 0 || c.Area < minComponent {
			continue
		}
		g.keep[c.Label] = true
		g.box = g.box.Union(c.Box)
		g.strict += n
		g.areas = append(g.areas, n)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(g.areas)))
	g.significant = len(g.areas)
	return g
}

func multiGlyph(areas []int, ratio float64) bool {
	return len(areas) >= 2 && float64(areas[1]) >= ratio*float64(areas[0])
}

// strip returns the ring strip between core and ctx on side s.
func strip(s Side, ctx, core geometry.Box) geometry.Box {
	switch s {
	case Left:
		return geometry.Box{X0: ctx.X0, Y0: ctx.Y0, X1: min(core.X0, ctx.X1), Y1: ctx.Y1}
	case Right:
		return geometry.Box{X0: max(core.X1, ctx.X0), Y0: ctx.Y0, X1: ctx.X1, Y1: ctx.Y1}
	case Top:
		return geometry.Box{X0: ctx.X0, Y0: ctx.Y0, X1: ctx.X1, Y1: min(core.Y0, ctx.Y1)}
	default:
		return geometry.Box{X0: ctx.X0, Y0: max(core.Y1, ctx.Y0), X1: ctx.X1, Y1: ctx.Y1}
	}
}

// evidence measures contact on one side and samples the page loose mask past
// the context edge to see how far the glyph continues.
func evidence(loose *ink.Mask, g glyphInk, s Side, ctx, core, safe geometry.Box) Evidence {
	ev := Evidence{Side: s}
	st := strip(s, ctx, core)
	for y := st.Y0; y < st.Y1; y++ {
		for x := st.X0; x < st.X1; x++ {
			if g.at(x, y) {
				ev.Contact++
			}
		}
	}

	// positions along the edge where glyph ink sits on the last ctx line
	var frontier []int
	var lineLen int
	switch s {
	case Left, Right:
		ev.Headroom = ctx.X0 - safe.X0
		edge := ctx.X0
		if s == Right {
			ev.Headroom = safe.X1 - ctx.X1
			edge = ctx.X1 - 1
		}
		lineLen = loose.H
		for y := ctx.Y0; y < ctx.Y1; y++ {
			if g.at(edge, y) {
				frontier = append(frontier, y)
			}
		}
	default:
		ev.Headroom = ctx.Y0 - safe.Y0
		edge := ctx.Y0
		if s == Bottom {
			ev.Headroom = safe.Y1 - ctx.Y1
			edge = ctx.Y1 - 1
		}
		lineLen = loose.W
		for x := ctx.X0; x < ctx.X1; x++ {
			if g.at(x, edge) {
				frontier = append(frontier, x)
			}
		}
	}
	if len(frontier) == 0 {
		return ev
	}

	// walk outward one line at a time, following 8-connected loose ink;
	// look one line past the headroom so ink crossing the safe bound
	// stays unresolved
	limit := ev.Headroom + 1
	for d := 1; d <= limit && len(frontier) > 0; d++ {
		seen := make(map[int]bool)
		var next []int
		for _, f := range frontier {
			for o := f - 1; o <= f+1; o++ {
				if o < 0 || o >= lineLen || seen[o] {
					continue
				}
				if looseAt(loose, s, ctx, d, o) {
					seen[o] = true
					next = append(next, o)
				}
			}
		}
		if len(next) == 0 {
			break
		}
		ev.Continuation = d
		frontier = next
	}
	ev.Unresolved = ev.Continuation > 0
	return ev
}

// looseAt reads the loose mask d lines outside ctx on side s, at offset o
// along that side.
func looseAt(loose *ink.Mask, s Side, ctx geometry.Box, d, o int) bool {
	switch s {
	case Left:
		return loose.At(ctx.X0-d, o)
	case Right:
		return loose.At(ctx.X1-1+d, o)
	case Top:
		return loose.At(o, ctx.Y0-d)
	default:
		return loose.At(o, ctx.Y1-1+d)
	}
}
