// Package layout finds reading lanes, their safe corridors and per-cell safe
// rows from ink-density projections.
//
// All analysis runs in a canonical vertical orientation: lanes are columns
// along x and cells run along y. Horizontal pages are transposed on the way
// in and every box is transposed back on the way out.
package layout

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"stele-slicer/internal/failure"
	"stele-slicer/internal/ink"
	"stele-slicer/internal/split"
	"stele-slicer/pkg/geometry"
)

// Direction is the reading direction of a page.
type Direction string

const (
	VerticalRTL   Direction = "vertical-rtl"   // columns right to left, cells top to bottom
	HorizontalLTR Direction = "horizontal-ltr" // rows top to bottom, cells left to right
)

// ParseDirection validates a direction name. Empty means vertical-rtl.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case "", VerticalRTL:
		return VerticalRTL, nil
	case HorizontalLTR:
		return HorizontalLTR, nil
	}
	return "", fmt.Errorf("unknown reading direction %q", s)
}

// Params are the layout tunables.
type Params struct {
	Smooth       int     // moving-average window for projections
	ValleyRatio  float64 // lane separators must be below ValleyRatio * mean density
	MinLaneRatio float64 // hintless mode merges lanes narrower than this * median width
	BlockDensity float64 // rows/columns above BlockDensity * max count as text block
	BleedRatio   float64 // safe rows widen by BleedRatio * cell size on each side
	Split        split.Params
}

// DefaultParams returns the tuned defaults.
func DefaultParams() Params {
	return Params{
		Smooth:       5,
		ValleyRatio:  0.35,
		MinLaneRatio: 0.5,
		BlockDensity: 0.05,
		BleedRatio:   0.15,
		Split:        split.DefaultParams(),
	}
}

// WithBleedRatio returns a copy with a different safe-row bleed ratio.
func (p Params) WithBleedRatio(r float64) Params {
	p.BleedRatio = r
	return p
}

// Lane is one reading lane in canonical coordinates.
type Lane struct {
	Index    int           // reading order
	Span     geometry.Span // lane extent across the lane axis
	Corridor geometry.Span // safe bound: midpoints to the neighbouring lane centres
}

// Center returns the lane centre.
func (l Lane) Center() float64 { return l.Span.Center() }

// Layout is the detected lane structure of one page.
type Layout struct {
	Direction Direction
	Page      geometry.Box  // page bounds in page coordinates
	Block     geometry.Span // text block extent along the cell axis (canonical)
	Lanes     []Lane        // reading order
	Status    split.Status
	Conflicts []failure.Conflict

	canon *ink.Mask // canonical-orientation mask
}

// Detect finds lanes on an ink mask. With hint > 0 exactly hint lanes are
// returned; otherwise the lane count follows the projection valleys.
func Detect(m *ink.Mask, dir Direction, hint int, p Params) *Layout {
	canon := m
	if dir == HorizontalLTR {
		canon = m.Transpose()
	}
	l := &Layout{Direction: dir, Page: m.Bounds(), canon: canon, Status: split.StatusOK}

	cols := canon.ColumnProfile(canon.Bounds())
	ext, ok := extent(cols, p.Smooth, p.BlockDensity)
	if !ok {
		ext = geometry.Span{Lo: 0, Hi: canon.W}
		l.warn(failure.LayoutDetectionFailure, "page has no ink; using the full page as one block")
	}
	rows := canon.RowProfile(geometry.Box{X0: ext.Lo, Y0: 0, X1: ext.Hi, Y1: canon.H})
	block, ok := extent(rows, p.Smooth, p.BlockDensity)
	if !ok {
		block = geometry.Span{Lo: 0, Hi: canon.H}
	}
	l.Block = block

	rel := split.Valleys(cols[ext.Lo:ext.Hi], p.Smooth, p.ValleyRatio)
	valleys := make([]int, len(rel))
	for i, v := range rel {
		valleys[i] = ext.Lo + v
	}

	var bounds []int
	if hint > 0 {
		sp := p.Split
		sp.MinCell = max(1, int(p.MinLaneRatio*float64(ext.Len())/float64(hint)))
		res := split.Split(split.Widen(ext, hint, canon.W), hint, valleys, sp)
		bounds = res.Bounds
		l.Status = res.Status
		if res.Status != split.StatusOK {
			l.warn(failure.LayoutDetectionFailure, fmt.Sprintf(
				"found %d usable separators for %d lanes; falling back to uniform lanes", len(res.Candidates), hint))
		}
	} else {
		bounds = append([]int{ext.Lo}, valleys...)
		bounds = append(bounds, ext.Hi)
		bounds = mergeNarrow(bounds, p.MinLaneRatio)
	}

	n := len(bounds) - 1
	lanes := make([]Lane, n)
	for i := 0; i < n; i++ {
		lanes[i].Span = geometry.Span{Lo: bounds[i], Hi: bounds[i+1]}
	}
	for i := range lanes {
		lanes[i].Corridor = corridor(lanes, i, canon.W)
	}
	if dir == VerticalRTL {
		for i, j := 0, n-1; i < j; i, j = i+1, j-1 {
			lanes[i], lanes[j] = lanes[j], lanes[i]
		}
	}
	for i := range lanes {
		lanes[i].Index = i
	}
	l.Lanes = lanes
	return l
}

func (l *Layout) warn(code failure.Code, msg string) {
	l.Conflicts = append(l.Conflicts, failure.NewConflict(code, "", msg))
}

// extent returns the trimmed range whose smoothed density exceeds frac * max.
func extent(profile []float64, smooth int, frac float64) (geometry.Span, bool) {
	s := split.Smooth(profile, smooth)
	if len(s) == 0 {
		return geometry.Span{}, false
	}
	peak := floats.Max(s)
	if peak <= 0 {
		return geometry.Span{}, false
	}
	limit := frac * peak
	lo, hi := -1, -1
	for i, v := range s {
		if v > limit {
			if lo < 0 {
				lo = i
			}
			hi = i + 1
		}
	}
	return geometry.Span{Lo: lo, Hi: hi}, true
}

// mergeNarrow removes separators around lanes narrower than ratio * median
// width, merging each into its narrower neighbour, until none remain.
func mergeNarrow(bounds []int, ratio float64) []int {
	for len(bounds) > 2 {
		widths := make([]float64, len(bounds)-1)
		for i := range widths {
			widths[i] = float64(bounds[i+1] - bounds[i])
		}
		sorted := append([]float64(nil), widths...)
		sort.Float64s(sorted)
		limit := ratio * stat.Quantile(0.5, stat.Empirical, sorted, nil)

		narrow := floats.MinIdx(widths)
		if widths[narrow] >= limit {
			break
		}
		// drop the separator shared with the narrower neighbour
		drop := narrow + 1
		switch {
		case narrow == 0:
			drop = 1
		case narrow == len(widths)-1:
			drop = narrow
		case widths[narrow-1] < widths[narrow+1]:
			drop = narrow
		}
		bounds = append(bounds[:drop], bounds[drop+1:]...)
	}
	return bounds
}

// corridor spans the midpoints between lane i's centre and its neighbours'.
// Outer lanes mirror the inner half-distance outward.
func corridor(lanes []Lane, i, limit int) geometry.Span {
	c := lanes[i].Center()
	var lo, hi float64
	switch {
	case len(lanes) == 1:
		return geometry.Span{Lo: 0, Hi: limit}
	case i == 0:
		half := (lanes[1].Center() - c) / 2
		lo, hi = c-half, c+half
	case i == len(lanes)-1:
		half := (c - lanes[i-1].Center()) / 2
		lo, hi = c-half, c+half
	default:
		lo = (lanes[i-1].Center() + c) / 2
		hi = (c + lanes[i+1].Center()) / 2
	}
	return geometry.Span{
		Lo: max(0, int(math.Floor(lo))),
		Hi: min(limit, int(math.Ceil(hi))),
	}
}

// toPage maps a canonical box to page coordinates.
func (l *Layout) toPage(b geometry.Box) geometry.Box {
	if l.Direction == HorizontalLTR {
		return b.Transpose()
	}
	return b
}

// LaneBox returns lane i's box in page coordinates.
func (l *Layout) LaneBox(i int) geometry.Box {
	return l.toPage(geometry.NewBox(l.Lanes[i].Span, l.Block))
}

// CorridorBox returns lane i's safe corridor over the whole page.
func (l *Layout) CorridorBox(i int) geometry.Box {
	return l.toPage(geometry.NewBox(l.Lanes[i].Corridor, geometry.Span{Lo: 0, Hi: l.canon.H}))
}
