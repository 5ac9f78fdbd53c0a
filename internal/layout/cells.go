package layout

import (
	"fmt"
	"math"

	"stele-slicer/internal/failure"
	"stele-slicer/internal/split"
	"stele-slicer/pkg/geometry"
)

// Cell is one character's provisional box, in page coordinates.
type Cell struct {
	Lane       int
	Position   int
	Box        geometry.Box
	SafeColumn geometry.Box // lane corridor over the whole page
	SafeRow    geometry.Box // corridor restricted to this cell's safe rows
	Split      split.Status
}

// Safe returns the hard bound any refined crop must stay inside.
func (c Cell) Safe() geometry.Box {
	return c.SafeColumn.Intersect(c.SafeRow)
}

// Cells splits every lane into counts[lane] cells over the common block
// extent and derives the per-cell safe rows. Cells come back in reading
// order. Lanes beyond len(counts) are skipped; missing lanes yield a
// conflict.
func (l *Layout) Cells(counts []int, p Params) ([]Cell, []failure.Conflict) {
	var cells []Cell
	var conflicts []failure.Conflict
	if len(counts) != len(l.Lanes) {
		conflicts = append(conflicts, failure.NewConflict(failure.LayoutDetectionFailure, "",
			fmt.Sprintf("layout has %d lanes but %d lane counts were given", len(l.Lanes), len(counts))))
	}
	for i, lane := range l.Lanes {
		if i >= len(counts) || counts[i] <= 0 {
			continue
		}
		n := counts[i]
		block := split.Widen(l.Block, n, l.canon.H)
		box := geometry.NewBox(lane.Span, block)
		profile := l.canon.RowProfile(box)
		res := split.SplitProfile(block, n, profile, p.Split)
		switch {
		case block != l.Block:
			res.Status = split.StatusInfeasible
			conflicts = append(conflicts, failure.NewConflict(failure.SplitConstraintViolation, "",
				fmt.Sprintf("lane %d: text block of %d px cannot hold %d cells; widened to %d px",
					i, l.Block.Len(), n, block.Len())).At(i, -1))
		case res.Status == split.StatusInfeasible:
			conflicts = append(conflicts, failure.NewConflict(failure.SplitConstraintViolation, "",
				fmt.Sprintf("lane %d: no valley selection satisfies %d cells of at least %d px; using uniform cells",
					i, n, p.Split.MinCell)).At(i, -1))
		case res.Status == split.StatusUniformFallback:
			conflicts = append(conflicts, failure.NewConflict(failure.LayoutDetectionFailure, "",
				fmt.Sprintf("lane %d: %d valleys for %d cells; using uniform cells", i, len(res.Candidates), n)).At(i, -1))
		}

		spans := res.Cells()
		rows := safeRows(spans, block, l.canon.H, p.BleedRatio)
		colBox := geometry.NewBox(lane.Corridor, geometry.Span{Lo: 0, Hi: l.canon.H})
		for j, s := range spans {
			cells = append(cells, Cell{
				Lane:       i,
				Position:   j,
				Box:        l.toPage(geometry.NewBox(lane.Span, s)),
				SafeColumn: l.toPage(colBox),
				SafeRow:    l.toPage(geometry.NewBox(lane.Corridor, rows[j])),
				Split:      res.Status,
			})
		}
	}
	return cells, conflicts
}

// SafeRows exposes the safe-row computation for a list of cell spans.
func SafeRows(cells []geometry.Span, block geometry.Span, limit int, bleed float64) []geometry.Span {
	return safeRows(cells, block, limit, bleed)
}

// safeRows bounds cell j by the midpoints to its neighbours' centres,
// widened by bleed * cell size, and clamped to the block extent plus one
// cell size and to the page.
func safeRows(cells []geometry.Span, block geometry.Span, limit int, bleed float64) []geometry.Span {
	out := make([]geometry.Span, len(cells))
	for j, c := range cells {
		size := float64(c.Len())
		lo := float64(c.Lo) - size/2
		hi := float64(c.Hi) + size/2
		if j > 0 {
			lo = (cells[j-1].Center() + c.Center()) / 2
		}
		if j < len(cells)-1 {
			hi = (c.Center() + cells[j+1].Center()) / 2
		}
		lo -= bleed * size
		hi += bleed * size
		lo = math.Max(lo, float64(block.Lo)-size)
		hi = math.Min(hi, float64(block.Hi)+size)
		out[j] = geometry.Span{
			Lo: max(0, int(math.Floor(lo))),
			Hi: min(limit, int(math.Ceil(hi))),
		}
	}
	return out
}
