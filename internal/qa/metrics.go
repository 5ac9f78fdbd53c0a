package qa

import (
	"image"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"stele-slicer/internal/ink"
	"stele-slicer/pkg/geometry"
)

// Mode selects the flag thresholds.
type Mode string

const (
	Strict  Mode = "strict"
	Lenient Mode = "lenient"
)

// Params are the QA tunables. Thresholds are for strict mode; lenient mode
// doubles them.
type Params struct {
	Mode             Mode
	RingWidth        int     // ring around the context box searched for contact ink
	ContactThreshold int     // contact pixels above this flag clipped
	RingGate         int     // raw ring pixels needed before an edge touch counts
	OffCenterPx      float64 // centroid offset on the canvas above this flags off_center
	MaxComponents    int     // components above this flag multi_glyph
	MinInk           int     // fewer ink pixels than this on the canvas flags missing
	MinComponent     int     // speckle size on the canvas
	Level            uint8   // ink level on the normalized image
	LooseLevel       uint8   // faint-ink level for the edge-touch test
}

// DefaultParams returns strict-mode defaults.
func DefaultParams() Params {
	return Params{
		Mode:             Strict,
		RingWidth:        4,
		ContactThreshold: 3,
		RingGate:         8,
		OffCenterPx:      6,
		MaxComponents:    8,
		MinInk:           40,
		MinComponent:     4,
		Level:            128,
		LooseLevel:       170,
	}
}

// WithMode returns a copy in a different mode.
func (p Params) WithMode(m Mode) Params {
	p.Mode = m
	return p
}

// levels returns the ink and faint-ink levels for a normalized image. A
// known page level replaces Level and keeps the configured loose margin.
func (p Params) levels(page uint8) (strict, loose uint8) {
	if page == 0 {
		return p.Level, p.LooseLevel
	}
	l := int(page) + int(p.LooseLevel) - int(p.Level)
	return page, uint8(min(255, max(int(page), l)))
}

// Effective returns the thresholds in force for the configured mode.
func (p Params) Effective() Params {
	if p.Mode != Lenient {
		return p
	}
	p.ContactThreshold *= 2
	p.RingGate *= 2
	p.OffCenterPx *= 2
	p.MaxComponents *= 2
	p.MinInk /= 2
	return p
}

// Metrics is the per-file measurement record.
type Metrics struct {
	OuterRingContactInk int        `json:"outer_ring_contact_ink"`
	OuterRingInk        int        `json:"outer_ring_ink"`
	EdgeTouchLoose      bool       `json:"edge_touch_loose"`
	CenterOffset        [2]float64 `json:"center_offset"`
	CCCount             int        `json:"cc_count"`
	InkPixels           int        `json:"ink_pixels"`
}

// Input is everything measured for one output file.
type Input struct {
	File     string
	Index    int
	Masks    ink.Pair     // page masks
	Cell     geometry.Box // provisional cell
	Context  geometry.Box // last refinement context
	Crop     geometry.Box // final crop box
	Image    *image.Gray  // normalized output
	Level    uint8        // page ink level the image was normalized with; 0 means Params.Level
	Refined  RefineFlags
	Verified bool
	Override bool
}

// RefineFlags carries the refiner's own findings into QA.
type RefineFlags struct {
	Missing    bool `json:"missing"`
	MultiGlyph bool `json:"multi_glyph"`
	Clipped    bool `json:"clipped"`
	Iterations int  `json:"iterations"`
}

// ContactInk measures ink outside crop within the context box widened by
// ring. contact counts loose pixels of components that hold strict ink inside
// the cell; ring counts all loose pixels. Both only grow as crop shrinks.
func ContactInk(masks ink.Pair, cell, context, crop geometry.Box, ring int) (contact, raw int) {
	region := context.Union(crop).Inset(-ring).Intersect(masks.Loose.Bounds())
	_, labels := masks.Loose.Components(region)
	core := cell.Intersect(region)

	glyph := map[int]bool{}
	for y := core.Y0; y < core.Y1; y++ {
		for x := core.X0; x < core.X1; x++ {
			if masks.Strict.At(x, y) {
				glyph[labels.At(x, y)] = true
			}
		}
	}
	delete(glyph, 0)

	for y := region.Y0; y < region.Y1; y++ {
		for x := region.X0; x < region.X1; x++ {
			if crop.ContainsPoint(x, y) || !masks.Loose.At(x, y) {
				continue
			}
			raw++
			if glyph[labels.At(x, y)] {
				contact++
			}
		}
	}
	return contact, raw
}

// Measure computes the metrics of one file.
func Measure(in Input, p Params) Metrics {
	var m Metrics
	if in.Masks.Loose != nil {
		m.OuterRingContactInk, m.OuterRingInk = ContactInk(in.Masks, in.Cell, in.Context, in.Crop, p.RingWidth)
	}
	if in.Image == nil {
		return m
	}

	strictLevel, looseLevel := p.levels(in.Level)
	strict := ink.Threshold(in.Image, strictLevel)
	comps, _ := strict.Components(strict.Bounds())
	comps = ink.Significant(comps, p.MinComponent)
	m.CCCount = len(comps)

	xs := make([]float64, len(comps))
	ys := make([]float64, len(comps))
	areas := make([]float64, len(comps))
	for i, c := range comps {
		xs[i], ys[i], areas[i] = c.Centroid.X, c.Centroid.Y, float64(c.Area)
	}
	m.InkPixels = int(floats.Sum(areas))
	if m.InkPixels > 0 {
		cx := float64(strict.W) / 2
		cy := float64(strict.H) / 2
		m.CenterOffset = [2]float64{round3(stat.Mean(xs, areas) - cx), round3(stat.Mean(ys, areas) - cy)}
	}

	loose := ink.Threshold(in.Image, looseLevel)
	w, h := loose.W, loose.H
	edges := []geometry.Box{
		{X0: 0, Y0: 0, X1: w, Y1: 1},
		{X0: 0, Y0: h - 1, X1: w, Y1: h},
		{X0: 0, Y0: 0, X1: 1, Y1: h},
		{X0: w - 1, Y0: 0, X1: w, Y1: h},
	}
	for _, e := range edges {
		if loose.Count(e) > 0 {
			m.EdgeTouchLoose = true
			break
		}
	}
	return m
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// Derive turns metrics into flags. Flags are independent and may co-occur.
func Derive(m Metrics, in Input, regression map[string]bool, p Params) Flags {
	e := p.Effective()
	var fs Flags
	if m.OuterRingContactInk > e.ContactThreshold || in.Refined.Clipped ||
		(m.EdgeTouchLoose && m.OuterRingInk > e.RingGate) {
		fs = fs.With(FlagClipped)
	}
	if math.Hypot(m.CenterOffset[0], m.CenterOffset[1]) > e.OffCenterPx {
		fs = fs.With(FlagOffCenter)
	}
	if m.CCCount > e.MaxComponents || in.Refined.MultiGlyph {
		fs = fs.With(FlagMultiGlyph)
	}
	if m.InkPixels < e.MinInk || in.Refined.Missing {
		fs = fs.With(FlagMissing)
	}
	if regression[in.File] {
		fs = fs.With(FlagRegression)
	}
	if !in.Verified {
		fs = fs.With(FlagUnverified)
	}
	if in.Override {
		fs = fs.With(FlagOverride)
	}
	return fs
}

// Score ranks an entry in the review queue: flag severities plus the
// contact ink squashed into [0,1).
func Score(fs Flags, m Metrics) float64 {
	c := float64(m.OuterRingContactInk)
	return round3(fs.Severity() + c/(c+50))
}
