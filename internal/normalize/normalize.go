// Package normalize centers a refined crop on a fixed-size square canvas.
//
// The dominant ink component (largest by pixel area) is the canonical glyph:
// its centroid lands on the canvas centre and its longer side is scaled to
// the inner box. A glyph whose mass sits far from its box centre is pulled
// back until its box fits inside the canvas, so nothing is clipped. Two
// deadbands make the transform a fixed point on its own output: a scale
// within SizeTolerance of 1 is treated as exactly 1, and a centroid offset
// under one pixel is not shifted.
package normalize

import (
	"image"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"stele-slicer/internal/ink"
	"stele-slicer/pkg/colorutil"
)

// Params are the normalizer tunables.
type Params struct {
	Size         int     // output edge length
	PadRatio     float64 // inner padding on each side, as a fraction of Size
	Level        uint8   // pixels darker than Level are ink
	MinComponent int     // components smaller than this are speckle
}

// DefaultParams returns the tuned defaults.
func DefaultParams() Params {
	return Params{Size: 128, PadRatio: 0.12, Level: 128, MinComponent: 4}
}

// WithLevel returns a copy using a different ink level.
func (p Params) WithLevel(level uint8) Params {
	p.Level = level
	return p
}

// Target is the edge length the dominant component is scaled to.
func (p Params) Target() float64 {
	return float64(p.Size) * (1 - 2*p.PadRatio)
}

// SizeTolerance is the deadband, in pixels, around Target.
func (p Params) SizeTolerance() float64 {
	return math.Max(2, p.Target()/32)
}

// Info describes one normalization.
type Info struct {
	Scale    float64
	Dominant ink.Component // relative to the src origin
	Shift    image.Point   // integer settle shift applied after resampling
	Empty    bool          // no ink component found
}

// Normalize renders src onto a Size x Size white canvas.
func Normalize(src *image.Gray, p Params) (*image.Gray, Info) {
	var info Info
	dom, ok := dominant(src, p)
	if !ok {
		// nothing to measure: centre the crop unscaled
		info.Empty = true
		info.Scale = 1
		b := src.Bounds()
		c := float64(p.Size) / 2
		info.Shift = image.Pt(settle(c-float64(b.Dx())/2), settle(c-float64(b.Dy())/2))
		return translate(src, info.Shift.X, info.Shift.Y, p.Size), info
	}
	info.Dominant = dom
	info.Scale = fitScale(longerSide(dom), p)

	if info.Scale == 1 {
		info.Shift = place(dom, p.Size)
		return translate(src, info.Shift.X, info.Shift.Y, p.Size), info
	}

	out := render(src, info.Scale, dom, p)
	d, ok := dominant(out, p)
	if ok && fitScale(longerSide(d), p) != 1 {
		// resampling moved the thresholded extent out of the deadband
		info.Scale *= p.Target() / longerSide(d)
		out = render(src, info.Scale, dom, p)
		d, ok = dominant(out, p)
	}
	if ok {
		if s := place(d, p.Size); s != (image.Point{}) {
			info.Shift = s
			out = translate(out, s.X, s.Y, p.Size)
		}
	}
	return out, info
}

func longerSide(c ink.Component) float64 {
	return float64(max(c.Box.W(), c.Box.H()))
}

// edgeMargin keeps the dominant component this many pixels off the canvas
// edge.
const edgeMargin = 1

// place returns the whole-pixel shift that moves c's centroid to the canvas
// centre, limited so c's box stays edgeMargin inside the canvas. Shifting
// the result again by place yields zero.
func place(c ink.Component, size int) image.Point {
	center := float64(size) / 2
	dx := clampShift(settle(center-c.Centroid.X), edgeMargin-c.Box.X0, size-edgeMargin-c.Box.X1)
	dy := clampShift(settle(center-c.Centroid.Y), edgeMargin-c.Box.Y0, size-edgeMargin-c.Box.Y1)
	return image.Pt(dx, dy)
}

func clampShift(d, lo, hi int) int {
	if lo > hi {
		return lo
	}
	return min(max(d, lo), hi)
}

// Dominant returns the largest significant ink component of img.
func Dominant(img *image.Gray, p Params) (ink.Component, bool) {
	return dominant(img, p)
}

func dominant(img *image.Gray, p Params) (ink.Component, bool) {
	m := ink.Threshold(img, p.Level)
	comps, _ := m.Components(m.Bounds())
	comps = ink.Significant(comps, p.MinComponent)
	if len(comps) == 0 {
		return ink.Component{}, false
	}
	return comps[0], true
}

func fitScale(longer float64, p Params) float64 {
	if longer <= 0 {
		return 1
	}
	target := p.Target()
	if math.Abs(longer-target) <= p.SizeTolerance() {
		return 1
	}
	return target / longer
}

// settle rounds an offset half up, ignoring anything under one pixel.
// Rounding half up commutes with whole-pixel shifts.
func settle(d float64) int {
	if math.Abs(d) < 1 {
		return 0
	}
	return int(math.Floor(d + 0.5))
}

func canvas(size int) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, size, size))
	for i := range g.Pix {
		g.Pix[i] = colorutil.White.Y
	}
	return g
}

// render scales src by s and puts c's centroid at the canvas centre, pulled
// back where needed so c's scaled box stays inside the canvas margin.
func render(src *image.Gray, s float64, c ink.Component, p Params) *image.Gray {
	dst := canvas(p.Size)
	b := src.Bounds()
	center := float64(p.Size) / 2
	// the thresholded edge may land up to half a source pixel off
	m := float64(edgeMargin) + 1 + math.Ceil(math.Max(s, 1)/2)
	lim := float64(p.Size) - m
	tx := fitTranslation(center-s*c.Centroid.X, s*float64(c.Box.X0), s*float64(c.Box.X1), m, lim)
	ty := fitTranslation(center-s*c.Centroid.Y, s*float64(c.Box.Y0), s*float64(c.Box.Y1), m, lim)
	aff := f64.Aff3{
		s, 0, tx - s*float64(b.Min.X),
		0, s, ty - s*float64(b.Min.Y),
	}
	draw.CatmullRom.Transform(dst, aff, src, b, draw.Src, nil)
	return dst
}

// fitTranslation limits t so that [lo+t, hi+t] lies inside [m, lim]. An
// extent too long to fit is centred.
func fitTranslation(t, lo, hi, m, lim float64) float64 {
	if hi-lo > lim-m {
		return (m + lim - lo - hi) / 2
	}
	return math.Min(math.Max(t, m-lo), lim-hi)
}

// translate copies src onto a fresh canvas shifted by whole pixels.
func translate(src *image.Gray, dx, dy, size int) *image.Gray {
	dst := canvas(size)
	b := src.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		ty := y - b.Min.Y + dy
		if ty < 0 || ty >= size {
			continue
		}
		for x := b.Min.X; x < b.Max.X; x++ {
			tx := x - b.Min.X + dx
			if tx < 0 || tx >= size {
				continue
			}
			dst.Pix[ty*dst.Stride+tx] = src.Pix[src.PixOffset(x, y)]
		}
	}
	return dst
}
