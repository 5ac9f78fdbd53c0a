// Package geometry provides basic geometric types used throughout the application.
package geometry

import (
	"encoding/json"
	"fmt"
	"image"
	"math"
)

// Point2D represents a 2D point with floating-point coordinates.
type Point2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance returns the Euclidean distance to another point.
func (p Point2D) Distance(other Point2D) float64 {
	dx := p.X - other.X
	dy := p.Y - other.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Sub returns the difference of two points.
func (p Point2D) Sub(other Point2D) Point2D {
	return Point2D{X: p.X - other.X, Y: p.Y - other.Y}
}

// Span is a half-open integer interval [Lo, Hi) along one axis.
type Span struct {
	Lo int `json:"lo"`
	Hi int `json:"hi"`
}

// Len returns the span length (never negative).
func (s Span) Len() int {
	if s.Hi < s.Lo {
		return 0
	}
	return s.Hi - s.Lo
}

// Center returns the span midpoint.
func (s Span) Center() float64 {
	return float64(s.Lo+s.Hi) / 2
}

// Intersect returns the overlap of two spans.
func (s Span) Intersect(o Span) Span {
	r := Span{Lo: max(s.Lo, o.Lo), Hi: min(s.Hi, o.Hi)}
	if r.Hi < r.Lo {
		r.Hi = r.Lo
	}
	return r
}

// Box is a half-open pixel rectangle [X0,X1) x [Y0,Y1).
// It serializes as the JSON array [x0, y0, x1, y1].
type Box struct {
	X0, Y0, X1, Y1 int
}

// NewBox builds a box from two spans.
func NewBox(x, y Span) Box {
	return Box{X0: x.Lo, Y0: y.Lo, X1: x.Hi, Y1: y.Hi}
}

// FromRect converts an image.Rectangle.
func FromRect(r image.Rectangle) Box {
	return Box{X0: r.Min.X, Y0: r.Min.Y, X1: r.Max.X, Y1: r.Max.Y}
}

// Rect converts to an image.Rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X0, b.Y0, b.X1, b.Y1)
}

// W returns the width.
func (b Box) W() int { return max(0, b.X1-b.X0) }

// H returns the height.
func (b Box) H() int { return max(0, b.Y1-b.Y0) }

// Area returns W*H.
func (b Box) Area() int { return b.W() * b.H() }

// Empty reports whether the box has no pixels.
func (b Box) Empty() bool { return b.X1 <= b.X0 || b.Y1 <= b.Y0 }

// XSpan returns the horizontal extent.
func (b Box) XSpan() Span { return Span{Lo: b.X0, Hi: b.X1} }

// YSpan returns the vertical extent.
func (b Box) YSpan() Span { return Span{Lo: b.Y0, Hi: b.Y1} }

// Center returns the center point of the box.
func (b Box) Center() Point2D {
	return Point2D{X: float64(b.X0+b.X1) / 2, Y: float64(b.Y0+b.Y1) / 2}
}

// Contains reports whether o lies entirely inside b.
// An empty o is contained in any box.
func (b Box) Contains(o Box) bool {
	if o.Empty() {
		return true
	}
	return o.X0 >= b.X0 && o.Y0 >= b.Y0 && o.X1 <= b.X1 && o.Y1 <= b.Y1
}

// ContainsPoint reports whether pixel (x, y) is inside the box.
func (b Box) ContainsPoint(x, y int) bool {
	return x >= b.X0 && x < b.X1 && y >= b.Y0 && y < b.Y1
}

// Intersect returns the largest box contained in both.
func (b Box) Intersect(o Box) Box {
	r := Box{
		X0: max(b.X0, o.X0),
		Y0: max(b.Y0, o.Y0),
		X1: min(b.X1, o.X1),
		Y1: min(b.Y1, o.Y1),
	}
	if r.Empty() {
		return Box{X0: r.X0, Y0: r.Y0, X1: r.X0, Y1: r.Y0}
	}
	return r
}

// Union returns the smallest box containing both. Empty boxes are ignored.
func (b Box) Union(o Box) Box {
	if b.Empty() {
		return o
	}
	if o.Empty() {
		return b
	}
	return Box{
		X0: min(b.X0, o.X0),
		Y0: min(b.Y0, o.Y0),
		X1: max(b.X1, o.X1),
		Y1: max(b.Y1, o.Y1),
	}
}

// Expand grows the box by the given amount on each side.
func (b Box) Expand(left, top, right, bottom int) Box {
	return Box{X0: b.X0 - left, Y0: b.Y0 - top, X1: b.X1 + right, Y1: b.Y1 + bottom}
}

// Inset grows (negative) or shrinks (positive) the box uniformly.
func (b Box) Inset(n int) Box {
	return b.Expand(-n, -n, -n, -n)
}

// Transpose swaps the axes.
func (b Box) Transpose() Box {
	return Box{X0: b.Y0, Y0: b.X0, X1: b.Y1, Y1: b.X1}
}

// String formats the box as [x0,y0,x1,y1].
func (b Box) String() string {
	return fmt.Sprintf("[%d,%d,%d,%d]", b.X0, b.Y0, b.X1, b.Y1)
}

// MarshalJSON encodes the box as [x0,y0,x1,y1].
func (b Box) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]int{b.X0, b.Y0, b.X1, b.Y1})
}

// UnmarshalJSON decodes [x0,y0,x1,y1].
func (b *Box) UnmarshalJSON(data []byte) error {
	var v []int
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("box: %w", err)
	}
	if len(v) != 4 {
		return fmt.Errorf("box: expected 4 coordinates, got %d", len(v))
	}
	*b = Box{X0: v[0], Y0: v[1], X1: v[2], Y1: v[3]}
	return nil
}
