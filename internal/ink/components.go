package ink

import (
	"stele-slicer/pkg/geometry"
)

// Component is one 8-connected ink region.
type Component struct {
	Label    int
	Area     int
	Box      geometry.Box
	Centroid geometry.Point2D // pixel-center coordinates (x+0.5, y+0.5)
}

// Labels maps each pixel of a region to its component label (0 = background).
type Labels struct {
	Region geometry.Box
	ids    []int
}

// At returns the label at absolute mask coordinates, or 0 outside the region.
func (l *Labels) At(x, y int) int {
	if !l.Region.ContainsPoint(x, y) {
		return 0
	}
	return l.ids[(y-l.Region.Y0)*l.Region.W()+(x-l.Region.X0)]
}

// Significant drops components smaller than minArea.
func Significant(comps []Component, minArea int) []Component {
	var out []Component
	for _, c := range comps {
		if c.Area >= minArea {
			out = append(out, c)
		}
	}
	return out
}
