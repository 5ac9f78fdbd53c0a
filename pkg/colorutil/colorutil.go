// Package colorutil provides shared color utilities for page handling.
package colorutil

import (
	"image/color"
)

// Common grayscale levels.
var (
	Black = color.Gray{Y: 0}
	White = color.Gray{Y: 255}
)

// Luma converts 16-bit RGB components (as returned by color.Color.RGBA)
// to an 8-bit luminance using the Rec. 601 weights.
func Luma(r, g, b uint32) uint8 {
	// Same coefficients as color.GrayModel, kept integer so results are exact.
	y := (19595*r + 38470*g + 7471*b + 1<<15) >> 24
	return uint8(y)
}

// Invert returns 255-v.
func Invert(v uint8) uint8 {
	return 255 - v
}

// MeanLuma averages a slice of 8-bit levels. Returns 0 for an empty slice.
func MeanLuma(levels []uint8) float64 {
	if len(levels) == 0 {
		return 0
	}
	var sum uint64
	for _, v := range levels {
		sum += uint64(v)
	}
	return float64(sum) / float64(len(levels))
}
