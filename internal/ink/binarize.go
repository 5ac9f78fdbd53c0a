package ink

import (
	"image"
)

// Binarizer picks the base ink/paper separation level for a page.
type Binarizer interface {
	Level(g *image.Gray) uint8
}

// Otsu takes Otsu's level, optionally after a Gaussian blur. The blur
// suppresses paper grain on rubbings, which otherwise drags the level toward
// the ground.
type Otsu struct {
	// BlurKernel is the Gaussian kernel size; values below 3 disable the blur.
	BlurKernel int
}

// gapLevel turns Otsu's split t (dark class is v <= t) into an ink level
// (ink is v < level) in the middle of the empty histogram run around t. Every
// threshold in that run gives the same partition, so a clean two-tone page
// splits halfway between its tones.
func gapLevel(hist []float64, t int) uint8 {
	t = min(max(t, 0), len(hist)-2)
	prev := t
	for prev > 0 && hist[prev] == 0 {
		prev--
	}
	next := t + 1
	for next < len(hist)-1 && hist[next] == 0 {
		next++
	}
	return clampLevel((prev + next + 1) / 2)
}

// Levels derives the strict and loose thresholds around a base level.
func Levels(base uint8, strictOffset, looseOffset int) (strict, loose uint8) {
	s := int(base) - strictOffset
	l := int(base) + looseOffset
	return clampLevel(s), clampLevel(l)
}

func clampLevel(v int) uint8 {
	if v < 1 {
		return 1
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// Pair holds the strict and loose masks of one page.
type Pair struct {
	Strict *Mask
	Loose  *Mask
}

// Masks binarizes g at the strict and loose levels and returns the base
// level they were derived from.
func Masks(g *image.Gray, b Binarizer, strictOffset, looseOffset int) (Pair, uint8) {
	base := b.Level(g)
	strict, loose := Levels(base, strictOffset, looseOffset)
	return Pair{Strict: Threshold(g, strict), Loose: Threshold(g, loose)}, base
}
