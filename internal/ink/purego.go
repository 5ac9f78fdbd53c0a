//go:build purego

package ink

import (
	"image"
	"sort"

	"stele-slicer/pkg/geometry"
)

// Level implements Binarizer with a histogram Otsu. BlurKernel is ignored
// in this build.
func (Otsu) Level(g *image.Gray) uint8 {
	hist := make([]float64, 256)
	b := g.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return 128
	}
	for y := 0; y < h; y++ {
		for _, v := range g.Pix[y*g.Stride : y*g.Stride+w] {
			hist[v]++
		}
	}
	return gapLevel(hist, otsuSplit(hist))
}

// otsuSplit returns the first t maximizing between-class variance, with
// the dark class v <= t.
func otsuSplit(hist []float64) int {
	var total, sum float64
	for i, n := range hist {
		total += n
		sum += float64(i) * n
	}
	const eps = 1e-9
	var wB, sumB, best float64
	split := 127
	for t := 0; t < len(hist)-1; t++ {
		wB += hist[t]
		sumB += float64(t) * hist[t]
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		mB := sumB / wB
		mF := (sum - sumB) / wF
		between := wB * wF * (mB - mF) * (mB - mF)
		if between > best*(1+eps) {
			best = between
			split = t
		}
	}
	return split
}

// Threshold marks every pixel darker than level as ink.
func Threshold(g *image.Gray, level uint8) *Mask {
	b := g.Bounds()
	m := NewMask(b.Dx(), b.Dy())
	for y := 0; y < m.H; y++ {
		row := g.Pix[y*g.Stride : y*g.Stride+m.W]
		for x, v := range row {
			m.Bits[y*m.W+x] = v < level
		}
	}
	return m
}

// Components labels the 8-connected ink regions inside box.
// Components are returned sorted by descending area; ties keep scan order,
// so the result is deterministic.
func (m *Mask) Components(box geometry.Box) ([]Component, *Labels) {
	box = box.Intersect(m.Bounds())
	w, h := box.W(), box.H()
	labels := &Labels{Region: box, ids: make([]int, w*h)}

	var comps []Component
	stack := make([]int, 0, 256)
	next := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			idx := y*w + x
			if labels.ids[idx] != 0 || !m.Bits[(y+box.Y0)*m.W+x+box.X0] {
				continue
			}
			next++
			c := Component{Label: next, Box: geometry.Box{X0: x, Y0: y, X1: x + 1, Y1: y + 1}}
			var sx, sy float64
			labels.ids[idx] = next
			stack = append(stack[:0], idx)
			for len(stack) > 0 {
				cur := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				cx, cy := cur%w, cur/w
				c.Area++
				sx += float64(cx) + 0.5
				sy += float64(cy) + 0.5
				c.Box = c.Box.Union(geometry.Box{X0: cx, Y0: cy, X1: cx + 1, Y1: cy + 1})
				for dy := -1; dy <= 1; dy++ {
					ny := cy + dy
					if ny < 0 || ny >= h {
						continue
					}
					for dx := -1; dx <= 1; dx++ {
						nx := cx + dx
						if nx < 0 || nx >= w || (dx == 0 && dy == 0) {
							continue
						}
						n := ny*w + nx
						if labels.ids[n] != 0 || !m.Bits[(ny+box.Y0)*m.W+nx+box.X0] {
							continue
						}
						labels.ids[n] = next
						stack = append(stack, n)
					}
				}
			}
			c.Centroid = geometry.Point2D{
				X: sx/float64(c.Area) + float64(box.X0),
				Y: sy/float64(c.Area) + float64(box.Y0),
			}
			c.Box = c.Box.Expand(-box.X0, -box.Y0, box.X0, box.Y0)
			comps = append(comps, c)
		}
	}

	sort.SliceStable(comps, func(i, j int) bool {
		return comps[i].Area > comps[j].Area
	})
	return comps, labels
}
