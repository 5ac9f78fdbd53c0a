//go:build !purego

package ink

import (
	"image"
	"sort"

	"gocv.io/x/gocv"

	"stele-slicer/pkg/geometry"
)

// stats columns of ConnectedComponentsWithStats
const (
	statLeft = iota
	statTop
	statWidth
	statHeight
	statArea
	statCols
)

// Level implements Binarizer with OpenCV's Otsu threshold.
func (o Otsu) Level(g *image.Gray) uint8 {
	mat, err := grayToMat(g)
	if err != nil || mat.Empty() {
		return 128
	}
	defer mat.Close()

	src := mat
	if k := o.BlurKernel | 1; o.BlurKernel >= 3 {
		blurred := gocv.NewMat()
		defer blurred.Close()
		gocv.GaussianBlur(mat, &blurred, image.Pt(k, k), 0, 0, gocv.BorderReplicate)
		src = blurred
	}

	dst := gocv.NewMat()
	defer dst.Close()
	t := gocv.Threshold(src, &dst, 0, 255, gocv.ThresholdBinary|gocv.ThresholdOtsu)

	hist := gocv.NewMat()
	defer hist.Close()
	mask := gocv.NewMat()
	defer mask.Close()
	gocv.CalcHist([]gocv.Mat{src}, []int{0}, mask, &hist, []int{256}, []float64{0, 256}, false)
	bins := make([]float64, 256)
	for i := range bins {
		bins[i] = float64(hist.GetFloatAt(i, 0))
	}
	return gapLevel(bins, int(t))
}

// Threshold marks every pixel darker than level as ink.
func Threshold(g *image.Gray, level uint8) *Mask {
	b := g.Bounds()
	m := NewMask(b.Dx(), b.Dy())
	if level == 0 || m.W == 0 || m.H == 0 {
		return m
	}
	src, err := grayToMat(g)
	if err != nil {
		return m
	}
	defer src.Close()
	dst := gocv.NewMat()
	defer dst.Close()
	// v <= level-1 becomes 255
	gocv.Threshold(src, &dst, float32(level)-1, 255, gocv.ThresholdBinaryInv)
	for i, v := range dst.ToBytes() {
		m.Bits[i] = v != 0
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
	if w == 0 || h == 0 {
		return nil, labels
	}
	src, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8U, m.regionBytes(box))
	if err != nil {
		return nil, labels
	}
	defer src.Close()

	lab := gocv.NewMat()
	defer lab.Close()
	stats := gocv.NewMat()
	defer stats.Close()
	cents := gocv.NewMat()
	defer cents.Close()
	n := gocv.ConnectedComponentsWithStats(src, &lab, &stats, &cents)
	if n <= 1 {
		return nil, labels
	}
	ids, err := lab.DataPtrInt32()
	if err != nil {
		return nil, labels
	}
	st, err := stats.DataPtrInt32()
	if err != nil {
		return nil, labels
	}
	cs, err := cents.DataPtrFloat64()
	if err != nil {
		return nil, labels
	}

	// renumber in order of first appearance in a raster scan
	remap := make([]int, n)
	next := 0
	for i, l := range ids[:w*h] {
		if l == 0 {
			continue
		}
		if remap[l] == 0 {
			next++
			remap[l] = next
		}
		labels.ids[i] = remap[l]
	}

	comps := make([]Component, next)
	for l := 1; l < n; l++ {
		id := remap[l]
		if id == 0 {
			continue
		}
		row := st[l*statCols:]
		x0 := int(row[statLeft]) + box.X0
		y0 := int(row[statTop]) + box.Y0
		comps[id-1] = Component{
			Label: id,
			Area:  int(row[statArea]),
			Box:   geometry.Box{X0: x0, Y0: y0, X1: x0 + int(row[statWidth]), Y1: y0 + int(row[statHeight])},
			Centroid: geometry.Point2D{
				X: cs[2*l] + 0.5 + float64(box.X0),
				Y: cs[2*l+1] + 0.5 + float64(box.Y0),
			},
		}
	}

	sort.SliceStable(comps, func(i, j int) bool {
		return comps[i].Area > comps[j].Area
	})
	return comps, labels
}

// regionBytes returns box as a row-major 0/255 byte image.
func (m *Mask) regionBytes(box geometry.Box) []byte {
	w := box.W()
	buf := make([]byte, w*box.H())
	for y := box.Y0; y < box.Y1; y++ {
		row := m.Bits[y*m.W+box.X0 : y*m.W+box.X1]
		out := buf[(y-box.Y0)*w:]
		for x, v := range row {
			if v {
				out[x] = 255
			}
		}
	}
	return buf
}

// grayToMat copies a Gray image into a single-channel Mat.
func grayToMat(g *image.Gray) (gocv.Mat, error) {
	b := g.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return gocv.NewMat(), nil
	}
	buf := make([]byte, w*h)
	for y := 0; y < h; y++ {
		off := g.PixOffset(b.Min.X, b.Min.Y+y)
		copy(buf[y*w:(y+1)*w], g.Pix[off:off+w])
	}
	return gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8U, buf)
}
