package normalize

import (
	"bytes"
	"image"
	"math"
	"math/rand"
	"testing"
)

func crop(w, h int, rects ...image.Rectangle) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, w, h))
	for i := range g.Pix {
		g.Pix[i] = 235
	}
	for _, r := range rects {
		for y := r.Min.Y; y < r.Max.Y; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				g.Pix[y*g.Stride+x] = 15
			}
		}
	}
	return g
}

func TestNormalizeCentersDominantComponent(t *testing.T) {
	src := crop(80, 80,
		image.Rect(8, 12, 40, 60), // glyph, off centre
		image.Rect(44, 44, 47, 47), // speck near the crop centre
	)
	p := DefaultParams()
	out, info := Normalize(src, p)
	if out.Bounds() != image.Rect(0, 0, p.Size, p.Size) {
		t.Fatalf("output bounds = %v", out.Bounds())
	}
	if info.Dominant.Area != 32*48 {
		t.Fatalf("dominant area = %d, want the glyph", info.Dominant.Area)
	}
	d, ok := Dominant(out, p)
	if !ok {
		t.Fatalf("no ink in output")
	}
	c := float64(p.Size) / 2
	if math.Abs(d.Centroid.X-c) >= 1 || math.Abs(d.Centroid.Y-c) >= 1 {
		t.Fatalf("dominant centroid %+v not at canvas centre", d.Centroid)
	}
	longer := float64(max(d.Box.W(), d.Box.H()))
	if math.Abs(longer-p.Target()) > p.SizeTolerance() {
		t.Fatalf("dominant size %.0f, want about %.1f", longer, p.Target())
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	p := DefaultParams()
	for _, tc := range []struct {
		name string
		src  *image.Gray
	}{
		{"upscale", crop(50, 44, image.Rect(5, 6, 45, 36))},
		{"downscale", crop(300, 260, image.Rect(20, 30, 260, 200), image.Rect(270, 240, 280, 250))},
		{"near target", crop(120, 120, image.Rect(10, 15, 108, 90))},
		{"empty", crop(40, 40)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			once, _ := Normalize(tc.src, p)
			twice, info := Normalize(once, p)
			if !bytes.Equal(once.Pix, twice.Pix) {
				t.Fatalf("second pass changed the image (scale %.3f shift %v)", info.Scale, info.Shift)
			}
		})
	}
}

// insideCanvas reports whether the dominant component keeps off every edge.
func insideCanvas(t *testing.T, img *image.Gray, p Params) {
	t.Helper()
	d, ok := Dominant(img, p)
	if !ok {
		t.Fatalf("no ink in output")
	}
	if d.Box.X0 < 1 || d.Box.Y0 < 1 || d.Box.X1 > p.Size-1 || d.Box.Y1 > p.Size-1 {
		t.Fatalf("dominant box %v touches the canvas edge", d.Box)
	}
}

func TestNormalizeKeepsLopsidedGlyphOnCanvas(t *testing.T) {
	p := DefaultParams()
	for _, tc := range []struct {
		name string
		src  *image.Gray
	}{
		// heavy head with a long thin tail: centroid far above the box centre
		{"top heavy", crop(60, 120, image.Rect(10, 5, 50, 40), image.Rect(28, 40, 32, 115))},
		{"left heavy", crop(140, 50, image.Rect(5, 5, 45, 45), image.Rect(45, 22, 135, 26))},
		{"small top heavy", crop(20, 40, image.Rect(4, 2, 16, 10), image.Rect(9, 10, 11, 38))},
	} {
		t.Run(tc.name, func(t *testing.T) {
			once, _ := Normalize(tc.src, p)
			insideCanvas(t, once, p)
			twice, info := Normalize(once, p)
			if !bytes.Equal(once.Pix, twice.Pix) {
				t.Fatalf("second pass changed the image (scale %.3f shift %v)", info.Scale, info.Shift)
			}
		})
	}
}

func TestNormalizeIdempotentOnRandomGlyphs(t *testing.T) {
	p := DefaultParams()
	rng := rand.New(rand.NewSource(7))
	for iter := 0; iter < 200; iter++ {
		w, h := 24+rng.Intn(140), 24+rng.Intn(140)
		// a body plus an attached stroke running off one side of it
		bx0, by0 := rng.Intn(w/3), rng.Intn(h/3)
		bx1, by1 := bx0+w/4+rng.Intn(w/3), by0+h/4+rng.Intn(h/3)
		rects := []image.Rectangle{image.Rect(bx0, by0, bx1, by1)}
		if rng.Intn(2) == 0 {
			x := bx0 + rng.Intn(bx1-bx0)
			rects = append(rects, image.Rect(x, by1-1, min(w, x+3+rng.Intn(4)), by1+rng.Intn(h-by1)))
		} else {
			y := by0 + rng.Intn(by1-by0)
			rects = append(rects, image.Rect(bx1-1, y, bx1+rng.Intn(w-bx1), min(h, y+3+rng.Intn(4))))
		}
		for k := rng.Intn(3); k > 0; k-- {
			x, y := rng.Intn(w-2), rng.Intn(h-2)
			rects = append(rects, image.Rect(x, y, x+2, y+2))
		}
		src := crop(w, h, rects...)

		once, _ := Normalize(src, p)
		twice, info := Normalize(once, p)
		if !bytes.Equal(once.Pix, twice.Pix) {
			t.Fatalf("iter %d (%dx%d %v): second pass changed the image (scale %.3f shift %v)",
				iter, w, h, rects, info.Scale, info.Shift)
		}
	}
}

func TestPlaceIsAFixedPoint(t *testing.T) {
	p := DefaultParams()
	src := crop(60, 120, image.Rect(10, 5, 50, 40), image.Rect(28, 40, 32, 115))
	out, _ := Normalize(src, p)
	d, _ := Dominant(out, p)
	if s := place(d, p.Size); s != (image.Point{}) {
		t.Fatalf("place on normalized output = %v, want no shift", s)
	}
}

func TestNormalizeDeterministic(t *testing.T) {
	src := crop(70, 90, image.Rect(10, 10, 60, 80))
	a, _ := Normalize(src, DefaultParams())
	b, _ := Normalize(src, DefaultParams())
	if !bytes.Equal(a.Pix, b.Pix) {
		t.Fatalf("normalization is not deterministic")
	}
}

func TestFitScaleDeadband(t *testing.T) {
	p := DefaultParams()
	if s := fitScale(p.Target()+1, p); s != 1 {
		t.Fatalf("scale inside tolerance = %v", s)
	}
	if s := fitScale(p.Target()/2, p); math.Abs(s-2) > 1e-9 {
		t.Fatalf("scale = %v, want 2", s)
	}
	if settle(0.9) != 0 || settle(-1.4) != -1 || settle(2.6) != 3 {
		t.Fatalf("settle deadband broken")
	}
}
