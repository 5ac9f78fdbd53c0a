package split

import (
	"math/rand"
	"testing"

	"stele-slicer/pkg/geometry"
)

// laneProfile builds a row profile of n glyphs of height 20 separated by
// 4-row gaps, with an optional 3-row break inside glyph `broken`.
func laneProfile(n, broken int) []float64 {
	p := make([]float64, n*24)
	for k := 0; k < n; k++ {
		for y := k*24 + 2; y < k*24+22; y++ {
			p[y] = 10
		}
	}
	if broken >= 0 {
		mid := broken*24 + 12
		for y := mid - 1; y <= mid+1; y++ {
			p[y] = 0
		}
	}
	return p
}

func TestSplitDropsSpuriousValley(t *testing.T) {
	profile := laneProfile(9, 4)
	span := geometry.Span{Lo: 0, Hi: len(profile)}
	p := DefaultParams()

	valleys := Valleys(profile, p.Smooth, p.ValleyRatio)
	if len(valleys) != 9 {
		t.Fatalf("found %d valleys, want 8 true + 1 spurious: %v", len(valleys), valleys)
	}

	res := SplitProfile(span, 9, profile, p)
	if res.Status != StatusOK {
		t.Fatalf("status = %s", res.Status)
	}
	if len(res.Cells()) != 9 {
		t.Fatalf("got %d cells", len(res.Cells()))
	}
	for k := 0; k < 8; k++ {
		if want := k*24 + 23; res.Bounds[k+1] != want {
			t.Errorf("boundary %d = %d, want %d", k+1, res.Bounds[k+1], want)
		}
	}
	for _, b := range res.Bounds {
		if b == 4*24+12 {
			t.Fatalf("spurious valley kept: %v", res.Bounds)
		}
	}
}

func TestSplitUniformFallback(t *testing.T) {
	span := geometry.Span{Lo: 10, Hi: 110}
	res := Split(span, 4, []int{40}, DefaultParams())
	if res.Status != StatusUniformFallback {
		t.Fatalf("status = %s", res.Status)
	}
	want := []int{10, 35, 60, 85, 110}
	for i := range want {
		if res.Bounds[i] != want[i] {
			t.Fatalf("bounds = %v, want %v", res.Bounds, want)
		}
	}
}

func TestSplitMinCellIsHardBound(t *testing.T) {
	span := geometry.Span{Lo: 0, Hi: 100}
	p := DefaultParams().WithMinCell(20)
	// only candidates that leave a cell under 20 px
	res := Split(span, 2, []int{5, 95}, p)
	if res.Status != StatusInfeasible {
		t.Fatalf("status = %s, want infeasible", res.Status)
	}
	if len(res.Cells()) != 2 {
		t.Fatalf("got %d cells", len(res.Cells()))
	}
}

func TestSplitEndPenaltyAvoidsCollapsedEndCell(t *testing.T) {
	span := geometry.Span{Lo: 0, Hi: 100}
	p := DefaultParams().WithMinCell(1)
	// 3 cells; candidate 5 would collapse the first cell
	res := Split(span, 3, []int{5, 33, 67}, p)
	if res.Bounds[1] != 33 || res.Bounds[2] != 67 {
		t.Fatalf("bounds = %v", res.Bounds)
	}
}

func TestSplitInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	p := DefaultParams()
	for iter := 0; iter < 200; iter++ {
		lo := rng.Intn(50)
		span := geometry.Span{Lo: lo, Hi: lo + 100 + rng.Intn(400)}
		n := 1 + rng.Intn(12)
		var cands []int
		for i := rng.Intn(20); i > 0; i-- {
			cands = append(cands, span.Lo+rng.Intn(span.Len()))
		}
		res := Split(span, n, cands, p)
		cells := res.Cells()
		if len(cells) != n {
			t.Fatalf("iter %d: %d cells, want %d", iter, len(cells), n)
		}
		if res.Bounds[0] != span.Lo || res.Bounds[n] != span.Hi {
			t.Fatalf("iter %d: bounds %v do not span %v", iter, res.Bounds, span)
		}
		for i := 1; i <= n; i++ {
			if res.Bounds[i] <= res.Bounds[i-1] {
				t.Fatalf("iter %d: non-increasing bounds %v", iter, res.Bounds)
			}
			if res.Status == StatusOK && res.Bounds[i]-res.Bounds[i-1] < p.MinCell {
				t.Fatalf("iter %d: cell below min size %v", iter, res.Bounds)
			}
		}
	}
}

func TestSplitShortSpanStaysIncreasing(t *testing.T) {
	res := Split(geometry.Span{Lo: 10, Hi: 15}, 9, nil, DefaultParams())
	if res.Status != StatusInfeasible {
		t.Fatalf("status = %s, want infeasible", res.Status)
	}
	if len(res.Bounds) != 10 {
		t.Fatalf("got %d bounds, want 10", len(res.Bounds))
	}
	for j := 1; j < len(res.Bounds); j++ {
		if res.Bounds[j] <= res.Bounds[j-1] {
			t.Fatalf("bounds not strictly increasing: %v", res.Bounds)
		}
	}
	if res.Bounds[0] > 10 || res.Bounds[9] < 15 {
		t.Fatalf("widened bounds %v do not cover the lane", res.Bounds)
	}
}

func TestWiden(t *testing.T) {
	for _, tc := range []struct {
		name  string
		span  geometry.Span
		n     int
		limit int
		want  geometry.Span
	}{
		{"long enough", geometry.Span{Lo: 5, Hi: 30}, 9, 100, geometry.Span{Lo: 5, Hi: 30}},
		{"about centre", geometry.Span{Lo: 10, Hi: 15}, 9, 100, geometry.Span{Lo: 8, Hi: 17}},
		{"against the end", geometry.Span{Lo: 96, Hi: 100}, 10, 100, geometry.Span{Lo: 90, Hi: 100}},
		{"against the start", geometry.Span{Lo: 0, Hi: 2}, 6, 100, geometry.Span{Lo: 0, Hi: 6}},
		{"no limit", geometry.Span{Lo: 0, Hi: 0}, 4, 0, geometry.Span{Lo: 0, Hi: 4}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := Widen(tc.span, tc.n, tc.limit); got != tc.want {
				t.Fatalf("Widen = %+v, want %+v", got, tc.want)
			}
		})
	}
}
