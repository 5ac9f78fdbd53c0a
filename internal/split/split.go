// Package split divides a lane into an exact number of cells.
//
// Boundaries are picked from density valleys with a dynamic program that
// keeps cells close to uniform size, penalizes collapsed end cells, and
// treats the minimum cell size as a hard transition bound.
package split

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"stele-slicer/pkg/geometry"
)

// Status reports how a split was obtained.
type Status string

const (
	StatusOK              Status = "ok"
	StatusUniformFallback Status = "uniform_fallback" // too few valley candidates
	StatusInfeasible      Status = "infeasible"       // candidates exist but none satisfy the bounds
)

// Params are the splitter tunables.
type Params struct {
	MinCell         int     // hard minimum cell size in pixels
	DeviationWeight float64 // weight of ((size-u)/u)^2
	EndPenalty      float64 // extra weight for first/last cells shorter than EndFraction*u
	EndFraction     float64
	TieWeight       float64 // pull toward the uniform position, per boundary
	Smooth          int     // moving-average window for valley search
	ValleyRatio     float64 // valleys must be below ValleyRatio * mean density
}

// DefaultParams returns the tuned defaults.
func DefaultParams() Params {
	return Params{
		MinCell:         8,
		DeviationWeight: 1.0,
		EndPenalty:      4.0,
		EndFraction:     0.6,
		TieWeight:       0.01,
		Smooth:          3,
		ValleyRatio:     0.5,
	}
}

// WithMinCell returns a copy with a different minimum cell size.
func (p Params) WithMinCell(n int) Params {
	p.MinCell = n
	return p
}

// WithEndPenalty returns a copy with a different end-cell penalty.
func (p Params) WithEndPenalty(w float64) Params {
	p.EndPenalty = w
	return p
}

// Result is the split of one lane.
type Result struct {
	Bounds     []int // N+1 monotonically increasing positions, Bounds[0]=lo, Bounds[N]=hi
	Candidates []int // valley candidates considered
	Status     Status
	Cost       float64
}

// Cells returns the N cell spans.
func (r Result) Cells() []geometry.Span {
	out := make([]geometry.Span, 0, len(r.Bounds)-1)
	for i := 1; i < len(r.Bounds); i++ {
		out = append(out, geometry.Span{Lo: r.Bounds[i-1], Hi: r.Bounds[i]})
	}
	return out
}

// Smooth applies a centered moving average of the given window.
func Smooth(profile []float64, window int) []float64 {
	if window <= 1 || len(profile) == 0 {
		return append([]float64(nil), profile...)
	}
	half := window / 2
	out := make([]float64, len(profile))
	for i := range profile {
		lo := max(0, i-half)
		hi := min(len(profile), i+half+1)
		out[i] = floats.Sum(profile[lo:hi]) / float64(hi-lo)
	}
	return out
}

// Valleys returns the centers of interior local-minimum runs of the smoothed
// profile whose density is at most ratio times the mean. Runs touching either
// end are margins, not separators, and are skipped. Indices are relative to
// the profile.
func Valleys(profile []float64, smooth int, ratio float64) []int {
	s := Smooth(profile, smooth)
	if len(s) < 3 {
		return nil
	}
	limit := ratio * stat.Mean(s, nil)
	var out []int
	for i := 0; i < len(s); {
		j := i
		for j+1 < len(s) && s[j+1] == s[i] {
			j++
		}
		interior := i > 0 && j < len(s)-1
		if interior && s[i-1] > s[i] && s[j+1] > s[i] && s[i] <= limit {
			out = append(out, (i+j)/2)
		}
		i = j + 1
	}
	return out
}

// Uniform returns n equal cells over span.
func Uniform(span geometry.Span, n int) []int {
	b := make([]int, n+1)
	for j := 0; j <= n; j++ {
		b[j] = span.Lo + int(math.Round(float64(j)*float64(span.Len())/float64(n)))
	}
	return b
}

// SplitProfile finds valleys in a lane profile (profile[0] is at span.Lo)
// and splits the span into n cells.
func SplitProfile(span geometry.Span, n int, profile []float64, p Params) Result {
	rel := Valleys(profile, p.Smooth, p.ValleyRatio)
	cands := make([]int, len(rel))
	for i, v := range rel {
		cands[i] = span.Lo + v
	}
	return Split(span, n, cands, p)
}

// Widen grows span about its centre to at least n pixels, shifted to stay
// inside [0, limit) where it fits. limit <= 0 means no upper bound.
func Widen(span geometry.Span, n, limit int) geometry.Span {
	if span.Len() >= n {
		return span
	}
	lo := span.Lo - (n-span.Len())/2
	hi := lo + n
	if limit > 0 && hi > limit {
		lo -= hi - limit
		hi = limit
	}
	if lo < 0 {
		hi -= lo
		lo = 0
	}
	return geometry.Span{Lo: lo, Hi: hi}
}

// Split chooses n-1 interior boundaries from candidates. It always returns
// exactly n cells with strictly increasing boundaries. A span shorter than
// n pixels cannot hold n cells; it is widened and the result is infeasible.
func Split(span geometry.Span, n int, candidates []int, p Params) Result {
	if n < 1 {
		n = 1
	}
	if span.Len() < n {
		wide := Widen(span, n, 0)
		return Result{Bounds: Uniform(wide, n), Status: StatusInfeasible}
	}
	pos := interior(span, candidates)
	res := Result{Candidates: pos}
	if n == 1 {
		res.Bounds = []int{span.Lo, span.Hi}
		res.Status = StatusOK
		return res
	}
	if len(pos) < n-1 {
		res.Bounds = Uniform(span, n)
		res.Status = StatusUniformFallback
		return res
	}

	bounds, cost, ok := solve(span, n, pos, p)
	if !ok {
		res.Bounds = Uniform(span, n)
		res.Status = StatusInfeasible
		return res
	}
	res.Bounds = bounds
	res.Cost = cost
	res.Status = StatusOK
	return res
}

func interior(span geometry.Span, candidates []int) []int {
	seen := make(map[int]bool, len(candidates))
	var out []int
	for _, c := range candidates {
		if c <= span.Lo || c >= span.Hi || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	sort.Ints(out)
	return out
}

// solve runs the DP. Node 0 is span.Lo, nodes 1..len(cands) are candidates
// and the last node is span.Hi. dp[j][k] is the cheapest way to cover
// [Lo, node k) with j cells.
func solve(span geometry.Span, n int, cands []int, p Params) ([]int, float64, bool) {
	nodes := make([]int, 0, len(cands)+2)
	nodes = append(nodes, span.Lo)
	nodes = append(nodes, cands...)
	nodes = append(nodes, span.Hi)
	m := len(nodes)
	u := float64(span.Len()) / float64(n)
	inf := math.Inf(1)

	dp := make([][]float64, n+1)
	from := make([][]int, n+1)
	for j := range dp {
		dp[j] = make([]float64, m)
		from[j] = make([]int, m)
		for k := range dp[j] {
			dp[j][k] = inf
			from[j][k] = -1
		}
	}
	dp[0][0] = 0

	for j := 1; j <= n; j++ {
		// the j-th cell ends at node k; the last cell must end at Hi and no
		// other cell may
		kLo, kHi := j, m-2
		if j == n {
			kLo, kHi = m-1, m-1
		}
		for k := kLo; k <= kHi; k++ {
			for i := j - 1; i < k; i++ {
				if dp[j-1][i] == inf {
					continue
				}
				size := nodes[k] - nodes[i]
				if size < p.MinCell {
					continue
				}
				c := dp[j-1][i] + cellCost(float64(size), u, j-1, n, p)
				if j < n {
					ideal := float64(span.Lo) + float64(j)*u
					c += p.TieWeight * math.Abs(float64(nodes[k])-ideal) / u
				}
				if c < dp[j][k] {
					dp[j][k] = c
					from[j][k] = i
				}
			}
		}
	}

	if dp[n][m-1] == inf {
		return nil, 0, false
	}
	bounds := make([]int, n+1)
	k := m - 1
	for j := n; j >= 0; j-- {
		bounds[j] = nodes[k]
		if j > 0 {
			k = from[j][k]
		}
	}
	return bounds, dp[n][m-1], true
}

func cellCost(size, u float64, idx, n int, p Params) float64 {
	d := (size - u) / u
	c := p.DeviationWeight * d * d
	if idx == 0 || idx == n-1 {
		if short := p.EndFraction*u - size; short > 0 {
			e := short / u
			c += p.EndPenalty * e * e
		}
	}
	return c
}
