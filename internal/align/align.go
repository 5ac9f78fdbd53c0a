// Package align maps the ordered cell sequence onto the expected transcript.
//
// Cells whose recognizer candidates agree with a transcript character near
// their proportional position become anchors; the anchor set is the heaviest
// chain that is strictly increasing in both cell index and transcript
// position. Gaps between anchors are mapped 1:1 when their sizes agree and by
// a constrained edit alignment when they do not, so a damaged or skipped cell
// never shifts the anchors around it.
package align

import (
	"fmt"
	"math"
	"sort"
)

// Status tells how a cell's label was obtained.
type Status string

const (
	StatusAnchor       Status = "anchor"
	StatusInterpolated Status = "interpolated"
	StatusEdit         Status = "edit"
	StatusUnmatched    Status = "unmatched"
	StatusUnverified   Status = "unverified"
)

// Verified reports whether the label was checked against recognizer output.
func (s Status) Verified() bool {
	return s == StatusAnchor || s == StatusInterpolated || s == StatusEdit
}

// Candidate is one recognizer proposal for a cell.
type Candidate struct {
	Trad  string  `json:"trad"`
	Simp  string  `json:"simp"`
	Score float64 `json:"score"`
}

// Params are the aligner tunables.
type Params struct {
	Window                 int     // allowed distance from the proportional position
	MinAnchorScore         float64 // candidates below this never anchor
	InterpolatedConfidence float64 // confidence of an unconfirmed 1:1 gap label
	SubstitutionConfidence float64 // confidence of an edit-alignment substitution
}

// DefaultParams returns the tuned defaults.
func DefaultParams() Params {
	return Params{
		Window:                 3,
		MinAnchorScore:         0.6,
		InterpolatedConfidence: 0.5,
		SubstitutionConfidence: 0.25,
	}
}

// Assignment is the label of one cell.
type Assignment struct {
	Cell       int
	Pos        int    // transcript position, -1 when unmatched
	Char       string // transcript character, empty when unmatched
	Confidence float64
	Status     Status
}

// Conflict is a recognizer match the alignment could not honour.
type Conflict struct {
	Cell    int
	Pos     int
	Message string
}

// Result is the alignment of one sequence.
type Result struct {
	Assignments []Assignment
	Anchors     int
	Conflicts   []Conflict
}

// Monotonic reports whether matched transcript positions strictly increase
// with cell index.
func (r Result) Monotonic() bool {
	last := -1
	for _, a := range r.Assignments {
		if a.Pos < 0 {
			continue
		}
		if a.Pos <= last {
			return false
		}
		last = a.Pos
	}
	return true
}

// Degraded maps cells to transcript positions by index, without any
// verification. Used when no recognizer is available.
func Degraded(cells int, transcript []string) Result {
	res := Result{Assignments: make([]Assignment, cells)}
	for i := range res.Assignments {
		res.Assignments[i] = positional(i, i, transcript)
	}
	return res
}

func positional(cell, pos int, transcript []string) Assignment {
	if pos >= len(transcript) {
		return Assignment{Cell: cell, Pos: -1, Status: StatusUnmatched}
	}
	return Assignment{Cell: cell, Pos: pos, Char: transcript[pos], Status: StatusUnverified}
}

type match struct {
	cell, pos int
	score     float64
}

// Align labels len(obs) cells against transcript. obs[i] holds cell i's
// candidates and may be empty.
func Align(obs [][]Candidate, transcript []string, v *Variants, p Params) Result {
	n, t := len(obs), len(transcript)
	res := Result{Assignments: make([]Assignment, n)}
	if n == 0 {
		return res
	}

	matches := findMatches(obs, transcript, v, p)
	chain := heaviestChain(matches)
	res.Anchors = len(chain)

	anchored := make(map[int]bool, len(chain))
	for _, m := range chain {
		anchored[m.cell] = true
		res.Assignments[m.cell] = Assignment{
			Cell: m.cell, Pos: m.pos, Char: transcript[m.pos],
			Confidence: m.score, Status: StatusAnchor,
		}
	}
	conflicted := make(map[int]bool)
	for _, m := range matches {
		if anchored[m.cell] || conflicted[m.cell] {
			continue
		}
		conflicted[m.cell] = true
		res.Conflicts = append(res.Conflicts, Conflict{
			Cell: m.cell, Pos: m.pos,
			Message: fmt.Sprintf("cell %d reads %q (transcript position %d) against the anchor order",
				m.cell, transcript[m.pos], m.pos),
		})
	}

	// walk the gaps between consecutive anchors, with virtual anchors
	// before the first cell and after the last
	prevCell, prevPos := -1, -1
	bounds := append(append([]match(nil), chain...), match{cell: n, pos: t})
	for _, a := range bounds {
		cells := span(prevCell+1, a.cell)
		pos := span(prevPos+1, a.pos)
		switch {
		case len(cells) == 0:
		case hasAny(cells, conflicted) || len(chain) == 0:
			fillPositional(&res, cells, pos, transcript)
		case len(cells) == len(pos):
			fillInterpolated(&res, obs, cells, pos, transcript, v, p)
		default:
			fillEdit(&res, obs, cells, pos, transcript, v, p)
		}
		prevCell, prevPos = a.cell, a.pos
	}
	return res
}

func span(lo, hi int) []int {
	var out []int
	for i := lo; i < hi; i++ {
		out = append(out, i)
	}
	return out
}

func hasAny(cells []int, set map[int]bool) bool {
	for _, c := range cells {
		if set[c] {
			return true
		}
	}
	return false
}

// findMatches lists every (cell, position) pair where a candidate scoring at
// least MinAnchorScore agrees with the transcript inside the window.
func findMatches(obs [][]Candidate, transcript []string, v *Variants, p Params) []match {
	n, t := len(obs), len(transcript)
	if t == 0 {
		return nil
	}
	window := p.Window + abs(t-n)
	var out []match
	for i, cands := range obs {
		expected := 0.0
		if n > 1 {
			expected = float64(i) * float64(t-1) / float64(n-1)
		}
		lo := max(0, int(math.Floor(expected))-window)
		hi := min(t-1, int(math.Ceil(expected))+window)
		for j := lo; j <= hi; j++ {
			if s, ok := agreement(cands, transcript[j], v, p.MinAnchorScore); ok {
				out = append(out, match{cell: i, pos: j, score: s})
			}
		}
	}
	return out
}

// agreement returns the best score of a candidate equivalent to want.
func agreement(cands []Candidate, want string, v *Variants, minScore float64) (float64, bool) {
	best, ok := 0.0, false
	for _, c := range cands {
		if c.Score < minScore {
			continue
		}
		if v.Equivalent(c.Trad, want) || v.Equivalent(c.Simp, want) {
			if !ok || c.Score > best {
				best, ok = c.Score, true
			}
		}
	}
	return best, ok
}

// heaviestChain picks the maximum-weight subset of matches with strictly
// increasing cell and position. Ties keep the earliest predecessor.
func heaviestChain(ms []match) []match {
	if len(ms) == 0 {
		return nil
	}
	sort.SliceStable(ms, func(a, b int) bool {
		if ms[a].cell != ms[b].cell {
			return ms[a].cell < ms[b].cell
		}
		return ms[a].pos < ms[b].pos
	})
	best := make([]float64, len(ms))
	prev := make([]int, len(ms))
	top := 0
	for k, m := range ms {
		best[k] = m.score
		prev[k] = -1
		for l := 0; l < k; l++ {
			if ms[l].cell < m.cell && ms[l].pos < m.pos && best[l]+m.score > best[k] {
				best[k] = best[l] + m.score
				prev[k] = l
			}
		}
		if best[k] > best[top] {
			top = k
		}
	}
	var chain []match
	for k := top; k >= 0; k = prev[k] {
		chain = append(chain, ms[k])
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

func fillPositional(res *Result, cells, pos []int, transcript []string) {
	for k, c := range cells {
		if k < len(pos) {
			res.Assignments[c] = Assignment{Cell: c, Pos: pos[k], Char: transcript[pos[k]], Status: StatusUnverified}
		} else {
			res.Assignments[c] = Assignment{Cell: c, Pos: -1, Status: StatusUnmatched}
		}
	}
}

func fillInterpolated(res *Result, obs [][]Candidate, cells, pos []int, transcript []string, v *Variants, p Params) {
	for k, c := range cells {
		conf := p.InterpolatedConfidence
		if s, ok := agreement(obs[c], transcript[pos[k]], v, 0); ok {
			conf = s
		}
		res.Assignments[c] = Assignment{
			Cell: c, Pos: pos[k], Char: transcript[pos[k]],
			Confidence: conf, Status: StatusInterpolated,
		}
	}
}

// fillEdit aligns a gap whose cell and position counts differ. Matching a
// cell to an agreeing position costs 0, any other pairing 1, and leaving a
// cell or a position unused costs 1. Ties prefer pairing.
func fillEdit(res *Result, obs [][]Candidate, cells, pos []int, transcript []string, v *Variants, p Params) {
	a, b := len(cells), len(pos)
	sub := func(x, y int) int {
		if _, ok := agreement(obs[cells[x]], transcript[pos[y]], v, 0); ok {
			return 0
		}
		return 1
	}
	d := make([][]int, a+1)
	for x := range d {
		d[x] = make([]int, b+1)
		d[x][0] = x
	}
	for y := 0; y <= b; y++ {
		d[0][y] = y
	}
	for x := 1; x <= a; x++ {
		for y := 1; y <= b; y++ {
			d[x][y] = min(d[x-1][y-1]+sub(x-1, y-1), d[x-1][y]+1, d[x][y-1]+1)
		}
	}

	x, y := a, b
	for x > 0 {
		switch {
		case y > 0 && d[x][y] == d[x-1][y-1]+sub(x-1, y-1):
			c, j := cells[x-1], pos[y-1]
			conf := p.SubstitutionConfidence
			if s, ok := agreement(obs[c], transcript[j], v, 0); ok {
				conf = s
			}
			res.Assignments[c] = Assignment{Cell: c, Pos: j, Char: transcript[j], Confidence: conf, Status: StatusEdit}
			x, y = x-1, y-1
		case d[x][y] == d[x-1][y]+1:
			c := cells[x-1]
			res.Assignments[c] = Assignment{Cell: c, Pos: -1, Status: StatusUnmatched}
			x--
		default:
			y--
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
