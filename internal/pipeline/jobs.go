package pipeline

import (
	"fmt"

	"stele-slicer/internal/align"
	"stele-slicer/internal/config"
)

// Job is one page of a build with its expected reading grid.
type Job struct {
	Page       int        // position in the configured page list
	Image      string     // image path as configured; stored in records
	Path       string     // resolved image path
	Counts     []int      // cells per lane, in reading order
	Transcript [][]string // transcript lanes; empty when none was given
	FirstIndex int        // reading index of the page's first cell
}

// Total is the number of cells the page produces.
func (j Job) Total() int {
	n := 0
	for _, c := range j.Counts {
		n += max(0, c)
	}
	return n
}

// Plan turns the configured pages into jobs and assigns each page its
// range of reading indices.
func Plan(c *config.Config) ([]Job, error) {
	jobs := make([]Job, 0, len(c.Pages))
	next := 0
	for i, pc := range c.Pages {
		j := Job{Page: i, Image: pc.Image, Path: c.Resolve(pc.Image), FirstIndex: next}
		j.Transcript = align.ParseTranscript(pc.Transcript)
		switch {
		case len(pc.Counts) > 0:
			j.Counts = append([]int(nil), pc.Counts...)
		case len(j.Transcript) > 0:
			j.Counts = align.LaneCounts(j.Transcript, pc.Lanes)
		default:
			return nil, fmt.Errorf("page %d (%s): no cell counts and no transcript", i, pc.Image)
		}
		next += j.Total()
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// segments splits the page's cells into alignment units: one per lane when
// the transcript has a lane per counted lane, otherwise the whole page.
func (j Job) segments() []segment {
	if len(j.Transcript) > 1 && len(j.Transcript) == len(j.Counts) {
		out := make([]segment, 0, len(j.Counts))
		cell, pos := 0, 0
		for i, n := range j.Counts {
			n = max(0, n)
			out = append(out, segment{start: cell, cells: n, text: j.Transcript[i], offset: pos})
			cell += n
			pos += len(j.Transcript[i])
		}
		return out
	}
	return []segment{{start: 0, cells: j.Total(), text: align.Flatten(j.Transcript)}}
}

// segment is a run of cells aligned against one transcript sequence.
type segment struct {
	start  int // first cell
	cells  int
	text   []string
	offset int // transcript position of text[0] within the page
}

// hints is the positional transcript guess for every cell, "" past the end
// of a segment's text.
func (j Job) hints() []string {
	out := make([]string, j.Total())
	for _, seg := range j.segments() {
		for k := 0; k < seg.cells && k < len(seg.text); k++ {
			out[seg.start+k] = seg.text[k]
		}
	}
	return out
}
