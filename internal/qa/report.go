package qa

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"

	"stele-slicer/internal/failure"
)

// ReportVersion is the qa_report.json schema version.
const ReportVersion = 1

// Entry is the QA record of one output file.
type Entry struct {
	File    string  `json:"file"`
	Index   int     `json:"index"`
	Metrics Metrics `json:"metrics"`
	Flags   Flags   `json:"flags"`
	Score   float64 `json:"score"`
}

// Evaluate measures one input and derives its entry.
func Evaluate(in Input, regression map[string]bool, p Params) Entry {
	m := Measure(in, p)
	fs := Derive(m, in, regression, p)
	return Entry{File: in.File, Index: in.Index, Metrics: m, Flags: fs, Score: Score(fs, m)}
}

// RegressionStatus tracks a known-bad file across builds.
type RegressionStatus string

const (
	StillFlagged RegressionStatus = "still_flagged"
	Cleared      RegressionStatus = "cleared"
	Absent       RegressionStatus = "absent"
)

// RegressionResult is the status of one known-bad file.
type RegressionResult struct {
	File   string           `json:"file"`
	Status RegressionStatus `json:"status"`
	Flags  Flags            `json:"flags"`
}

// QueueItem is one review-queue row.
type QueueItem struct {
	Rank  int     `json:"rank"`
	File  string  `json:"file"`
	Index int     `json:"index"`
	Score float64 `json:"score"`
	Flags Flags   `json:"flags"`
}

// Report is qa_report.json.
type Report struct {
	Version    int                `json:"version"`
	Mode       Mode               `json:"mode"`
	Total      int                `json:"total"`
	Counts     map[Flag]int       `json:"counts"`
	Files      map[string]Entry   `json:"files"`
	Queue      []QueueItem        `json:"review_queue"`
	Regression []RegressionResult `json:"regression"`
	Conflicts  []failure.Conflict `json:"conflicts"`
}

// Build assembles the report. Entries with no flag stay out of the queue;
// the queue is ordered by score, ties by reading index.
func Build(entries []Entry, regression []string, conflicts []failure.Conflict, mode Mode) *Report {
	r := &Report{
		Version:    ReportVersion,
		Mode:       mode,
		Total:      len(entries),
		Counts:     map[Flag]int{},
		Files:      make(map[string]Entry, len(entries)),
		Queue:      []QueueItem{},
		Regression: []RegressionResult{},
		Conflicts:  append([]failure.Conflict{}, conflicts...),
	}
	for _, e := range entries {
		r.Files[e.File] = e
		for _, f := range e.Flags {
			r.Counts[f]++
		}
		if len(e.Flags) > 0 {
			r.Queue = append(r.Queue, QueueItem{File: e.File, Index: e.Index, Score: e.Score, Flags: e.Flags})
		}
	}
	sort.SliceStable(r.Queue, func(i, j int) bool {
		if r.Queue[i].Score != r.Queue[j].Score {
			return r.Queue[i].Score > r.Queue[j].Score
		}
		return r.Queue[i].Index < r.Queue[j].Index
	})
	for i := range r.Queue {
		r.Queue[i].Rank = i + 1
	}

	files := append([]string(nil), regression...)
	sort.Strings(files)
	for i, f := range files {
		if i > 0 && files[i-1] == f {
			continue
		}
		e, ok := r.Files[f]
		res := RegressionResult{File: f, Status: Absent}
		if ok {
			res.Flags = e.Flags
			res.Status = Cleared
			if e.Flags.Quality() {
				res.Status = StillFlagged
			}
		}
		r.Regression = append(r.Regression, res)
	}
	return r
}

// Entries returns the report entries in reading order.
func (r *Report) Entries() []Entry {
	out := make([]Entry, 0, len(r.Files))
	for _, e := range r.Files {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// RegressionSet turns a file list into a lookup set.
func RegressionSet(files []string) map[string]bool {
	set := make(map[string]bool, len(files))
	for _, f := range files {
		set[f] = true
	}
	return set
}

// LoadRegressionList reads one file name per line; blank lines and #
// comments are skipped.
func LoadRegressionList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open regression list: %w", err)
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, sc.Err()
}
