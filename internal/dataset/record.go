// Package dataset defines the on-disk dataset: index.json, manifest.json,
// one normalized image per character, and per-page partial records used to
// resume interrupted builds.
package dataset

import (
	"fmt"

	"stele-slicer/internal/labeler"
	"stele-slicer/internal/qa"
	"stele-slicer/pkg/geometry"
)

// Record is one character: the persisted unit of the dataset.
type Record struct {
	Index    int     `json:"index"`
	File     string  `json:"file"`
	CharTrad string  `json:"char_trad"`
	CharSimp string  `json:"char_simp"`
	Label    Label   `json:"label"`
	Source   Source  `json:"source"`
	OCR      *OCR    `json:"ocr,omitempty"`
	Quality  Quality `json:"quality"`
}

// Label is the aligned transcript label.
type Label struct {
	Confidence    float64 `json:"confidence"`
	Status        string  `json:"status"`
	TranscriptPos int     `json:"transcript_pos"`
}

// Source is the provenance of a record.
type Source struct {
	Image         string        `json:"image"`
	Page          int           `json:"page"`
	PageHash      string        `json:"page_hash"`
	CellBox       geometry.Box  `json:"cell_box"`
	CropBox       geometry.Box  `json:"crop_box"`
	ContextBox    geometry.Box  `json:"context_box"`
	Grid          Grid          `json:"grid"`
	SafeColumnBox geometry.Box  `json:"safe_column_box"`
	SafeRowBox    geometry.Box  `json:"safe_row_box"`
	Override      *OverrideInfo `json:"override,omitempty"`
}

// SafeBox is the hard bound computed crops stay inside.
func (s Source) SafeBox() geometry.Box {
	return s.SafeColumnBox.Intersect(s.SafeRowBox)
}

// Grid is the reading-grid coordinate of a record.
type Grid struct {
	Lane     int `json:"lane"`
	Position int `json:"position"`
}

// OverrideInfo marks a manually corrected crop.
type OverrideInfo struct {
	Note string `json:"note,omitempty"`
}

// OCR holds the recognizer side-channel output.
type OCR struct {
	Engine     string              `json:"engine"`
	Candidates []labeler.Candidate `json:"candidates"`
	Notes      string              `json:"notes,omitempty"`
}

// Quality is the QA summary stored with the record.
type Quality struct {
	qa.Metrics
	Flags  qa.Flags       `json:"flags"`
	Score  float64        `json:"score"`
	Refine qa.RefineFlags `json:"refine"`
}

// Entry converts the record's quality block into a QA report entry.
func (r Record) Entry() qa.Entry {
	return qa.Entry{File: r.File, Index: r.Index, Metrics: r.Quality.Metrics, Flags: r.Quality.Flags, Score: r.Quality.Score}
}

// FileName is the deterministic image name of a record.
func FileName(stele string, index int) string {
	return fmt.Sprintf("%s_%05d.png", stele, index)
}
