package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"stele-slicer/internal/align"
	"stele-slicer/internal/dataset"
	"stele-slicer/internal/failure"
	"stele-slicer/internal/labeler"
	"stele-slicer/internal/layout"
	"stele-slicer/internal/qa"
	"stele-slicer/internal/refine"
	"stele-slicer/pkg/geometry"
)

// Processor runs the stage chain for single pages. It holds no per-page
// state, so one Processor serves concurrent pages.
type Processor struct {
	Params     Params
	Recognizer labeler.Recognizer
	Variants   *align.Variants
	Regression map[string]bool
	Overrides  map[string]dataset.CropOverride
	Log        logrus.FieldLogger
}

// NewProcessor returns a processor with no recognizer, the built-in
// variant table and no overrides.
func NewProcessor(p Params, log logrus.FieldLogger) *Processor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Processor{
		Params:     p,
		Recognizer: labeler.Disabled{},
		Variants:   align.NewVariants(),
		Regression: map[string]bool{},
		Overrides:  map[string]dataset.CropOverride{},
		Log:        log,
	}
}

// Output is the result of one page: its partial record set and the encoded
// images by file name.
type Output struct {
	Partial *dataset.Partial
	Images  map[string][]byte
}

// pending carries one cell through the stages.
type pending struct {
	cell   layout.Cell
	crop   Crop
	rec    dataset.Record
	obs    []align.Candidate
}

// ProcessPage runs layout, splitting, refinement, normalization, labeling,
// alignment and QA on one page. Only page I/O and cancellation return an
// error; quality problems become flags and conflicts.
func (pr *Processor) ProcessPage(ctx context.Context, job Job) (*Output, error) {
	p := pr.Params
	log := pr.Log.WithFields(logrus.Fields{"page": job.Page, "image": job.Image})

	prep, err := Prepare(job.Path, p)
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{"level": prep.Level, "inverted": prep.Page.Inverted}).Debug("page binarized")

	lay := layout.Detect(prep.Masks.Strict, p.Direction, len(job.Counts), p.Layout)
	cells, cellConflicts := lay.Cells(job.Counts, p.Layout)
	conflicts := append(append([]failure.Conflict(nil), lay.Conflicts...), cellConflicts...)
	if len(cells) != job.Total() {
		return nil, fmt.Errorf("page %s: layout produced %d cells, want %d", job.Image, len(cells), job.Total())
	}
	log.WithFields(logrus.Fields{"lanes": len(lay.Lanes), "cells": len(cells), "status": lay.Status}).Info("layout detected")

	items := make([]pending, len(cells))
	for i, cell := range cells {
		it, cs, err := pr.cropCell(prep, job, i, cell)
		if err != nil {
			return nil, err
		}
		items[i] = it
		conflicts = append(conflicts, cs...)
	}

	pr.label(ctx, job.hints(), items, log)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	conflicts = append(conflicts, pr.align(job, items)...)

	out := &Output{
		Partial: &dataset.Partial{Page: job.Page, Image: job.Image, Hash: prep.Page.Hash},
		Images:  make(map[string][]byte, len(items)),
	}
	for i := range items {
		it := &items[i]
		prep.Evaluate(&it.rec, it.crop, pr.Regression, p.QA)
		out.Partial.Records = append(out.Partial.Records, it.rec)
		out.Images[it.rec.File] = it.crop.PNG
	}
	for i := range conflicts {
		conflicts[i].Page = job.Image
	}
	out.Partial.Conflicts = conflicts
	return out, nil
}

// cropCell refines one cell (or applies its manual crop) and renders it.
func (pr *Processor) cropCell(prep *Prepared, job Job, i int, cell layout.Cell) (pending, []failure.Conflict, error) {
	p := pr.Params
	idx := job.FirstIndex + i
	file := dataset.FileName(p.Stele, idx)
	var conflicts []failure.Conflict

	res := refine.Refine(prep.Masks, cell.Box, cell.Safe(), p.Refine)
	rec := dataset.Record{
		Index: idx,
		File:  file,
		Label: dataset.Label{Status: string(align.StatusUnmatched), TranscriptPos: -1},
		Source: dataset.Source{
			Image:         job.Image,
			Page:          job.Page,
			PageHash:      prep.Page.Hash,
			CellBox:       cell.Box,
			CropBox:       res.Box,
			ContextBox:    res.Context,
			Grid:          dataset.Grid{Lane: cell.Lane, Position: cell.Position},
			SafeColumnBox: cell.SafeColumn,
			SafeRowBox:    cell.SafeRow,
		},
		Quality: dataset.Quality{Refine: qa.RefineFlags{
			Missing:    res.Flags.Missing,
			MultiGlyph: res.Flags.MultiGlyph,
			Clipped:    res.Flags.Clipped,
			Iterations: res.Iterations,
		}},
	}
	if res.Exhausted() {
		conflicts = append(conflicts, failure.NewConflict(failure.CropRefinementExhausted, "",
			fmt.Sprintf("%s: contact ink unresolved after %d iterations", file, res.Iterations)).
			At(cell.Lane, cell.Position).WithFile(file))
	}

	if ov, ok := pr.Overrides[file]; ok {
		if box, ok := prep.ClampOverride(ov.CropBox); ok {
			ApplyOverride(&rec, box, ov.Note)
		} else {
			conflicts = append(conflicts, failure.NewConflict(failure.OverrideApplyError, "",
				fmt.Sprintf("%s: override box %v lies outside the page", file, ov.CropBox)).WithFile(file))
		}
	}

	crop, err := prep.Render(rec.Source.CropBox, p.Normalize)
	if err != nil {
		return pending{}, nil, fmt.Errorf("failed to render %s: %w", file, err)
	}
	return pending{cell: cell, crop: crop, rec: rec}, conflicts, nil
}

// ApplyOverride replaces a record's crop with a manual one. The refiner's
// findings no longer describe the crop and are cleared.
func ApplyOverride(rec *dataset.Record, box geometry.Box, note string) {
	rec.Source.CropBox = box
	rec.Source.Override = &dataset.OverrideInfo{Note: note}
	rec.Quality.Refine = qa.RefineFlags{Iterations: rec.Quality.Refine.Iterations}
}

// label asks the recognizer about every cell. Failures degrade to no
// candidates.
func (pr *Processor) label(ctx context.Context, hints []string, items []pending, log logrus.FieldLogger) {
	if labeler.IsDisabled(pr.Recognizer) {
		return
	}
	failed := 0
	for i := range items {
		if ctx.Err() != nil {
			return
		}
		it := &items[i]
		res, err := pr.Recognizer.Recognize(ctx, labeler.Request{Image: it.crop.PNG, Hint: hints[i]})
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				failed++
				log.WithError(err).WithField("file", it.rec.File).Debug("recognizer failed")
			}
			continue
		}
		cands := res.All()
		if len(cands) == 0 {
			continue
		}
		it.rec.OCR = &dataset.OCR{Engine: pr.Recognizer.Version(), Candidates: cands, Notes: res.Notes}
		for _, c := range cands {
			it.obs = append(it.obs, align.Candidate{Trad: c.Trad, Simp: c.Simp, Score: c.Score})
		}
	}
	if failed > 0 {
		log.WithField("failed", failed).Warn("recognizer failed on some cells; their labels are unverified")
	}
}

// align labels the cells of each segment against the transcript.
func (pr *Processor) align(job Job, items []pending) []failure.Conflict {
	var conflicts []failure.Conflict
	disabled := labeler.IsDisabled(pr.Recognizer)
	for _, seg := range job.segments() {
		part := items[seg.start : seg.start+seg.cells]
		if len(seg.text) == 0 {
			for i := range part {
				ocrLabel(&part[i].rec, pr.Variants)
			}
			continue
		}

		var res align.Result
		if disabled {
			res = align.Degraded(len(part), seg.text)
		} else {
			obs := make([][]align.Candidate, len(part))
			for i := range part {
				obs[i] = part[i].obs
			}
			res = align.Align(obs, seg.text, pr.Variants, pr.Params.Align)
		}
		for _, a := range res.Assignments {
			rec := &part[a.Cell].rec
			rec.Label = dataset.Label{Confidence: a.Confidence, Status: string(a.Status), TranscriptPos: -1}
			if a.Pos >= 0 {
				rec.Label.TranscriptPos = seg.offset + a.Pos
				rec.CharTrad = pr.Variants.Traditional(a.Char)
				rec.CharSimp = pr.Variants.Simplified(a.Char)
			}
		}
		for _, c := range res.Conflicts {
			it := part[c.Cell]
			conflicts = append(conflicts, failure.NewConflict(failure.AlignmentConflict, "", c.Message).
				At(it.cell.Lane, it.cell.Position).WithFile(it.rec.File))
		}
	}
	return conflicts
}

// ocrLabel labels a cell from its recognizer output alone when there is no
// transcript to align against. Such labels are never verified.
func ocrLabel(rec *dataset.Record, v *align.Variants) {
	if rec.OCR == nil || len(rec.OCR.Candidates) == 0 {
		return
	}
	best := rec.OCR.Candidates[0]
	for _, c := range rec.OCR.Candidates[1:] {
		if c.Score > best.Score {
			best = c
		}
	}
	ch := best.Trad
	if ch == "" {
		ch = best.Simp
	}
	rec.CharTrad = v.Traditional(ch)
	rec.CharSimp = v.Simplified(ch)
	rec.Label = dataset.Label{Confidence: best.Score, Status: string(align.StatusUnverified), TranscriptPos: -1}
}

func isVerified(status string) bool {
	return align.Status(status).Verified()
}
