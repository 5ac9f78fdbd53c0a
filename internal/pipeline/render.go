package pipeline

import (
	"image"

	"stele-slicer/internal/dataset"
	"stele-slicer/internal/failure"
	"stele-slicer/internal/ink"
	"stele-slicer/internal/normalize"
	"stele-slicer/internal/page"
	"stele-slicer/internal/qa"
	"stele-slicer/pkg/geometry"
)

// Prepared is a loaded page with its ink masks.
type Prepared struct {
	Page  *page.Page
	Masks ink.Pair
	Level uint8 // base ink level from the binarizer
}

// Prepare loads a page and binarizes it. Read and decode failures are page
// I/O errors.
func Prepare(path string, p Params) (*Prepared, error) {
	pg, err := page.Load(path, p.Polarity)
	if err != nil {
		return nil, failure.NewPageIOError(path, err)
	}
	return PreparePage(pg, p), nil
}

// PreparePage binarizes an already loaded page.
func PreparePage(pg *page.Page, p Params) *Prepared {
	b := p.Binarizer
	if b == nil {
		b = ink.Otsu{}
	}
	masks, level := ink.Masks(pg.Gray, b, p.StrictOffset, p.LooseOffset)
	return &Prepared{Page: pg, Masks: masks, Level: level}
}

// Crop is a rendered output image.
type Crop struct {
	Box   geometry.Box
	Image *image.Gray
	PNG   []byte
	Info  normalize.Info
}

// Render cuts box out of the page and normalizes it. The output depends
// only on the page pixels, the box, and p.
func (pp *Prepared) Render(box geometry.Box, p normalize.Params) (Crop, error) {
	src := pp.Page.Crop(box)
	img, info := normalize.Normalize(src, p.WithLevel(pp.Level))
	data, err := page.EncodePNG(img)
	if err != nil {
		return Crop{}, err
	}
	return Crop{Box: box, Image: img, PNG: data, Info: info}, nil
}

// ClampOverride clamps a manual crop box to the page. Overrides are not
// bound by the safe corridor.
func (pp *Prepared) ClampOverride(box geometry.Box) (geometry.Box, bool) {
	b := box.Intersect(pp.Page.Bounds())
	return b, !b.Empty()
}

// QAInput assembles the QA input of a record rendered as c.
func (pp *Prepared) QAInput(rec dataset.Record, c Crop) qa.Input {
	return qa.Input{
		File:     rec.File,
		Index:    rec.Index,
		Masks:    pp.Masks,
		Cell:     rec.Source.CellBox,
		Context:  rec.Source.ContextBox,
		Crop:     c.Box,
		Image:    c.Image,
		Level:    pp.Level,
		Refined:  rec.Quality.Refine,
		Verified: isVerified(rec.Label.Status),
		Override: rec.Source.Override != nil,
	}
}

// Evaluate runs QA on a rendered record and stores the result in it.
func (pp *Prepared) Evaluate(rec *dataset.Record, c Crop, regression map[string]bool, p qa.Params) qa.Entry {
	e := qa.Evaluate(pp.QAInput(*rec, c), regression, p)
	rec.Quality.Metrics = e.Metrics
	rec.Quality.Flags = e.Flags
	rec.Quality.Score = e.Score
	return e
}
