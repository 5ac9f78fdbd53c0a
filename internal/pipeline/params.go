// Package pipeline chains the per-page stages (layout, split, refine,
// normalize, label, align, QA) and runs them over a batch of pages.
package pipeline

import (
	"stele-slicer/internal/align"
	"stele-slicer/internal/config"
	"stele-slicer/internal/ink"
	"stele-slicer/internal/layout"
	"stele-slicer/internal/normalize"
	"stele-slicer/internal/page"
	"stele-slicer/internal/qa"
	"stele-slicer/internal/refine"
)

// Params are the tunables of every stage.
type Params struct {
	Stele        string
	Direction    layout.Direction
	Polarity     page.Polarity
	Binarizer    ink.Binarizer
	StrictOffset int
	LooseOffset  int
	Layout       layout.Params
	Refine       refine.Params
	Normalize    normalize.Params
	Align        align.Params
	QA           qa.Params
}

// DefaultParams returns the defaults of every stage with an unblurred Otsu
// binarizer.
func DefaultParams(stele string) Params {
	return Params{
		Stele:        stele,
		Direction:    layout.VerticalRTL,
		Polarity:     page.PolarityAuto,
		Binarizer:    ink.Otsu{},
		StrictOffset: config.DefaultStrictOffset,
		LooseOffset:  config.DefaultLooseOffset,
		Layout:       layout.DefaultParams(),
		Refine:       refine.DefaultParams(),
		Normalize:    normalize.DefaultParams(),
		Align:        align.DefaultParams(),
		QA:           qa.DefaultParams(),
	}
}

// ParamsFromConfig maps a validated config onto stage parameters.
func ParamsFromConfig(c *config.Config) (Params, error) {
	dir, err := layout.ParseDirection(c.Direction)
	if err != nil {
		return Params{}, err
	}
	pol, err := page.ParsePolarity(c.Ink.Polarity)
	if err != nil {
		return Params{}, err
	}
	return Params{
		Stele:        c.Stele,
		Direction:    dir,
		Polarity:     pol,
		Binarizer:    ink.Otsu{BlurKernel: c.Ink.BlurKernel},
		StrictOffset: c.Ink.StrictOffset,
		LooseOffset:  c.Ink.LooseOffset,
		Layout:       c.LayoutParams(),
		Refine:       c.RefineParams(),
		Normalize:    c.NormalizeParams(),
		Align:        c.AlignParams(),
		QA:           c.QAParams(),
	}, nil
}

// WithBinarizer returns a copy using b.
func (p Params) WithBinarizer(b ink.Binarizer) Params {
	p.Binarizer = b
	return p
}
