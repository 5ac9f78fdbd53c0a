package config

import (
	"time"

	"stele-slicer/internal/align"
	"stele-slicer/internal/labeler"
	"stele-slicer/internal/layout"
	"stele-slicer/internal/normalize"
	"stele-slicer/internal/qa"
	"stele-slicer/internal/refine"
	"stele-slicer/internal/split"
)

// Default offsets of the strict and loose ink levels from the base level.
const (
	DefaultStrictOffset = 24
	DefaultLooseOffset  = 32
)

func (c *Config) applyDefaults() {
	c.Ink = Ink{Polarity: "auto", BlurKernel: 5, StrictOffset: DefaultStrictOffset, LooseOffset: DefaultLooseOffset}

	lp := layout.DefaultParams()
	c.Layout = Layout{
		Smooth:       lp.Smooth,
		ValleyRatio:  lp.ValleyRatio,
		MinLaneRatio: lp.MinLaneRatio,
		BlockDensity: lp.BlockDensity,
		BleedRatio:   lp.BleedRatio,
	}
	sp := split.DefaultParams()
	c.Split = Split{
		MinCell:         sp.MinCell,
		DeviationWeight: sp.DeviationWeight,
		EndPenalty:      sp.EndPenalty,
		EndFraction:     sp.EndFraction,
		TieWeight:       sp.TieWeight,
		Smooth:          sp.Smooth,
		ValleyRatio:     sp.ValleyRatio,
	}
	rp := refine.DefaultParams()
	c.Refine = Refine{
		Margin:          rp.Margin,
		Padding:         rp.Padding,
		MaxIterations:   rp.MaxIterations,
		MinInk:          rp.MinInk,
		MinComponent:    rp.MinComponent,
		MultiGlyphRatio: rp.MultiGlyphRatio,
	}
	np := normalize.DefaultParams()
	c.Normalize = Normalize{Size: np.Size, PadRatio: np.PadRatio, MinComponent: np.MinComponent}
	ap := align.DefaultParams()
	c.Align = Align{
		Window:                 ap.Window,
		MinAnchorScore:         ap.MinAnchorScore,
		InterpolatedConfidence: ap.InterpolatedConfidence,
		SubstitutionConfidence: ap.SubstitutionConfidence,
	}
	qp := qa.DefaultParams()
	c.QA = QA{
		Mode:             string(qp.Mode),
		RingWidth:        qp.RingWidth,
		ContactThreshold: qp.ContactThreshold,
		RingGate:         qp.RingGate,
		OffCenterPx:      qp.OffCenterPx,
		MaxComponents:    qp.MaxComponents,
		MinInk:           qp.MinInk,
		MinComponentArea: qp.MinComponent,
	}
}

// SplitParams returns the splitter parameters.
func (c *Config) SplitParams() split.Params {
	s := c.Split
	return split.Params{
		MinCell:         s.MinCell,
		DeviationWeight: s.DeviationWeight,
		EndPenalty:      s.EndPenalty,
		EndFraction:     s.EndFraction,
		TieWeight:       s.TieWeight,
		Smooth:          s.Smooth,
		ValleyRatio:     s.ValleyRatio,
	}
}

// LayoutParams returns the layout parameters.
func (c *Config) LayoutParams() layout.Params {
	l := c.Layout
	return layout.Params{
		Smooth:       l.Smooth,
		ValleyRatio:  l.ValleyRatio,
		MinLaneRatio: l.MinLaneRatio,
		BlockDensity: l.BlockDensity,
		BleedRatio:   l.BleedRatio,
		Split:        c.SplitParams(),
	}
}

// RefineParams returns the refiner parameters.
func (c *Config) RefineParams() refine.Params {
	r := c.Refine
	return refine.Params{
		Margin:          r.Margin,
		Padding:         r.Padding,
		MaxIterations:   r.MaxIterations,
		MinInk:          r.MinInk,
		MinComponent:    r.MinComponent,
		MultiGlyphRatio: r.MultiGlyphRatio,
	}
}

// NormalizeParams returns the normalizer parameters. The ink level is set
// per page from the binarizer.
func (c *Config) NormalizeParams() normalize.Params {
	p := normalize.DefaultParams()
	p.Size = c.Normalize.Size
	p.PadRatio = c.Normalize.PadRatio
	p.MinComponent = c.Normalize.MinComponent
	return p
}

// AlignParams returns the aligner parameters.
func (c *Config) AlignParams() align.Params {
	a := c.Align
	return align.Params{
		Window:                 a.Window,
		MinAnchorScore:         a.MinAnchorScore,
		InterpolatedConfidence: a.InterpolatedConfidence,
		SubstitutionConfidence: a.SubstitutionConfidence,
	}
}

// QAParams returns the QA parameters.
func (c *Config) QAParams() qa.Params {
	p := qa.DefaultParams()
	q := c.QA
	p.Mode = qa.Mode(q.Mode)
	p.RingWidth = q.RingWidth
	p.ContactThreshold = q.ContactThreshold
	p.RingGate = q.RingGate
	p.OffCenterPx = q.OffCenterPx
	p.MaxComponents = q.MaxComponents
	p.MinInk = q.MinInk
	p.MinComponent = q.MinComponentArea
	return p
}

// RetryPolicy returns the labeler retry policy.
func (c *Config) RetryPolicy() labeler.RetryPolicy {
	return labeler.RetryPolicy{
		Attempts:     c.Labeler.Attempts,
		InitialDelay: time.Duration(c.Labeler.InitialDelayM) * time.Millisecond,
	}
}

// Tunables is the part of the configuration that changes outputs. Its
// digest keys checkpoints and the build id.
type Tunables struct {
	Direction string    `json:"direction"`
	Ink       Ink       `json:"ink"`
	Layout    Layout    `json:"layout"`
	Split     Split     `json:"split"`
	Refine    Refine    `json:"refine"`
	Normalize Normalize `json:"normalize"`
	Align     Align     `json:"align"`
	QA        QA        `json:"qa"`
	Labeler   string    `json:"labeler"`
}

// Tunables returns the output-affecting settings.
func (c *Config) Tunables() Tunables {
	return Tunables{
		Direction: c.Direction,
		Ink:       c.Ink,
		Layout:    c.Layout,
		Split:     c.Split,
		Refine:    c.Refine,
		Normalize: c.Normalize,
		Align:     c.Align,
		QA:        c.QA,
		Labeler:   c.Labeler.Kind + "/" + c.Labeler.Model,
	}
}
