// Package override applies manual crop corrections to a built dataset.
//
// Only the targeted records and images change; every other image file is
// left untouched, and the index and QA reports are rewritten atomically.
// Applying the same overrides again produces the same bytes.
package override

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"stele-slicer/internal/dataset"
	"stele-slicer/internal/failure"
	"stele-slicer/internal/pipeline"
	"stele-slicer/internal/qa"
)

// Manager applies override files to a dataset.
type Manager struct {
	Params     pipeline.Params
	Resolve    func(image string) string // maps a record's page image to a readable path
	Regression []string
	Log        logrus.FieldLogger
}

// Outcome lists what an Apply call did.
type Outcome struct {
	Applied []string
	Failed  []*failure.Error
}

// Apply re-crops, re-normalizes and re-scores every file named in o (or in
// only, when given). A file that cannot be applied fails on its own; the
// rest are still applied. The returned error joins the per-file failures.
func (m *Manager) Apply(ctx context.Context, d *dataset.Dataset, o *dataset.Overrides, only []string) (*Outcome, error) {
	log := m.log()
	regression := qa.RegressionSet(m.Regression)
	pages := map[string]*pipeline.Prepared{}
	images := map[string][]byte{}
	out := &Outcome{}

	for _, file := range o.Subset(only).Files() {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		entry := o.CropOverrides[file]
		if err := m.applyOne(d, file, entry, pages, images, regression); err != nil {
			var fe *failure.Error
			if !errors.As(err, &fe) {
				fe = failure.NewOverrideApplyError(file, err.Error())
			}
			log.WithField("file", file).WithError(fe).Warn("override not applied")
			out.Failed = append(out.Failed, fe)
			continue
		}
		out.Applied = append(out.Applied, file)
		log.WithFields(logrus.Fields{"file": file, "crop_box": entry.CropBox.String()}).Info("override applied")
	}
	for _, f := range only {
		if _, ok := o.CropOverrides[f]; !ok {
			out.Failed = append(out.Failed, failure.NewOverrideApplyError(f, "no override entry for this file"))
		}
	}

	// the index is committed first; a failed image write is repaired by
	// applying again, since only changed bytes are rewritten
	if err := d.Save(); err != nil {
		return out, err
	}
	if err := m.writeReport(d, out.Failed); err != nil {
		return out, err
	}
	for _, file := range out.Applied {
		if _, err := dataset.WriteIfChanged(d.Path(file), images[file]); err != nil {
			return out, fmt.Errorf("failed to write %s: %w", file, err)
		}
	}
	errs := make([]error, len(out.Failed))
	for i, fe := range out.Failed {
		errs[i] = fe
	}
	return out, errors.Join(errs...)
}

func (m *Manager) applyOne(d *dataset.Dataset, file string, entry dataset.CropOverride, pages map[string]*pipeline.Prepared, images map[string][]byte, regression map[string]bool) error {
	i, ok := d.Find(file)
	if !ok {
		return failure.NewOverrideApplyError(file, "file is not in the dataset")
	}
	rec := d.Records[i]

	prep, ok := pages[rec.Source.Image]
	if !ok {
		var err error
		prep, err = pipeline.Prepare(m.resolve(rec.Source.Image), m.Params)
		if err != nil {
			return failure.NewOverrideApplyError(file, err.Error())
		}
		pages[rec.Source.Image] = prep
	}
	if rec.Source.PageHash != "" && prep.Page.Hash != rec.Source.PageHash {
		return failure.NewOverrideApplyError(file, fmt.Sprintf("page %s changed since the dataset was built", rec.Source.Image))
	}

	box, ok := prep.ClampOverride(entry.CropBox)
	if !ok {
		return failure.NewOverrideApplyError(file, fmt.Sprintf("crop box %v lies outside the page", entry.CropBox))
	}
	pipeline.ApplyOverride(&rec, box, entry.Note)
	crop, err := prep.Render(box, m.Params.Normalize)
	if err != nil {
		return err
	}
	prep.Evaluate(&rec, crop, regression, m.Params.QA)
	images[file] = crop.PNG
	d.Records[i] = rec
	return nil
}

// writeReport rebuilds the QA report from the records. Conflicts from the
// build are kept; override failures are replaced by this run's.
func (m *Manager) writeReport(d *dataset.Dataset, failed []*failure.Error) error {
	mode := m.Params.QA.Mode
	var conflicts []failure.Conflict
	prev, err := dataset.ReadReport(d.Dir)
	switch {
	case err == nil:
		for _, c := range prev.Conflicts {
			if c.Code != failure.OverrideApplyError {
				conflicts = append(conflicts, c)
			}
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return err
	}
	for _, fe := range failed {
		conflicts = append(conflicts, failure.NewConflict(failure.OverrideApplyError, "", fe.Message).WithFile(fe.File))
	}
	title := "dataset"
	if d.Manifest != nil {
		title = d.Manifest.Stele
	}
	report := qa.Build(d.Entries(), m.Regression, conflicts, mode)
	return dataset.WriteReport(d.Dir, report, title)
}

func (m *Manager) resolve(image string) string {
	if m.Resolve == nil {
		return image
	}
	return m.Resolve(image)
}

func (m *Manager) log() logrus.FieldLogger {
	if m.Log == nil {
		return logrus.StandardLogger()
	}
	return m.Log
}
