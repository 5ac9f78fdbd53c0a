package pipeline

import (
	"errors"
	"fmt"
	"os"

	"stele-slicer/internal/dataset"
	"stele-slicer/internal/failure"
	"stele-slicer/internal/qa"
)

// Rescore recomputes the QA metrics of every record from its page image and
// stored crop box, then rewrites index.json and the reports. Images are not
// rewritten. Build conflicts from the previous report are kept.
func Rescore(d *dataset.Dataset, p Params, resolve func(string) string, regression []string) (*qa.Report, error) {
	set := qa.RegressionSet(regression)
	pages := map[string]*Prepared{}
	var errs []error
	for i := range d.Records {
		rec := &d.Records[i]
		prep, ok := pages[rec.Source.Image]
		if !ok {
			path := rec.Source.Image
			if resolve != nil {
				path = resolve(path)
			}
			var err error
			if prep, err = Prepare(path, p); err != nil {
				errs = append(errs, err)
				pages[rec.Source.Image] = nil
				continue
			}
			pages[rec.Source.Image] = prep
		}
		if prep == nil {
			continue
		}
		crop, err := prep.Render(rec.Source.CropBox, p.Normalize)
		if err != nil {
			return nil, fmt.Errorf("failed to render %s: %w", rec.File, err)
		}
		prep.Evaluate(rec, crop, set, p.QA)
	}
	if err := d.Save(); err != nil {
		return nil, err
	}

	var conflicts []failure.Conflict
	prev, err := dataset.ReadReport(d.Dir)
	switch {
	case err == nil:
		conflicts = prev.Conflicts
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}
	title := "dataset"
	if d.Manifest != nil {
		title = d.Manifest.Stele
	}
	report := qa.Build(d.Entries(), regression, conflicts, p.QA.Mode)
	if err := dataset.WriteReport(d.Dir, report, title); err != nil {
		return nil, err
	}
	return report, errors.Join(errs...)
}
