package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"stele-slicer/internal/failure"
	"stele-slicer/internal/qa"
)

// File names inside a dataset directory.
const (
	IndexFile    = "index.json"
	ManifestFile = "manifest.json"
	ReportFile   = "qa_report.json"
	SummaryFile  = "qa_summary.md"
	partialDir   = ".pages"
)

// Dataset is a loaded dataset directory.
type Dataset struct {
	Dir      string
	Manifest *Manifest
	Records  []Record
}

// Load reads index.json and manifest.json from dir. A missing or unparsable
// index is a hard failure; a missing manifest is tolerated.
func Load(dir string) (*Dataset, error) {
	path := filepath.Join(dir, IndexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, failure.NewMalformedInputError(path, err)
	}
	d := &Dataset{Dir: dir}
	if err := json.Unmarshal(data, &d.Records); err != nil {
		return nil, failure.NewMalformedInputError(path, err)
	}

	mpath := filepath.Join(dir, ManifestFile)
	data, err = os.ReadFile(mpath)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, failure.NewMalformedInputError(mpath, err)
	default:
		var m Manifest
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, failure.NewMalformedInputError(mpath, err)
		}
		d.Manifest = &m
	}
	d.sort()
	return d, nil
}

func (d *Dataset) sort() {
	sort.SliceStable(d.Records, func(i, j int) bool { return d.Records[i].Index < d.Records[j].Index })
}

// Find returns the position of file in Records.
func (d *Dataset) Find(file string) (int, bool) {
	for i, r := range d.Records {
		if r.File == file {
			return i, true
		}
	}
	return -1, false
}

// Path joins a dataset-relative name onto the dataset directory.
func (d *Dataset) Path(name string) string {
	return filepath.Join(d.Dir, name)
}

// Entries returns the QA entries of all records in reading order.
func (d *Dataset) Entries() []qa.Entry {
	out := make([]qa.Entry, len(d.Records))
	for i, r := range d.Records {
		out[i] = r.Entry()
	}
	return out
}

// Save writes index.json and manifest.json. Files whose bytes do not change
// are left untouched.
func (d *Dataset) Save() error {
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create dataset dir: %w", err)
	}
	d.sort()
	records := d.Records
	if records == nil {
		records = []Record{}
	}
	data, err := MarshalJSON(records)
	if err != nil {
		return fmt.Errorf("failed to encode index: %w", err)
	}
	if _, err := WriteIfChanged(d.Path(IndexFile), data); err != nil {
		return err
	}
	if d.Manifest == nil {
		return nil
	}
	d.Manifest.Records = len(d.Records)
	data, err = MarshalJSON(d.Manifest)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	_, err = WriteIfChanged(d.Path(ManifestFile), data)
	return err
}

// ReadReport loads qa_report.json from dir.
func ReadReport(dir string) (*qa.Report, error) {
	path := filepath.Join(dir, ReportFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r qa.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, failure.NewMalformedInputError(path, err)
	}
	return &r, nil
}

// WriteReport writes qa_report.json and qa_summary.md.
func WriteReport(dir string, r *qa.Report, title string) error {
	data, err := MarshalJSON(r)
	if err != nil {
		return fmt.Errorf("failed to encode qa report: %w", err)
	}
	if _, err := WriteIfChanged(filepath.Join(dir, ReportFile), data); err != nil {
		return err
	}
	_, err = WriteIfChanged(filepath.Join(dir, SummaryFile), []byte(r.Markdown(title)))
	return err
}
