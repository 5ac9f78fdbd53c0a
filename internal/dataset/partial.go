package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"stele-slicer/internal/failure"
)

// Partial is the output of one page, kept so an interrupted build can resume
// without reprocessing the page.
type Partial struct {
	Page      int                `json:"page"`
	Image     string             `json:"image"`
	Hash      string             `json:"hash"`
	Records   []Record           `json:"records"`
	Conflicts []failure.Conflict `json:"conflicts"`
}

// PartialPath is the location of a page's partial file.
func PartialPath(dir string, page int) string {
	return filepath.Join(dir, partialDir, fmt.Sprintf("page_%03d.json", page))
}

// WritePartial stores p atomically.
func WritePartial(dir string, p *Partial) error {
	if err := os.MkdirAll(filepath.Join(dir, partialDir), 0o755); err != nil {
		return fmt.Errorf("failed to create partial dir: %w", err)
	}
	if p.Records == nil {
		p.Records = []Record{}
	}
	if p.Conflicts == nil {
		p.Conflicts = []failure.Conflict{}
	}
	return WriteJSONAtomic(PartialPath(dir, p.Page), p)
}

// ReadPartial loads a page's partial file.
func ReadPartial(dir string, page int) (*Partial, error) {
	path := PartialPath(dir, page)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p Partial
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, failure.NewMalformedInputError(path, err)
	}
	return &p, nil
}
