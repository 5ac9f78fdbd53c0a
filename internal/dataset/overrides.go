package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"stele-slicer/internal/failure"
	"stele-slicer/pkg/geometry"
)

// OverridesVersion is the only supported override file version.
const OverridesVersion = 1

// Overrides is the manual crop correction file.
type Overrides struct {
	Version       int                     `json:"version"`
	CropOverrides map[string]CropOverride `json:"crop_overrides"`
}

// CropOverride replaces the computed crop box of one file.
type CropOverride struct {
	CropBox geometry.Box `json:"crop_box"`
	Note    string       `json:"note,omitempty"`
}

// LoadOverrides reads and validates an override file. Unparsable JSON or a
// wrong version is a hard failure.
func LoadOverrides(path string) (*Overrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, failure.NewMalformedInputError(path, err)
	}
	return ParseOverrides(path, data)
}

// ParseOverrides decodes override file bytes; path is used in errors.
func ParseOverrides(path string, data []byte) (*Overrides, error) {
	var o Overrides
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, failure.NewMalformedInputError(path, err)
	}
	if o.Version != OverridesVersion {
		return nil, failure.NewMalformedInputError(path,
			fmt.Errorf("unsupported override version %d, want %d", o.Version, OverridesVersion))
	}
	if o.CropOverrides == nil {
		o.CropOverrides = map[string]CropOverride{}
	}
	return &o, nil
}

// Files returns the targeted file names in sorted order.
func (o *Overrides) Files() []string {
	out := make([]string, 0, len(o.CropOverrides))
	for f := range o.CropOverrides {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Subset keeps only the named files. Names not in o are ignored.
func (o *Overrides) Subset(files []string) *Overrides {
	if len(files) == 0 {
		return o
	}
	out := &Overrides{Version: o.Version, CropOverrides: map[string]CropOverride{}}
	for _, f := range files {
		if e, ok := o.CropOverrides[f]; ok {
			out.CropOverrides[f] = e
		}
	}
	return out
}
