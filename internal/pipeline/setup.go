package pipeline

import (
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"stele-slicer/internal/config"
	"stele-slicer/internal/dataset"
	"stele-slicer/internal/labeler"
	"stele-slicer/internal/qa"
	"stele-slicer/internal/version"
)

// Inputs are the auxiliary files a config names.
type Inputs struct {
	Regression []string
	Overrides  *dataset.Overrides
}

// LoadInputs reads the regression list and the overrides file. A configured
// overrides file that does not exist yet counts as empty.
func LoadInputs(c *config.Config) (Inputs, error) {
	in := Inputs{Overrides: &dataset.Overrides{Version: dataset.OverridesVersion, CropOverrides: map[string]dataset.CropOverride{}}}
	if c.RegressionList != "" {
		list, err := qa.LoadRegressionList(c.Resolve(c.RegressionList))
		if err != nil {
			return in, err
		}
		in.Regression = list
	}
	if c.OverridesFile != "" {
		path := c.Resolve(c.OverridesFile)
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return in, nil
		}
		o, err := dataset.LoadOverrides(path)
		if err != nil {
			return in, err
		}
		in.Overrides = o
	}
	return in, nil
}

// ParamsDigest hashes everything that changes the bytes of a build.
func ParamsDigest(c *config.Config, in Inputs) (string, error) {
	return dataset.Digest(struct {
		Pipeline   string                          `json:"pipeline"`
		Stele      string                          `json:"stele"`
		Tunables   config.Tunables                 `json:"tunables"`
		Overrides  map[string]dataset.CropOverride `json:"overrides"`
		Regression []string                        `json:"regression"`
	}{version.Pipeline(), c.Stele, c.Tunables(), in.Overrides.CropOverrides, in.Regression})
}

// NewRunner wires a runner from a validated config.
func NewRunner(c *config.Config, p Params, rec labeler.Recognizer, cp Checkpoints, log logrus.FieldLogger) (*Runner, error) {
	in, err := LoadInputs(c)
	if err != nil {
		return nil, err
	}
	proc := NewProcessor(p, log)
	if rec != nil {
		proc.Recognizer = rec
	}
	if c.Align.VariantsFile != "" {
		if err := proc.Variants.LoadFile(c.Resolve(c.Align.VariantsFile)); err != nil {
			return nil, err
		}
	}
	proc.Regression = qa.RegressionSet(in.Regression)
	proc.Overrides = in.Overrides.CropOverrides

	digest, err := ParamsDigest(c, in)
	if err != nil {
		return nil, fmt.Errorf("failed to digest parameters: %w", err)
	}
	return &Runner{
		Processor:   proc,
		Dir:         c.Resolve(c.OutputDir),
		Workers:     c.Workers,
		Checkpoints: cp,
		Digest:      digest,
		Regression:  in.Regression,
		Log:         proc.Log,
	}, nil
}
