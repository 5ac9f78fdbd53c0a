package main

import (
	"github.com/spf13/cobra"

	"stele-slicer/internal/dataset"
	"stele-slicer/internal/override"
	"stele-slicer/internal/pipeline"
)

var (
	overrideFile string
	overrideOnly []string
)

var overrideCmd = &cobra.Command{
	Use:   "override",
	Short: "Apply manual crop overrides to a built dataset",
	Long: "Apply manual crop overrides. Only the named images are rewritten; " +
		"index.json, qa_report.json and qa_summary.md are updated atomically.",
	RunE: runOverride,
}

func init() {
	RootCmd.AddCommand(overrideCmd)
	overrideCmd.Flags().StringVarP(&overrideFile, "file", "f", "", "Override file (defaults to overrides_file from the config)")
	overrideCmd.Flags().StringSliceVar(&overrideOnly, "only", nil, "Apply only these file names")
}

func runOverride(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	params, err := stageParams(cfg)
	if err != nil {
		return err
	}
	path := overrideFile
	if path == "" {
		path = cfg.Resolve(cfg.OverridesFile)
	}
	o, err := dataset.LoadOverrides(path)
	if err != nil {
		return err
	}
	in, err := pipeline.LoadInputs(cfg)
	if err != nil {
		return err
	}
	d, err := dataset.Load(cfg.Resolve(cfg.OutputDir))
	if err != nil {
		return err
	}

	m := &override.Manager{Params: params, Resolve: cfg.Resolve, Regression: in.Regression, Log: log}
	res, err := m.Apply(cmd.Context(), d, o, overrideOnly)
	if res != nil {
		cmd.Printf("%d overrides applied, %d failed\n", len(res.Applied), len(res.Failed))
	}
	return err
}
