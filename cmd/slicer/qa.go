package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"stele-slicer/internal/dataset"
	"stele-slicer/internal/pipeline"
	"stele-slicer/internal/qa"
)

var qaMode string

var qaCmd = &cobra.Command{
	Use:   "qa",
	Short: "Recompute QA metrics and reports for a built dataset",
	RunE:  runQA,
}

func init() {
	RootCmd.AddCommand(qaCmd)
	qaCmd.Flags().StringVar(&qaMode, "mode", "", "QA mode: strict or lenient (defaults to the config)")
}

func runQA(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	params, err := stageParams(cfg)
	if err != nil {
		return err
	}
	switch qaMode {
	case "":
	case string(qa.Strict), string(qa.Lenient):
		params.QA = params.QA.WithMode(qa.Mode(qaMode))
	default:
		return fmt.Errorf("unknown qa mode %q", qaMode)
	}
	in, err := pipeline.LoadInputs(cfg)
	if err != nil {
		return err
	}
	d, err := dataset.Load(cfg.Resolve(cfg.OutputDir))
	if err != nil {
		return err
	}
	report, err := pipeline.Rescore(d, params, cfg.Resolve, in.Regression)
	if report != nil {
		log.WithField("queue", len(report.Queue)).Info("qa report rewritten")
		for _, f := range qa.AllFlags {
			cmd.Printf("%-16s %d\n", f, report.Counts[f])
		}
	}
	return err
}
