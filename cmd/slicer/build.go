package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"stele-slicer/internal/pipeline"
)

var buildFresh bool

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the character dataset from the configured pages",
	RunE:  runBuild,
}

func init() {
	RootCmd.AddCommand(buildCmd)
	buildCmd.Flags().BoolVar(&buildFresh, "fresh", false, "Ignore checkpoints and reprocess every page")
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	params, err := stageParams(cfg)
	if err != nil {
		return err
	}
	jobs, err := pipeline.Plan(cfg)
	if err != nil {
		return err
	}

	var cl closers
	defer cl.Close()
	db, err := openStore(cfg, &cl)
	if err != nil {
		return err
	}
	rec, err := recognizer(ctx, cfg, db, log, &cl)
	if err != nil {
		return err
	}

	var cp pipeline.Checkpoints
	if db != nil {
		if buildFresh {
			if err := db.Reset(ctx, cfg.Stele); err != nil {
				return err
			}
		}
		cp = db
	}
	runner, err := pipeline.NewRunner(cfg, params, rec, cp, log)
	if err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"stele":   cfg.Stele,
		"pages":   len(jobs),
		"workers": cfg.Workers,
		"labeler": rec.Version(),
		"digest":  runner.Digest,
	}).Info("starting build")
	sum, err := runner.Run(ctx, jobs)
	if sum != nil {
		cmd.Printf("%d records from %d pages (%d resumed, %d failed); %d in review queue\n",
			sum.Records, sum.Pages, sum.Resumed, sum.Failed, len(sum.Report.Queue))
	}
	return err
}
