package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"stele-slicer/internal/dataset"
	"stele-slicer/internal/failure"
	"stele-slicer/internal/page"
	"stele-slicer/internal/qa"
	"stele-slicer/internal/store"
	"stele-slicer/internal/version"
)

// Checkpoints records completed pages for resume.
type Checkpoints interface {
	Done(ctx context.Context, stele string, page int, pageHash, digest string) (bool, error)
	MarkDone(ctx context.Context, c store.Checkpoint) error
}

// Runner builds a dataset from a list of page jobs.
type Runner struct {
	Processor   *Processor
	Dir         string
	Workers     int
	Checkpoints Checkpoints // nil disables resume
	Digest      string      // parameter digest; keys checkpoints and the build id
	Regression  []string
	Log         logrus.FieldLogger
}

// Summary describes a finished build.
type Summary struct {
	Pages   int
	Resumed int
	Failed  int
	Records int
	Report  *qa.Report
}

type pageResult struct {
	partial *dataset.Partial
	resumed bool
	err     error
}

// Run processes the jobs with up to Workers pages in flight and writes the
// dataset. A failing page does not stop the others; the returned error joins
// the page errors. Cancellation stops new pages from starting and returns
// without writing the index, so a rerun resumes from the checkpoints.
func (r *Runner) Run(ctx context.Context, jobs []Job) (*Summary, error) {
	if err := os.MkdirAll(r.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	log := r.log()

	results := make([]pageResult, len(jobs))
	var g errgroup.Group
	g.SetLimit(max(1, r.Workers))
	for i, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			results[i] = r.runPage(ctx, job)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		log.Warn("build cancelled; completed pages are checkpointed")
		return nil, err
	}

	sum := &Summary{Pages: len(jobs)}
	manifest := &dataset.Manifest{
		Version:         dataset.FormatVersion,
		Stele:           r.Processor.Params.Stele,
		PipelineVersion: version.Pipeline(),
		ParamsDigest:    r.Digest,
		Pages:           []dataset.PageEntry{},
	}
	var (
		records   []dataset.Record
		conflicts []failure.Conflict
		hashes    []string
		errs      []error
	)
	for i, job := range jobs {
		res := results[i]
		entry := dataset.PageEntry{Index: job.Page, Image: job.Image, FirstIndex: job.FirstIndex}
		if res.err != nil {
			sum.Failed++
			entry.Status = dataset.PageFailed
			entry.Error = res.err.Error()
			errs = append(errs, fmt.Errorf("page %d (%s): %w", job.Page, job.Image, res.err))
			manifest.Pages = append(manifest.Pages, entry)
			continue
		}
		if res.resumed {
			sum.Resumed++
		}
		entry.Status = dataset.PageDone
		entry.Hash = res.partial.Hash
		entry.Count = len(res.partial.Records)
		hashes = append(hashes, res.partial.Hash)
		records = append(records, res.partial.Records...)
		conflicts = append(conflicts, res.partial.Conflicts...)
		manifest.Pages = append(manifest.Pages, entry)
	}
	manifest.BuildID = dataset.BuildID(manifest.Stele, r.Digest, hashes)

	d := &dataset.Dataset{Dir: r.Dir, Manifest: manifest, Records: records}
	if err := d.Save(); err != nil {
		return nil, err
	}
	report := qa.Build(d.Entries(), r.Regression, conflicts, r.Processor.Params.QA.Mode)
	if err := dataset.WriteReport(r.Dir, report, manifest.Stele); err != nil {
		return nil, err
	}
	sum.Records = len(records)
	sum.Report = report
	log.WithFields(logrus.Fields{
		"pages":   sum.Pages,
		"resumed": sum.Resumed,
		"failed":  sum.Failed,
		"records": sum.Records,
		"queue":   len(report.Queue),
	}).Info("dataset written")
	return sum, errors.Join(errs...)
}

// runPage resumes a checkpointed page or processes it and stores its
// images, partial file and checkpoint, in that order.
func (r *Runner) runPage(ctx context.Context, job Job) pageResult {
	if err := ctx.Err(); err != nil {
		return pageResult{err: err}
	}
	log := r.log().WithFields(logrus.Fields{"page": job.Page, "image": job.Image})
	stele := r.Processor.Params.Stele

	if r.Checkpoints != nil {
		if p, ok := r.resume(ctx, job); ok {
			log.Info("page resumed from checkpoint")
			return pageResult{partial: p, resumed: true}
		}
	}

	out, err := r.Processor.ProcessPage(ctx, job)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.WithError(err).Error("page failed")
		}
		return pageResult{err: err}
	}
	files := make([]string, 0, len(out.Images))
	for f := range out.Images {
		files = append(files, f)
	}
	sort.Strings(files)
	for _, f := range files {
		if _, err := dataset.WriteIfChanged(filepath.Join(r.Dir, f), out.Images[f]); err != nil {
			return pageResult{err: err}
		}
	}
	if err := dataset.WritePartial(r.Dir, out.Partial); err != nil {
		return pageResult{err: err}
	}
	if r.Checkpoints != nil {
		cp := store.Checkpoint{Stele: stele, Page: job.Page, PageHash: out.Partial.Hash, ParamsDigest: r.Digest, Records: len(out.Partial.Records)}
		if err := r.Checkpoints.MarkDone(ctx, cp); err != nil {
			log.WithError(err).Warn("checkpoint not stored")
		}
	}
	log.WithField("records", len(out.Partial.Records)).Info("page done")
	return pageResult{partial: out.Partial}
}

func (r *Runner) resume(ctx context.Context, job Job) (*dataset.Partial, bool) {
	hash, err := page.HashFile(job.Path)
	if err != nil {
		return nil, false
	}
	done, err := r.Checkpoints.Done(ctx, r.Processor.Params.Stele, job.Page, hash, r.Digest)
	if err != nil || !done {
		return nil, false
	}
	p, err := dataset.ReadPartial(r.Dir, job.Page)
	if err != nil || p.Hash != hash || len(p.Records) != job.Total() {
		return nil, false
	}
	if len(p.Records) > 0 && p.Records[0].Index != job.FirstIndex {
		return nil, false
	}
	for _, rec := range p.Records {
		if _, err := os.Stat(filepath.Join(r.Dir, rec.File)); err != nil {
			return nil, false
		}
	}
	return p, true
}

func (r *Runner) log() logrus.FieldLogger {
	if r.Log == nil {
		return logrus.StandardLogger()
	}
	return r.Log
}
