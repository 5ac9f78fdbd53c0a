package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"stele-slicer/internal/config"
	"stele-slicer/internal/labeler"
	"stele-slicer/internal/labeler/claude"
	"stele-slicer/internal/labeler/tesseract"
	"stele-slicer/internal/pipeline"
	"stele-slicer/internal/store"
)

// stageParams maps the config onto stage parameters.
func stageParams(cfg *config.Config) (pipeline.Params, error) {
	return pipeline.ParamsFromConfig(cfg)
}

// closers collects resources to release when a command ends.
type closers []io.Closer

func (c closers) Close() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i].Close()
	}
}

// openStore opens the SQLite checkpoint and label store, if configured.
func openStore(cfg *config.Config, cl *closers) (*store.SQLite, error) {
	if cfg.Cache.SQLitePath == "" {
		return nil, nil
	}
	db, err := store.OpenSQLite(cfg.Resolve(cfg.Cache.SQLitePath))
	if err != nil {
		return nil, err
	}
	*cl = append(*cl, db)
	return db, nil
}

// recognizer builds the configured recognizer wrapped with retries and a
// cache. With no recognizer configured it returns labeler.Disabled.
func recognizer(ctx context.Context, cfg *config.Config, db *store.SQLite, log logrus.FieldLogger, cl *closers) (labeler.Recognizer, error) {
	var inner labeler.Recognizer
	switch cfg.Labeler.Kind {
	case "none", "":
		return labeler.Disabled{}, nil
	case "tesseract":
		eng, err := tesseract.NewEngine()
		if err != nil {
			return nil, fmt.Errorf("failed to start tesseract: %w", err)
		}
		*cl = append(*cl, eng)
		inner = eng
	case "claude":
		if cfg.Labeler.APIKey == "" {
			log.Warn("ANTHROPIC_API_KEY is not set; labels will be unverified")
			return labeler.Disabled{}, nil
		}
		inner = claude.New(cfg.Labeler.APIKey, cfg.Labeler.Model)
	default:
		return nil, fmt.Errorf("unknown labeler %q", cfg.Labeler.Kind)
	}

	var cache labeler.Cache = labeler.NewMemoryCache()
	if db != nil {
		cache = db
	}
	if cfg.Cache.RedisURL != "" {
		r, err := store.NewRedis(ctx, cfg.Cache.RedisURL, 30*24*time.Hour)
		if err != nil {
			log.WithError(err).Warn("redis label cache unavailable")
		} else {
			*cl = append(*cl, r)
			cache = store.Tiered{Local: cache, Shared: r}
		}
	}
	c := labeler.NewCached(inner, cache, log)
	c.Retry = cfg.RetryPolicy()
	return c, nil
}
