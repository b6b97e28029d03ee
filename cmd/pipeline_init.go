package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/claims-vision/internal/imageprep"
	"github.com/sells-group/claims-vision/internal/llm"
	"github.com/sells-group/claims-vision/internal/pipeline"
	"github.com/sells-group/claims-vision/internal/refdata"
	"github.com/sells-group/claims-vision/internal/store"
	anthropicpkg "github.com/sells-group/claims-vision/pkg/anthropic"
)

// pipelineEnv holds the initialized store, reference data, and pipeline
// shared by the assess/batch/serve commands.
type pipelineEnv struct {
	Store    store.Store // nil when persistence is disabled
	RefData  *refdata.Store
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline loads the reference pack, opens the run store, and builds
// the assessment pipeline. Callers should defer env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	if cfg.Anthropic.Key == "" {
		return nil, eris.New("anthropic key not configured (set CLAIMS_ANTHROPIC_KEY)")
	}

	ref, err := refdata.Load(cfg.RefData.ChecksPath, cfg.RefData.CatalogPath)
	if err != nil {
		return nil, eris.Wrap(err, "load reference data")
	}
	zap.L().Info("reference data loaded",
		zap.Int("categories", len(ref.Categories())),
		zap.Int("catalog_items", len(ref.Catalog())),
	)

	var st store.Store
	if cfg.Store.Path != "" {
		sqliteStore, err := store.NewSQLite(cfg.Store.Path)
		if err != nil {
			return nil, eris.Wrap(err, "open run store")
		}
		if err := sqliteStore.Migrate(ctx); err != nil {
			_ = sqliteStore.Close()
			return nil, eris.Wrap(err, "migrate run store")
		}
		st = sqliteStore
	} else {
		zap.L().Warn("run store disabled, results will not be persisted")
	}

	client := anthropicpkg.NewClient(cfg.Anthropic.Key)
	limiter := rate.NewLimiter(rate.Limit(cfg.Anthropic.RequestsPerMinute/60.0), 1)
	invoker := llm.New(client, llm.Config{
		PrimaryModel:   cfg.Anthropic.Model,
		FallbackModel:  cfg.Anthropic.FallbackModel,
		MaxAttempts:    cfg.Anthropic.MaxAttempts,
		RequestTimeout: time.Duration(cfg.Anthropic.RequestTimeoutSecs) * time.Second,
	}, limiter)

	return &pipelineEnv{
		Store:    st,
		RefData:  ref,
		Pipeline: pipeline.New(invoker, ref, st),
	}, nil
}

// imageOptions derives preprocessing bounds from configuration.
func imageOptions() imageprep.Options {
	return imageprep.Options{
		MaxSourceBytes:  cfg.Image.MaxSourceMB << 20,
		TargetDimension: cfg.Image.TargetDimension,
	}
}

// loadPhoto normalizes a photo from disk into the payload the vision
// stages consume.
func loadPhoto(path string) (llm.Image, error) {
	data, err := imageprep.EncodeFile(path, imageOptions())
	if err != nil {
		return llm.Image{}, err
	}
	return llm.Image{MediaType: imageprep.MediaType, Data: data}, nil
}
