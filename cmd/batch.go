package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/claims-vision/internal/model"
)

var (
	batchDir string
	batchOut string
)

// batchResult pairs a photo with its outcome for the batch summary.
type batchResult struct {
	Source string        `json:"source"`
	Report *model.Report `json:"report,omitempty"`
	Error  string        `json:"error,omitempty"`
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Assess every claim photo in a directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		photos, err := collectPhotos(batchDir)
		if err != nil {
			return err
		}
		if len(photos) == 0 {
			return eris.Errorf("no photos found in %s", batchDir)
		}

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		zap.L().Info("batch starting",
			zap.Int("photos", len(photos)),
			zap.Int("max_concurrent", cfg.Batch.MaxConcurrent),
		)

		results := make([]batchResult, len(photos))
		var mu sync.Mutex

		g, gCtx := errgroup.WithContext(ctx)
		g.SetLimit(cfg.Batch.MaxConcurrent)
		for i, path := range photos {
			g.Go(func() error {
				source := filepath.Base(path)
				res := batchResult{Source: source}

				image, err := loadPhoto(path)
				if err == nil {
					res.Report, err = env.Pipeline.Run(gCtx, source, image)
				}
				if err != nil {
					// One bad photo must not sink the batch.
					res.Error = err.Error()
					zap.L().Error("batch photo failed",
						zap.String("source", source),
						zap.Error(err),
					)
				}

				mu.Lock()
				results[i] = res
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()

		failed := 0
		skipped := 0
		for _, r := range results {
			if r.Error != "" {
				failed++
			} else if r.Report.Skipped {
				skipped++
			}
		}
		zap.L().Info("batch complete",
			zap.Int("photos", len(photos)),
			zap.Int("failed", failed),
			zap.Int("skipped", skipped),
		)

		out := os.Stdout
		if batchOut != "" {
			f, err := os.Create(batchOut)
			if err != nil {
				return eris.Wrap(err, "create output file")
			}
			defer f.Close()
			out = f
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	},
}

// collectPhotos lists the image files in dir, sorted by name.
func collectPhotos(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "read photo directory %s", dir)
	}

	var photos []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tif", ".tiff":
			photos = append(photos, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(photos)
	return photos, nil
}

func init() {
	batchCmd.Flags().StringVar(&batchDir, "dir", "", "directory of claim photos (required)")
	batchCmd.Flags().StringVar(&batchOut, "out", "", "write results JSON to file instead of stdout")
	_ = batchCmd.MarkFlagRequired("dir")
	rootCmd.AddCommand(batchCmd)
}
