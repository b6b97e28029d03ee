package main

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	assessPhoto  string
	assessSource string
)

var assessCmd = &cobra.Command{
	Use:   "assess",
	Short: "Assess a single claim photo",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		image, err := loadPhoto(assessPhoto)
		if err != nil {
			return eris.Wrap(err, "prepare photo")
		}

		source := assessSource
		if source == "" {
			source = filepath.Base(assessPhoto)
		}

		report, err := env.Pipeline.Run(ctx, source, image)
		if err != nil {
			return eris.Wrap(err, "assess photo")
		}

		zap.L().Info("assessment complete",
			zap.String("source", source),
			zap.String("category", report.Category),
			zap.Bool("skipped", report.Skipped),
			zap.Int("findings", len(report.Findings)),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	assessCmd.Flags().StringVar(&assessPhoto, "photo", "", "path to the claim photo (required)")
	assessCmd.Flags().StringVar(&assessSource, "source", "", "source identifier for the report (default: photo filename)")
	_ = assessCmd.MarkFlagRequired("photo")
	rootCmd.AddCommand(assessCmd)
}
