package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/DeafMist/festival-radar/backend/internal/assets"
	"github.com/DeafMist/festival-radar/backend/internal/config"
	"github.com/DeafMist/festival-radar/backend/internal/ingest"
	"github.com/DeafMist/festival-radar/backend/internal/logger"
)

var optimizeDst string

var assetsCmd = &cobra.Command{
	Use:     "assets",
	Short:   "Work with resolved assets",
	GroupID: "maintenance",
}

var assetsOptimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Resize cached assets into WebP images for the site",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.New("festctl")
		cfg, err := config.LoadTools()
		if err != nil {
			return err
		}
		resizer, err := assets.NewCwebp(cfg.CwebpPath)
		if err != nil {
			return err
		}
		dst := optimizeDst
		if dst == "" {
			dst = filepath.Join(cfg.OutputDir, "images")
		}

		rep, err := assets.Optimize(cmd.Context(), resizer, ingest.AssetDir(cfg.CacheDir), dst, cfg.Width, cfg.Height, log)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd, rep)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Optimized %d assets (%d skipped, %d failed) into %s\n", rep.Written, rep.Skipped, rep.Failed, dst)
		return nil
	},
}

func init() {
	assetsOptimizeCmd.Flags().StringVar(&optimizeDst, "out", "", "output directory (default OUTPUT_DIR/images)")
	assetsCmd.AddCommand(assetsOptimizeCmd)
}
