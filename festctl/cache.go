package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/DeafMist/festival-radar/backend/internal/assets"
	"github.com/DeafMist/festival-radar/backend/internal/config"
	"github.com/DeafMist/festival-radar/backend/internal/ingest"
	"github.com/DeafMist/festival-radar/backend/internal/models"
	"github.com/DeafMist/festival-radar/backend/internal/ttlcache"
)

var (
	clearAssets bool
	clearRaw    bool
)

var cacheCmd = &cobra.Command{
	Use:     "cache",
	Short:   "Manage the build cache",
	GroupID: "maintenance",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop the cached event set, and optionally assets and raw snapshots",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadTools()
		if err != nil {
			return err
		}
		removed, err := clearCache(cfg.CacheDir, clearAssets, clearRaw)
		if err != nil {
			return err
		}
		for _, path := range removed {
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", path)
		}
		return nil
	},
}

func init() {
	cacheClearCmd.Flags().BoolVar(&clearAssets, "assets", false, "also wipe resolved assets")
	cacheClearCmd.Flags().BoolVar(&clearRaw, "raw", false, "also drop raw table snapshots")
	cacheCmd.AddCommand(cacheClearCmd)
}

func clearCache(dir string, withAssets, withRaw bool) ([]string, error) {
	cache := ttlcache.New[models.EventSet](ttlcache.Options{Dir: dir}, nil)
	if err := cache.Invalidate(ingest.CacheKey); err != nil {
		return nil, err
	}
	removed := []string{cache.Path(ingest.CacheKey)}

	if withAssets {
		assetDir := ingest.AssetDir(dir)
		if err := assets.Wipe(assetDir); err != nil {
			return removed, err
		}
		removed = append(removed, assetDir)
	}
	if withRaw {
		rawDir := filepath.Join(dir, "raw")
		if err := os.RemoveAll(rawDir); err != nil {
			return removed, fmt.Errorf("remove raw snapshots: %w", err)
		}
		removed = append(removed, rawDir)
	}
	return removed, nil
}
