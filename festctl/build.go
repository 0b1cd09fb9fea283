package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/DeafMist/festival-radar/backend/internal/config"
	"github.com/DeafMist/festival-radar/backend/internal/ingest"
	"github.com/DeafMist/festival-radar/backend/internal/logger"
	"github.com/DeafMist/festival-radar/backend/internal/models"
	"github.com/DeafMist/festival-radar/backend/internal/publish"
)

var (
	buildNoCache bool
	buildDryRun  bool
)

var buildCmd = &cobra.Command{
	Use:     "build",
	Short:   "Fetch every table, build the event set and publish it",
	GroupID: "build",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.New("festctl")
		cfg, err := config.LoadBuild()
		if err != nil {
			return err
		}

		rt, err := ingest.Setup(cfg, log)
		if err != nil {
			return err
		}
		defer rt.Close()

		ctx := cmd.Context()
		var set *models.EventSet
		if buildNoCache {
			set, err = rt.Pipeline.Build(ctx)
			if err == nil {
				if setErr := rt.Cache.Set(ingest.CacheKey, *set); setErr != nil {
					log.Warn("store event set in cache", slog.Any("err", setErr))
				}
			}
		} else {
			res, cerr := rt.Pipeline.BuildCached(ctx, rt.Cache)
			set, err = &res.Value, cerr
		}
		if err != nil {
			return fmt.Errorf("build: %w", err)
		}

		if !buildDryRun {
			pub, closePub, err := publish.FromConfig(ctx, cfg.Publish, cfg.Common, log)
			if err != nil {
				return err
			}
			defer closePub()
			if err := pub.Publish(ctx, set); err != nil {
				return err
			}
		}

		if jsonOutput {
			return printJSON(cmd, buildSummary(set))
		}
		printSummary(cmd, set)
		return nil
	},
}

func init() {
	buildCmd.Flags().BoolVar(&buildNoCache, "no-cache", false, "ignore a fresh cache entry and rebuild")
	buildCmd.Flags().BoolVar(&buildDryRun, "dry-run", false, "build without publishing")
}

type summary struct {
	RunID      string               `json:"run_id"`
	Total      int                  `json:"total"`
	ByDay      map[string]int       `json:"by_day"`
	Duplicates int                  `json:"duplicates"`
	Tables     []models.TableReport `json:"tables"`
}

func buildSummary(set *models.EventSet) summary {
	s := summary{
		RunID:      set.RunID,
		Total:      set.Len(),
		ByDay:      make(map[string]int, len(set.Days)),
		Duplicates: len(set.Duplicates),
		Tables:     set.Tables,
	}
	for _, day := range set.Days {
		s.ByDay[day] = len(set.ByDay[day])
	}
	return s
}

func printSummary(cmd *cobra.Command, set *models.EventSet) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %s: %d events, %d duplicate groups\n", set.RunID, set.Len(), len(set.Duplicates))
	for _, day := range set.Days {
		fmt.Fprintf(out, "  %-16s %d\n", day, len(set.ByDay[day]))
	}
	for _, t := range set.Tables {
		status := "unchanged"
		switch {
		case t.Error != "":
			status = "failed: " + t.Error
		case t.Changed:
			status = "changed"
		}
		fmt.Fprintf(out, "  table %-12s %4d records  %s\n", t.Table, t.Records, status)
	}
}
