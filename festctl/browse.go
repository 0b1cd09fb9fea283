package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/DeafMist/festival-radar/backend/internal/browse"
	"github.com/DeafMist/festival-radar/backend/internal/config"
	"github.com/DeafMist/festival-radar/backend/internal/models"
	"github.com/DeafMist/festival-radar/backend/internal/publish"
)

var (
	browseDays  []string
	browseTypes []string
	browsePage  int
	browseFrame time.Duration
)

var browseCmd = &cobra.Command{
	Use:     "browse",
	Short:   "Filter and page through the published event set",
	GroupID: "inspect",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadTools()
		if err != nil {
			return err
		}
		set, err := publish.ReadFile(cfg.OutputDir)
		if err != nil {
			return err
		}

		cal := cfg.Edition.Calendar()
		state := browse.NewState(browse.Options{
			Calendar:       cal,
			DigitalVillage: cfg.Edition.DigitalVillage,
			PageSize:       cfg.Edition.PageSize,
		})
		var apply []func(*browse.State)
		if len(browseDays) > 0 {
			days := make([]models.Day, 0, len(browseDays))
			for _, raw := range browseDays {
				day, ok := cal.Parse(raw)
				if !ok {
					return fmt.Errorf("unknown day %q", raw)
				}
				days = append(days, day)
			}
			apply = append(apply, func(s *browse.State) { s.SelectDays(days...) })
		}
		if len(browseTypes) > 0 {
			cats := make([]browse.Category, 0, len(browseTypes))
			for _, raw := range browseTypes {
				c, ok := browse.ParseCategory(raw)
				if !ok {
					return fmt.Errorf("unknown type %q", raw)
				}
				cats = append(cats, c)
			}
			apply = append(apply, func(s *browse.State) { s.SelectTypes(cats...) })
		}
		apply = append(apply, func(s *browse.State) { s.SetPage(browsePage) })

		if jsonOutput {
			for _, fn := range apply {
				fn(state)
			}
			return printJSON(cmd, state.Snapshot(set.All()))
		}

		container := browse.NewTextContainer(cmd.OutOrStdout(), cal)
		renderer := browse.NewRenderer(container, cfg.Edition.RenderBatch)
		ctrl := browse.NewController(state, set.All(), renderer)
		view := ctrl.Update(func(s *browse.State) {
			for _, fn := range apply {
				fn(s)
			}
		})

		fmt.Fprintf(cmd.OutOrStdout(), "%s (page %d/%d, %d events)\n", view.Title, view.Page, view.TotalPages, view.Total)
		return drain(cmd.Context(), renderer, browseFrame)
	},
}

func init() {
	browseCmd.Flags().StringSliceVar(&browseDays, "day", nil, "day name or code (repeatable)")
	browseCmd.Flags().StringSliceVar(&browseTypes, "type", nil, "conferences, workshops, digital-demos or stands (repeatable)")
	browseCmd.Flags().IntVar(&browsePage, "page", 1, "page number, clamped to the available pages")
	browseCmd.Flags().DurationVar(&browseFrame, "frame", 0, "delay between render batches")
}

// drain renders the queued pass, one batch per frame when frame > 0.
func drain(ctx context.Context, r *browse.Renderer, frame time.Duration) error {
	if frame <= 0 {
		r.Flush()
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	frames := make(chan time.Time)
	go func() {
		defer close(frames)
		ticker := time.NewTicker(frame)
		defer ticker.Stop()
		for r.Pending() > 0 {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				select {
				case frames <- t:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return r.Run(ctx, frames)
}
