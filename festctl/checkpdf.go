package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/DeafMist/festival-radar/backend/internal/config"
	"github.com/DeafMist/festival-radar/backend/internal/ingest"
	"github.com/DeafMist/festival-radar/backend/internal/logger"
)

var checkPDFCmd = &cobra.Command{
	Use:   "check-pdf",
	Short: "Report whether any attachment needs PDF conversion",
	Long: `Scans every table without downloading anything. Exits with status 1
when a PDF attachment is referenced or when the scan itself fails, so a
deploy script provisions the converter whenever in doubt.`,
	GroupID: "build",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.New("festctl")
		needs, count, err := scanPDF(cmd.Context(), log)
		switch {
		case err != nil:
			fmt.Fprintf(cmd.ErrOrStderr(), "PDF scan failed, assuming conversion is needed: %v\n", err)
		case needs:
			fmt.Fprintf(cmd.OutOrStdout(), "PDF conversion needed (%d attachments)\n", count)
		default:
			fmt.Fprintln(cmd.OutOrStdout(), "No PDF attachments")
		}
		if code := pdfExitCode(needs, err); code != 0 {
			os.Exit(code)
		}
		return nil
	},
}

// pdfExitCode fails closed: any error counts as "conversion needed".
func pdfExitCode(needs bool, err error) int {
	if err != nil || needs {
		return 1
	}
	return 0
}

func scanPDF(ctx context.Context, log *slog.Logger) (bool, int, error) {
	cfg, err := config.LoadBuild()
	if err != nil {
		return false, 0, err
	}
	client, err := ingest.SourceClient(cfg.Source, log)
	if err != nil {
		return false, 0, err
	}
	p := ingest.New(ingest.Options{Calendar: cfg.Edition.Calendar()}, client, nil, log)
	return p.PreflightPDF(ctx)
}
