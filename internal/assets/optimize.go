package assets

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/DeafMist/festival-radar/backend/internal/logger"
)

// OptimizeReport summarizes an optimization pass.
type OptimizeReport struct {
	Written int
	Skipped int
	Failed  int
}

// Optimize re-encodes every cached raster of src into dst as WebP through
// the resizer. Existing outputs are skipped; a failing file is logged and
// counted, never fatal.
func Optimize(ctx context.Context, resizer Resizer, src, dst string, width, height int, log *slog.Logger) (OptimizeReport, error) {
	log = logger.OrDiscard(log)
	var rep OptimizeReport

	entries, err := os.ReadDir(src)
	if err != nil {
		return rep, fmt.Errorf("read asset dir: %w", err)
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return rep, fmt.Errorf("create output dir: %w", err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		if entry.IsDir() || strings.HasSuffix(entry.Name(), ".tmp") {
			continue
		}
		in := filepath.Join(src, entry.Name())
		base := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		out := filepath.Join(dst, base+".webp")
		if _, err := os.Stat(out); err == nil {
			rep.Skipped++
			continue
		}

		data, err := os.ReadFile(in)
		if err != nil {
			rep.Failed++
			log.Warn("read cached asset", slog.String("file", in), slog.Any("err", err))
			continue
		}
		if !isRaster(mimetype.Detect(data)) {
			rep.Skipped++
			continue
		}

		webp, err := resizer.Resize(ctx, data, width, height)
		if err != nil {
			rep.Failed++
			log.Warn("optimize asset", slog.String("file", in), slog.Any("err", err))
			continue
		}
		if err := os.WriteFile(out, webp, 0o644); err != nil {
			return rep, fmt.Errorf("write optimized asset: %w", err)
		}
		rep.Written++
	}
	return rep, nil
}
