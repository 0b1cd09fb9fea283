package assets

import "github.com/DeafMist/festival-radar/backend/internal/models"

// NeedsRasterConversion reports whether any descriptor references a PDF.
// Nothing is downloaded, so it is cheap enough to run before deciding
// whether to provision the converter at all.
func NeedsRasterConversion(media [][]models.Media) bool {
	for _, list := range media {
		for _, m := range list {
			if IsPDF(m) {
				return true
			}
		}
	}
	return false
}

// CountPDF counts PDF descriptors, for reporting.
func CountPDF(media [][]models.Media) int {
	n := 0
	for _, list := range media {
		for _, m := range list {
			if IsPDF(m) {
				n++
			}
		}
	}
	return n
}
