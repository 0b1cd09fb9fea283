package normalize

import (
	"strings"

	"github.com/DeafMist/festival-radar/backend/internal/models"
	"github.com/DeafMist/festival-radar/backend/internal/processing"
)

// Type maps a raw type value onto the enumeration, returning fallback when
// nothing matches.
func Type(input any, fallback models.Type) models.Type {
	switch v := input.(type) {
	case models.Type:
		if v.Valid() {
			return v
		}
	case map[string]any:
		if t, ok := titleOf(v); ok {
			return Type(t, fallback)
		}
	case string:
		s := processing.Fold(v)
		switch {
		case s == "":
		case strings.HasPrefix(s, "conf"):
			return models.TypeConference
		case strings.HasPrefix(s, "atelier"), strings.HasPrefix(s, "workshop"), strings.HasPrefix(s, "demo"):
			return models.TypeWorkshop
		case strings.HasPrefix(s, "stand"):
			return models.TypeStand
		}
	}
	return fallback
}

// Time keeps "HH:mm" from source slots such as "14:30:00" and falls back
// to the unscheduled marker.
func Time(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return models.TimeTBD
	}
	if processing.Fold(s) == processing.Fold(models.TimeTBD) {
		return models.TimeTBD
	}
	hh, mm, ok := strings.Cut(s, ":")
	if !ok || len(hh) == 0 || len(hh) > 2 || len(mm) < 2 || !digits(hh) || !digits(mm[:2]) {
		return s
	}
	if len(hh) == 1 {
		hh = "0" + hh
	}
	return hh + ":" + mm[:2]
}

func digits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
