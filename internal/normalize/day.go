// Package normalize maps heterogeneous source values onto the closed day
// and type enumerations.
package normalize

import (
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/DeafMist/festival-radar/backend/internal/models"
	"github.com/DeafMist/festival-radar/backend/internal/processing"
)

// allDaysKeywords always mean "the three days", whatever the edition.
var allDaysKeywords = []string{"trois", "all", "tous les jours"}

// Calendar carries the per-edition day names.
type Calendar struct {
	Names            [3]string
	AllDaysLabel     string
	UnspecifiedLabel string
}

// DefaultCalendar is the Wednesday-to-Friday layout used since 2024.
func DefaultCalendar() Calendar {
	return Calendar{
		Names:            [3]string{"Mercredi", "Jeudi", "Vendredi"},
		AllDaysLabel:     "Les trois jours",
		UnspecifiedLabel: models.TimeTBD,
	}
}

// Label returns the display name for d.
func (c Calendar) Label(d models.Day) string {
	switch d {
	case models.DayFirst, models.DaySecond, models.DayThird:
		return c.Names[int(d-models.DayFirst)]
	case models.DayAll:
		return c.AllDaysLabel
	default:
		return c.UnspecifiedLabel
	}
}

// Labels returns every display name in published order.
func (c Calendar) Labels() []string {
	return []string{c.Names[0], c.Names[1], c.Names[2], c.AllDaysLabel, c.UnspecifiedLabel}
}

// Parse maps a display label or day code back onto the enumeration.
func (c Calendar) Parse(label string) (models.Day, bool) {
	want := processing.Fold(label)
	if want == "" {
		return models.DayUnspecified, false
	}
	for _, d := range []models.Day{models.DayFirst, models.DaySecond, models.DayThird, models.DayAll, models.DayUnspecified} {
		if want == processing.Fold(c.Label(d)) || want == d.String() {
			return d, true
		}
	}
	return models.DayUnspecified, false
}

// Day normalizes a raw source value: numbers use the fixed table
// {0: all, 1..3: configured days}, objects recurse on their title, strings
// are matched on keywords. Anything else is unspecified.
func (c Calendar) Day(input any) models.Day {
	switch v := input.(type) {
	case nil:
		return models.DayUnspecified
	case models.Day:
		if v.Valid() {
			return v
		}
		return models.DayUnspecified
	case int:
		return dayFromNumber(int64(v))
	case int64:
		return dayFromNumber(v)
	case float64:
		if v != math.Trunc(v) {
			return models.DayUnspecified
		}
		return dayFromNumber(int64(v))
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return models.DayUnspecified
		}
		return dayFromNumber(n)
	case map[string]any:
		if t, ok := titleOf(v); ok {
			return c.Day(t)
		}
		return models.DayUnspecified
	case *string:
		if v == nil {
			return models.DayUnspecified
		}
		return c.dayFromString(*v)
	case string:
		return c.dayFromString(v)
	}
	return models.DayUnspecified
}

func (c Calendar) dayFromString(raw string) models.Day {
	s := processing.Fold(raw)
	if s == "" {
		return models.DayUnspecified
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return dayFromNumber(n)
	}

	for _, kw := range allDaysKeywords {
		if strings.Contains(s, kw) {
			return models.DayAll
		}
	}
	if all := processing.Fold(c.AllDaysLabel); all != "" && strings.Contains(s, all) {
		return models.DayAll
	}
	for i, name := range c.Names {
		if n := processing.Fold(name); n != "" && strings.Contains(s, n) {
			return models.ScheduledDays[i]
		}
	}
	return models.DayUnspecified
}

func dayFromNumber(n int64) models.Day {
	switch n {
	case 0:
		return models.DayAll
	case 1:
		return models.DayFirst
	case 2:
		return models.DaySecond
	case 3:
		return models.DayThird
	}
	return models.DayUnspecified
}

func titleOf(m map[string]any) (any, bool) {
	for _, k := range []string{"Title", "title", "Titre"} {
		if v, ok := m[k]; ok {
			return v, true
		}
	}
	return nil, false
}
