package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/DeafMist/festival-radar/backend/internal/models"
	"github.com/DeafMist/festival-radar/backend/internal/normalize"
)

// Edition is the per-edition calendar and taxonomy. It lives in a YAML file
// because day names and dates move every year.
type Edition struct {
	Name             string   `yaml:"name"`
	Days             []string `yaml:"days"`
	Dates            []string `yaml:"dates"`
	AllDaysLabel     string   `yaml:"all_days_label"`
	UnspecifiedLabel string   `yaml:"unspecified_label"`
	DigitalVillage   string   `yaml:"digital_village"`
	Dedup            Dedup    `yaml:"dedup"`
	PageSize         int      `yaml:"page_size"`
	RenderBatch      int      `yaml:"render_batch"`
}

// Dedup configures near-duplicate detection.
type Dedup struct {
	Threshold float64  `yaml:"threshold"`
	Fields    []string `yaml:"fields"`
}

// DefaultEdition mirrors the 2025 festival.
func DefaultEdition() Edition {
	cal := normalize.DefaultCalendar()
	return Edition{
		Name:             "festival",
		Days:             cal.Names[:],
		AllDaysLabel:     cal.AllDaysLabel,
		UnspecifiedLabel: cal.UnspecifiedLabel,
		DigitalVillage:   "Village numérique",
		Dedup: Dedup{
			Threshold: 0.9,
			Fields:    []string{"title", "day", "type"},
		},
		PageSize:    10,
		RenderBatch: 5,
	}
}

// LoadEdition reads path over the defaults. An empty path or a missing file
// yields the defaults.
func LoadEdition(path string) (Edition, error) {
	e := DefaultEdition()
	if path == "" {
		return e, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return e, nil
	}
	if err != nil {
		return Edition{}, fmt.Errorf("read edition file: %w", err)
	}

	if err := yaml.Unmarshal(data, &e); err != nil {
		return Edition{}, fmt.Errorf("parse edition file %s: %w", path, err)
	}
	if err := e.Validate(); err != nil {
		return Edition{}, fmt.Errorf("edition file %s: %w", path, err)
	}
	return e, nil
}

// Validate checks the edition is usable by the pipeline.
func (e Edition) Validate() error {
	if len(e.Days) != 3 {
		return fmt.Errorf("days must list exactly 3 names, got %d", len(e.Days))
	}
	for i, d := range e.Days {
		if d == "" {
			return fmt.Errorf("day %d has no name", i+1)
		}
	}
	if e.Dedup.Threshold <= 0 || e.Dedup.Threshold > 1 {
		return fmt.Errorf("dedup.threshold must be in (0,1]")
	}
	if len(e.Dedup.Fields) == 0 {
		return fmt.Errorf("dedup.fields cannot be empty")
	}
	for _, f := range e.Dedup.Fields {
		switch f {
		case "title", "day", "type", "time", "location", "speaker":
		default:
			return fmt.Errorf("unknown dedup field %q", f)
		}
	}
	if e.PageSize <= 0 {
		return fmt.Errorf("page_size must be positive")
	}
	if e.RenderBatch <= 0 {
		return fmt.Errorf("render_batch must be positive")
	}
	return nil
}

// Calendar converts the edition days into the normalizer calendar.
func (e Edition) Calendar() normalize.Calendar {
	cal := normalize.DefaultCalendar()
	copy(cal.Names[:], e.Days)
	if e.AllDaysLabel != "" {
		cal.AllDaysLabel = e.AllDaysLabel
	}
	if e.UnspecifiedLabel != "" {
		cal.UnspecifiedLabel = e.UnspecifiedLabel
	} else {
		cal.UnspecifiedLabel = models.TimeTBD
	}
	return cal
}
