package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// TimeTBD marks an event whose slot has not been scheduled yet.
const TimeTBD = "À définir"

// TimeAllDay is the slot used by stands, which run for the whole day.
const TimeAllDay = "Toute la journée"

// Type is the closed set of activity kinds.
type Type string

const (
	TypeConference Type = "conference"
	TypeWorkshop   Type = "workshop"
	TypeStand      Type = "stand"
)

// Types lists every activity kind in display order.
var Types = []Type{TypeConference, TypeWorkshop, TypeStand}

// Valid reports whether t is one of the known kinds.
func (t Type) Valid() bool {
	switch t {
	case TypeConference, TypeWorkshop, TypeStand:
		return true
	}
	return false
}

// Label returns the French label shown on the festival site.
func (t Type) Label() string {
	switch t {
	case TypeConference:
		return "Conférences"
	case TypeWorkshop:
		return "Ateliers"
	case TypeStand:
		return "Stands"
	}
	return string(t)
}

// Day is the closed set of festival days. Names are edition configuration,
// the enumeration itself is fixed.
type Day int

const (
	DayUnspecified Day = iota
	DayAll
	DayFirst
	DaySecond
	DayThird
)

var dayCodes = [...]string{"unspecified", "all", "day1", "day2", "day3"}

// ScheduledDays are the three concrete days in chronological order.
var ScheduledDays = []Day{DayFirst, DaySecond, DayThird}

func (d Day) String() string {
	if d < 0 || int(d) >= len(dayCodes) {
		return dayCodes[DayUnspecified]
	}
	return dayCodes[d]
}

// Valid reports whether d is inside the enumeration.
func (d Day) Valid() bool {
	return d >= DayUnspecified && d <= DayThird
}

// Rank orders days chronologically: concrete days first, then events that
// span the whole festival, then unscheduled ones.
func (d Day) Rank() int {
	switch d {
	case DayFirst:
		return 1
	case DaySecond:
		return 2
	case DayThird:
		return 3
	case DayAll:
		return 4
	default:
		return 5
	}
}

func (d Day) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Day) UnmarshalText(b []byte) error {
	code := strings.TrimSpace(string(b))
	for i, c := range dayCodes {
		if c == code {
			*d = Day(i)
			return nil
		}
	}
	return fmt.Errorf("unknown day code %q", code)
}

// Media references one attachment of a source record.
type Media struct {
	URL      string `json:"url"`
	Mimetype string `json:"mimetype,omitempty"`
	Title    string `json:"title,omitempty"`
}

// Event is the canonical festival activity handed to the rendering layer.
type Event struct {
	ID           string   `json:"id" validate:"required"`
	SourceID     string   `json:"source_id"`
	Table        string   `json:"table"`
	Title        string   `json:"title" validate:"required"`
	Slug         string   `json:"slug"`
	Description  string   `json:"description"`
	Type         Type     `json:"type" validate:"required,oneof=conference workshop stand"`
	Day          Day      `json:"day"`
	DayLabel     string   `json:"day_label"`
	Time         string   `json:"time" validate:"required"`
	Location     string   `json:"location"`
	Speaker      string   `json:"speaker"`
	Organization string   `json:"organization,omitempty"`
	Image        string   `json:"image,omitempty"`
	SpeakerImage string   `json:"speaker_image,omitempty"`
	Tags         []string `json:"tags"`
	URL          string   `json:"url,omitempty"`
	Status       string   `json:"status"`
	Theme        string   `json:"theme,omitempty"`
}

// Scheduled reports whether the event has a concrete time slot.
func (e Event) Scheduled() bool {
	return e.Time != "" && e.Time != TimeTBD
}

// DuplicateCandidate is an event dropped by deduplication, kept for audit.
type DuplicateCandidate struct {
	Event Event   `json:"event"`
	Score float64 `json:"score"`
}

// DuplicateGroup ties the surviving event to the near-duplicates it absorbed.
type DuplicateGroup struct {
	SurvivorID    string               `json:"survivor_id"`
	SurvivorTitle string               `json:"survivor_title"`
	Type          Type                 `json:"type"`
	Dropped       []DuplicateCandidate `json:"dropped"`
}

// IDs returns every event id of the group, survivor first.
func (g DuplicateGroup) IDs() []string {
	ids := make([]string, 0, len(g.Dropped)+1)
	ids = append(ids, g.SurvivorID)
	for _, d := range g.Dropped {
		ids = append(ids, d.Event.ID)
	}
	return ids
}

// TableReport summarizes one source table for a build.
type TableReport struct {
	Table   string `json:"table"`
	Records int    `json:"records"`
	Events  int    `json:"events"`
	Changed bool   `json:"changed"`
	Error   string `json:"error,omitempty"`
}

// EventSet is the published, day-partitioned result of one ingestion run.
type EventSet struct {
	RunID       string             `json:"run_id"`
	GeneratedAt time.Time          `json:"generated_at"`
	Days        []string           `json:"days"`
	ByDay       map[string][]Event `json:"by_day"`
	Duplicates  []DuplicateGroup   `json:"duplicates,omitempty"`
	Tables      []TableReport      `json:"tables,omitempty"`
}

// All flattens the set following the day order.
func (s *EventSet) All() []Event {
	if s == nil {
		return nil
	}
	var out []Event
	for _, day := range s.Days {
		out = append(out, s.ByDay[day]...)
	}
	return out
}

// Len counts events across all days.
func (s *EventSet) Len() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, evs := range s.ByDay {
		n += len(evs)
	}
	return n
}

// Less is the display order: stands after everything else, then by day,
// then by time with unscheduled slots last.
func Less(a, b Event) bool {
	aStand, bStand := a.Type == TypeStand, b.Type == TypeStand
	if aStand != bStand {
		return bStand
	}
	if ra, rb := a.Day.Rank(), b.Day.Rank(); ra != rb {
		return ra < rb
	}
	if as, bs := a.Scheduled(), b.Scheduled(); as != bs {
		return as
	}
	return a.Time < b.Time
}

// SortForDisplay sorts events in place, keeping source order for ties.
func SortForDisplay(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return Less(events[i], events[j])
	})
}
