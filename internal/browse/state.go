// Package browse filters, paginates and incrementally renders a published
// event set.
package browse

import (
	"strings"

	"github.com/DeafMist/festival-radar/backend/internal/models"
	"github.com/DeafMist/festival-radar/backend/internal/normalize"
)

// Category is a filter bucket. It follows the event type except for
// workshops held in the digital village, which form their own bucket.
type Category string

const (
	CategoryConferences  Category = "Conférences"
	CategoryWorkshops    Category = "Ateliers"
	CategoryDigitalDemos Category = "Démos numériques"
	CategoryStands       Category = "Stands"
)

// Categories lists the filter buckets in display order.
var Categories = []Category{CategoryConferences, CategoryWorkshops, CategoryDigitalDemos, CategoryStands}

// ParseCategory accepts a label or a short code such as "digital-demos".
func ParseCategory(raw string) (Category, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "conferences", "conference", "conférences":
		return CategoryConferences, true
	case "workshops", "workshop", "ateliers":
		return CategoryWorkshops, true
	case "digital-demos", "demos", "démos numériques":
		return CategoryDigitalDemos, true
	case "stands", "stand":
		return CategoryStands, true
	}
	return "", false
}

func (c Category) allLabel() string {
	switch c {
	case CategoryConferences:
		return "Toutes les conférences"
	case CategoryWorkshops:
		return "Tous les ateliers"
	case CategoryDigitalDemos:
		return "Toutes les démos numériques"
	case CategoryStands:
		return "Tous les stands"
	}
	return "Tous les " + string(c)
}

const (
	allEventsTitle = "Tous les événements"
	noEventsTitle  = "Aucun filtre sélectionné"
)

// Options configure a State.
type Options struct {
	Calendar       normalize.Calendar
	DigitalVillage string
	PageSize       int
}

// State is the filter and pagination state of one view. "All" flags are
// tracked explicitly: an empty selection with the flag off means nothing is
// selected, not that no filter applies.
type State struct {
	opts Options

	activeDays  []models.Day
	activeTypes []Category
	allDays     bool
	allTypes    bool
	page        int
}

// NewState starts with every filter off and page 1.
func NewState(opts Options) *State {
	if opts.PageSize <= 0 {
		opts.PageSize = 10
	}
	if opts.Calendar.Names[0] == "" {
		opts.Calendar = normalize.DefaultCalendar()
	}
	if opts.DigitalVillage == "" {
		opts.DigitalVillage = "Village numérique"
	}
	return &State{opts: opts, allDays: true, allTypes: true, page: 1}
}

// Reset clears every filter, e.g. when the view is navigated away from.
func (s *State) Reset() {
	s.activeDays = nil
	s.activeTypes = nil
	s.allDays = true
	s.allTypes = true
	s.page = 1
}

// SelectAllDays removes the day filter.
func (s *State) SelectAllDays() {
	s.activeDays = nil
	s.allDays = true
	s.page = 1
}

// SelectDays replaces the day filter with days. Repeated days count once.
func (s *State) SelectDays(days ...models.Day) {
	s.page = 1
	s.allDays = false
	s.activeDays = nil
	for _, d := range days {
		if indexOf(s.activeDays, d) < 0 {
			s.activeDays = append(s.activeDays, d)
		}
	}
}

// ToggleDay adds or removes d from the day filter. Toggling from the "all"
// state starts a selection containing only d.
func (s *State) ToggleDay(d models.Day) {
	s.page = 1
	if s.allDays {
		s.allDays = false
		s.activeDays = []models.Day{d}
		return
	}
	if i := indexOf(s.activeDays, d); i >= 0 {
		s.activeDays = append(s.activeDays[:i:i], s.activeDays[i+1:]...)
		return
	}
	s.activeDays = append(s.activeDays, d)
}

// SelectAllTypes removes the category filter.
func (s *State) SelectAllTypes() {
	s.activeTypes = nil
	s.allTypes = true
	s.page = 1
}

// SelectTypes replaces the category filter with cs. Repeated categories
// count once.
func (s *State) SelectTypes(cs ...Category) {
	s.page = 1
	s.allTypes = false
	s.activeTypes = nil
	for _, c := range cs {
		if indexOf(s.activeTypes, c) < 0 {
			s.activeTypes = append(s.activeTypes, c)
		}
	}
}

// ToggleType adds or removes c from the category filter.
func (s *State) ToggleType(c Category) {
	s.page = 1
	if s.allTypes {
		s.allTypes = false
		s.activeTypes = []Category{c}
		return
	}
	if i := indexOf(s.activeTypes, c); i >= 0 {
		s.activeTypes = append(s.activeTypes[:i:i], s.activeTypes[i+1:]...)
		return
	}
	s.activeTypes = append(s.activeTypes, c)
}

// SetPage requests page n. It is clamped against the filtered count when
// the next snapshot is taken.
func (s *State) SetPage(n int) { s.page = n }

// Page is the last requested page.
func (s *State) Page() int { return s.page }

// PageSize is the number of events per page.
func (s *State) PageSize() int { return s.opts.PageSize }

// CategoryOf returns the filter bucket of ev.
func (s *State) CategoryOf(ev models.Event) Category {
	switch ev.Type {
	case models.TypeConference:
		return CategoryConferences
	case models.TypeStand:
		return CategoryStands
	}
	if strings.EqualFold(strings.TrimSpace(ev.Location), s.opts.DigitalVillage) {
		return CategoryDigitalDemos
	}
	return CategoryWorkshops
}

// Matches is the filter predicate.
func (s *State) Matches(ev models.Event) bool {
	return s.typeMatches(ev) && s.dayMatches(ev)
}

func (s *State) typeMatches(ev models.Event) bool {
	if s.allTypes {
		return true
	}
	return indexOf(s.activeTypes, s.CategoryOf(ev)) >= 0
}

func (s *State) dayMatches(ev models.Event) bool {
	if s.allDays {
		return true
	}
	if ev.Type == models.TypeStand {
		return len(s.activeDays) > 0
	}
	return indexOf(s.activeDays, ev.Day) >= 0
}

// Filter returns the matching events in display order. events is not
// modified.
func (s *State) Filter(events []models.Event) []models.Event {
	out := make([]models.Event, 0, len(events))
	for _, ev := range events {
		if s.Matches(ev) {
			out = append(out, ev)
		}
	}
	models.SortForDisplay(out)
	return out
}

// View is a consistent snapshot of one page.
type View struct {
	Items      []models.Event `json:"items"`
	Page       int            `json:"page"`
	TotalPages int            `json:"total_pages"`
	Total      int            `json:"total"`
	Title      string         `json:"title"`
}

// Snapshot filters and paginates events, clamping the requested page. The
// returned items never alias events.
func (s *State) Snapshot(events []models.Event) View {
	filtered := s.Filter(events)
	p := Paginate(len(filtered), s.page, s.opts.PageSize)
	s.page = p.Page
	items := make([]models.Event, p.End-p.Start)
	copy(items, filtered[p.Start:p.End])
	return View{
		Items:      items,
		Page:       p.Page,
		TotalPages: p.TotalPages,
		Total:      len(filtered),
		Title:      s.Title(),
	}
}

// Title describes the active filters.
func (s *State) Title() string {
	switch {
	case s.allDays && s.allTypes:
		return allEventsTitle
	case (!s.allDays && len(s.activeDays) == 0) || (!s.allTypes && len(s.activeTypes) == 0):
		return noEventsTitle
	case s.allDays:
		switch n := len(s.activeTypes); {
		case n == 1:
			return s.activeTypes[0].allLabel()
		case n >= 3:
			return allEventsTitle
		default:
			return s.typesText()
		}
	case s.allTypes:
		switch n := len(s.activeDays); {
		case n == 1:
			return "Événements du " + s.dayLabel(s.activeDays[0])
		case n >= 3:
			return allEventsTitle
		default:
			return "Événements - " + s.daysText()
		}
	}

	days, types := len(s.activeDays), len(s.activeTypes)
	if (days == 3 && types >= 2) || (days >= 2 && types == 3) {
		return allEventsTitle
	}
	dayText := s.daysText()
	switch days {
	case 1:
		dayText = s.dayLabel(s.activeDays[0])
	case 3:
		dayText = "tous les jours"
	}
	typeText := s.typesText()
	switch types {
	case 1:
		typeText = string(s.activeTypes[0])
	case 3:
		typeText = "tous types"
	}
	return typeText + " - " + dayText
}

func (s *State) dayLabel(d models.Day) string {
	return s.opts.Calendar.Label(d)
}

func (s *State) daysText() string {
	labels := make([]string, len(s.activeDays))
	for i, d := range s.activeDays {
		labels[i] = s.dayLabel(d)
	}
	return strings.Join(labels, " & ")
}

func (s *State) typesText() string {
	labels := make([]string, len(s.activeTypes))
	for i, c := range s.activeTypes {
		labels[i] = string(c)
	}
	return strings.Join(labels, " & ")
}

// Counts returns the number of events per category, for filter badges.
func (s *State) Counts(events []models.Event) map[Category]int {
	counts := make(map[Category]int, len(Categories))
	for _, c := range Categories {
		counts[c] = 0
	}
	for _, ev := range events {
		counts[s.CategoryOf(ev)]++
	}
	return counts
}

func indexOf[T comparable](list []T, v T) int {
	for i, x := range list {
		if x == v {
			return i
		}
	}
	return -1
}
