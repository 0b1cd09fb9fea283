package source

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/DeafMist/festival-radar/backend/internal/models"
	"github.com/DeafMist/festival-radar/backend/internal/normalize"
	"github.com/DeafMist/festival-radar/backend/internal/processing"
)

// Moderation statuses of a submission.
const (
	StatusPublished = "Publié"
	StatusPending   = "A valider"
)

// Draft is an event before asset resolution: media still point at the
// source API.
type Draft struct {
	Event        models.Event
	Media        []models.Media
	SpeakerMedia []models.Media
}

// Mapper turns decoded records into canonical events.
type Mapper struct {
	cal      normalize.Calendar
	validate *validator.Validate
}

// NewMapper creates a mapper for the given edition calendar.
func NewMapper(cal normalize.Calendar) *Mapper {
	return &Mapper{
		cal:      cal,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Map converts rec into a draft event. The result is validated so a schema
// change upstream fails here instead of publishing blank fields.
func (m *Mapper) Map(rec Record) (Draft, error) {
	b := rec.base()
	table := rec.Table()

	var title, description string
	switch r := rec.(type) {
	case *StandRecord:
		title, description = r.Title, r.Description
	case *WorkshopRecord:
		title, description = r.Title, r.Description
	case *ConferenceRecord:
		title, description = conferenceTitle(r), r.Description
	default:
		return Draft{}, fmt.Errorf("%w: unsupported record %T", ErrSchema, rec)
	}

	description = processing.CleanText(description)
	title = strings.TrimSpace(title)
	if title == "" {
		title = processing.GenerateTitleFromText(description, 8)
	}
	if title == "" {
		title = fallbackTitle(table, b.ID)
	}

	day := m.cal.Day(b.Days)
	evType := table.EventType()
	evTime := models.TimeAllDay
	if evType != models.TypeStand {
		evTime = normalize.Time(b.Hour)
	}

	status := StatusPending
	if strings.TrimSpace(b.Status) == StatusPublished {
		status = StatusPublished
	}

	theme := ""
	if b.Theme != nil {
		theme = strings.TrimSpace(b.Theme.Title)
	}

	ev := models.Event{
		ID:           processing.EventID(table.Prefix(), b.ID),
		SourceID:     strconv.FormatInt(b.ID, 10),
		Table:        string(table),
		Title:        title,
		Slug:         processing.Slug(title),
		Description:  description,
		Type:         evType,
		Day:          day,
		DayLabel:     m.cal.Label(day),
		Time:         evTime,
		Location:     location(b.Spaces),
		Speaker:      processing.SpeakerName(b.FirstName, b.LastName),
		Organization: strings.TrimSpace(b.Organization),
		Tags:         processing.Tags(b.Audience, b.Level, b.TeachingType),
		URL:          processing.Website(b.Website),
		Status:       status,
		Theme:        theme,
	}
	if evType == models.TypeStand {
		ev.Organization = ""
	}

	if err := m.validate.Struct(ev); err != nil {
		return Draft{}, fmt.Errorf("%w: %s: %v", ErrSchema, ev.ID, err)
	}

	d := Draft{Event: ev, Media: media(b.Logo)}
	if evType != models.TypeStand {
		d.SpeakerMedia = media(b.Photo)
	}
	return d, nil
}

// conferenceTitle walks the title columns from the most specific one.
func conferenceTitle(r *ConferenceRecord) string {
	if t := strings.TrimSpace(r.ConferenceTitle); t != "" {
		return t
	}
	if t := strings.TrimSpace(r.ShortTitle); t != "" {
		return t
	}
	switch v := r.Titre.(type) {
	case string:
		return strings.TrimSpace(v)
	case map[string]any:
		if t, ok := v["Title"].(string); ok {
			return strings.TrimSpace(t)
		}
	}
	return ""
}

func fallbackTitle(t Table, id int64) string {
	switch t {
	case TableWorkshops:
		return fmt.Sprintf("Atelier %d", id)
	case TableConferences:
		return fmt.Sprintf("Conférence %d", id)
	default:
		return fmt.Sprintf("Stand %d", id)
	}
}

// location reads Espaces, a linked record or a plain string.
func location(spaces any) string {
	switch v := spaces.(type) {
	case string:
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	case map[string]any:
		if t, ok := v["Title"].(string); ok && strings.TrimSpace(t) != "" {
			return strings.TrimSpace(t)
		}
	case []any:
		if len(v) > 0 {
			return location(v[0])
		}
	}
	return models.TimeTBD
}

func media(attachments []Attachment) []models.Media {
	if len(attachments) == 0 {
		return nil
	}
	out := make([]models.Media, 0, len(attachments))
	for _, a := range attachments {
		if m := a.Media(); m.URL != "" {
			out = append(out, m)
		}
	}
	return out
}
