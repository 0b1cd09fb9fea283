package source

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/DeafMist/festival-radar/backend/internal/models"
	"github.com/DeafMist/festival-radar/backend/internal/normalize"
)

var (
	// ErrUnknownTable is returned for a table name outside Tables.
	ErrUnknownTable = errors.New("unknown source table")
	// ErrSchema marks a record that cannot be mapped onto an event.
	ErrSchema = errors.New("record does not match table schema")
)

// Table names one source table.
type Table string

const (
	TableStands      Table = "stands"
	TableWorkshops   Table = "ateliers"
	TableConferences Table = "conferences"
)

// Tables lists the source tables in priority order. Deduplication keeps the
// first event seen, so this order decides survivors across tables.
var Tables = []Table{TableStands, TableWorkshops, TableConferences}

// ParseTable validates a table name.
func ParseTable(name string) (Table, error) {
	for _, t := range Tables {
		if string(t) == name {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTable, name)
}

// EventType is the kind of event every record of the table becomes.
func (t Table) EventType() models.Type {
	return normalize.Type(string(t), models.TypeStand)
}

// Prefix is used to build event ids, e.g. "atelier-12".
func (t Table) Prefix() string {
	switch t {
	case TableWorkshops:
		return "atelier"
	case TableConferences:
		return "conference"
	default:
		return "stand"
	}
}

// audienceColumn holds the target audience. Apostrophes cannot appear in
// struct tags, so these columns are read separately.
func (t Table) audienceColumn() string {
	switch t {
	case TableWorkshops:
		return "À qui s'adresse atelier ?"
	case TableConferences:
		return "À qui s'adresse conference ?"
	default:
		return "À qui s'adresse le stand ?"
	}
}

const (
	levelColumn        = "Niveau d'enseignement"
	teachingTypeColumn = "Type d'enseignement"
)

// Attachment is one file of a NocoDB attachment column.
type Attachment struct {
	URL       string `json:"url"`
	SignedURL string `json:"signedUrl"`
	Title     string `json:"title"`
	Mimetype  string `json:"mimetype"`
	Size      int64  `json:"size"`
}

// Media prefers the signed URL, which is the one that can be downloaded
// without a token.
func (a Attachment) Media() models.Media {
	url := a.SignedURL
	if url == "" {
		url = a.URL
	}
	return models.Media{URL: url, Mimetype: a.Mimetype, Title: a.Title}
}

type linkedRecord struct {
	ID    int64  `json:"Id"`
	Title string `json:"Title"`
}

// submission carries the columns shared by the three tables.
type submission struct {
	ID           int64         `json:"ID"`
	FirstName    string        `json:"Prénom"`
	LastName     string        `json:"Nom"`
	Email        string        `json:"Email"`
	Phone        string        `json:"GSM"`
	Website      string        `json:"Site internet"`
	Organization string        `json:"Organisation"`
	Days         any           `json:"Jours"`
	Hour         string        `json:"Heure"`
	Spaces       any           `json:"Espaces"`
	Status       string        `json:"Statut"`
	Theme        *linkedRecord `json:"Thématique liée"`
	Logo         []Attachment  `json:"Envoyez votre logo"`
	Photo        []Attachment  `json:"Envoyez une photo de vous"`

	Audience     string `json:"-"`
	Level        string `json:"-"`
	TeachingType string `json:"-"`
}

func (s *submission) base() *submission { return s }

// Record is a decoded row of one of the source tables. The set of
// implementations is closed: StandRecord, WorkshopRecord, ConferenceRecord.
type Record interface {
	Table() Table
	base() *submission
}

// StandRecord is a row of the stands table.
type StandRecord struct {
	submission
	Title       string `json:"Choisissez un titre court"`
	Description string `json:"Décrivez brièvement votre stand pour les visiteurs"`
}

func (StandRecord) Table() Table { return TableStands }

// WorkshopRecord is a row of the ateliers table.
type WorkshopRecord struct {
	submission
	Title       string `json:"Choisissez un titre court"`
	Description string `json:"Décrivez brièvement votre animation pour les visiteurs"`
}

func (WorkshopRecord) Table() Table { return TableWorkshops }

// ConferenceRecord is a row of the conferences table. Titre is either a
// string or a linked record.
type ConferenceRecord struct {
	submission
	ConferenceTitle string `json:"Choisissez un titre pour la conférence"`
	ShortTitle      string `json:"Choisissez un titre court"`
	Titre           any    `json:"Titre"`
	Description     string `json:"Décrivez brièvement votre conférence pour les visiteurs"`
}

func (ConferenceRecord) Table() Table { return TableConferences }

// Decode parses one raw row of table.
func Decode(table Table, raw []byte) (Record, error) {
	var rec Record
	switch table {
	case TableStands:
		rec = &StandRecord{}
	case TableWorkshops:
		rec = &WorkshopRecord{}
	case TableConferences:
		rec = &ConferenceRecord{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}

	if err := json.Unmarshal(raw, rec); err != nil {
		return nil, fmt.Errorf("%w: decode %s row: %v", ErrSchema, table, err)
	}

	var columns map[string]any
	if err := json.Unmarshal(raw, &columns); err != nil {
		return nil, fmt.Errorf("%w: decode %s columns: %v", ErrSchema, table, err)
	}
	b := rec.base()
	if b.ID <= 0 {
		return nil, fmt.Errorf("%w: %s row without ID", ErrSchema, table)
	}
	b.Audience = stringColumn(columns, table.audienceColumn())
	b.Level = stringColumn(columns, levelColumn)
	b.TeachingType = stringColumn(columns, teachingTypeColumn)

	return rec, nil
}

// stringColumn reads a text or multi-select column. Multi-selects come back
// as comma-separated strings or as arrays depending on the API version.
func stringColumn(columns map[string]any, name string) string {
	switch v := columns[name].(type) {
	case string:
		return v
	case []any:
		out := ""
		for _, item := range v {
			s, ok := item.(string)
			if !ok || s == "" {
				continue
			}
			if out != "" {
				out += ", "
			}
			out += s
		}
		return out
	}
	return ""
}
