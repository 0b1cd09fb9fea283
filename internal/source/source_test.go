package source_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/DeafMist/festival-radar/backend/internal/models"
	"github.com/DeafMist/festival-radar/backend/internal/normalize"
	"github.com/DeafMist/festival-radar/backend/internal/source"
)

const workshopRow = `{
	"ID": 7,
	"Prénom": "Ada",
	"Nom": "Lovelace",
	"Site internet": "ada.example.org",
	"Choisissez un titre court": "  Jeu des fractions ",
	"Décrivez brièvement votre animation pour les visiteurs": "<p>Manipuler les fractions &amp; jouer.</p>",
	"À qui s'adresse atelier ?": "Élèves",
	"Niveau d'enseignement": ["Primaire", "Collège"],
	"Type d'enseignement": "Mathématiques",
	"Jours": {"Id": 1, "Title": "Jeudi"},
	"Heure": "9:30:00",
	"Espaces": {"Id": 3, "Title": "Village numérique"},
	"Statut": "Publié",
	"Thématique liée": {"Id": 2, "Title": "Jeux"},
	"Envoyez votre logo": [{"url": "https://files/logo.pdf", "signedUrl": "https://signed/logo.pdf", "mimetype": "application/pdf", "title": "logo.pdf"}],
	"Envoyez une photo de vous": [{"url": "https://files/ada.jpg", "mimetype": "image/jpeg"}]
}`

func TestDecodeAndMapWorkshop(t *testing.T) {
	rec, err := source.Decode(source.TableWorkshops, []byte(workshopRow))
	require.NoError(t, err)
	require.IsType(t, &source.WorkshopRecord{}, rec)

	d, err := source.NewMapper(normalize.DefaultCalendar()).Map(rec)
	require.NoError(t, err)

	ev := d.Event
	require.Equal(t, "atelier-7", ev.ID)
	require.Equal(t, "7", ev.SourceID)
	require.Equal(t, "Jeu des fractions", ev.Title)
	require.Equal(t, "jeu-des-fractions", ev.Slug)
	require.Equal(t, "Manipuler les fractions & jouer.", ev.Description)
	require.Equal(t, models.TypeWorkshop, ev.Type)
	require.Equal(t, models.DaySecond, ev.Day)
	require.Equal(t, "Jeudi", ev.DayLabel)
	require.Equal(t, "09:30", ev.Time)
	require.Equal(t, "Village numérique", ev.Location)
	require.Equal(t, "Ada Lovelace", ev.Speaker)
	require.Equal(t, []string{"Élèves", "Primaire, Collège", "Mathématiques"}, ev.Tags)
	require.Equal(t, "https://ada.example.org", ev.URL)
	require.Equal(t, source.StatusPublished, ev.Status)
	require.Equal(t, "Jeux", ev.Theme)

	require.Equal(t, []models.Media{{URL: "https://signed/logo.pdf", Mimetype: "application/pdf", Title: "logo.pdf"}}, d.Media)
	require.Len(t, d.SpeakerMedia, 1)
	require.Equal(t, "https://files/ada.jpg", d.SpeakerMedia[0].URL)
}

func TestMapStandDefaults(t *testing.T) {
	rec, err := source.Decode(source.TableStands, []byte(`{"ID": 3, "Jours": 0, "Statut": "A valider", "Organisation": "Assoc"}`))
	require.NoError(t, err)

	d, err := source.NewMapper(normalize.DefaultCalendar()).Map(rec)
	require.NoError(t, err)
	require.Equal(t, "stand-3", d.Event.ID)
	require.Equal(t, "Stand 3", d.Event.Title)
	require.Equal(t, models.TypeStand, d.Event.Type)
	require.Equal(t, models.DayAll, d.Event.Day)
	require.Equal(t, "Les trois jours", d.Event.DayLabel)
	require.Equal(t, models.TimeAllDay, d.Event.Time)
	require.Equal(t, models.TimeTBD, d.Event.Location)
	require.Equal(t, "Anonyme", d.Event.Speaker)
	require.Empty(t, d.Event.Organization)
	require.Equal(t, source.StatusPending, d.Event.Status)
	require.Empty(t, d.Media)
	require.Empty(t, d.SpeakerMedia)
}

func TestConferenceTitleFallbacks(t *testing.T) {
	mapper := source.NewMapper(normalize.DefaultCalendar())
	tests := []struct {
		name string
		row  string
		want string
	}{
		{name: "conference title", row: `{"ID": 1, "Choisissez un titre pour la conférence": "Les maths de demain", "Choisissez un titre court": "Court"}`, want: "Les maths de demain"},
		{name: "short title", row: `{"ID": 1, "Choisissez un titre court": "Court"}`, want: "Court"},
		{name: "titre string", row: `{"ID": 1, "Titre": "Titre libre"}`, want: "Titre libre"},
		{name: "titre object", row: `{"ID": 1, "Titre": {"Title": "Titre lié"}}`, want: "Titre lié"},
		{name: "from description", row: `{"ID": 1, "Décrivez brièvement votre conférence pour les visiteurs": "Pourquoi apprendre les probabilités. Ensuite..."}`, want: "Pourquoi apprendre les probabilités"},
		{name: "numbered", row: `{"ID": 9}`, want: "Conférence 9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := source.Decode(source.TableConferences, []byte(tt.row))
			require.NoError(t, err)
			d, err := mapper.Map(rec)
			require.NoError(t, err)
			require.Equal(t, tt.want, d.Event.Title)
			require.Equal(t, models.TypeConference, d.Event.Type)
			require.Equal(t, models.TimeTBD, d.Event.Time)
		})
	}
}

func TestDecodeRejectsSchemaDrift(t *testing.T) {
	_, err := source.Decode(source.TableStands, []byte(`{"ID": "not-a-number"}`))
	require.ErrorIs(t, err, source.ErrSchema)

	_, err = source.Decode(source.TableStands, []byte(`{"Nom": "Sans id"}`))
	require.ErrorIs(t, err, source.ErrSchema)

	_, err = source.Decode(source.Table("sessions"), []byte(`{"ID": 1}`))
	require.ErrorIs(t, err, source.ErrUnknownTable)
}

func TestParseTable(t *testing.T) {
	tbl, err := source.ParseTable("ateliers")
	require.NoError(t, err)
	require.Equal(t, source.TableWorkshops, tbl)
	require.Equal(t, models.TypeWorkshop, tbl.EventType())
	require.Equal(t, models.TypeConference, source.TableConferences.EventType())
	require.Equal(t, models.TypeStand, source.TableStands.EventType())

	_, err = source.ParseTable("unknown")
	require.ErrorIs(t, err, source.ErrUnknownTable)
}

func rows(n int) []json.RawMessage {
	out := make([]json.RawMessage, n)
	for i := range out {
		out[i] = json.RawMessage(`{}`)
	}
	return out
}

func TestNextOffset(t *testing.T) {
	tests := []struct {
		name     string
		page     source.Page
		page0    int
		fetched  int
		wantNext int
		wantMore bool
	}{
		{name: "full page continues", page: source.Page{List: rows(50)}, fetched: 50, wantNext: 50, wantMore: true},
		{name: "last page flag", page: source.Page{List: rows(50), PageInfo: source.PageInfo{IsLastPage: true}}, fetched: 50},
		{name: "short page", page: source.Page{List: rows(10)}, fetched: 10},
		{name: "empty page", page: source.Page{}, page0: 2, fetched: 100},
		{name: "total rows reached", page: source.Page{List: rows(50), PageInfo: source.PageInfo{TotalRows: 100}}, page0: 1, fetched: 100},
		{name: "max pages", page: source.Page{List: rows(50)}, page0: 2, fetched: 150},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, more := source.NextOffset(&tt.page, tt.page0*50, 50, tt.page0, tt.fetched, 3)
			require.Equal(t, tt.wantMore, more)
			if more {
				require.Equal(t, tt.wantNext, next)
			}
		})
	}
}

func newClient(srv *httptest.Server) *source.Client {
	return source.New(source.Config{
		BaseURL:       srv.URL,
		APIToken:      "secret",
		ProjectID:     "proj",
		Tables:        map[source.Table]string{source.TableStands: "tbl-stands"},
		PageSize:      2,
		MaxPages:      10,
		RatePerSecond: 1000,
		HTTPClient:    srv.Client(),
	}, nil)
}

func TestFetchAllPaginates(t *testing.T) {
	var offsets []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/db/data/noco/proj/tbl-stands", r.URL.Path)
		require.Equal(t, "secret", r.Header.Get("xc-token"))
		require.Equal(t, "2", r.URL.Query().Get("limit"))

		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		offsets = append(offsets, r.URL.Query().Get("offset"))

		list := []map[string]any{}
		for id := offset + 1; id <= offset+2 && id <= 5; id++ {
			list = append(list, map[string]any{"ID": id})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"list":     list,
			"pageInfo": map[string]any{"totalRows": 5, "isLastPage": offset+2 >= 5},
		})
	}))
	defer srv.Close()

	got, err := newClient(srv).FetchAll(context.Background(), source.TableStands)
	require.NoError(t, err)
	require.Len(t, got, 5)
	require.Equal(t, []string{"0", "2", "4"}, offsets)
}

func TestFetchAllRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"list": [{"ID": 1}], "pageInfo": {"isLastPage": true}}`)
	}))
	defer srv.Close()

	got, err := newClient(srv).FetchAll(context.Background(), source.TableStands)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, int32(2), calls.Load())
}

func TestFetchAllReturnsFetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such table", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newClient(srv).FetchAll(context.Background(), source.TableStands)
	var fe *source.FetchError
	require.True(t, errors.As(err, &fe))
	require.Equal(t, source.TableStands, fe.Table)
	require.Equal(t, 0, fe.Offset)
}

func TestListUnknownTable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := newClient(srv).List(context.Background(), source.TableConferences, source.ListOptions{})
	require.ErrorIs(t, err, source.ErrUnknownTable)
}
