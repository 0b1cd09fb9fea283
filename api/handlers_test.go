package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/DeafMist/festival-radar/backend/internal/config"
	"github.com/DeafMist/festival-radar/backend/internal/elasticsearch"
	"github.com/DeafMist/festival-radar/backend/internal/models"
	"github.com/DeafMist/festival-radar/backend/internal/publish"
)

type stubSearch struct {
	params    elasticsearch.SearchParams
	healthErr error
}

func (s *stubSearch) SearchEvents(_ context.Context, p elasticsearch.SearchParams) (*elasticsearch.SearchResult, error) {
	s.params = p
	return &elasticsearch.SearchResult{Total: 1, Items: []models.Event{{ID: "conference-1"}}}, nil
}

func (s *stubSearch) Health(context.Context) error { return s.healthErr }

func testConfig(dir string) *config.API {
	return &config.API{
		DefaultPage: 10,
		MaxPage:     100,
		OutputDir:   dir,
		CORSOrigins: []string{"*"},
		RatePerMin:  1000,
		Edition:     config.DefaultEdition(),
	}
}

func newTestServer(t *testing.T, set *models.EventSet) (*httptest.Server, *stubSearch) {
	t.Helper()
	dir := t.TempDir()
	if set != nil {
		require.NoError(t, publish.File{Dir: dir}.Publish(context.Background(), set))
	}
	es := &stubSearch{}
	srv := newServer(slog.New(slog.NewTextHandler(io.Discard, nil)), testConfig(dir), es, newEventStore(dir))
	ts := httptest.NewServer(srv.routes())
	t.Cleanup(ts.Close)
	return ts, es
}

func festivalSet() *models.EventSet {
	set := &models.EventSet{
		RunID:       "run-1",
		GeneratedAt: time.Date(2025, 5, 14, 8, 0, 0, 0, time.UTC),
		Days:        []string{"Mercredi", "Jeudi"},
		ByDay:       map[string][]models.Event{},
	}
	for i := range 23 {
		set.ByDay["Mercredi"] = append(set.ByDay["Mercredi"], models.Event{
			ID:    fmt.Sprintf("atelier-%d", i+1),
			Slug:  fmt.Sprintf("atelier-numero-%d", i+1),
			Title: fmt.Sprintf("Atelier %d", i+1),
			Type:  models.TypeWorkshop,
			Day:   models.DayFirst,
			Time:  "10:00",
		})
	}
	set.ByDay["Jeudi"] = []models.Event{
		{ID: "atelier-90", Title: "Démo", Type: models.TypeWorkshop, Day: models.DaySecond, Time: "11:00", Location: "Village numérique"},
		{ID: "conference-1", Title: "IA", Type: models.TypeConference, Day: models.DaySecond, Time: "09:00"},
	}
	return set
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	res, err := http.Get(url)
	require.NoError(t, err)
	defer res.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(res.Body).Decode(out))
	}
	return res.StatusCode
}

type eventsBody struct {
	Items      []models.Event `json:"items"`
	Page       int            `json:"page"`
	TotalPages int            `json:"total_pages"`
	Total      int            `json:"total"`
	Title      string         `json:"title"`
	Counts     map[string]int `json:"counts"`
	RunID      string         `json:"run_id"`
}

func TestEventsPaginatesAndClamps(t *testing.T) {
	ts, _ := newTestServer(t, festivalSet())

	var body eventsBody
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/events?day=Mercredi&page=9", &body))
	require.Equal(t, 23, body.Total)
	require.Equal(t, 3, body.TotalPages)
	require.Equal(t, 3, body.Page)
	require.Len(t, body.Items, 3)
	require.Equal(t, "Événements du Mercredi", body.Title)
	require.Equal(t, "run-1", body.RunID)
	require.Equal(t, 1, body.Counts["Démos numériques"])
}

func TestEventsDigitalDemoFilter(t *testing.T) {
	ts, _ := newTestServer(t, festivalSet())

	var body eventsBody
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/events?type=digital-demos", &body))
	require.Equal(t, 1, body.Total)
	require.Equal(t, "atelier-90", body.Items[0].ID)
	require.Equal(t, "Toutes les démos numériques", body.Title)
}

func TestEventsRepeatedFilterValuesCountOnce(t *testing.T) {
	ts, _ := newTestServer(t, festivalSet())

	var body eventsBody
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/events?day=jeudi,Jeudi,day2&type=conferences,conferences", &body))
	require.Equal(t, 1, body.Total)
	require.Equal(t, "conference-1", body.Items[0].ID)
	require.Equal(t, "Conférences - Jeudi", body.Title)
}

func TestEventsRejectsUnknownFilter(t *testing.T) {
	ts, _ := newTestServer(t, festivalSet())
	require.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/events?day=samedi", nil))
	require.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/events?type=concerts", nil))
}

func TestEventsBeforeFirstBuild(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	require.Equal(t, http.StatusServiceUnavailable, getJSON(t, ts.URL+"/events", nil))
	require.Equal(t, http.StatusServiceUnavailable, getJSON(t, ts.URL+"/health", nil))
}

func TestEventBySlug(t *testing.T) {
	ts, _ := newTestServer(t, festivalSet())

	var ev models.Event
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/events/atelier-numero-4", &ev))
	require.Equal(t, "atelier-4", ev.ID)
	require.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/events/nope", nil))
}

func TestSearchMapsFilters(t *testing.T) {
	ts, es := newTestServer(t, festivalSet())

	var res elasticsearch.SearchResult
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/events/search?q=robot&type=conference&day=jeudi&size=500", &res))
	require.EqualValues(t, 1, res.Total)
	require.Equal(t, "robot", es.params.Query)
	require.Equal(t, []string{"conference"}, es.params.Types)
	require.Equal(t, []string{"day2"}, es.params.Days)
	require.Equal(t, 100, es.params.Size)
}

func TestHealthDegradesWithoutSearch(t *testing.T) {
	ts, es := newTestServer(t, festivalSet())
	es.healthErr = errors.New("cluster red")

	var body map[string]string
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/health", &body))
	require.Equal(t, "degraded", body["status"])
	require.Equal(t, "ok", body["events"])
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t, festivalSet())
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/health", nil))

	res, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	require.Contains(t, string(data), "festival_api_request_duration_seconds")
}

func TestClampInt(t *testing.T) {
	require.Equal(t, 10, clampInt("", 10, 100))
	require.Equal(t, 10, clampInt("abc", 10, 100))
	require.Equal(t, 10, clampInt("-3", 10, 100))
	require.Equal(t, 100, clampInt("1000", 10, 100))
	require.Equal(t, 42, clampInt("42", 10, 100))
}
