package browse_test

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/festival-radar/backend/internal/browse"
	"github.com/DeafMist/festival-radar/backend/internal/models"
	"github.com/DeafMist/festival-radar/backend/internal/normalize"
)

func workshops(n int) []models.Event {
	out := make([]models.Event, n)
	for i := range out {
		out[i] = models.Event{
			ID:    fmt.Sprintf("atelier-%d", i+1),
			Title: fmt.Sprintf("Atelier %d", i+1),
			Type:  models.TypeWorkshop,
			Day:   models.DayFirst,
			Time:  fmt.Sprintf("%02d:00", 8+i%12),
		}
	}
	return out
}

func newState() *browse.State {
	return browse.NewState(browse.Options{PageSize: 10})
}

func TestPaginate(t *testing.T) {
	tests := []struct {
		name                string
		total, page, size   int
		wantPage, wantPages int
		wantStart, wantEnd  int
	}{
		{"last page", 23, 3, 10, 3, 3, 20, 23},
		{"zero clamps to first", 23, 0, 10, 1, 3, 0, 10},
		{"past end clamps to last", 23, 4, 10, 3, 3, 20, 23},
		{"empty list has one page", 0, 2, 10, 1, 1, 0, 0},
		{"exact multiple", 20, 2, 10, 2, 2, 10, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := browse.Paginate(tt.total, tt.page, tt.size)
			require.Equal(t, tt.wantPage, p.Page)
			require.Equal(t, tt.wantPages, p.TotalPages)
			require.Equal(t, tt.wantStart, p.Start)
			require.Equal(t, tt.wantEnd, p.End)
		})
	}
}

func TestSnapshotPagesAndClamps(t *testing.T) {
	events := workshops(23)
	s := newState()

	s.SetPage(3)
	view := s.Snapshot(events)
	require.Equal(t, 3, view.TotalPages)
	require.Equal(t, 23, view.Total)
	require.Len(t, view.Items, 3)

	s.SetPage(4)
	require.Equal(t, 3, s.Snapshot(events).Page)
	require.Equal(t, 3, s.Page())

	s.SetPage(0)
	require.Equal(t, 1, s.Snapshot(events).Page)
}

func TestFilterChangeResetsPage(t *testing.T) {
	s := newState()
	s.SetPage(3)
	s.ToggleDay(models.DayFirst)
	require.Equal(t, 1, s.Page())
}

func TestSnapshotDoesNotAlias(t *testing.T) {
	events := workshops(3)
	view := newState().Snapshot(events)
	view.Items[0].Title = "changed"
	require.Equal(t, "Atelier 1", events[0].Title)
}

func TestDigitalDemoCategory(t *testing.T) {
	demo := models.Event{ID: "atelier-1", Type: models.TypeWorkshop, Day: models.DayFirst, Location: "Village numérique"}
	plain := models.Event{ID: "atelier-2", Type: models.TypeWorkshop, Day: models.DayFirst, Location: "Salle 3"}

	s := newState()
	require.Equal(t, browse.CategoryDigitalDemos, s.CategoryOf(demo))
	require.Equal(t, browse.CategoryWorkshops, s.CategoryOf(plain))

	s.ToggleType(browse.CategoryWorkshops)
	require.False(t, s.Matches(demo))
	require.True(t, s.Matches(plain))

	s.SelectAllTypes()
	s.ToggleType(browse.CategoryDigitalDemos)
	require.True(t, s.Matches(demo))
	require.False(t, s.Matches(plain))
}

func TestDayFilter(t *testing.T) {
	stand := models.Event{ID: "stand-1", Type: models.TypeStand, Day: models.DayUnspecified}
	thursday := models.Event{ID: "conference-1", Type: models.TypeConference, Day: models.DaySecond}
	allDays := models.Event{ID: "atelier-1", Type: models.TypeWorkshop, Day: models.DayAll}

	s := newState()
	s.ToggleDay(models.DayFirst)
	require.True(t, s.Matches(stand))
	require.False(t, s.Matches(thursday))
	require.False(t, s.Matches(allDays))

	s.ToggleDay(models.DaySecond)
	require.True(t, s.Matches(thursday))

	s.ToggleDay(models.DayAll)
	require.True(t, s.Matches(allDays))
	s.ToggleDay(models.DayAll)

	// Deselecting every day is distinct from "all days".
	s.ToggleDay(models.DayFirst)
	s.ToggleDay(models.DaySecond)
	require.False(t, s.Matches(stand))
	require.False(t, s.Matches(thursday))
}

func TestSelectIgnoresRepeatedValues(t *testing.T) {
	thursday := models.Event{ID: "conference-1", Type: models.TypeConference, Day: models.DaySecond}

	s := newState()
	s.SetPage(3)
	s.SelectDays(models.DaySecond, models.DaySecond)
	s.SelectTypes(browse.CategoryConferences, browse.CategoryConferences)
	require.True(t, s.Matches(thursday))
	require.Equal(t, 1, s.Page())
	require.Equal(t, "Conférences - Jeudi", s.Title())
}

func TestFilterSortsForDisplay(t *testing.T) {
	events := []models.Event{
		{ID: "stand-1", Type: models.TypeStand, Day: models.DayFirst, Time: models.TimeAllDay},
		{ID: "atelier-2", Type: models.TypeWorkshop, Day: models.DaySecond, Time: "09:00"},
		{ID: "atelier-1", Type: models.TypeWorkshop, Day: models.DayFirst, Time: models.TimeTBD},
		{ID: "conference-1", Type: models.TypeConference, Day: models.DayFirst, Time: "14:00"},
	}
	got := newState().Filter(events)
	ids := make([]string, len(got))
	for i, ev := range got {
		ids[i] = ev.ID
	}
	require.Equal(t, []string{"conference-1", "atelier-1", "atelier-2", "stand-1"}, ids)
}

func TestTitle(t *testing.T) {
	tests := []struct {
		name  string
		days  []models.Day
		types []browse.Category
		want  string
	}{
		{"no filter", nil, nil, "Tous les événements"},
		{"one type", nil, []browse.Category{browse.CategoryConferences}, "Toutes les conférences"},
		{"digital demos", nil, []browse.Category{browse.CategoryDigitalDemos}, "Toutes les démos numériques"},
		{"two types", nil, []browse.Category{browse.CategoryConferences, browse.CategoryStands}, "Conférences & Stands"},
		{"three types", nil, []browse.Category{browse.CategoryConferences, browse.CategoryStands, browse.CategoryWorkshops}, "Tous les événements"},
		{"one day", []models.Day{models.DaySecond}, nil, "Événements du Jeudi"},
		{"two days", []models.Day{models.DayFirst, models.DayThird}, nil, "Événements - Mercredi & Vendredi"},
		{"three days", models.ScheduledDays, nil, "Tous les événements"},
		{"day and type", []models.Day{models.DayFirst}, []browse.Category{browse.CategoryWorkshops}, "Ateliers - Mercredi"},
		{"three days one type", models.ScheduledDays, []browse.Category{browse.CategoryStands}, "Stands - tous les jours"},
		{"three days two types", models.ScheduledDays, []browse.Category{browse.CategoryStands, browse.CategoryWorkshops}, "Tous les événements"},
		{"two days three types", []models.Day{models.DayFirst, models.DaySecond}, []browse.Category{browse.CategoryStands, browse.CategoryWorkshops, browse.CategoryConferences}, "Tous les événements"},
		{"one day three types", []models.Day{models.DayFirst}, []browse.Category{browse.CategoryStands, browse.CategoryWorkshops, browse.CategoryConferences}, "tous types - Mercredi"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newState()
			for _, d := range tt.days {
				s.ToggleDay(d)
			}
			for _, c := range tt.types {
				s.ToggleType(c)
			}
			require.Equal(t, tt.want, s.Title())
		})
	}
}

func TestCounts(t *testing.T) {
	events := append(workshops(2),
		models.Event{ID: "atelier-9", Type: models.TypeWorkshop, Location: "village numérique"},
		models.Event{ID: "stand-1", Type: models.TypeStand},
	)
	counts := newState().Counts(events)
	require.Equal(t, 2, counts[browse.CategoryWorkshops])
	require.Equal(t, 1, counts[browse.CategoryDigitalDemos])
	require.Equal(t, 1, counts[browse.CategoryStands])
	require.Equal(t, 0, counts[browse.CategoryConferences])
}

func TestParseCategory(t *testing.T) {
	c, ok := browse.ParseCategory("digital-demos")
	require.True(t, ok)
	require.Equal(t, browse.CategoryDigitalDemos, c)

	_, ok = browse.ParseCategory("concerts")
	require.False(t, ok)
}

func TestRendererBatches(t *testing.T) {
	buf := &browse.Buffer{}
	r := browse.NewRenderer(buf, 3)
	r.Render(workshops(7))

	require.True(t, r.Step())
	require.Equal(t, []int{3}, buf.Batches)
	r.Flush()
	require.Equal(t, []int{3, 3, 1}, buf.Batches)
	require.Len(t, buf.Items, 7)
	require.Zero(t, r.Pending())
	require.False(t, r.Step())
}

func TestRendererSupersedes(t *testing.T) {
	buf := &browse.Buffer{}
	r := browse.NewRenderer(buf, 2)

	first := r.Render(workshops(6))
	r.Step()
	second := r.Render(workshops(3)[2:])
	require.Greater(t, second, first)

	r.Flush()
	require.Equal(t, 2, buf.Clears)
	require.Len(t, buf.Items, 1)
	require.Equal(t, "atelier-3", buf.Items[0].ID)
}

func TestRendererRunStopsOnClosedFrames(t *testing.T) {
	buf := &browse.Buffer{}
	r := browse.NewRenderer(buf, 5)
	r.Render(workshops(12))

	frames := make(chan time.Time, 3)
	for range 3 {
		frames <- time.Now()
	}
	close(frames)
	require.NoError(t, r.Run(context.Background(), frames))
	require.Equal(t, []int{5, 5, 2}, buf.Batches)
}

func TestRendererRunHonoursContext(t *testing.T) {
	r := browse.NewRenderer(&browse.Buffer{}, 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, r.Run(ctx, make(chan time.Time)), context.Canceled)
}

func TestControllerUpdate(t *testing.T) {
	buf := &browse.Buffer{}
	c := browse.NewController(newState(), workshops(23), browse.NewRenderer(buf, browse.DefaultBatchSize))

	view := c.Update(func(s *browse.State) { s.SetPage(3) })
	require.Equal(t, 3, view.Page)
	require.Len(t, view.Items, 3)

	view = c.Update(func(s *browse.State) { s.ToggleType(browse.CategoryStands) })
	require.Equal(t, 1, view.Page)
	require.Zero(t, view.Total)
	require.Equal(t, "Tous les stands", view.Title)
	require.Equal(t, 2, buf.Clears)
	require.Equal(t, 23, c.Counts()[browse.CategoryWorkshops])
}

func TestTextContainer(t *testing.T) {
	var out bytes.Buffer
	tc := browse.NewTextContainer(&out, normalize.DefaultCalendar())
	tc.Clear()
	tc.Append(workshops(1))
	require.Contains(t, out.String(), "Mercredi")
	require.Contains(t, out.String(), "atelier-1")
}
