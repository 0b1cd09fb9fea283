package dedupe_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/festival-radar/backend/internal/dedupe"
	"github.com/DeafMist/festival-radar/backend/internal/models"
)

func workshop(id, title string, day models.Day) models.Event {
	return models.Event{ID: id, Title: title, Type: models.TypeWorkshop, Day: day, Time: "10:00"}
}

func TestRunDropsTrailingSpaceCopyDeterministically(t *testing.T) {
	input := []models.Event{
		workshop("atelier-1", "Jeu des fractions", models.DaySecond),
		workshop("atelier-2", "Jeu des fractions ", models.DaySecond),
	}
	d := dedupe.New(dedupe.Options{}, nil)

	for range 2 {
		kept, groups := d.Run(input)
		require.Len(t, kept, 1)
		require.Equal(t, "atelier-1", kept[0].ID)
		require.Len(t, groups, 1)
		require.Equal(t, "atelier-1", groups[0].SurvivorID)
		require.Equal(t, []string{"atelier-1", "atelier-2"}, groups[0].IDs())
		require.InDelta(t, 1.0, groups[0].Dropped[0].Score, 1e-9)
	}
}

func TestRunComparesOnlyWithinType(t *testing.T) {
	conf := models.Event{ID: "conference-1", Title: "Jeu des fractions", Type: models.TypeConference, Day: models.DaySecond}
	kept, groups := dedupe.New(dedupe.Options{}, nil).Run([]models.Event{
		workshop("atelier-1", "Jeu des fractions", models.DaySecond),
		conf,
	})
	require.Len(t, kept, 2)
	require.Empty(t, groups)
}

func TestRunKeepsDistinctTitles(t *testing.T) {
	kept, groups := dedupe.New(dedupe.Options{}, nil).Run([]models.Event{
		workshop("atelier-1", "Géométrie dans l'espace", models.DayFirst),
		workshop("atelier-2", "Probabilités et jeux", models.DayFirst),
	})
	require.Len(t, kept, 2)
	require.Empty(t, groups)
}

func TestRunAccentNearMatch(t *testing.T) {
	kept, groups := dedupe.New(dedupe.Options{}, nil).Run([]models.Event{
		workshop("atelier-1", "Atelier Mathématiques", models.DayFirst),
		workshop("atelier-2", "Atelier Mathematiques", models.DayFirst),
		workshop("atelier-3", "Robotique", models.DayFirst),
	})
	require.Equal(t, []string{"atelier-1", "atelier-3"}, []string{kept[0].ID, kept[1].ID})
	require.Len(t, groups, 1)
	require.Equal(t, "atelier-2", groups[0].Dropped[0].Event.ID)
}

func TestRunThresholdAndFieldsAreConfigurable(t *testing.T) {
	input := []models.Event{
		workshop("atelier-1", "Jeux logiques", models.DayFirst),
		workshop("atelier-2", "Jeux logiques", models.DayThird),
	}
	kept, _ := dedupe.New(dedupe.Options{Fields: []string{"title", "type"}}, nil).Run(input)
	require.Len(t, kept, 1)

	kept, _ = dedupe.New(dedupe.Options{Threshold: 1, Fields: []string{"title"}}, nil).Run([]models.Event{
		workshop("atelier-1", "Jeux logiques", models.DayFirst),
		workshop("atelier-2", "Jeux logique", models.DayFirst),
	})
	require.Len(t, kept, 2)
}

func TestRunKeepsRepeatedSessionOnAnotherDay(t *testing.T) {
	kept, groups := dedupe.New(dedupe.Options{}, nil).Run([]models.Event{
		workshop("atelier-1", "Visite du laboratoire", models.DayFirst),
		workshop("atelier-2", "Visite du laboratoire", models.DaySecond),
	})
	require.Len(t, kept, 2)
	require.Empty(t, groups)
}

func TestRunScoresTitleOnly(t *testing.T) {
	kept, groups := dedupe.New(dedupe.Options{}, nil).Run([]models.Event{
		workshop("atelier-1", "Quiz A", models.DayFirst),
		workshop("atelier-2", "Quiz B", models.DayFirst),
	})
	require.Len(t, kept, 2)
	require.Empty(t, groups)
}

func TestRunWithoutTextFieldsScoresTitle(t *testing.T) {
	kept, _ := dedupe.New(dedupe.Options{Fields: []string{"day", "type"}}, nil).Run([]models.Event{
		workshop("atelier-1", "Quiz A", models.DayFirst),
		workshop("atelier-2", "Robotique", models.DayFirst),
	})
	require.Len(t, kept, 2)
}

func TestKey(t *testing.T) {
	ev := workshop("atelier-1", " Jeu des fractions ", models.DaySecond)
	require.Equal(t, "Jeu des fractions", dedupe.Key(ev, dedupe.DefaultFields))
	require.Equal(t, "Jeu des fractions|10:00", dedupe.Key(ev, []string{"title", "day", "time"}))
}
