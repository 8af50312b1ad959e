package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tournament-leaderboard/classify"
	"tournament-leaderboard/models"
	"tournament-leaderboard/profile/profiletest"
	"tournament-leaderboard/storage"
)

const testEvent = "rvnc-jan-24th"

var saturdayBucket = models.Bucket{Day: "saturday", TournamentType: "all-day", Event: testEvent}

type fixture struct {
	store      storage.Store
	profiles   *profiletest.Fake
	standings  *StandingsService
	admin      *AdminService
	classifier *classify.Classifier
}

// newFixture pins the clock to Saturday 2024-01-20 10:00 UTC.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := storage.NewFileStore(&storage.MemoryBlob{}, testEvent)
	profiles := profiletest.NewFake()
	classifier := &classify.Classifier{
		Location: time.UTC,
		Now:      func() time.Time { return time.Date(2024, time.January, 20, 10, 0, 0, 0, time.UTC) },
	}
	return &fixture{
		store:      store,
		profiles:   profiles,
		classifier: classifier,
		standings:  NewStandingsService(store, classifier, profiles, testEvent),
		admin:      NewAdminService(store, profiles, classifier, testEvent, nil, nil),
	}
}

func (f *fixture) addPlayer(t *testing.T, username, externalID string, wins, points int) *models.Player {
	t.Helper()
	p := &models.Player{
		Username:       username,
		ExternalUserID: externalID,
		Wins:           wins,
		Points:         points,
		Day:            saturdayBucket.Day,
		TournamentType: saturdayBucket.TournamentType,
		Event:          saturdayBucket.Event,
	}
	require.NoError(t, f.store.AddPlayer(context.Background(), p))
	return p
}
