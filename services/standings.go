package services

import (
	"context"
	"sort"

	"tournament-leaderboard/apperrors"
	"tournament-leaderboard/classify"
	"tournament-leaderboard/models"
	"tournament-leaderboard/storage"
)

// AvatarBatcher refreshes avatars for a page of players in one call.
type AvatarBatcher interface {
	ResolveAvatarsBatch(ctx context.Context, profileIDs []string) map[string]string
}

// Filter is a standings query as received from a client. Empty fields take
// the defaults for the current moment.
type Filter struct {
	Day            string
	TournamentType string
	Event          string
}

type StandingsService struct {
	Store        storage.Store
	Classifier   *classify.Classifier
	Avatars      AvatarBatcher
	DefaultEvent string
}

func NewStandingsService(store storage.Store, classifier *classify.Classifier, avatars AvatarBatcher, defaultEvent string) *StandingsService {
	return &StandingsService{
		Store:        store,
		Classifier:   classifier,
		Avatars:      avatars,
		DefaultEvent: models.EventID(defaultEvent),
	}
}

// ResolveFilter applies the defaults: today's day, the tournament type that
// is running now, and the configured event.
func (s *StandingsService) ResolveFilter(f Filter) (models.Bucket, error) {
	return resolveBucket(s.Classifier, s.DefaultEvent, f)
}

func resolveBucket(classifier *classify.Classifier, defaultEvent string, f Filter) (models.Bucket, error) {
	res, err := classifier.Classify(f.Day, f.TournamentType)
	if err != nil {
		return models.Bucket{}, apperrors.InvalidInput(err.Error(), err)
	}
	event, err := models.ResolveEventID(f.Event, defaultEvent)
	if err != nil {
		return models.Bucket{}, apperrors.InvalidInput(err.Error(), err)
	}
	return models.Bucket{Day: res.Day, TournamentType: res.TournamentType, Event: event}, nil
}

// ListPlayers returns the standings for one partition, best first, with
// avatars refreshed from the profile service where it has one. The returned
// bucket is the partition the rows were read from.
func (s *StandingsService) ListPlayers(ctx context.Context, f Filter) ([]models.Player, models.Bucket, error) {
	bucket, err := s.ResolveFilter(f)
	if err != nil {
		return nil, models.Bucket{}, err
	}

	players, err := s.Store.GetPlayers(ctx, bucket)
	if err != nil {
		return nil, models.Bucket{}, apperrors.Database("failed to load players", err)
	}
	SortStandings(players)
	s.mergeAvatars(ctx, players)
	return players, bucket, nil
}

func (s *StandingsService) mergeAvatars(ctx context.Context, players []models.Player) {
	if s.Avatars == nil || len(players) == 0 {
		return
	}
	ids := make([]string, 0, len(players))
	for _, p := range players {
		if p.ProfileResolved() {
			ids = append(ids, p.ExternalUserID)
		}
	}
	if len(ids) == 0 {
		return
	}
	fresh := s.Avatars.ResolveAvatarsBatch(ctx, ids)
	for i := range players {
		if u, ok := fresh[players[i].ExternalUserID]; ok && u != "" {
			players[i].AvatarURL = u
		}
	}
}

// ListPendingWinners returns the pending winners for one partition, most wins first.
func (s *StandingsService) ListPendingWinners(ctx context.Context, f Filter) ([]models.PendingWinner, error) {
	bucket, err := s.ResolveFilter(f)
	if err != nil {
		return nil, err
	}
	pending, err := s.Store.GetPendingWinners(ctx, bucket)
	if err != nil {
		return nil, apperrors.Database("failed to load pending winners", err)
	}
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].Wins > pending[j].Wins
	})
	return pending, nil
}

// SortStandings orders by points, then wins, both descending. Ties keep
// their incoming order.
func SortStandings(players []models.Player) {
	sort.SliceStable(players, func(i, j int) bool {
		if players[i].Points != players[j].Points {
			return players[i].Points > players[j].Points
		}
		return players[i].Wins > players[j].Wins
	})
}
