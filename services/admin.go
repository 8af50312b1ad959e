package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tournament-leaderboard/apperrors"
	"tournament-leaderboard/classify"
	"tournament-leaderboard/logger"
	"tournament-leaderboard/metrics"
	"tournament-leaderboard/models"
	"tournament-leaderboard/profile"
	"tournament-leaderboard/storage"
)

const (
	adminResolveAttempts = 3
	adminAvatarAttempts  = 2
)

// ProfileLookup is the part of the profile service admin actions need.
type ProfileLookup interface {
	ResolveUser(ctx context.Context, name string, maxAttempts int) (*profile.Profile, error)
	ResolveAvatar(ctx context.Context, profileID string, maxAttempts int) (string, error)
}

type AdminService struct {
	Store        storage.Store
	Profiles     ProfileLookup
	Classifier   *classify.Classifier
	DefaultEvent string
	Logger       *logger.Logger
	Metrics      *metrics.Metrics
}

func NewAdminService(store storage.Store, profiles ProfileLookup, classifier *classify.Classifier, defaultEvent string, log *logger.Logger, m *metrics.Metrics) *AdminService {
	if log == nil {
		log = logger.Nop()
	}
	return &AdminService{
		Store:        store,
		Profiles:     profiles,
		Classifier:   classifier,
		DefaultEvent: models.EventID(defaultEvent),
		Logger:       log,
		Metrics:      m,
	}
}

func (s *AdminService) record(action string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = strings.ToLower(string(apperrors.CodeOf(err)))
	}
	s.Metrics.AdminAction(action, outcome)
}

// AdjustWins adds delta to a player's wins; the result never drops below zero.
func (s *AdminService) AdjustWins(ctx context.Context, id string, delta int) (p *models.Player, err error) {
	defer func() { s.record("adjust_wins", err) }()
	return s.adjust(ctx, id, delta, 0)
}

// AdjustPoints adds delta to a player's points; the result never drops below zero.
func (s *AdminService) AdjustPoints(ctx context.Context, id string, delta int) (p *models.Player, err error) {
	defer func() { s.record("adjust_points", err) }()
	return s.adjust(ctx, id, 0, delta)
}

func (s *AdminService) adjust(ctx context.Context, id string, winsDelta, pointsDelta int) (*models.Player, error) {
	p, err := s.Store.IncrementPlayer(ctx, id, winsDelta, pointsDelta)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperrors.NotFound(fmt.Sprintf("player %s not found", id))
	}
	if err != nil {
		return nil, apperrors.Database("failed to update player", err)
	}
	s.Logger.Info("[Admin] adjusted player", "id", id, "wins_delta", winsDelta, "points_delta", pointsDelta)
	return p, nil
}

// PlayerRequest names a player in one partition.
type PlayerRequest struct {
	Username       string `json:"username"`
	Day            string `json:"day"`
	TournamentType string `json:"tournament_type"`
	Event          string `json:"event"`
}

func (r PlayerRequest) filter() Filter {
	return Filter{Day: r.Day, TournamentType: r.TournamentType, Event: r.Event}
}

// ApprovePending registers a pending winner as a player, carrying over the
// wins and points it accrued. The pending row is removed in the same unit.
func (s *AdminService) ApprovePending(ctx context.Context, req PlayerRequest) (p *models.Player, err error) {
	defer func() { s.record("approve_pending", err) }()

	username := strings.TrimSpace(req.Username)
	if username == "" {
		return nil, apperrors.InvalidInput("username is required", nil)
	}
	bucket, err := resolveBucket(s.Classifier, s.DefaultEvent, req.filter())
	if err != nil {
		return nil, err
	}

	pending, err := s.Store.GetPendingWinner(ctx, username, bucket)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, notFoundPending(username, bucket)
	}
	if err != nil {
		return nil, apperrors.Database("failed to load pending winner", err)
	}

	prof, err := s.lookup(ctx, pending.Username)
	if err != nil {
		return nil, err
	}
	avatarURL := s.avatar(ctx, prof.ID)

	var result *models.Player
	err = s.Store.Atomically(ctx, func(tx storage.Store) error {
		current, err := tx.GetPendingWinner(ctx, username, bucket)
		if err != nil {
			return err
		}

		existing, err := tx.FindPlayer(ctx, username, bucket)
		switch {
		case err == nil:
			result, err = tx.IncrementPlayer(ctx, existing.ID, current.Wins, current.Points)
			if err != nil {
				return err
			}
			if !existing.ProfileResolved() || existing.AvatarURL == "" {
				update := storage.PlayerUpdate{ExternalUserID: &prof.ID, DisplayName: &prof.DisplayName}
				if avatarURL != "" {
					update.AvatarURL = &avatarURL
				}
				if err := tx.UpdatePlayer(ctx, existing.ID, update); err != nil {
					return err
				}
				result.ExternalUserID, result.DisplayName = prof.ID, prof.DisplayName
				if avatarURL != "" {
					result.AvatarURL = avatarURL
				}
			}
		case errors.Is(err, storage.ErrNotFound):
			result = &models.Player{
				ExternalUserID: prof.ID,
				Username:       canonicalName(current.Username, prof),
				DisplayName:    prof.DisplayName,
				Wins:           current.Wins,
				Points:         current.Points,
				AvatarURL:      avatarURL,
				Day:            bucket.Day,
				TournamentType: bucket.TournamentType,
				Event:          bucket.Event,
			}
			if err := tx.AddPlayer(ctx, result); err != nil {
				return err
			}
		default:
			return err
		}

		_, err = tx.RemovePendingWinner(ctx, username, bucket)
		return err
	})
	if errors.Is(err, storage.ErrNotFound) {
		return nil, notFoundPending(username, bucket)
	}
	if errors.Is(err, storage.ErrAlreadyExists) {
		// Another request registered the name meanwhile; a retry merges into it.
		return nil, apperrors.New(apperrors.ErrCodeAlreadyExists,
			fmt.Sprintf("%s was registered while approving, retry the approval", username), err)
	}
	if err != nil {
		return nil, apperrors.Database("failed to approve pending winner", err)
	}

	s.Logger.Info("[Admin] approved pending winner",
		"username", result.Username,
		"external_user_id", result.ExternalUserID,
		"wins", result.Wins,
		"points", result.Points,
	)
	return result, nil
}

func notFoundPending(username string, b models.Bucket) error {
	return apperrors.NotFound(fmt.Sprintf("no pending winner %s for %s %s (%s)",
		username, classify.Label(b.Day), classify.Label(b.TournamentType), b.Event))
}

// AddPlayer registers username after resolving it against the profile service.
func (s *AdminService) AddPlayer(ctx context.Context, req PlayerRequest) (p *models.Player, err error) {
	defer func() { s.record("add_player", err) }()

	username := strings.TrimSpace(req.Username)
	if username == "" {
		return nil, apperrors.InvalidInput("username is required", nil)
	}
	bucket, err := resolveBucket(s.Classifier, s.DefaultEvent, req.filter())
	if err != nil {
		return nil, err
	}

	if _, err := s.Store.FindPlayer(ctx, username, bucket); err == nil {
		return nil, alreadyRegistered(username, bucket)
	}

	prof, err := s.lookup(ctx, username)
	if err != nil {
		return nil, err
	}

	player := &models.Player{
		ExternalUserID: prof.ID,
		Username:       canonicalName(username, prof),
		DisplayName:    prof.DisplayName,
		AvatarURL:      s.avatar(ctx, prof.ID),
		Day:            bucket.Day,
		TournamentType: bucket.TournamentType,
		Event:          bucket.Event,
	}
	if err := s.Store.AddPlayer(ctx, player); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, alreadyRegistered(username, bucket)
		}
		return nil, apperrors.Database("failed to save player", err)
	}

	s.Logger.Info("[Admin] added player", "username", player.Username, "id", player.ID, "event", bucket.Event, "day", bucket.Day)
	return player, nil
}

func alreadyRegistered(username string, b models.Bucket) error {
	return apperrors.New(apperrors.ErrCodeAlreadyExists,
		fmt.Sprintf("%s is already registered for %s %s (%s)", username, classify.Label(b.Day), classify.Label(b.TournamentType), b.Event), nil)
}

func (s *AdminService) DeletePlayer(ctx context.Context, id string) (err error) {
	defer func() { s.record("delete_player", err) }()

	err = s.Store.DeletePlayer(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return apperrors.NotFound(fmt.Sprintf("player %s not found", id))
	}
	if err != nil {
		return apperrors.Database("failed to delete player", err)
	}
	s.Logger.Info("[Admin] deleted player", "id", id)
	return nil
}

func (s *AdminService) GetGameStatus(ctx context.Context) (models.GameStatus, error) {
	status, err := s.Store.GetGameStatus(ctx)
	if err != nil {
		return "", apperrors.Database("failed to read game status", err)
	}
	return status, nil
}

func (s *AdminService) SetGameStatus(ctx context.Context, raw string) (status models.GameStatus, err error) {
	defer func() { s.record("set_game_status", err) }()

	status, err = models.ParseGameStatus(raw)
	if err != nil {
		return "", apperrors.InvalidInput("Invalid status. Must be START or STOP", err)
	}
	if err := s.Store.SetGameStatus(ctx, status); err != nil {
		return "", apperrors.Database("failed to save game status", err)
	}
	s.Logger.Info("[Admin] game status changed", "status", string(status))
	return status, nil
}

// lookup resolves a name and turns profile failures into messages an
// operator can act on.
func (s *AdminService) lookup(ctx context.Context, username string) (*profile.Profile, error) {
	prof, err := s.Profiles.ResolveUser(ctx, username, adminResolveAttempts)
	switch {
	case err == nil:
		return prof, nil
	case errors.Is(err, profile.ErrProfileNotFound):
		return nil, apperrors.New(apperrors.ErrCodeProfileUnresolvable,
			fmt.Sprintf("could not find user %s, verify the spelling", username), err)
	case errors.Is(err, profile.ErrProfileTimeout), errors.Is(err, context.DeadlineExceeded):
		return nil, apperrors.New(apperrors.ErrCodeTimeout,
			fmt.Sprintf("timed out looking up %s, try again in a moment", username), err)
	default:
		return nil, apperrors.New(apperrors.ErrCodeProfileUnresolvable,
			fmt.Sprintf("profile service is unavailable while looking up %s, try again later", username), err)
	}
}

// avatar is best effort; the backfill job retries players left without one.
func (s *AdminService) avatar(ctx context.Context, profileID string) string {
	u, err := s.Profiles.ResolveAvatar(ctx, profileID, adminAvatarAttempts)
	if err != nil {
		s.Logger.Warn("[Admin] avatar lookup failed", "profile_id", profileID, "error", err)
		return ""
	}
	return u
}

// canonicalName keeps the profile's casing when it names the same user, and
// the entered name otherwise so later results still match.
func canonicalName(entered string, prof *profile.Profile) string {
	if strings.EqualFold(strings.TrimSpace(entered), prof.Name) {
		return prof.Name
	}
	return strings.TrimSpace(entered)
}
