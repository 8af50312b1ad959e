package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tournament-leaderboard/logger"
	"tournament-leaderboard/metrics"
	"tournament-leaderboard/models"
	"tournament-leaderboard/profile"
	"tournament-leaderboard/storage"
)

const (
	backfillResolveAttempts = 3
	backfillAvatarAttempts  = 2
	// Budget for one background fill: three profile attempts with backoff
	// plus two avatar attempts.
	enqueueTimeout = 3 * time.Minute
)

type ProfileLookup interface {
	ResolveUser(ctx context.Context, name string, maxAttempts int) (*profile.Profile, error)
	ResolveAvatar(ctx context.Context, profileID string, maxAttempts int) (string, error)
}

// Result is what one backfill pass did.
type Result struct {
	Success   bool   `json:"success"`
	Processed int    `json:"processed"`
	PlayerID  string `json:"player_id,omitempty"`
	Username  string `json:"username,omitempty"`
	Message   string `json:"message"`
}

// AvatarBackfill fills in profile ids and avatars for players created before
// their profile could be resolved.
type AvatarBackfill struct {
	store    storage.Store
	profiles ProfileLookup
	logger   *logger.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	wg sync.WaitGroup
}

func NewAvatarBackfill(store storage.Store, profiles ProfileLookup, log *logger.Logger, m *metrics.Metrics) *AvatarBackfill {
	if log == nil {
		log = logger.Nop()
	}
	return &AvatarBackfill{
		store:    store,
		profiles: profiles,
		logger:   log,
		metrics:  m,
		now:      time.Now,
	}
}

// RunOnce processes the player that has waited longest for a profile.
func (w *AvatarBackfill) RunOnce(ctx context.Context) (Result, error) {
	p, err := w.store.FindPlayerNeedingProfile(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		w.metrics.BackfillRun("idle")
		return Result{Success: true, Message: "No players need an avatar"}, nil
	}
	if err != nil {
		w.metrics.BackfillRun("error")
		return Result{}, fmt.Errorf("failed to find player needing profile: %w", err)
	}
	return w.fill(ctx, p)
}

// Fill processes one player by id.
func (w *AvatarBackfill) Fill(ctx context.Context, playerID string) (Result, error) {
	p, err := w.store.GetPlayer(ctx, playerID)
	if err != nil {
		w.metrics.BackfillRun("error")
		return Result{}, fmt.Errorf("failed to load player %s: %w", playerID, err)
	}
	if !p.NeedsProfile() {
		return Result{Success: true, PlayerID: p.ID, Username: p.Username, Message: "Player already has a profile"}, nil
	}
	return w.fill(ctx, p)
}

// Enqueue fills playerID in the background. Failures are logged; the
// scheduled pass picks the player up again later.
func (w *AvatarBackfill) Enqueue(playerID string) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), enqueueTimeout)
		defer cancel()
		if _, err := w.Fill(ctx, playerID); err != nil {
			w.logger.Warn("[Cron] background avatar fill failed", "player_id", playerID, "error", err)
		}
	}()
}

// Wait blocks until every enqueued fill has finished.
func (w *AvatarBackfill) Wait() {
	w.wg.Wait()
}

func (w *AvatarBackfill) fill(ctx context.Context, p *models.Player) (Result, error) {
	checkedAt := w.now().UTC()
	update := storage.PlayerUpdate{ProfileCheckedAt: &checkedAt}
	res := Result{PlayerID: p.ID, Username: p.Username}

	profileID := p.ExternalUserID
	if !p.ProfileResolved() {
		prof, err := w.profiles.ResolveUser(ctx, p.Username, backfillResolveAttempts)
		if err != nil {
			// Record the check so the next pass moves on to another player.
			if uerr := w.store.UpdatePlayer(ctx, p.ID, update); uerr != nil {
				w.logger.Error("[Cron] failed to record profile check", "player_id", p.ID, "error", uerr)
			}
			w.metrics.BackfillRun("unresolved")
			w.logger.Warn("[Cron] profile lookup failed", "username", p.Username, "error", err)
			res.Message = fmt.Sprintf("Could not resolve profile for %s", p.Username)
			return res, nil
		}
		profileID = prof.ID
		update.ExternalUserID = &prof.ID
		if prof.DisplayName != "" {
			update.DisplayName = &prof.DisplayName
		}
	}

	res.Success, res.Processed = true, 1
	outcome := "filled"
	avatarURL, err := w.profiles.ResolveAvatar(ctx, profileID, backfillAvatarAttempts)
	switch {
	case err != nil:
		outcome = "partial"
		w.logger.Warn("[Cron] avatar lookup failed", "username", p.Username, "profile_id", profileID, "error", err)
		res.Message = fmt.Sprintf("Resolved profile for %s but no avatar", p.Username)
	default:
		update.AvatarURL = &avatarURL
		res.Message = fmt.Sprintf("Updated avatar for %s", p.Username)
	}

	if err := w.store.UpdatePlayer(ctx, p.ID, update); err != nil {
		w.metrics.BackfillRun("error")
		return Result{}, fmt.Errorf("failed to save profile for %s: %w", p.Username, err)
	}

	w.metrics.BackfillRun(outcome)
	w.logger.Info("[Cron] backfilled player", "username", p.Username, "profile_id", profileID, "outcome", outcome)
	return res, nil
}
