// Package ingest turns reported match results into standings changes.
package ingest

import (
	"context"
	"encoding/json"
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

// ProfileResolver resolves unmatched names under the eager policy.
type ProfileResolver interface {
	ResolveUser(ctx context.Context, name string, maxAttempts int) (*profile.Profile, error)
}

// AvatarFiller fills in avatars for newly created players in the background.
type AvatarFiller interface {
	Enqueue(playerID string)
}

// Summary is the webhook response.
type Summary struct {
	Updated        int      `json:"updated"`
	Created        int      `json:"created"`
	Pending        int      `json:"pending"`
	Skipped        int      `json:"skipped"`
	SkippedPlayers []string `json:"skippedPlayers,omitempty"`
	Day            string   `json:"day"`
	TournamentType string   `json:"tournament_type"`
	Event          string   `json:"event"`
	Duplicate      bool     `json:"duplicate,omitempty"`
}

// award is the accumulated result for one name in a batch.
type award struct {
	name   string
	key    string
	wins   int
	points int
}

var errDuplicateDelivery = errors.New("delivery already recorded")

type Engine struct {
	store           storage.Store
	classifier      *classify.Classifier
	policy          Policy
	defaultEvent    string
	resolver        ProfileResolver
	resolveAttempts int
	filler          AvatarFiller
	logger          *logger.Logger
	metrics         *metrics.Metrics
}

type Option func(*Engine)

// WithResolver is required for PolicyEager.
func WithResolver(r ProfileResolver, maxAttempts int) Option {
	return func(e *Engine) {
		e.resolver = r
		if maxAttempts > 0 {
			e.resolveAttempts = maxAttempts
		}
	}
}

func WithAvatarFiller(f AvatarFiller) Option {
	return func(e *Engine) { e.filler = f }
}

func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func NewEngine(store storage.Store, classifier *classify.Classifier, policy Policy, defaultEvent string, opts ...Option) *Engine {
	e := &Engine{
		store:           store,
		classifier:      classifier,
		policy:          policy,
		defaultEvent:    models.EventID(defaultEvent),
		resolveAttempts: 1,
		logger:          logger.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.policy == PolicyEager && e.resolver == nil {
		e.logger.Warn("[Webhook] eager policy without a profile resolver, unmatched names will be pending")
	}
	return e
}

func (e *Engine) Policy() Policy {
	return e.policy
}

// Ingest applies one delivery. All storage writes happen in a single atomic
// unit; a storage failure leaves nothing applied. A delivery whose
// idempotency key was already recorded returns the first summary unchanged.
func (e *Engine) Ingest(ctx context.Context, req Request) (Summary, error) {
	if req.IdempotencyKey != "" {
		if s, ok, err := e.previousSummary(ctx, req.IdempotencyKey); err != nil || ok {
			return s, err
		}
	}

	bucket, err := e.bucketFor(req)
	if err != nil {
		return Summary{}, err
	}
	summary := Summary{Day: bucket.Day, TournamentType: bucket.TournamentType, Event: bucket.Event}

	awards := e.score(req.Placements, &summary)

	var profiles map[string]*profile.Profile
	if e.policy == PolicyEager && e.resolver != nil {
		profiles, err = e.resolveUnmatched(ctx, bucket, awards)
		if err != nil {
			return Summary{}, err
		}
	}

	var created []string
	err = e.store.Atomically(ctx, func(tx storage.Store) error {
		s := summary
		s.SkippedPlayers = append([]string(nil), summary.SkippedPlayers...)
		created = created[:0]

		players, err := tx.GetPlayers(ctx, bucket)
		if err != nil {
			return err
		}
		byKey := make(map[string]models.Player, len(players))
		for _, p := range players {
			byKey[p.UsernameKey] = p
		}

		for _, a := range awards {
			if p, ok := byKey[a.key]; ok {
				_, err := tx.IncrementPlayer(ctx, p.ID, a.wins, a.points)
				if err == nil {
					s.Updated++
					continue
				}
				if !errors.Is(err, storage.ErrNotFound) {
					return err
				}
				// Deleted since it was listed.
			}

			switch e.policy {
			case PolicySkip:
				s.Skipped++
				s.SkippedPlayers = append(s.SkippedPlayers, a.name+" — not registered")
				e.logger.Info("[Webhook] skipped unregistered player", "username", a.name)
				continue
			case PolicyEager:
				if prof := profiles[a.key]; prof != nil {
					id, err := e.createPlayer(ctx, tx, a, prof, bucket)
					if err == nil {
						s.Created++
						created = append(created, id)
						continue
					}
					if !errors.Is(err, storage.ErrAlreadyExists) {
						return err
					}
					e.logger.Warn("[Webhook] player appeared concurrently, accruing as pending", "username", a.name)
				}
			}

			if err := tx.IncrementPendingWinner(ctx, a.name, bucket, a.wins, a.points); err != nil {
				return err
			}
			s.Pending++
		}

		if req.IdempotencyKey != "" {
			encoded, err := json.Marshal(s)
			if err != nil {
				return err
			}
			err = tx.RecordDelivery(ctx, &models.WebhookDelivery{Key: req.IdempotencyKey, Summary: string(encoded)})
			if errors.Is(err, storage.ErrAlreadyExists) {
				return errDuplicateDelivery
			}
			if err != nil {
				return err
			}
		}

		summary = s
		return nil
	})
	if errors.Is(err, errDuplicateDelivery) {
		s, _, err := e.previousSummary(ctx, req.IdempotencyKey)
		return s, err
	}
	if err != nil {
		e.logger.Error("[Webhook] failed to apply results", "error", err, "event", bucket.Event, "day", bucket.Day)
		return Summary{}, apperrors.Database("failed to apply results", err)
	}

	for _, id := range created {
		if e.filler != nil {
			e.filler.Enqueue(id)
		}
	}

	e.metrics.WebhookEntries("updated", summary.Updated)
	e.metrics.WebhookEntries("created", summary.Created)
	e.metrics.WebhookEntries("pending", summary.Pending)
	e.metrics.WebhookEntries("skipped", summary.Skipped)
	e.logger.Info("[Webhook] results applied",
		"event", summary.Event,
		"day", summary.Day,
		"tournament_type", summary.TournamentType,
		"updated", summary.Updated,
		"created", summary.Created,
		"pending", summary.Pending,
		"skipped", summary.Skipped,
	)
	return summary, nil
}

func (e *Engine) previousSummary(ctx context.Context, key string) (Summary, bool, error) {
	d, err := e.store.GetDelivery(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return Summary{}, false, nil
	}
	if err != nil {
		return Summary{}, false, apperrors.Database("failed to read delivery ledger", err)
	}

	var s Summary
	if err := json.Unmarshal([]byte(d.Summary), &s); err != nil {
		return Summary{}, false, apperrors.New(apperrors.ErrCodeInternal, "stored delivery summary is unreadable", err)
	}
	s.Duplicate = true
	e.logger.Info("[Webhook] duplicate delivery ignored", "delivery_id", key)
	return s, true, nil
}

func (e *Engine) bucketFor(req Request) (models.Bucket, error) {
	res, err := e.classifier.Classify(req.Day, req.TournamentType)
	if err != nil {
		return models.Bucket{}, apperrors.InvalidInput(err.Error(), err)
	}
	event, err := models.ResolveEventID(req.Event, e.defaultEvent)
	if err != nil {
		return models.Bucket{}, apperrors.InvalidInput(err.Error(), err)
	}
	return models.Bucket{Day: res.Day, TournamentType: res.TournamentType, Event: event}, nil
}

// score converts placements to awards, merging repeated names and counting
// invalid placements as skipped.
func (e *Engine) score(placements []Placement, summary *Summary) []*award {
	var awards []*award
	byKey := map[string]*award{}
	for _, pl := range placements {
		if !pl.Valid {
			summary.Skipped++
			e.logger.Warn("[Webhook] skipping placement with invalid username", "rank", pl.Rank)
			continue
		}
		key := models.UsernameKey(pl.Name)
		a, ok := byKey[key]
		if !ok {
			a = &award{name: strings.TrimSpace(pl.Name), key: key}
			byKey[key] = a
			awards = append(awards, a)
		}
		a.wins += WinsForRank(pl.Rank)
		a.points += PointsForRank(pl.Rank)
	}
	return awards
}

// resolveUnmatched looks up profiles for names that have no player in bucket.
// Failures are logged and leave the name unresolved.
func (e *Engine) resolveUnmatched(ctx context.Context, bucket models.Bucket, awards []*award) (map[string]*profile.Profile, error) {
	players, err := e.store.GetPlayers(ctx, bucket)
	if err != nil {
		return nil, apperrors.Database("failed to load players", err)
	}
	known := make(map[string]bool, len(players))
	for _, p := range players {
		known[p.UsernameKey] = true
	}

	profiles := map[string]*profile.Profile{}
	for _, a := range awards {
		if known[a.key] {
			continue
		}
		prof, err := e.resolver.ResolveUser(ctx, a.name, e.resolveAttempts)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.logger.Warn("[Webhook] could not resolve profile, accruing as pending", "username", a.name, "error", err)
			continue
		}
		profiles[a.key] = prof
	}
	return profiles, nil
}

// createPlayer registers a under a savepoint so a conflicting insert does not
// abort the surrounding unit.
func (e *Engine) createPlayer(ctx context.Context, tx storage.Store, a *award, prof *profile.Profile, bucket models.Bucket) (string, error) {
	p := &models.Player{
		ExternalUserID: prof.ID,
		Username:       a.name,
		DisplayName:    prof.DisplayName,
		Wins:           a.wins,
		Points:         a.points,
		Day:            bucket.Day,
		TournamentType: bucket.TournamentType,
		Event:          bucket.Event,
	}
	err := tx.Atomically(ctx, func(inner storage.Store) error {
		return inner.AddPlayer(ctx, p)
	})
	if err != nil {
		return "", fmt.Errorf("create player %s: %w", a.name, err)
	}
	return p.ID, nil
}
