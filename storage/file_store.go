package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tournament-leaderboard/models"
)

// document is the whole flat-file database.
type document struct {
	SchemaVersion  int                      `json:"schema_version"`
	Players        []models.Player          `json:"players"`
	PendingWinners []models.PendingWinner   `json:"pending_winners"`
	GameStatus     models.GameStatus        `json:"game_status"`
	Deliveries     []models.WebhookDelivery `json:"deliveries"`
}

func (d *document) clone() *document {
	c := *d
	c.Players = append([]models.Player(nil), d.Players...)
	c.PendingWinners = append([]models.PendingWinner(nil), d.PendingWinners...)
	c.Deliveries = append([]models.WebhookDelivery(nil), d.Deliveries...)
	return &c
}

// FileStore keeps every record in one JSON document. Each call reads the
// document, and each write rewrites it, so several processes sharing a blob
// see each other's writes. Calls within a process are serialized.
type FileStore struct {
	mu           sync.Mutex
	blob         Blob
	defaultEvent string
	now          func() time.Time
}

var _ Store = (*FileStore)(nil)

func NewFileStore(blob Blob, defaultEvent string) *FileStore {
	return &FileStore{blob: blob, defaultEvent: defaultEvent, now: time.Now}
}

func (s *FileStore) load(ctx context.Context) (*document, error) {
	data, err := s.blob.Read(ctx)
	if errors.Is(err, ErrBlobNotFound) {
		return &document{SchemaVersion: models.CurrentSchemaVersion, GameStatus: models.GameStatusStop}, nil
	}
	if err != nil {
		return nil, err
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse data file: %w", err)
	}
	for i := range doc.Players {
		doc.Players[i].Normalize(s.defaultEvent)
	}
	for i := range doc.PendingWinners {
		doc.PendingWinners[i].Normalize(s.defaultEvent)
	}
	if _, err := models.ParseGameStatus(string(doc.GameStatus)); err != nil {
		doc.GameStatus = models.GameStatusStop
	}
	doc.SchemaVersion = models.CurrentSchemaVersion
	return &doc, nil
}

func (s *FileStore) save(ctx context.Context, doc *document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode data file: %w", err)
	}
	return s.blob.Write(ctx, data)
}

func (s *FileStore) view(ctx context.Context, fn func(*docStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load(ctx)
	if err != nil {
		return err
	}
	return fn(s.docStore(doc))
}

func (s *FileStore) update(ctx context.Context, fn func(*docStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load(ctx)
	if err != nil {
		return err
	}
	if err := fn(s.docStore(doc)); err != nil {
		return err
	}
	return s.save(ctx, doc)
}

func (s *FileStore) docStore(doc *document) *docStore {
	return &docStore{doc: doc, defaultEvent: s.defaultEvent, now: s.now}
}

func (s *FileStore) GetPlayers(ctx context.Context, f Filter) (players []models.Player, err error) {
	err = s.view(ctx, func(d *docStore) error {
		players, err = d.GetPlayers(ctx, f)
		return err
	})
	return players, err
}

func (s *FileStore) GetPlayer(ctx context.Context, id string) (p *models.Player, err error) {
	err = s.view(ctx, func(d *docStore) error {
		p, err = d.GetPlayer(ctx, id)
		return err
	})
	return p, err
}

func (s *FileStore) FindPlayer(ctx context.Context, username string, b models.Bucket) (p *models.Player, err error) {
	err = s.view(ctx, func(d *docStore) error {
		p, err = d.FindPlayer(ctx, username, b)
		return err
	})
	return p, err
}

func (s *FileStore) AddPlayer(ctx context.Context, p *models.Player) error {
	return s.update(ctx, func(d *docStore) error { return d.AddPlayer(ctx, p) })
}

func (s *FileStore) UpdatePlayer(ctx context.Context, id string, u PlayerUpdate) error {
	return s.update(ctx, func(d *docStore) error { return d.UpdatePlayer(ctx, id, u) })
}

func (s *FileStore) IncrementPlayer(ctx context.Context, id string, winsDelta, pointsDelta int) (p *models.Player, err error) {
	err = s.update(ctx, func(d *docStore) error {
		p, err = d.IncrementPlayer(ctx, id, winsDelta, pointsDelta)
		return err
	})
	return p, err
}

func (s *FileStore) DeletePlayer(ctx context.Context, id string) error {
	return s.update(ctx, func(d *docStore) error { return d.DeletePlayer(ctx, id) })
}

func (s *FileStore) FindPlayerNeedingProfile(ctx context.Context) (p *models.Player, err error) {
	err = s.view(ctx, func(d *docStore) error {
		p, err = d.FindPlayerNeedingProfile(ctx)
		return err
	})
	return p, err
}

func (s *FileStore) GetPendingWinners(ctx context.Context, f Filter) (pending []models.PendingWinner, err error) {
	err = s.view(ctx, func(d *docStore) error {
		pending, err = d.GetPendingWinners(ctx, f)
		return err
	})
	return pending, err
}

func (s *FileStore) GetPendingWinner(ctx context.Context, username string, b models.Bucket) (p *models.PendingWinner, err error) {
	err = s.view(ctx, func(d *docStore) error {
		p, err = d.GetPendingWinner(ctx, username, b)
		return err
	})
	return p, err
}

func (s *FileStore) IncrementPendingWinner(ctx context.Context, username string, b models.Bucket, winsDelta, pointsDelta int) error {
	return s.update(ctx, func(d *docStore) error {
		return d.IncrementPendingWinner(ctx, username, b, winsDelta, pointsDelta)
	})
}

func (s *FileStore) RemovePendingWinner(ctx context.Context, username string, f Filter) (n int, err error) {
	err = s.update(ctx, func(d *docStore) error {
		n, err = d.RemovePendingWinner(ctx, username, f)
		return err
	})
	return n, err
}

func (s *FileStore) GetGameStatus(ctx context.Context) (status models.GameStatus, err error) {
	err = s.view(ctx, func(d *docStore) error {
		status, err = d.GetGameStatus(ctx)
		return err
	})
	return status, err
}

func (s *FileStore) SetGameStatus(ctx context.Context, status models.GameStatus) error {
	return s.update(ctx, func(d *docStore) error { return d.SetGameStatus(ctx, status) })
}

func (s *FileStore) GetDelivery(ctx context.Context, key string) (del *models.WebhookDelivery, err error) {
	err = s.view(ctx, func(d *docStore) error {
		del, err = d.GetDelivery(ctx, key)
		return err
	})
	return del, err
}

func (s *FileStore) RecordDelivery(ctx context.Context, del *models.WebhookDelivery) error {
	return s.update(ctx, func(d *docStore) error { return d.RecordDelivery(ctx, del) })
}

// Atomically runs fn on the loaded document and writes it back once, only
// when fn succeeds.
func (s *FileStore) Atomically(ctx context.Context, fn func(Store) error) error {
	return s.update(ctx, func(d *docStore) error { return fn(d) })
}

func (s *FileStore) Close() error { return nil }

// docStore is a Store over an in-memory document. FileStore wraps each call
// in a load and, for writes, a save.
type docStore struct {
	doc          *document
	defaultEvent string
	now          func() time.Time
}

var _ Store = (*docStore)(nil)

func (d *docStore) playerIndex(id string) int {
	for i := range d.doc.Players {
		if d.doc.Players[i].ID == id {
			return i
		}
	}
	return -1
}

func (d *docStore) GetPlayers(_ context.Context, f Filter) ([]models.Player, error) {
	players := []models.Player{}
	for _, p := range d.doc.Players {
		if f.Matches(p.Bucket()) {
			players = append(players, p)
		}
	}
	sort.SliceStable(players, func(i, j int) bool {
		return players[i].CreatedAt.Before(players[j].CreatedAt)
	})
	return players, nil
}

func (d *docStore) GetPlayer(_ context.Context, id string) (*models.Player, error) {
	i := d.playerIndex(id)
	if i < 0 {
		return nil, fmt.Errorf("%w: player %s", ErrNotFound, id)
	}
	p := d.doc.Players[i]
	return &p, nil
}

func (d *docStore) FindPlayer(_ context.Context, username string, b models.Bucket) (*models.Player, error) {
	key := models.UsernameKey(username)
	for _, p := range d.doc.Players {
		if p.UsernameKey == key && p.Bucket() == b {
			return &p, nil
		}
	}
	return nil, fmt.Errorf("%w: player %s", ErrNotFound, username)
}

func (d *docStore) AddPlayer(ctx context.Context, p *models.Player) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = d.now().UTC()
	}
	p.Normalize(d.defaultEvent)

	if d.playerIndex(p.ID) >= 0 {
		return fmt.Errorf("%w: player id %s", ErrAlreadyExists, p.ID)
	}
	if _, err := d.FindPlayer(ctx, p.Username, p.Bucket()); err == nil {
		return fmt.Errorf("%w: player %s in %s/%s/%s", ErrAlreadyExists, p.Username, p.Event, p.Day, p.TournamentType)
	}
	d.doc.Players = append(d.doc.Players, *p)
	return nil
}

func (d *docStore) UpdatePlayer(ctx context.Context, id string, u PlayerUpdate) error {
	i := d.playerIndex(id)
	if i < 0 {
		return fmt.Errorf("%w: player %s", ErrNotFound, id)
	}
	p := d.doc.Players[i]
	if u.ExternalUserID != nil {
		p.ExternalUserID = *u.ExternalUserID
	}
	if u.Username != nil {
		p.Username = strings.TrimSpace(*u.Username)
		p.UsernameKey = models.UsernameKey(p.Username)
		if other, err := d.FindPlayer(ctx, p.Username, p.Bucket()); err == nil && other.ID != id {
			return fmt.Errorf("%w: player %s in %s/%s/%s", ErrAlreadyExists, p.Username, p.Event, p.Day, p.TournamentType)
		}
	}
	if u.DisplayName != nil {
		p.DisplayName = *u.DisplayName
	}
	if u.AvatarURL != nil {
		p.AvatarURL = *u.AvatarURL
	}
	if u.Wins != nil {
		p.Wins = max(*u.Wins, 0)
	}
	if u.Points != nil {
		p.Points = max(*u.Points, 0)
	}
	if u.ProfileCheckedAt != nil {
		checked := *u.ProfileCheckedAt
		p.ProfileCheckedAt = &checked
	}
	d.doc.Players[i] = p
	return nil
}

func (d *docStore) IncrementPlayer(_ context.Context, id string, winsDelta, pointsDelta int) (*models.Player, error) {
	i := d.playerIndex(id)
	if i < 0 {
		return nil, fmt.Errorf("%w: player %s", ErrNotFound, id)
	}
	p := &d.doc.Players[i]
	p.Wins = max(p.Wins+winsDelta, 0)
	p.Points = max(p.Points+pointsDelta, 0)
	out := *p
	return &out, nil
}

func (d *docStore) DeletePlayer(_ context.Context, id string) error {
	i := d.playerIndex(id)
	if i < 0 {
		return fmt.Errorf("%w: player %s", ErrNotFound, id)
	}
	d.doc.Players = append(d.doc.Players[:i], d.doc.Players[i+1:]...)
	return nil
}

func (d *docStore) FindPlayerNeedingProfile(_ context.Context) (*models.Player, error) {
	var best *models.Player
	for i := range d.doc.Players {
		p := &d.doc.Players[i]
		if !p.NeedsProfile() {
			continue
		}
		if best == nil || checkedBefore(p, best) {
			best = p
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: player needing profile", ErrNotFound)
	}
	out := *best
	return &out, nil
}

// checkedBefore orders never-checked players first, then by last check and
// creation time.
func checkedBefore(a, b *models.Player) bool {
	switch {
	case a.ProfileCheckedAt == nil && b.ProfileCheckedAt != nil:
		return true
	case a.ProfileCheckedAt != nil && b.ProfileCheckedAt == nil:
		return false
	case a.ProfileCheckedAt != nil && !a.ProfileCheckedAt.Equal(*b.ProfileCheckedAt):
		return a.ProfileCheckedAt.Before(*b.ProfileCheckedAt)
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

func (d *docStore) GetPendingWinners(_ context.Context, f Filter) ([]models.PendingWinner, error) {
	pending := []models.PendingWinner{}
	for _, p := range d.doc.PendingWinners {
		if f.Matches(p.Bucket()) {
			pending = append(pending, p)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		if pending[i].Wins != pending[j].Wins {
			return pending[i].Wins > pending[j].Wins
		}
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	return pending, nil
}

func (d *docStore) pendingIndex(username string, b models.Bucket) int {
	key := models.UsernameKey(username)
	for i, p := range d.doc.PendingWinners {
		if p.UsernameKey == key && p.Bucket() == b {
			return i
		}
	}
	return -1
}

func (d *docStore) GetPendingWinner(_ context.Context, username string, b models.Bucket) (*models.PendingWinner, error) {
	i := d.pendingIndex(username, b)
	if i < 0 {
		return nil, fmt.Errorf("%w: pending winner %s", ErrNotFound, username)
	}
	p := d.doc.PendingWinners[i]
	return &p, nil
}

func (d *docStore) IncrementPendingWinner(_ context.Context, username string, b models.Bucket, winsDelta, pointsDelta int) error {
	if winsDelta < 0 || pointsDelta < 0 {
		return ErrInvalidDelta
	}
	now := d.now().UTC()
	if i := d.pendingIndex(username, b); i >= 0 {
		p := &d.doc.PendingWinners[i]
		p.Wins += winsDelta
		p.Points += pointsDelta
		p.UpdatedAt = now
		return nil
	}

	row := models.PendingWinner{
		ID:             uuid.NewString(),
		Username:       strings.TrimSpace(username),
		Wins:           winsDelta,
		Points:         pointsDelta,
		Day:            b.Day,
		TournamentType: b.TournamentType,
		Event:          b.Event,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	row.Normalize(d.defaultEvent)
	d.doc.PendingWinners = append(d.doc.PendingWinners, row)
	return nil
}

func (d *docStore) RemovePendingWinner(_ context.Context, username string, f Filter) (int, error) {
	key := models.UsernameKey(username)
	kept := d.doc.PendingWinners[:0]
	removed := 0
	for _, p := range d.doc.PendingWinners {
		if p.UsernameKey == key && f.Matches(p.Bucket()) {
			removed++
			continue
		}
		kept = append(kept, p)
	}
	d.doc.PendingWinners = kept
	return removed, nil
}

func (d *docStore) GetGameStatus(_ context.Context) (models.GameStatus, error) {
	if d.doc.GameStatus == "" {
		return models.GameStatusStop, nil
	}
	return d.doc.GameStatus, nil
}

func (d *docStore) SetGameStatus(_ context.Context, status models.GameStatus) error {
	d.doc.GameStatus = status
	return nil
}

func (d *docStore) GetDelivery(_ context.Context, key string) (*models.WebhookDelivery, error) {
	for _, del := range d.doc.Deliveries {
		if del.Key == key {
			out := del
			return &out, nil
		}
	}
	return nil, fmt.Errorf("%w: delivery %s", ErrNotFound, key)
}

func (d *docStore) RecordDelivery(ctx context.Context, del *models.WebhookDelivery) error {
	if _, err := d.GetDelivery(ctx, del.Key); err == nil {
		return fmt.Errorf("%w: delivery %s", ErrAlreadyExists, del.Key)
	}
	if del.ReceivedAt.IsZero() {
		del.ReceivedAt = d.now().UTC()
	}
	d.doc.Deliveries = append(d.doc.Deliveries, *del)
	return nil
}

// Atomically works on a copy of the document and swaps it in on success.
func (d *docStore) Atomically(_ context.Context, fn func(Store) error) error {
	scratch := &docStore{doc: d.doc.clone(), defaultEvent: d.defaultEvent, now: d.now}
	if err := fn(scratch); err != nil {
		return err
	}
	*d.doc = *scratch.doc
	return nil
}

func (d *docStore) Close() error { return nil }
