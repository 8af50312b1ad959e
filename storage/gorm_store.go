package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"tournament-leaderboard/classify"
	"tournament-leaderboard/models"
)

// GormStore is the relational Store, used with PostgreSQL.
type GormStore struct {
	db           *gorm.DB
	defaultEvent string
}

var _ Store = (*GormStore)(nil)

// OpenPostgres connects to dsn. Call Migrate before serving traffic.
func OpenPostgres(dsn, defaultEvent string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return NewGormStore(db, defaultEvent), nil
}

func NewGormStore(db *gorm.DB, defaultEvent string) *GormStore {
	return &GormStore{db: db, defaultEvent: defaultEvent}
}

// legacyColumns are the columns schema version 1 tables lack.
var legacyColumns = []string{
	"day text NOT NULL DEFAULT ''",
	"tournament_type text NOT NULL DEFAULT ''",
	"event text NOT NULL DEFAULT ''",
	"username_key text NOT NULL DEFAULT ''",
	"schema_version bigint NOT NULL DEFAULT 1",
}

// Migrate brings tables written by any earlier schema version up to date and
// then auto-migrates. Legacy rows are backfilled before the natural key
// indexes are created.
func (s *GormStore) Migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)

	for _, table := range []string{"players", "pending_winners"} {
		if !db.Migrator().HasTable(table) {
			continue
		}
		for _, column := range legacyColumns {
			if err := db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s", table, column)).Error; err != nil {
				return fmt.Errorf("failed to add legacy column to %s: %w", table, err)
			}
		}
		if err := s.backfill(db, table); err != nil {
			return err
		}
	}

	if err := db.AutoMigrate(
		&models.Player{},
		&models.PendingWinner{},
		&models.GameSetting{},
		&models.WebhookDelivery{},
	); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}

func (s *GormStore) backfill(db *gorm.DB, table string) error {
	sql := fmt.Sprintf(`UPDATE %s SET
		day = CASE WHEN TRIM(day) = '' THEN ? ELSE LOWER(TRIM(day)) END,
		tournament_type = CASE WHEN tournament_type = '' THEN ? ELSE tournament_type END,
		event = CASE WHEN event = '' THEN ? ELSE event END,
		username_key = LOWER(TRIM(username)),
		schema_version = ?
	WHERE schema_version < ? OR username_key = ''`, table)

	res := db.Exec(sql,
		models.LegacyDefaultDay,
		classify.DefaultTournamentType(),
		s.defaultEvent,
		models.CurrentSchemaVersion,
		models.CurrentSchemaVersion,
	)
	if res.Error != nil {
		return fmt.Errorf("failed to backfill %s: %w", table, res.Error)
	}
	return nil
}

func applyFilter(q *gorm.DB, f Filter) *gorm.DB {
	if f.Day != "" {
		q = q.Where("day = ?", f.Day)
	}
	if f.TournamentType != "" {
		q = q.Where("tournament_type = ?", f.TournamentType)
	}
	if f.Event != "" {
		q = q.Where("event = ?", f.Event)
	}
	return q
}

func applyBucket(q *gorm.DB, username string, b models.Bucket) *gorm.DB {
	return q.Where("username_key = ? AND day = ? AND tournament_type = ? AND event = ?",
		models.UsernameKey(username), b.Day, b.TournamentType, b.Event)
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	return err
}

func (s *GormStore) GetPlayers(ctx context.Context, f Filter) ([]models.Player, error) {
	var players []models.Player
	err := applyFilter(s.db.WithContext(ctx).Model(&models.Player{}), f).
		Order("created_at ASC").
		Find(&players).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}
	return players, nil
}

func (s *GormStore) GetPlayer(ctx context.Context, id string) (*models.Player, error) {
	var p models.Player
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, notFound(err, "player "+id)
	}
	return &p, nil
}

func (s *GormStore) FindPlayer(ctx context.Context, username string, b models.Bucket) (*models.Player, error) {
	var p models.Player
	if err := applyBucket(s.db.WithContext(ctx), username, b).First(&p).Error; err != nil {
		return nil, notFound(err, "player "+username)
	}
	return &p, nil
}

func (s *GormStore) AddPlayer(ctx context.Context, p *models.Player) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	p.Normalize(s.defaultEvent)

	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: player %s in %s/%s/%s", ErrAlreadyExists, p.Username, p.Event, p.Day, p.TournamentType)
		}
		return fmt.Errorf("failed to create player: %w", err)
	}
	return nil
}

func (s *GormStore) UpdatePlayer(ctx context.Context, id string, u PlayerUpdate) error {
	if u.IsEmpty() {
		_, err := s.GetPlayer(ctx, id)
		return err
	}

	values := map[string]interface{}{}
	if u.ExternalUserID != nil {
		values["external_user_id"] = *u.ExternalUserID
	}
	if u.Username != nil {
		values["username"] = strings.TrimSpace(*u.Username)
		values["username_key"] = models.UsernameKey(*u.Username)
	}
	if u.DisplayName != nil {
		values["display_name"] = *u.DisplayName
	}
	if u.AvatarURL != nil {
		values["avatar_url"] = *u.AvatarURL
	}
	if u.Wins != nil {
		values["wins"] = max(*u.Wins, 0)
	}
	if u.Points != nil {
		values["points"] = max(*u.Points, 0)
	}
	if u.ProfileCheckedAt != nil {
		values["profile_checked_at"] = *u.ProfileCheckedAt
	}

	res := s.db.WithContext(ctx).Model(&models.Player{}).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: %v", ErrAlreadyExists, res.Error)
		}
		return fmt.Errorf("failed to update player: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: player %s", ErrNotFound, id)
	}
	return nil
}

func (s *GormStore) IncrementPlayer(ctx context.Context, id string, winsDelta, pointsDelta int) (*models.Player, error) {
	var p models.Player
	res := s.db.WithContext(ctx).Model(&p).
		Clauses(clause.Returning{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"wins":   gorm.Expr("GREATEST(wins + ?, 0)", winsDelta),
			"points": gorm.Expr("GREATEST(points + ?, 0)", pointsDelta),
		})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to increment player: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: player %s", ErrNotFound, id)
	}
	return &p, nil
}

func (s *GormStore) DeletePlayer(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Player{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete player: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: player %s", ErrNotFound, id)
	}
	return nil
}

func (s *GormStore) FindPlayerNeedingProfile(ctx context.Context) (*models.Player, error) {
	var p models.Player
	err := s.db.WithContext(ctx).
		Where("external_user_id IN ? OR avatar_url = ''", []string{models.PendingExternalID, ""}).
		Order("profile_checked_at ASC NULLS FIRST").
		Order("created_at ASC").
		First(&p).Error
	if err != nil {
		return nil, notFound(err, "player needing profile")
	}
	return &p, nil
}

func (s *GormStore) GetPendingWinners(ctx context.Context, f Filter) ([]models.PendingWinner, error) {
	var pending []models.PendingWinner
	err := applyFilter(s.db.WithContext(ctx).Model(&models.PendingWinner{}), f).
		Order("wins DESC").
		Order("created_at ASC").
		Find(&pending).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending winners: %w", err)
	}
	return pending, nil
}

func (s *GormStore) GetPendingWinner(ctx context.Context, username string, b models.Bucket) (*models.PendingWinner, error) {
	var p models.PendingWinner
	if err := applyBucket(s.db.WithContext(ctx), username, b).First(&p).Error; err != nil {
		return nil, notFound(err, "pending winner "+username)
	}
	return &p, nil
}

func (s *GormStore) IncrementPendingWinner(ctx context.Context, username string, b models.Bucket, winsDelta, pointsDelta int) error {
	if winsDelta < 0 || pointsDelta < 0 {
		return ErrInvalidDelta
	}
	row := models.PendingWinner{
		ID:             uuid.NewString(),
		Username:       strings.TrimSpace(username),
		Wins:           winsDelta,
		Points:         pointsDelta,
		Day:            b.Day,
		TournamentType: b.TournamentType,
		Event:          b.Event,
	}
	row.Normalize(s.defaultEvent)

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "username_key"}, {Name: "day"}, {Name: "tournament_type"}, {Name: "event"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"wins":       gorm.Expr("pending_winners.wins + excluded.wins"),
			"points":     gorm.Expr("pending_winners.points + excluded.points"),
			"updated_at": gorm.Expr("excluded.updated_at"),
		}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to upsert pending winner: %w", err)
	}
	return nil
}

func (s *GormStore) RemovePendingWinner(ctx context.Context, username string, f Filter) (int, error) {
	q := applyFilter(s.db.WithContext(ctx).Where("username_key = ?", models.UsernameKey(username)), f)
	res := q.Delete(&models.PendingWinner{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to remove pending winner: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

func (s *GormStore) GetGameStatus(ctx context.Context) (models.GameStatus, error) {
	var setting models.GameSetting
	err := s.db.WithContext(ctx).Where("key = ?", models.GameStatusSettingKey).First(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.GameStatusStop, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read game status: %w", err)
	}
	status, err := models.ParseGameStatus(setting.Value)
	if err != nil {
		return models.GameStatusStop, nil
	}
	return status, nil
}

func (s *GormStore) SetGameStatus(ctx context.Context, status models.GameStatus) error {
	setting := models.GameSetting{Key: models.GameStatusSettingKey, Value: string(status)}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&setting).Error
	if err != nil {
		return fmt.Errorf("failed to save game status: %w", err)
	}
	return nil
}

func (s *GormStore) GetDelivery(ctx context.Context, key string) (*models.WebhookDelivery, error) {
	var d models.WebhookDelivery
	if err := s.db.WithContext(ctx).Where("key = ?", key).First(&d).Error; err != nil {
		return nil, notFound(err, "delivery "+key)
	}
	return &d, nil
}

func (s *GormStore) RecordDelivery(ctx context.Context, d *models.WebhookDelivery) error {
	if err := s.db.WithContext(ctx).Create(d).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: delivery %s", ErrAlreadyExists, d.Key)
		}
		return fmt.Errorf("failed to record delivery: %w", err)
	}
	return nil
}

func (s *GormStore) Atomically(ctx context.Context, fn func(Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx, defaultEvent: s.defaultEvent})
	})
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
