package models

import (
	"time"
)

// PendingExternalID marks a player whose external profile has not been resolved yet.
const PendingExternalID = "pending"

// Player is a registered participant with a standings record in one bucket.
// Profile fields mirror the external profile service and are refreshed by the
// avatar backfill job.
type Player struct {
	ID             string `json:"id" gorm:"primaryKey"`
	ExternalUserID string `json:"external_user_id" gorm:"not null;default:'pending';index"`
	Username       string `json:"username" gorm:"not null"`
	// (username_key, day, tournament_type, event) is the natural key.
	UsernameKey      string     `json:"-" gorm:"not null;uniqueIndex:idx_player_natural_key,priority:1"`
	DisplayName      string     `json:"display_name"`
	Wins             int        `json:"wins" gorm:"not null;default:0"`
	Points           int        `json:"points" gorm:"not null;default:0"`
	AvatarURL        string     `json:"avatar_url"`
	CreatedAt        time.Time  `json:"created_at" gorm:"autoCreateTime"`
	Day              string     `json:"day" gorm:"not null;uniqueIndex:idx_player_natural_key,priority:2"`
	TournamentType   string     `json:"tournament_type" gorm:"not null;uniqueIndex:idx_player_natural_key,priority:3"`
	Event            string     `json:"event" gorm:"not null;uniqueIndex:idx_player_natural_key,priority:4"`
	ProfileCheckedAt *time.Time `json:"profile_checked_at,omitempty"`
	SchemaVersion    int        `json:"schema_version" gorm:"not null;default:1"`
}

func (p *Player) Bucket() Bucket {
	return Bucket{Day: p.Day, TournamentType: p.TournamentType, Event: p.Event}
}

// Normalize migrates a record of any schema version to the current one.
func (p *Player) Normalize(defaultEvent string) {
	b := p.Bucket().withStoredDefaults(defaultEvent)
	p.Day, p.TournamentType, p.Event = b.Day, b.TournamentType, b.Event

	if p.ExternalUserID == "" {
		p.ExternalUserID = PendingExternalID
	}
	if p.DisplayName == "" {
		p.DisplayName = p.Username
	}
	if p.Wins < 0 {
		p.Wins = 0
	}
	if p.Points < 0 {
		p.Points = 0
	}
	p.UsernameKey = UsernameKey(p.Username)
	p.SchemaVersion = CurrentSchemaVersion
}

func (p *Player) ProfileResolved() bool {
	return p.ExternalUserID != "" && p.ExternalUserID != PendingExternalID
}

// NeedsProfile reports whether the backfill job still has work to do for p.
func (p *Player) NeedsProfile() bool {
	return !p.ProfileResolved() || p.AvatarURL == ""
}
