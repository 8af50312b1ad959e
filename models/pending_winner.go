package models

import "time"

// PendingWinner accrues results for a name that has no registered Player in
// its bucket. It is turned into a Player when an admin approves it.
type PendingWinner struct {
	ID             string    `json:"id" gorm:"primaryKey"`
	Username       string    `json:"username" gorm:"not null"`
	UsernameKey    string    `json:"-" gorm:"not null;uniqueIndex:idx_pending_natural_key,priority:1"`
	Wins           int       `json:"wins" gorm:"not null;default:0"`
	Points         int       `json:"points" gorm:"not null;default:0"`
	Day            string    `json:"day" gorm:"not null;uniqueIndex:idx_pending_natural_key,priority:2"`
	TournamentType string    `json:"tournament_type" gorm:"not null;uniqueIndex:idx_pending_natural_key,priority:3"`
	Event          string    `json:"event" gorm:"not null;uniqueIndex:idx_pending_natural_key,priority:4"`
	SchemaVersion  int       `json:"schema_version" gorm:"not null;default:1"`
	CreatedAt      time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (p *PendingWinner) Bucket() Bucket {
	return Bucket{Day: p.Day, TournamentType: p.TournamentType, Event: p.Event}
}

func (p *PendingWinner) Normalize(defaultEvent string) {
	b := p.Bucket().withStoredDefaults(defaultEvent)
	p.Day, p.TournamentType, p.Event = b.Day, b.TournamentType, b.Event
	p.UsernameKey = UsernameKey(p.Username)
	p.SchemaVersion = CurrentSchemaVersion
}
