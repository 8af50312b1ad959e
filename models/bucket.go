package models

import (
	"strings"

	"tournament-leaderboard/classify"
)

// CurrentSchemaVersion is stamped on every record a store writes or migrates.
//
// Version 1 records predate days, tournament types and events; version 2 is
// the first with all three partition keys present.
const CurrentSchemaVersion = 2

// LegacyDefaultDay is the day assumed for version 1 records, which only ever
// tracked the Saturday tournament.
const LegacyDefaultDay = "saturday"

// Bucket is the (day, tournament type, event) partition of the standings.
// In filters an empty field means "any".
type Bucket struct {
	Day            string `json:"day"`
	TournamentType string `json:"tournament_type"`
	Event          string `json:"event"`
}

// withStoredDefaults fills the documented defaults for records written before
// a partition key existed.
func (b Bucket) withStoredDefaults(defaultEvent string) Bucket {
	b.Day = strings.ToLower(strings.TrimSpace(b.Day))
	if b.Day == "" {
		b.Day = LegacyDefaultDay
	}
	if b.TournamentType == "" {
		b.TournamentType = classify.DefaultTournamentType()
	}
	if b.Event == "" {
		b.Event = defaultEvent
	}
	return b
}

// Matches reports whether a record bucket falls inside the filter f.
func (f Bucket) Matches(record Bucket) bool {
	if f.Day != "" && f.Day != record.Day {
		return false
	}
	if f.TournamentType != "" && f.TournamentType != record.TournamentType {
		return false
	}
	if f.Event != "" && f.Event != record.Event {
		return false
	}
	return true
}

// UsernameKey is the case-insensitive compare key for usernames.
func UsernameKey(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
