// Package classify maps a point in time, or explicit overrides, onto the
// (day, tournament type) partition of the standings.
package classify

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	TournamentAllDay  = "all-day"
	TournamentSpecial = "special"
)

// The Sunday special runs in [SpecialStartHour:00, SpecialEndHour:00) local time.
const (
	SpecialStartHour = 13
	SpecialEndHour   = 14
)

var ErrInvalidTournamentType = errors.New("invalid tournament type")

var titleCaser = cases.Title(language.English)

// Day returns the lowercased override when one is given, otherwise the
// lowercase weekday name of now. It never returns an empty label.
func Day(override string, now time.Time) string {
	if d := strings.ToLower(strings.TrimSpace(override)); d != "" {
		return d
	}
	return strings.ToLower(now.Weekday().String())
}

// TournamentType picks the tournament type for day at now. An explicit
// override wins but must name a known type.
func TournamentType(day, override string, now time.Time) (string, error) {
	if o := strings.ToLower(strings.TrimSpace(override)); o != "" {
		if !IsValidTournamentType(o) {
			return "", fmt.Errorf("%w: %q (must be %s or %s)", ErrInvalidTournamentType, override, TournamentAllDay, TournamentSpecial)
		}
		return o, nil
	}
	if strings.ToLower(day) == "sunday" && IsSpecialActive(now) {
		return TournamentSpecial, nil
	}
	return TournamentAllDay, nil
}

func IsValidTournamentType(t string) bool {
	return t == TournamentAllDay || t == TournamentSpecial
}

// IsSpecialActive reports whether now falls in the special window. The date is
// not considered; callers pair it with the day.
func IsSpecialActive(now time.Time) bool {
	h := now.Hour()
	return h >= SpecialStartHour && h < SpecialEndHour
}

// DefaultTournamentType is the type assumed for a stored record with no
// type. It is all-day for every day; the special only exists when a result
// arrives inside its window.
func DefaultTournamentType() string {
	return TournamentAllDay
}

// Label is the display form of a day or type ("sunday" -> "Sunday", "all-day" -> "All-Day").
func Label(s string) string {
	return titleCaser.String(strings.ToLower(s))
}
