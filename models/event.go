package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gosimple/slug"
)

// Event is one tournament series. Its ID is the slug of the display name and is
// the value stored in the event column of every record.
type Event struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func NewEvent(name string) Event {
	return Event{ID: EventID(name), Name: strings.TrimSpace(name)}
}

// EventID normalises explicit event input ("RVNC Jan 24th", "rvnc-jan-24th") to its id.
func EventID(raw string) string {
	return slug.Make(strings.TrimSpace(raw))
}

var ErrInvalidEvent = errors.New("invalid event")

// ResolveEventID returns the id for explicit event input, or defaultEvent
// when raw is blank. Input that is not blank but has no id is rejected so it
// can never widen a partition to every event.
func ResolveEventID(raw, defaultEvent string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return defaultEvent, nil
	}
	id := EventID(raw)
	if id == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidEvent, raw)
	}
	return id, nil
}

// EventCatalogue builds the configured events, making sure the default event is listed.
func EventCatalogue(names []string, defaultEvent string) []Event {
	events := make([]Event, 0, len(names)+1)
	seen := map[string]bool{}
	for _, name := range names {
		e := NewEvent(name)
		if e.ID == "" || seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		events = append(events, e)
	}
	if id := EventID(defaultEvent); id != "" && !seen[id] {
		events = append(events, Event{ID: id, Name: defaultEvent})
	}
	return events
}
