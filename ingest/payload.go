package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var ErrMalformedPayload = errors.New("malformed payload")

// slotNames maps rank slots to their field names, ordinal name first.
var slotNames = [MaxScoredRank][2]string{
	{"first", "rank1"},
	{"second", "rank2"},
	{"third", "rank3"},
	{"fourth", "rank4"},
	{"fifth", "rank5"},
	{"sixth", "rank6"},
	{"seventh", "rank7"},
	{"eighth", "rank8"},
	{"ninth", "rank9"},
	{"tenth", "rank10"},
}

// Placement is one participant's finish in a reported result. Invalid
// placements (blank or non-string names) are kept so they can be counted as
// skipped.
type Placement struct {
	Name  string
	Rank  int
	Valid bool
}

// Request is a parsed webhook delivery.
type Request struct {
	Placements     []Placement
	Day            string
	TournamentType string
	Event          string
	IdempotencyKey string
}

type resultEntry struct {
	Username json.RawMessage `json:"username"`
	Rank     json.RawMessage `json:"rank"`
}

// ParsePayload accepts the array shape {"results": [...]}, the rank slot
// shape {"first": .., "second": ..} and the legacy {"username": ..} shape,
// in that order of precedence.
func ParsePayload(body []byte) (Request, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		return Request{}, fmt.Errorf("%w: body must be a JSON object", ErrMalformedPayload)
	}

	var req Request
	var err error
	if req.Day, err = optionalString(fields, "day"); err != nil {
		return Request{}, err
	}
	if req.TournamentType, err = optionalString(fields, "tournament_type", "tournamentType"); err != nil {
		return Request{}, err
	}
	if req.Event, err = optionalString(fields, "event"); err != nil {
		return Request{}, err
	}
	if req.IdempotencyKey, err = optionalString(fields, "delivery_id"); err != nil {
		return Request{}, err
	}

	switch {
	case present(fields, "results"):
		req.Placements, err = parseResults(fields["results"])
	case hasSlots(fields):
		req.Placements = parseSlots(fields)
	case present(fields, "username"):
		req.Placements, err = parseLegacy(fields["username"])
	default:
		return Request{}, fmt.Errorf("%w: expected results, rank slots or username", ErrMalformedPayload)
	}
	if err != nil {
		return Request{}, err
	}
	if len(req.Placements) == 0 {
		return Request{}, fmt.Errorf("%w: no placements", ErrMalformedPayload)
	}
	return req, nil
}

func present(fields map[string]json.RawMessage, key string) bool {
	raw, ok := fields[key]
	return ok && !isNull(raw)
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func optionalString(fields map[string]json.RawMessage, keys ...string) (string, error) {
	for _, key := range keys {
		raw, ok := fields[key]
		if !ok || isNull(raw) {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("%w: %s must be a string", ErrMalformedPayload, key)
		}
		return strings.TrimSpace(s), nil
	}
	return "", nil
}

func parseResults(raw json.RawMessage) ([]Placement, error) {
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("%w: results must be an array", ErrMalformedPayload)
	}

	placements := make([]Placement, 0, len(entries))
	for _, rawEntry := range entries {
		var entry resultEntry
		if err := json.Unmarshal(rawEntry, &entry); err != nil {
			placements = append(placements, Placement{})
			continue
		}
		name, ok := stringValue(entry.Username)
		placements = append(placements, Placement{
			Name:  name,
			Rank:  rankValue(entry.Rank),
			Valid: ok,
		})
	}
	return placements, nil
}

func hasSlots(fields map[string]json.RawMessage) bool {
	for _, names := range slotNames {
		for _, name := range names {
			if present(fields, name) {
				return true
			}
		}
	}
	return false
}

// parseSlots keeps only populated slots. A slot holding something other than
// a string is an invalid placement at that rank.
func parseSlots(fields map[string]json.RawMessage) []Placement {
	var placements []Placement
	for i, names := range slotNames {
		raw, ok := fields[names[0]]
		if !ok || isNull(raw) {
			raw, ok = fields[names[1]]
		}
		if !ok || isNull(raw) {
			continue
		}

		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			placements = append(placements, Placement{Rank: i + 1})
			continue
		}
		if strings.TrimSpace(s) == "" {
			continue
		}
		placements = append(placements, Placement{Name: strings.TrimSpace(s), Rank: i + 1, Valid: true})
	}
	return placements
}

func parseLegacy(raw json.RawMessage) ([]Placement, error) {
	name, ok := stringValue(raw)
	if !ok {
		return nil, fmt.Errorf("%w: username is required", ErrMalformedPayload)
	}
	return []Placement{{Name: name, Rank: 1, Valid: true}}, nil
}

// stringValue returns the trimmed string and whether it is a usable name.
func stringValue(raw json.RawMessage) (string, bool) {
	if isNull(raw) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

// rankValue accepts integral JSON numbers and numeric strings. Anything else
// is rank 0, which scores nothing.
func rankValue(raw json.RawMessage) int {
	if isNull(raw) {
		return 0
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return 0
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0
		}
		n = parsed
	}
	if n != math.Trunc(n) || n < math.MinInt32 || n > math.MaxInt32 {
		return 0
	}
	return int(n)
}
