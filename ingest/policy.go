package ingest

import (
	"errors"
	"fmt"
	"strings"
)

// Policy decides what happens to a result for a name with no registered
// player in the batch's partition.
type Policy string

const (
	// PolicyPending accrues the result on a pending winner row until an admin approves it.
	PolicyPending Policy = "pending"
	// PolicyEager resolves the profile and registers the player immediately,
	// falling back to a pending row when the profile cannot be resolved.
	PolicyEager Policy = "eager"
	// PolicySkip drops the result and reports the name as not registered.
	PolicySkip Policy = "skip"
)

var ErrUnknownPolicy = errors.New("unknown unmatched policy")

func ParsePolicy(raw string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(raw))); p {
	case PolicyPending, PolicyEager, PolicySkip:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, raw)
}
