package classify

import (
	"time"
)

// Result is the partition a batch of results or a query lands in.
type Result struct {
	Day            string
	TournamentType string
}

// Classifier binds the clock and the tournament timezone.
type Classifier struct {
	Location *time.Location
	Now      func() time.Time
}

func New(loc *time.Location) *Classifier {
	if loc == nil {
		loc = time.UTC
	}
	return &Classifier{Location: loc, Now: time.Now}
}

// Clock returns the current time in the tournament timezone.
func (c *Classifier) Clock() time.Time {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	return now().In(loc)
}

func (c *Classifier) Classify(dayOverride, typeOverride string) (Result, error) {
	now := c.Clock()
	day := Day(dayOverride, now)
	tt, err := TournamentType(day, typeOverride, now)
	if err != nil {
		return Result{}, err
	}
	return Result{Day: day, TournamentType: tt}, nil
}
