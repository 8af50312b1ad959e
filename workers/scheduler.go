package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"

	"tournament-leaderboard/logger"
)

// Scheduler runs the avatar backfill on a fixed interval.
type Scheduler struct {
	sched    gocron.Scheduler
	backfill *AvatarBackfill
	logger   *logger.Logger
	timeout  time.Duration
}

// NewScheduler registers the backfill job. A zero interval yields a nil
// Scheduler; Start and Shutdown are no-ops on nil.
func NewScheduler(backfill *AvatarBackfill, interval time.Duration, log *logger.Logger, opts ...gocron.JobOption) (*Scheduler, error) {
	if interval <= 0 {
		return nil, nil
	}
	if log == nil {
		log = logger.Nop()
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	s := &Scheduler{sched: sched, backfill: backfill, logger: log, timeout: interval}
	opts = append([]gocron.JobOption{
		gocron.WithName("avatar-backfill"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	}, opts...)

	if _, err := sched.NewJob(gocron.DurationJob(interval), gocron.NewTask(s.run), opts...); err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("failed to schedule avatar backfill: %w", err)
	}
	return s, nil
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	res, err := s.backfill.RunOnce(ctx)
	if err != nil {
		s.logger.Error("[Cron] scheduled backfill failed", "error", err)
		return
	}
	if res.Processed > 0 {
		s.logger.Info("[Cron] scheduled backfill", "username", res.Username, "message", res.Message)
	}
}

func (s *Scheduler) Start() {
	if s == nil {
		return
	}
	s.sched.Start()
	s.logger.Info("[Cron] avatar backfill scheduler started")
}

func (s *Scheduler) Shutdown() error {
	if s == nil {
		return nil
	}
	return s.sched.Shutdown()
}
