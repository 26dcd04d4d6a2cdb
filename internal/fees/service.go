package fees

import (
	"context"
	"time"
)

// Service exposes the schedule with a clock for period resolution.
type Service struct {
	repo *Repository
	now  func() time.Time
}

// NewService creates a service. A nil clock uses time.Now.
func NewService(repo *Repository, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{repo: repo, now: now}
}

// Current returns the schedule and the period that applies right now.
func (s *Service) Current(ctx context.Context) (Schedule, Period, error) {
	sched, err := s.repo.Get(ctx)
	if err != nil {
		return Schedule{}, "", err
	}
	return sched, ResolvePeriod(s.now(), sched), nil
}

// Quote prices a request against the stored schedule. An empty period means
// the current one.
func (s *Service) Quote(ctx context.Context, req QuoteRequest) (Quote, error) {
	sched, current, err := s.Current(ctx)
	if err != nil {
		return Quote{}, err
	}
	if req.Period == "" {
		req.Period = current
	}
	return sched.Quote(req)
}

// Save replaces the schedule.
func (s *Service) Save(ctx context.Context, sched Schedule) (Schedule, error) {
	return s.repo.Save(ctx, sched)
}

// ConsumeEarlyBirdSeat delegates to the repository.
func (s *Service) ConsumeEarlyBirdSeat(ctx context.Context) error {
	return s.repo.ConsumeEarlyBirdSeat(ctx)
}
