package conference

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
)

// ErrInvalid is returned for conferences that fail basic checks.
var ErrInvalid = errors.New("invalid conference")

// Service manages the conference registry. Every read recomputes the status.
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

// Now exposes the service clock.
func (s *Service) Now() time.Time { return s.now() }

// Get returns a conference with its effective status.
func (s *Service) Get(ctx context.Context, id string) (Conference, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return Conference{}, err
	}
	c.Status = c.EffectiveStatus(s.now())
	return c, nil
}

// List returns conferences newest first. Drafts are hidden unless includeDrafts.
func (s *Service) List(ctx context.Context, includeDrafts bool) ([]Conference, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]Conference, 0, len(all))
	for _, c := range all {
		c.Status = c.EffectiveStatus(now)
		if c.Status == StatusDraft && !includeDrafts {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartDate.After(out[j].StartDate.Time)
	})
	return out, nil
}

// Create stores a new conference with a generated id.
func (s *Service) Create(ctx context.Context, c Conference) (Conference, error) {
	c.normalize()
	if err := validate(c); err != nil {
		return Conference{}, err
	}
	now := s.now()
	c.ID = uuid.NewString()
	c.CreatedAt = now.UTC()
	c.UpdatedAt = c.CreatedAt
	if err := s.repo.Put(ctx, c); err != nil {
		return Conference{}, err
	}
	c.Status = c.EffectiveStatus(now)
	return c, nil
}

// Update replaces the editable fields of an existing conference.
func (s *Service) Update(ctx context.Context, id string, c Conference) (Conference, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return Conference{}, err
	}
	c.normalize()
	if err := validate(c); err != nil {
		return Conference{}, err
	}
	c.ID = existing.ID
	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = s.now().UTC()
	if err := s.repo.Put(ctx, c); err != nil {
		return Conference{}, err
	}
	c.Status = c.EffectiveStatus(s.now())
	return c, nil
}

// Delete removes a conference.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

func validate(c Conference) error {
	if c.Name == "" {
		return errors.Join(ErrInvalid, errors.New("name is required"))
	}
	if c.StartDate.Set() && c.EndDate.Set() && c.EndDate.Before(c.StartDate.Time) {
		return errors.Join(ErrInvalid, errors.New("end_date is before start_date"))
	}
	return nil
}
