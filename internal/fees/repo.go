package fees

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"conference/internal/docstore"
)

const (
	settingsCollection = "settings"
	scheduleID         = "registration_fees"
)

// Repository persists the singleton schedule document.
type Repository struct {
	docs docstore.Store
}

// NewRepository creates a repo.
func NewRepository(docs docstore.Store) *Repository {
	return &Repository{docs: docs}
}

// Get loads the schedule; a missing document yields the defaults.
func (r *Repository) Get(ctx context.Context) (Schedule, error) {
	var raw json.RawMessage
	if err := r.docs.Get(ctx, settingsCollection, scheduleID, &raw); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return Decode(nil)
		}
		return Schedule{}, fmt.Errorf("load fee schedule: %w", err)
	}
	return Decode(raw)
}

// Save normalizes and stores the schedule.
func (r *Repository) Save(ctx context.Context, s Schedule) (Schedule, error) {
	s.normalize()
	s.UpdatedAt = time.Now().UTC()
	if err := r.docs.Put(ctx, settingsCollection, scheduleID, s); err != nil {
		return Schedule{}, fmt.Errorf("save fee schedule: %w", err)
	}
	return s, nil
}

// ConsumeEarlyBirdSeat takes one seat from a limited early-bird block.
// Unlimited blocks are left alone. The read-modify-write is last-write-wins.
func (r *Repository) ConsumeEarlyBirdSeat(ctx context.Context) error {
	s, err := r.Get(ctx)
	if err != nil {
		return err
	}
	seats := &s.EarlyBird.Seats
	if seats.Total == 0 || seats.Remaining == 0 {
		return nil
	}
	seats.Remaining--
	_, err = r.Save(ctx, s)
	return err
}
