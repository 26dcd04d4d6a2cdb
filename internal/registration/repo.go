package registration

import (
	"context"
	"errors"
	"sort"

	"conference/internal/docstore"
)

const collection = "registrations"

// ErrNotFound is returned for unknown registrations.
var ErrNotFound = errors.New("registration not found")

// Repository persists registrations in the document store.
type Repository struct {
	docs docstore.Store
}

// NewRepository creates a repo.
func NewRepository(docs docstore.Store) *Repository {
	return &Repository{docs: docs}
}

// Get returns one registration.
func (r *Repository) Get(ctx context.Context, id string) (Registration, error) {
	var reg Registration
	if err := r.docs.Get(ctx, collection, id, &reg); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return Registration{}, ErrNotFound
		}
		return Registration{}, err
	}
	reg.normalize()
	return reg, nil
}

// Put creates or replaces a registration.
func (r *Repository) Put(ctx context.Context, reg Registration) error {
	return r.docs.Put(ctx, collection, reg.ID, reg)
}

// Find returns registrations matching every field in f, oldest first.
func (r *Repository) Find(ctx context.Context, f docstore.Filter) ([]Registration, error) {
	var out []Registration
	if err := r.docs.Find(ctx, collection, f, &out); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].normalize()
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// ForUserConference returns a user's registrations for one conference.
func (r *Repository) ForUserConference(ctx context.Context, userID, conferenceID string) ([]Registration, error) {
	return r.Find(ctx, docstore.Filter{"user_id": userID, "conference_id": conferenceID})
}

// ByPayment locates a registration by gateway payment id, falling back to
// the transaction reference.
func (r *Repository) ByPayment(ctx context.Context, paymentID, reference string) (Registration, error) {
	if paymentID != "" {
		found, err := r.Find(ctx, docstore.Filter{"payment_id": paymentID})
		if err != nil {
			return Registration{}, err
		}
		if len(found) > 0 {
			return found[len(found)-1], nil
		}
	}
	if reference != "" {
		found, err := r.Find(ctx, docstore.Filter{"transaction_reference": reference})
		if err != nil {
			return Registration{}, err
		}
		if len(found) > 0 {
			return found[len(found)-1], nil
		}
	}
	return Registration{}, ErrNotFound
}
