package conference

import (
	"context"
	"errors"

	"conference/internal/docstore"
)

const collection = "conferences"

// ErrNotFound is returned for unknown conference ids.
var ErrNotFound = errors.New("conference not found")

// Repository persists conferences in the document store.
type Repository struct {
	docs docstore.Store
}

// NewRepository creates a repo.
func NewRepository(docs docstore.Store) *Repository {
	return &Repository{docs: docs}
}

// Get returns a single conference.
func (r *Repository) Get(ctx context.Context, id string) (Conference, error) {
	var c Conference
	if err := r.docs.Get(ctx, collection, id, &c); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return Conference{}, ErrNotFound
		}
		return Conference{}, err
	}
	c.normalize()
	return c, nil
}

// List returns every conference.
func (r *Repository) List(ctx context.Context) ([]Conference, error) {
	var out []Conference
	if err := r.docs.Find(ctx, collection, nil, &out); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].normalize()
	}
	return out, nil
}

// Put creates or replaces a conference.
func (r *Repository) Put(ctx context.Context, c Conference) error {
	return r.docs.Put(ctx, collection, c.ID, c)
}

// Delete removes a conference.
func (r *Repository) Delete(ctx context.Context, id string) error {
	if err := r.docs.Delete(ctx, collection, id); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}
