package papers

import (
	"context"
	"errors"
	"sort"

	"conference/internal/docstore"
)

// ErrNotFound is returned for unknown papers.
var ErrNotFound = errors.New("paper not found")

// Repository stores papers under their conference.
type Repository struct {
	docs docstore.Store
}

// NewRepository creates a repo.
func NewRepository(docs docstore.Store) *Repository {
	return &Repository{docs: docs}
}

func collectionFor(conferenceID string) string {
	return docstore.Path("conferences", conferenceID, "paper_submissions")
}

// Get returns one paper.
func (r *Repository) Get(ctx context.Context, conferenceID, id string) (Paper, error) {
	var p Paper
	if err := r.docs.Get(ctx, collectionFor(conferenceID), id, &p); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return Paper{}, ErrNotFound
		}
		return Paper{}, err
	}
	p.normalize()
	return p, nil
}

// Put creates or replaces a paper.
func (r *Repository) Put(ctx context.Context, p Paper) error {
	return r.docs.Put(ctx, collectionFor(p.ConferenceID), p.ID, p)
}

// Find lists a conference's papers matching f, newest first.
func (r *Repository) Find(ctx context.Context, conferenceID string, f docstore.Filter) ([]Paper, error) {
	var out []Paper
	if err := r.docs.Find(ctx, collectionFor(conferenceID), f, &out); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].normalize()
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
