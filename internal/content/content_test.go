package content

import (
	"context"
	"errors"
	"testing"
	"time"

	"conference/internal/docstore"
)

func newService() *Service {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	calls := 0
	return NewService(docstore.NewMemory(), func() time.Time {
		calls++
		return t0.Add(time.Duration(calls) * time.Minute)
	})
}

func TestPages(t *testing.T) {
	ctx := context.Background()
	s := newService()

	p, err := s.Page(ctx, "call-for-papers")
	if err != nil || p.Title != "Call For Papers" || p.Published {
		t.Fatalf("default page: %+v %v", p, err)
	}
	if _, err := s.Page(ctx, "secret"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown page: %v", err)
	}
	if _, err := s.SavePage(ctx, Page{Slug: "Bad Slug!"}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("bad slug: %v", err)
	}
	saved, err := s.SavePage(ctx, Page{Slug: "Speakers", Published: true, Sections: []Section{{Heading: "Keynotes", Body: "TBA"}}})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	got, _ := s.Page(ctx, "speakers")
	if got.Title != "Speakers" || len(got.Sections) != 1 || !got.UpdatedAt.Equal(saved.UpdatedAt) {
		t.Fatalf("page = %+v", got)
	}
}

func TestAnnouncementsOrdering(t *testing.T) {
	ctx := context.Background()
	s := newService()

	old, _ := s.SaveAnnouncement(ctx, Announcement{Title: "Old news", Published: true})
	_, _ = s.SaveAnnouncement(ctx, Announcement{Title: "Draft"})
	_, _ = s.SaveAnnouncement(ctx, Announcement{Title: "Fresh", Published: true})
	pinned, _ := s.SaveAnnouncement(ctx, Announcement{Title: "Deadline extended", Published: true, Pinned: true})

	public, err := s.Announcements(ctx, false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(public) != 3 || public[0].ID != pinned.ID || public[1].Title != "Fresh" || public[2].ID != old.ID {
		t.Fatalf("unexpected order: %+v", public)
	}
	all, _ := s.Announcements(ctx, true)
	if len(all) != 4 {
		t.Fatalf("all = %d", len(all))
	}

	old.Title = "Old news (updated)"
	updated, err := s.SaveAnnouncement(ctx, old)
	if err != nil || !updated.CreatedAt.Equal(old.CreatedAt) || !updated.PublishedAt.Equal(old.PublishedAt) {
		t.Fatalf("update: %+v %v", updated, err)
	}
	if _, err := s.SaveAnnouncement(ctx, Announcement{ID: "missing", Title: "x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("update missing: %v", err)
	}
	if err := s.DeleteAnnouncement(ctx, old.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteAnnouncement(ctx, old.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("delete twice: %v", err)
	}
}

func TestSiteDefaults(t *testing.T) {
	ctx := context.Background()
	s := newService()
	site, err := s.Site(ctx)
	if err != nil || site.Theme != "default" || site.Title != "Conference" || site.Social == nil {
		t.Fatalf("defaults: %+v %v", site, err)
	}
	_, _ = s.SaveSite(ctx, Site{Title: "ICX", Theme: "dark", ContactEmail: "info@icx.example"})
	site, _ = s.Site(ctx)
	if site.Title != "ICX" || site.Theme != "dark" {
		t.Fatalf("saved site: %+v", site)
	}
}
