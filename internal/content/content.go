// Package content manages editable site pages, announcements and site settings.
package content

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"conference/internal/docstore"
)

var (
	ErrNotFound = errors.New("content not found")
	ErrInvalid  = errors.New("invalid content")
)

const (
	pagesCollection         = "pages"
	announcementsCollection = "announcements"
	settingsCollection      = "settings"
	siteID                  = "site"
)

// DefaultPages are the public pages the site links to.
var DefaultPages = []string{"home", "about", "call-for-papers", "registration", "speakers", "downloads"}

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Section is one titled block of a page.
type Section struct {
	Heading string `json:"heading,omitempty"`
	Body    string `json:"body"`
}

// Page is an editable content page.
type Page struct {
	Slug      string    `json:"slug"`
	Title     string    `json:"title"`
	Sections  []Section `json:"sections"`
	Published bool      `json:"published"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Announcement is a dated news item.
type Announcement struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	Pinned      bool      `json:"pinned"`
	Published   bool      `json:"published"`
	PublishedAt time.Time `json:"published_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Site is the per-request site configuration.
type Site struct {
	Title                string            `json:"title"`
	Tagline              string            `json:"tagline,omitempty"`
	Theme                string            `json:"theme"`
	ContactEmail         string            `json:"contact_email,omitempty"`
	FeaturedConferenceID string            `json:"featured_conference_id,omitempty"`
	Social               map[string]string `json:"social"`
	UpdatedAt            time.Time         `json:"updated_at,omitempty"`
}

// normalize applies defaults to stored site settings.
func (s *Site) normalize() {
	if strings.TrimSpace(s.Title) == "" {
		s.Title = "Conference"
	}
	if s.Theme == "" {
		s.Theme = "default"
	}
	if s.Social == nil {
		s.Social = map[string]string{}
	}
}

// Service stores site content.
type Service struct {
	docs docstore.Store
	now  func() time.Time
}

// NewService creates a service.
func NewService(docs docstore.Store, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{docs: docs, now: now}
}

// Page returns a page. Known slugs that were never edited return an empty
// unpublished page.
func (s *Service) Page(ctx context.Context, slug string) (Page, error) {
	var p Page
	err := s.docs.Get(ctx, pagesCollection, slug, &p)
	if errors.Is(err, docstore.ErrNotFound) {
		for _, d := range DefaultPages {
			if d == slug {
				return Page{Slug: slug, Title: titleFromSlug(slug), Sections: []Section{}}, nil
			}
		}
		return Page{}, ErrNotFound
	}
	if err != nil {
		return Page{}, err
	}
	if p.Sections == nil {
		p.Sections = []Section{}
	}
	return p, nil
}

// SavePage creates or replaces a page.
func (s *Service) SavePage(ctx context.Context, p Page) (Page, error) {
	p.Slug = strings.ToLower(strings.TrimSpace(p.Slug))
	if !slugPattern.MatchString(p.Slug) {
		return Page{}, fmt.Errorf("%w: slug must be lowercase words separated by dashes", ErrInvalid)
	}
	if strings.TrimSpace(p.Title) == "" {
		p.Title = titleFromSlug(p.Slug)
	}
	if p.Sections == nil {
		p.Sections = []Section{}
	}
	p.UpdatedAt = s.now().UTC()
	if err := s.docs.Put(ctx, pagesCollection, p.Slug, p); err != nil {
		return Page{}, fmt.Errorf("save page: %w", err)
	}
	return p, nil
}

// Announcements lists announcements, pinned first then newest. Drafts are
// included only when all is set.
func (s *Service) Announcements(ctx context.Context, all bool) ([]Announcement, error) {
	var list []Announcement
	if err := s.docs.Find(ctx, announcementsCollection, nil, &list); err != nil {
		return nil, err
	}
	out := make([]Announcement, 0, len(list))
	for _, a := range list {
		if a.Published || all {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Pinned != out[j].Pinned {
			return out[i].Pinned
		}
		return out[i].PublishedAt.After(out[j].PublishedAt)
	})
	return out, nil
}

// SaveAnnouncement creates an announcement when a.ID is empty, otherwise
// replaces the existing one.
func (s *Service) SaveAnnouncement(ctx context.Context, a Announcement) (Announcement, error) {
	a.Title = strings.TrimSpace(a.Title)
	if a.Title == "" {
		return Announcement{}, fmt.Errorf("%w: title is required", ErrInvalid)
	}
	now := s.now().UTC()
	if a.ID == "" {
		a.ID = uuid.NewString()
		a.CreatedAt = now
	} else {
		var existing Announcement
		if err := s.docs.Get(ctx, announcementsCollection, a.ID, &existing); err != nil {
			if errors.Is(err, docstore.ErrNotFound) {
				return Announcement{}, ErrNotFound
			}
			return Announcement{}, err
		}
		a.CreatedAt = existing.CreatedAt
		if a.PublishedAt.IsZero() {
			a.PublishedAt = existing.PublishedAt
		}
	}
	if a.Published && a.PublishedAt.IsZero() {
		a.PublishedAt = now
	}
	a.UpdatedAt = now
	if err := s.docs.Put(ctx, announcementsCollection, a.ID, a); err != nil {
		return Announcement{}, fmt.Errorf("save announcement: %w", err)
	}
	return a, nil
}

// DeleteAnnouncement removes an announcement.
func (s *Service) DeleteAnnouncement(ctx context.Context, id string) error {
	if err := s.docs.Delete(ctx, announcementsCollection, id); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// Site loads site settings with defaults applied.
func (s *Service) Site(ctx context.Context) (Site, error) {
	var site Site
	if err := s.docs.Get(ctx, settingsCollection, siteID, &site); err != nil && !errors.Is(err, docstore.ErrNotFound) {
		return Site{}, err
	}
	site.normalize()
	return site, nil
}

// SaveSite replaces the site settings.
func (s *Service) SaveSite(ctx context.Context, site Site) (Site, error) {
	site.normalize()
	site.UpdatedAt = s.now().UTC()
	if err := s.docs.Put(ctx, settingsCollection, siteID, site); err != nil {
		return Site{}, fmt.Errorf("save site settings: %w", err)
	}
	return site, nil
}

func titleFromSlug(slug string) string {
	words := strings.Split(slug, "-")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
