// Package papers handles paper submission and review.
package papers

import (
	"strings"
	"time"
)

// Status is the review state of a paper.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
	StatusRevision Status = "revision"
)

// ParseStatus maps a reviewer supplied status.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusPending, StatusAccepted, StatusRejected, StatusRevision:
		return st, true
	}
	return "", false
}

// Author is one listed author of a paper.
type Author struct {
	Name          string `json:"name" binding:"required"`
	Email         string `json:"email" binding:"omitempty,email"`
	Affiliation   string `json:"affiliation,omitempty"`
	Corresponding bool   `json:"corresponding"`
}

// File describes the uploaded manuscript.
type File struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	PublicID string `json:"public_id,omitempty"`
	Bytes    int64  `json:"bytes"`
}

// Paper is a submission to one conference.
type Paper struct {
	ID             string     `json:"id"`
	ConferenceID   string     `json:"conference_id"`
	UserID         string     `json:"user_id"`
	SubmitterName  string     `json:"submitter_name,omitempty"`
	SubmitterEmail string     `json:"submitter_email,omitempty"`
	Title          string     `json:"title"`
	Abstract       string     `json:"abstract"`
	Keywords       []string   `json:"keywords"`
	Authors        []Author   `json:"authors"`
	Status         Status     `json:"status"`
	File           *File      `json:"file,omitempty"`
	ReviewComment  string     `json:"review_comment,omitempty"`
	RegistrationID string     `json:"registration_id,omitempty"`
	ReviewedAt     *time.Time `json:"reviewed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (p *Paper) normalize() {
	if _, ok := ParseStatus(string(p.Status)); !ok {
		p.Status = StatusPending
	}
	if p.Keywords == nil {
		p.Keywords = []string{}
	}
	if p.Authors == nil {
		p.Authors = []Author{}
	}
}

// affiliation returns the corresponding author's affiliation, or the first
// one listed.
func (p Paper) affiliation() string {
	for _, a := range p.Authors {
		if a.Corresponding && a.Affiliation != "" {
			return a.Affiliation
		}
	}
	for _, a := range p.Authors {
		if a.Affiliation != "" {
			return a.Affiliation
		}
	}
	return ""
}
