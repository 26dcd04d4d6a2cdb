package conference

import (
	"strings"
	"time"

	"conference/internal/fees"
)

// Status is the lifecycle state shown to visitors.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusUpcoming Status = "upcoming"
	StatusActive   Status = "active"
	StatusPast     Status = "past"
)

// Conference is one edition of the event.
type Conference struct {
	ID                     string    `json:"id"`
	Name                   string    `json:"name"`
	Abbreviation           string    `json:"abbreviation"`
	Year                   int       `json:"year"`
	StartDate              fees.Date `json:"start_date"`
	EndDate                fees.Date `json:"end_date"`
	Venue                  string    `json:"venue,omitempty"`
	Description            string    `json:"description,omitempty"`
	Status                 Status    `json:"status"`
	RegistrationEnabled    bool      `json:"registration_enabled"`
	PaperSubmissionEnabled bool      `json:"paper_submission_enabled"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// EffectiveStatus derives the status from the dates. The stored value only
// matters for drafts and for the admin override that opens a conference
// before its start date.
func (c Conference) EffectiveStatus(now time.Time) Status {
	if c.Status == StatusDraft {
		return StatusDraft
	}
	today := fees.NewDate(now.Date())
	if c.EndDate.Set() && today.After(c.EndDate.Time) {
		return StatusPast
	}
	if c.StartDate.Set() && today.Before(c.StartDate.Time) {
		if c.Status == StatusActive {
			return StatusActive
		}
		return StatusUpcoming
	}
	return StatusActive
}

// AcceptsRegistrations reports whether registrants may sign up right now.
func (c Conference) AcceptsRegistrations(now time.Time) bool {
	st := c.EffectiveStatus(now)
	return c.RegistrationEnabled && st != StatusDraft && st != StatusPast
}

// AcceptsPapers reports whether paper submission is open.
func (c Conference) AcceptsPapers(now time.Time) bool {
	st := c.EffectiveStatus(now)
	return c.PaperSubmissionEnabled && st != StatusDraft && st != StatusPast
}

func (c *Conference) normalize() {
	c.Name = strings.TrimSpace(c.Name)
	c.Abbreviation = strings.ToUpper(strings.TrimSpace(c.Abbreviation))
	switch c.Status {
	case StatusDraft, StatusUpcoming, StatusActive, StatusPast:
	default:
		c.Status = StatusUpcoming
	}
	if c.Year == 0 && c.StartDate.Set() {
		c.Year = c.StartDate.Year()
	}
}
