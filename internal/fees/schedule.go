// Package fees holds the registration fee schedule, the period resolver and
// fee quoting.
package fees

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Period is the pricing window a registration falls into.
type Period string

const (
	PeriodEarlyBird Period = "early_bird"
	PeriodEarly     Period = "early"
	PeriodRegular   Period = "regular"
	PeriodLate      Period = "late"
	PeriodClosed    Period = "closed"
)

// ParsePeriod maps a client supplied period name.
func ParsePeriod(s string) (Period, bool) {
	switch p := Period(strings.ToLower(strings.TrimSpace(s))); p {
	case PeriodEarlyBird, PeriodEarly, PeriodRegular, PeriodLate, PeriodClosed:
		return p, true
	}
	return "", false
}

// Date is a calendar day. The zero value means "not configured".
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

// NewDate builds a date from its parts.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate accepts YYYY-MM-DD or RFC 3339 and reports whether a date was found.
func ParseDate(s string) (Date, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, false
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return Date{t}, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return NewDate(t.Date()), true
	}
	return Date{}, false
}

// Set reports whether the date is configured.
func (d Date) Set() bool { return !d.IsZero() }

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

// UnmarshalJSON never fails: unparseable values decode as unset.
func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		*d = Date{}
		return nil
	}
	*d, _ = ParseDate(s)
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Amount is a non-negative money value. It decodes from numbers or numeric
// strings; anything else decodes as zero.
type Amount float64

func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		*a = 0
		return nil
	}
	*a = Amount(f)
	return nil
}

// Cents converts to integer minor units.
func (a Amount) Cents() int64 {
	return int64(math.Round(float64(a) * 100))
}

// Seats tracks a limited allocation. An unconfigured block has no limit.
type Seats struct {
	Total     int `json:"total"`
	Remaining int `json:"remaining"`
}

// Available reports whether a seat can still be taken.
func (s Seats) Available() bool {
	if s.Total == 0 && s.Remaining == 0 {
		return true
	}
	return s.Remaining > 0
}

// Tier is one pricing window.
type Tier struct {
	Enabled  bool              `json:"enabled"`
	Deadline Date              `json:"deadline"`
	Seats    Seats             `json:"seats"`
	Fees     map[string]Amount `json:"fees"`
}

// AddOn is an optional purchasable item.
type AddOn struct {
	Enabled     bool   `json:"enabled"`
	Fee         Amount `json:"fee"`
	Description string `json:"description,omitempty"`
}

// AdditionalItems groups the add-ons offered with a registration.
type AdditionalItems struct {
	ExtraPaper AddOn `json:"extra_paper"`
	Workshop   AddOn `json:"workshop"`
	Banquet    AddOn `json:"banquet"`
}

// Schedule is the singleton fee configuration.
type Schedule struct {
	Currency        string          `json:"currency"`
	EarlyBird       Tier            `json:"early_bird"`
	Early           Tier            `json:"early"`
	Regular         Tier            `json:"regular"`
	Late            Tier            `json:"late"`
	AdditionalItems AdditionalItems `json:"additional_items"`
	UpdatedAt       time.Time       `json:"updated_at,omitempty"`
}

// Decode is the single place where stored schedules get their defaults.
// Empty input yields the default (empty) schedule.
func Decode(raw []byte) (Schedule, error) {
	var s Schedule
	if len(bytes.TrimSpace(raw)) > 0 && !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		if err := json.Unmarshal(raw, &s); err != nil {
			return Schedule{}, err
		}
	}
	s.normalize()
	return s, nil
}

func (s *Schedule) normalize() {
	s.Currency = strings.ToUpper(strings.TrimSpace(s.Currency))
	if s.Currency == "" {
		s.Currency = "USD"
	}
	for _, t := range []*Tier{&s.EarlyBird, &s.Early, &s.Regular, &s.Late} {
		clean := make(map[string]Amount, len(t.Fees))
		for k, v := range t.Fees {
			if k = strings.TrimSpace(k); k != "" {
				clean[k] = v
			}
		}
		t.Fees = clean
		if t.Seats.Total < 0 {
			t.Seats.Total = 0
		}
		if t.Seats.Remaining < 0 {
			t.Seats.Remaining = 0
		}
		if t.Seats.Total > 0 && t.Seats.Remaining > t.Seats.Total {
			t.Seats.Remaining = t.Seats.Total
		}
	}
}

// Tier returns the pricing window for a period.
func (s Schedule) Tier(p Period) (Tier, bool) {
	switch p {
	case PeriodEarlyBird:
		return s.EarlyBird, true
	case PeriodEarly:
		return s.Early, true
	case PeriodRegular:
		return s.Regular, true
	case PeriodLate:
		return s.Late, true
	}
	return Tier{}, false
}
