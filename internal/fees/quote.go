package fees

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrPeriodClosed = errors.New("registration is closed")
	ErrUnknownFee   = errors.New("no fee configured for this period and registration type")
)

// AddOns are the optional items a registrant selected.
type AddOns struct {
	ExtraPaper bool `json:"extra_paper"`
	Workshop   bool `json:"workshop"`
	Banquet    bool `json:"banquet"`
}

// QuoteRequest describes what is being priced.
type QuoteRequest struct {
	Period          Period
	Category        string
	AddOns          AddOns
	WaiveExtraPaper bool
}

// LineItem is one priced component of a quote.
type LineItem struct {
	Code        string  `json:"code"`
	Description string  `json:"description,omitempty"`
	Amount      float64 `json:"amount"`
}

// Quote is a priced registration.
type Quote struct {
	Period     Period     `json:"period"`
	Category   string     `json:"category"`
	Currency   string     `json:"currency"`
	BaseFee    float64    `json:"base_fee"`
	Items      []LineItem `json:"items,omitempty"`
	Total      float64    `json:"total"`
	TotalCents int64      `json:"-"`
}

// Quote prices a registration: the base fee for (period, category) plus
// every selected add-on that is enabled. Disabled or unselected add-ons add
// nothing and a waived extra paper is never charged.
func (s Schedule) Quote(req QuoteRequest) (Quote, error) {
	if req.Period == PeriodClosed || req.Period == "" {
		return Quote{}, ErrPeriodClosed
	}
	tier, ok := s.Tier(req.Period)
	if !ok {
		return Quote{}, fmt.Errorf("%w: period %q", ErrUnknownFee, req.Period)
	}
	base, ok := tier.Fees[req.Category]
	if !ok {
		return Quote{}, fmt.Errorf("%w: %s/%s", ErrUnknownFee, req.Period, req.Category)
	}

	q := Quote{
		Period:   req.Period,
		Category: req.Category,
		Currency: s.Currency,
		BaseFee:  float64(base.Cents()) / 100,
	}
	total := base.Cents()

	add := func(code string, selected bool, item AddOn) {
		if !selected || !item.Enabled {
			return
		}
		cents := item.Fee.Cents()
		total += cents
		q.Items = append(q.Items, LineItem{Code: code, Description: item.Description, Amount: float64(cents) / 100})
	}
	items := s.AdditionalItems
	add("extra_paper", req.AddOns.ExtraPaper && !req.WaiveExtraPaper, items.ExtraPaper)
	add("workshop", req.AddOns.Workshop, items.Workshop)
	add("banquet", req.AddOns.Banquet, items.Banquet)

	if total < 0 {
		total = 0
	}
	q.TotalCents = total
	q.Total = float64(total) / 100
	return q, nil
}

// Matches reports whether a client supplied total equals the quote to the cent.
func (q Quote) Matches(amount float64) bool {
	return Amount(amount).Cents() == q.TotalCents
}

// Categories lists the registrant categories priced in a period.
func (s Schedule) Categories(p Period) []string {
	tier, ok := s.Tier(p)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(tier.Fees))
	for k := range tier.Fees {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
