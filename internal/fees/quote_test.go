package fees

import (
	"context"
	"errors"
	"testing"

	"conference/internal/docstore"
)

func sampleSchedule() Schedule {
	s, _ := Decode([]byte(`{
		"currency": "USD",
		"early_bird": {"enabled": true, "deadline": "2026-03-27", "seats": {"total": 100, "remaining": 100},
			"fees": {"student_author": 376, "professional": 550}},
		"regular": {"fees": {"student_author": 420}},
		"additional_items": {
			"extra_paper": {"enabled": true, "fee": 150, "description": "Additional paper"},
			"workshop": {"enabled": true, "fee": 50, "description": "Workshop day"},
			"banquet": {"enabled": false, "fee": 80}
		}
	}`))
	return s
}

func TestQuoteStudentAuthorWithWorkshop(t *testing.T) {
	q, err := sampleSchedule().Quote(QuoteRequest{
		Period:   PeriodEarlyBird,
		Category: "student_author",
		AddOns:   AddOns{Workshop: true},
	})
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if q.Total != 426 {
		t.Fatalf("total = %v, want 426", q.Total)
	}
	if !q.Matches(426) || q.Matches(425.99) {
		t.Fatal("Matches must compare to the cent")
	}
}

func TestQuoteAddOnRules(t *testing.T) {
	s := sampleSchedule()
	tests := []struct {
		name string
		req  QuoteRequest
		want float64
	}{
		{"base only", QuoteRequest{Period: PeriodEarlyBird, Category: "professional"}, 550},
		{"disabled banquet ignored", QuoteRequest{Period: PeriodEarlyBird, Category: "professional", AddOns: AddOns{Banquet: true}}, 550},
		{"extra paper", QuoteRequest{Period: PeriodEarlyBird, Category: "professional", AddOns: AddOns{ExtraPaper: true}}, 700},
		{"extra paper waived", QuoteRequest{Period: PeriodEarlyBird, Category: "professional", AddOns: AddOns{ExtraPaper: true}, WaiveExtraPaper: true}, 550},
		{"everything", QuoteRequest{Period: PeriodRegular, Category: "student_author", AddOns: AddOns{ExtraPaper: true, Workshop: true, Banquet: true}}, 620},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := s.Quote(tt.req)
			if err != nil {
				t.Fatalf("quote: %v", err)
			}
			if q.Total != tt.want {
				t.Fatalf("total = %v, want %v", q.Total, tt.want)
			}
			var sum float64
			for _, it := range q.Items {
				sum += it.Amount
			}
			if q.BaseFee+sum != q.Total || q.Total < 0 {
				t.Fatalf("total %v is not base %v + items %v", q.Total, q.BaseFee, sum)
			}
		})
	}
}

func TestQuoteErrors(t *testing.T) {
	s := sampleSchedule()
	if _, err := s.Quote(QuoteRequest{Period: PeriodClosed, Category: "professional"}); !errors.Is(err, ErrPeriodClosed) {
		t.Fatalf("closed: %v", err)
	}
	if _, err := s.Quote(QuoteRequest{Period: PeriodLate, Category: "professional"}); !errors.Is(err, ErrUnknownFee) {
		t.Fatalf("unknown category: %v", err)
	}
	if _, err := s.Quote(QuoteRequest{Period: "someday", Category: "professional"}); !errors.Is(err, ErrUnknownFee) {
		t.Fatalf("unknown period: %v", err)
	}
}

func TestRepositoryRoundTripAndSeats(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(docstore.NewMemory())

	empty, err := repo.Get(ctx)
	if err != nil || empty.Currency != "USD" {
		t.Fatalf("missing schedule should decode to defaults: %+v %v", empty, err)
	}

	if _, err := repo.Save(ctx, sampleSchedule()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := repo.ConsumeEarlyBirdSeat(ctx); err != nil {
		t.Fatalf("consume: %v", err)
	}
	got, err := repo.Get(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.EarlyBird.Seats.Remaining != 99 {
		t.Fatalf("remaining = %d, want 99", got.EarlyBird.Seats.Remaining)
	}
	if got.EarlyBird.Deadline.String() != "2026-03-27" {
		t.Fatalf("deadline lost in round trip: %q", got.EarlyBird.Deadline.String())
	}
	if got.AdditionalItems.Workshop.Fee != 50 {
		t.Fatalf("workshop fee = %v", got.AdditionalItems.Workshop.Fee)
	}
}
