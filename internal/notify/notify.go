// Package notify queues registrant emails and delivers them from the worker.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"conference/internal/queue"
)

// Message kinds.
const (
	KindRegistrationCreated = "registration.created"
	KindPaymentConfirmed    = "payment.confirmed"
	KindPaperDecision       = "paper.decision"
)

// Notice is the queued payload. Only the fields relevant to the kind are set.
type Notice struct {
	Email          string  `json:"email"`
	Name           string  `json:"name,omitempty"`
	ConferenceID   string  `json:"conference_id,omitempty"`
	ConferenceName string  `json:"conference_name,omitempty"`
	RegistrationID string  `json:"registration_id,omitempty"`
	Reference      string  `json:"reference,omitempty"`
	Amount         float64 `json:"amount,omitempty"`
	Currency       string  `json:"currency,omitempty"`
	PaperID        string  `json:"paper_id,omitempty"`
	PaperTitle     string  `json:"paper_title,omitempty"`
	Status         string  `json:"status,omitempty"`
	Comment        string  `json:"comment,omitempty"`
}

// Publisher puts notices on the queue.
type Publisher struct {
	q   queue.Queue
	log zerolog.Logger
}

// NewPublisher wraps a queue.
func NewPublisher(q queue.Queue, log zerolog.Logger) *Publisher {
	return &Publisher{q: q, log: log.With().Str("component", "notify").Logger()}
}

// Notify enqueues a notice. Notices without a recipient are skipped.
func (p *Publisher) Notify(ctx context.Context, kind string, n Notice) error {
	if n.Email == "" {
		p.log.Debug().Str("kind", kind).Msg("notice without recipient skipped")
		return nil
	}
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notice: %w", err)
	}
	if err := p.q.Publish(ctx, queue.Message{Type: kind, Body: body}); err != nil {
		return fmt.Errorf("publish %s: %w", kind, err)
	}
	return nil
}
