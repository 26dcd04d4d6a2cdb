package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"conference/internal/metrics"
	"conference/internal/queue"
)

// Dispatcher consumes queued notices and mails them.
type Dispatcher struct {
	q      queue.Queue
	mailer Mailer
	log    zerolog.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(q queue.Queue, mailer Mailer, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{q: q, mailer: mailer, log: log.With().Str("component", "dispatcher").Logger()}
}

// Run blocks until ctx is cancelled or the queue closes.
func (d *Dispatcher) Run(ctx context.Context) error {
	msgs, err := d.q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("consume notifications: %w", err)
	}
	d.log.Info().Msg("dispatcher started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			d.Handle(ctx, msg)
		}
	}
}

// Handle delivers one message. Failures are logged and counted; delivery is
// not retried.
func (d *Dispatcher) Handle(ctx context.Context, msg queue.Message) {
	var n Notice
	if err := json.Unmarshal(msg.Body, &n); err != nil {
		metrics.NotificationsSent.WithLabelValues(msg.Type, "invalid").Inc()
		d.log.Warn().Err(err).Str("kind", msg.Type).Msg("invalid notice")
		return
	}
	subject, body, ok := Render(msg.Type, n)
	if !ok {
		metrics.NotificationsSent.WithLabelValues(msg.Type, "unknown").Inc()
		d.log.Warn().Str("kind", msg.Type).Msg("unknown notice kind")
		return
	}
	if err := d.mailer.Send(ctx, n.Email, subject, body); err != nil {
		metrics.NotificationsSent.WithLabelValues(msg.Type, "error").Inc()
		d.log.Error().Err(err).Str("kind", msg.Type).Str("to", n.Email).Msg("send notice")
		return
	}
	metrics.NotificationsSent.WithLabelValues(msg.Type, "sent").Inc()
	d.log.Info().Str("kind", msg.Type).Str("to", n.Email).Str("registration_id", n.RegistrationID).Msg("notice sent")
}

// Render builds the subject and body for a notice kind.
func Render(kind string, n Notice) (subject, body string, ok bool) {
	name := n.Name
	if name == "" {
		name = "participant"
	}
	conf := n.ConferenceName
	if conf == "" {
		conf = "the conference"
	}
	switch kind {
	case KindRegistrationCreated:
		subject = fmt.Sprintf("Registration received: %s", conf)
		body = fmt.Sprintf("Dear %s,\n\nWe have received your registration for %s (reference %s).\n", name, conf, n.RegistrationID)
	case KindPaymentConfirmed:
		subject = fmt.Sprintf("Payment confirmed: %s", conf)
		body = fmt.Sprintf("Dear %s,\n\nYour payment of %.2f %s for %s has been received.\nTransaction reference: %s\n",
			name, n.Amount, n.Currency, conf, n.Reference)
	case KindPaperDecision:
		subject = fmt.Sprintf("Paper decision: %s", n.PaperTitle)
		switch n.Status {
		case "accepted":
			body = fmt.Sprintf("Dear %s,\n\nWe are pleased to inform you that your paper \"%s\" has been accepted for %s.\nYou can now complete your registration payment.\n",
				name, n.PaperTitle, conf)
		case "revision":
			body = fmt.Sprintf("Dear %s,\n\nYour paper \"%s\" requires revision before a final decision.\n", name, n.PaperTitle)
		default:
			body = fmt.Sprintf("Dear %s,\n\nYour paper \"%s\" has been reviewed. Status: %s.\n", name, n.PaperTitle, n.Status)
		}
		if n.Comment != "" {
			body += "\nReviewer comments:\n" + n.Comment + "\n"
		}
	default:
		return "", "", false
	}
	return subject, body, true
}
