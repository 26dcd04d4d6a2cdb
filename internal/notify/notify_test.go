package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"conference/internal/queue"
)

type sentMail struct {
	to, subject, body string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *fakeMailer) Send(ctx context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to, subject, body})
	return nil
}

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func TestPublishAndDispatch(t *testing.T) {
	q := queue.NewInMemory(8)
	pub := NewPublisher(q, zerolog.Nop())
	mailer := &fakeMailer{}
	d := NewDispatcher(q, mailer, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := pub.Notify(ctx, KindPaymentConfirmed, Notice{Email: "ada@example.org", Name: "Ada", Amount: 426, Currency: "USD", Reference: "REF-1"}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if err := pub.Notify(ctx, KindPaymentConfirmed, Notice{Name: "nobody"}); err != nil {
		t.Fatalf("notify without email: %v", err)
	}

	done := make(chan struct{})
	go func() {
		_ = d.Run(ctx)
		close(done)
	}()
	deadline := time.After(time.Second)
	for mailer.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("no mail sent")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	<-done

	if mailer.count() != 1 {
		t.Fatalf("sent %d mails, want 1", mailer.count())
	}
	m := mailer.sent[0]
	if m.to != "ada@example.org" || !strings.Contains(m.body, "426.00 USD") || !strings.Contains(m.body, "REF-1") {
		t.Fatalf("unexpected mail %+v", m)
	}
}

func TestHandleSkipsUnknownAndFailures(t *testing.T) {
	mailer := &fakeMailer{}
	d := NewDispatcher(queue.NewInMemory(1), mailer, zerolog.Nop())
	d.Handle(context.Background(), queue.Message{Type: "something.else", Body: []byte(`{"email":"a@b.c"}`)})
	d.Handle(context.Background(), queue.Message{Type: KindPaperDecision, Body: []byte(`not json`)})
	if mailer.count() != 0 {
		t.Fatal("unknown or invalid notices must not be mailed")
	}
	mailer.err = errors.New("relay down")
	d.Handle(context.Background(), queue.Message{Type: KindRegistrationCreated, Body: []byte(`{"email":"a@b.c"}`)})
}

func TestRenderPaperDecision(t *testing.T) {
	_, body, ok := Render(KindPaperDecision, Notice{Name: "Ada", PaperTitle: "On Engines", Status: "accepted", ConferenceName: "ICX 2026", Comment: "Nice"})
	if !ok || !strings.Contains(body, "accepted for ICX 2026") || !strings.Contains(body, "Nice") {
		t.Fatalf("body = %q", body)
	}
	subject, _, _ := Render(KindPaperDecision, Notice{PaperTitle: "On Engines", Status: "rejected"})
	if subject != "Paper decision: On Engines" {
		t.Fatalf("subject = %q", subject)
	}
}
