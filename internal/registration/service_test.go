package registration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"conference/internal/conference"
	"conference/internal/docstore"
	"conference/internal/fees"
	"conference/internal/notify"
	"conference/internal/payment"
)

type fakeGateway struct {
	create  func(ctx context.Context, d payment.Draft) (payment.Session, error)
	verify  func(ctx context.Context, id string) (payment.Verification, error)
	webhook func(ctx context.Context, payload []byte, sig string) (payment.WebhookEvent, error)
	calls   int
}

func (g *fakeGateway) Name() string            { return "fake" }
func (g *fakeGateway) SignatureHeader() string { return "X-Signature" }

func (g *fakeGateway) CreateSession(ctx context.Context, d payment.Draft) (payment.Session, error) {
	g.calls++
	if g.create != nil {
		return g.create(ctx, d)
	}
	return payment.Session{PaymentID: "pay_" + d.Reference, PaymentURL: "https://pay.example/" + d.Reference,
		Reference: d.Reference, Amount: d.Amount, Currency: d.Currency}, nil
}

func (g *fakeGateway) Verify(ctx context.Context, id string) (payment.Verification, error) {
	if g.verify != nil {
		return g.verify(ctx, id)
	}
	return payment.Verification{PaymentID: id, Status: payment.StatusPaid}, nil
}

func (g *fakeGateway) ParseWebhook(ctx context.Context, payload []byte, sig string) (payment.WebhookEvent, error) {
	if g.webhook != nil {
		return g.webhook(ctx, payload, sig)
	}
	return payment.WebhookEvent{}, payment.ErrInvalidPayload
}

type recordingNotifier struct {
	mu    sync.Mutex
	kinds []string
}

func (n *recordingNotifier) Notify(ctx context.Context, kind string, _ notify.Notice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.kinds = append(n.kinds, kind)
	return nil
}

func (n *recordingNotifier) count(kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, k := range n.kinds {
		if k == kind {
			c++
		}
	}
	return c
}

type fixture struct {
	svc      *Service
	repo     *Repository
	fees     *fees.Service
	gateway  *fakeGateway
	notifier *recordingNotifier
	confID   string
}

const scheduleJSON = `{
	"currency": "USD",
	"early_bird": {"enabled": true, "deadline": "2026-03-27", "seats": {"total": 100, "remaining": 100},
		"fees": {"student_author": 376, "professional": 550, "author": 400}},
	"regular": {"fees": {"student_author": 420, "professional": 600}},
	"additional_items": {
		"extra_paper": {"enabled": true, "fee": 150},
		"workshop": {"enabled": true, "fee": 50},
		"banquet": {"enabled": false, "fee": 80}
	}
}`

func newFixture(t *testing.T, gw payment.Gateway) fixture {
	t.Helper()
	ctx := context.Background()
	clock := func() time.Time { return time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC) }
	mem := docstore.NewMemory()

	confSvc := conference.NewService(conference.NewRepository(mem), clock)
	conf, err := confSvc.Create(ctx, conference.Conference{
		Name:                "ICX 2026",
		StartDate:           fees.NewDate(2026, 6, 10),
		EndDate:             fees.NewDate(2026, 6, 12),
		RegistrationEnabled: true,
	})
	if err != nil {
		t.Fatalf("create conference: %v", err)
	}

	sched, err := fees.Decode([]byte(scheduleJSON))
	if err != nil {
		t.Fatalf("decode schedule: %v", err)
	}
	feeRepo := fees.NewRepository(mem)
	if _, err := feeRepo.Save(ctx, sched); err != nil {
		t.Fatalf("save schedule: %v", err)
	}
	feeSvc := fees.NewService(feeRepo, clock)

	fg, _ := gw.(*fakeGateway)
	if gw == nil {
		fg = &fakeGateway{}
		gw = fg
	}
	repo := NewRepository(mem)
	notifier := &recordingNotifier{}
	svc := NewService(repo, confSvc, feeSvc, gw, notifier, zerolog.Nop(), Options{BaseURL: "https://site.example/", Now: clock})
	return fixture{svc: svc, repo: repo, fees: feeSvc, gateway: fg, notifier: notifier, confID: conf.ID}
}

func (f fixture) request(userID, typ string, total float64, addOns fees.AddOns) PaymentRequest {
	return PaymentRequest{
		Applicant:      Applicant{UserID: userID, Name: "Ada", Email: "ada@example.org"},
		ConferenceID:   f.confID,
		SelectedPeriod: "early_bird",
		SelectedType:   typ,
		TotalAmount:    total,
		AddOns:         addOns,
	}
}

func TestInitiatePaymentValidatesBeforeMutation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		req  PaymentRequest
		want error
	}{
		{"amount mismatch", f.request("u1", "professional", 599, fees.AddOns{Workshop: true}), ErrAmountMismatch},
		{"wrong period", func() PaymentRequest {
			r := f.request("u1", "professional", 550, fees.AddOns{})
			r.SelectedPeriod = "regular"
			return r
		}(), ErrWrongPeriod},
		{"unknown category", f.request("u1", "alien", 10, fees.AddOns{}), fees.ErrUnknownFee},
		{"author locked", f.request("u1", "student_author", 376, fees.AddOns{}), ErrPaymentLocked},
		{"unknown conference", func() PaymentRequest {
			r := f.request("u1", "professional", 550, fees.AddOns{})
			r.ConferenceID = "nope"
			return r
		}(), conference.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.InitiatePayment(ctx, tt.req); !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
	all, _ := f.repo.Find(ctx, nil)
	if len(all) != 0 || f.gateway.calls != 0 {
		t.Fatalf("validation failures must not mutate: %d records, %d gateway calls", len(all), f.gateway.calls)
	}
}

func TestInitiatePaymentCreatesSession(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	out, err := f.svc.InitiatePayment(ctx, f.request("u1", "professional", 600, fees.AddOns{Workshop: true, Banquet: true}))
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	reg := out.Registration
	if reg.WorkflowStatus != WorkflowPaymentInitiated || reg.PaymentStatus != StatusPending {
		t.Fatalf("unexpected state %s/%s", reg.WorkflowStatus, reg.PaymentStatus)
	}
	if reg.TotalAmount != 600 || reg.Period != fees.PeriodEarlyBird || reg.PaymentID != out.Session.PaymentID {
		t.Fatalf("unexpected registration %+v", reg)
	}

	again, err := f.svc.InitiatePayment(ctx, f.request("u1", "professional", 550, fees.AddOns{}))
	if err != nil {
		t.Fatalf("second initiate: %v", err)
	}
	if again.Registration.ID != reg.ID {
		t.Fatal("pending registration should be reused")
	}
	all, _ := f.repo.Find(ctx, nil)
	if len(all) != 1 {
		t.Fatalf("expected one registration, got %d", len(all))
	}
}

func TestGatewayFailureLeavesRegistrationUntouched(t *testing.T) {
	gw := &fakeGateway{create: func(ctx context.Context, d payment.Draft) (payment.Session, error) {
		return payment.Session{}, payment.ErrUnavailable
	}}
	f := newFixture(t, gw)
	ctx := context.Background()

	draft, err := f.svc.Submit(ctx, Form{Applicant: Applicant{UserID: "u1", Email: "ada@example.org"}, ConferenceID: f.confID, Type: "professional"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := f.svc.InitiatePayment(ctx, f.request("u1", "professional", 550, fees.AddOns{})); !errors.Is(err, payment.ErrUnavailable) {
		t.Fatalf("want ErrUnavailable, got %v", err)
	}
	after, _ := f.repo.Get(ctx, draft.ID)
	if after.WorkflowStatus != draft.WorkflowStatus || after.PaymentID != "" || !after.UpdatedAt.Equal(draft.UpdatedAt) {
		t.Fatalf("registration changed after gateway failure: %+v", after)
	}
}

func TestWebhookIsIdempotent(t *testing.T) {
	gw := &fakeGateway{}
	f := newFixture(t, gw)
	ctx := context.Background()

	out, err := f.svc.InitiatePayment(ctx, f.request("u1", "professional", 550, fees.AddOns{}))
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	gw.webhook = func(ctx context.Context, payload []byte, sig string) (payment.WebhookEvent, error) {
		if sig != "good" {
			return payment.WebhookEvent{}, payment.ErrInvalidSignature
		}
		return payment.WebhookEvent{PaymentID: out.Session.PaymentID, Status: payment.StatusPaid, Amount: 550}, nil
	}

	if _, _, err := f.svc.HandleWebhook(ctx, []byte(`{}`), "bad"); !errors.Is(err, payment.ErrInvalidSignature) {
		t.Fatalf("bad signature: %v", err)
	}
	reg, _ := f.repo.Get(ctx, out.Registration.ID)
	if reg.PaymentStatus != StatusPending {
		t.Fatal("rejected webhook must not change state")
	}

	for i, wantApplied := range []bool{true, false} {
		reg, applied, err := f.svc.HandleWebhook(ctx, []byte(`{}`), "good")
		if err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
		if applied != wantApplied || reg.PaymentStatus != StatusPaid {
			t.Fatalf("delivery %d: applied=%v status=%s", i, applied, reg.PaymentStatus)
		}
	}
	if n := f.notifier.count(notify.KindPaymentConfirmed); n != 1 {
		t.Fatalf("confirmation sent %d times", n)
	}
	sched, _, _ := f.fees.Current(ctx)
	if sched.EarlyBird.Seats.Remaining != 99 {
		t.Fatalf("remaining seats = %d, want 99", sched.EarlyBird.Seats.Remaining)
	}

	if _, err := f.svc.HandleCallback(ctx, out.Session.PaymentID, ""); err != nil {
		t.Fatalf("callback after webhook: %v", err)
	}
	if n := f.notifier.count(notify.KindPaymentConfirmed); n != 1 {
		t.Fatal("callback after webhook must not notify again")
	}
}

func TestCallbackVerification(t *testing.T) {
	status := payment.StatusPending
	gw := &fakeGateway{verify: func(ctx context.Context, id string) (payment.Verification, error) {
		return payment.Verification{PaymentID: id, Status: status}, nil
	}}
	f := newFixture(t, gw)
	ctx := context.Background()
	out, err := f.svc.InitiatePayment(ctx, f.request("u1", "professional", 550, fees.AddOns{}))
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}

	reg, err := f.svc.HandleCallback(ctx, "", out.Session.Reference)
	if !errors.Is(err, ErrPaymentIncomplete) || reg.PaymentStatus != StatusPending {
		t.Fatalf("pending verification: %v %s", err, reg.PaymentStatus)
	}

	gw.verify = func(ctx context.Context, id string) (payment.Verification, error) {
		return payment.Verification{}, payment.ErrUnavailable
	}
	if _, err := f.svc.HandleCallback(ctx, out.Session.PaymentID, ""); !errors.Is(err, ErrVerificationFailed) {
		t.Fatalf("unavailable verification: %v", err)
	}

	status = payment.StatusPaid
	gw.verify = nil
	reg, err = f.svc.HandleCallback(ctx, out.Session.PaymentID, "")
	if err != nil || reg.PaymentStatus != StatusPaid || reg.PaidAt == nil {
		t.Fatalf("paid verification: %v %+v", err, reg)
	}
	if _, err := f.svc.HandleCallback(ctx, "pay_unknown", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown payment: %v", err)
	}
}

func TestDemoGatewayEndToEnd(t *testing.T) {
	f := newFixture(t, payment.NewSigned(payment.SignedConfig{}, zerolog.Nop()))
	ctx := context.Background()
	out, err := f.svc.InitiatePayment(ctx, f.request("u1", "professional", 550, fees.AddOns{}))
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if !out.Session.Demo {
		t.Fatal("expected demo session without credentials")
	}
	reg, err := f.svc.HandleCallback(ctx, out.Session.PaymentID, out.Session.Reference)
	if err != nil || reg.PaymentStatus != StatusPaid {
		t.Fatalf("demo callback: %v %s", err, reg.PaymentStatus)
	}
}

func TestPaperAcceptanceUnlocksAuthor(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	draft, err := f.svc.Submit(ctx, Form{Applicant: Applicant{UserID: "u1", Email: "ada@example.org"}, ConferenceID: f.confID,
		Type: "student_author", AddOns: fees.AddOns{Workshop: true, ExtraPaper: true}})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if draft.WorkflowStatus != WorkflowAwaitingReview || draft.PaymentUnlocked || draft.TotalAmount != 576 {
		t.Fatalf("unexpected draft %+v", draft)
	}

	unlocked, created, err := f.svc.UnlockForPaper(ctx, Applicant{UserID: "u1"}, f.confID, "paper-1")
	if err != nil || created || len(unlocked) != 1 {
		t.Fatalf("unlock: %v created=%v n=%d", err, created, len(unlocked))
	}
	reg := unlocked[0]
	if !reg.PaymentUnlocked || !reg.ExtraPaperWaived || reg.WorkflowStatus != WorkflowAwaitingPayment || reg.TotalAmount != 426 {
		t.Fatalf("unexpected unlocked registration %+v", reg)
	}

	out, err := f.svc.InitiatePayment(ctx, f.request("u1", "student_author", 426, fees.AddOns{Workshop: true, ExtraPaper: true}))
	if err != nil {
		t.Fatalf("initiate after unlock: %v", err)
	}
	if out.Registration.ID != draft.ID {
		t.Fatal("unlocked registration should be reused")
	}
}

func TestPaperAcceptanceCreatesRegistration(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	regs, created, err := f.svc.UnlockForPaper(ctx, Applicant{UserID: "u2", Name: "Grace", Email: "grace@example.org"}, f.confID, "paper-2")
	if err != nil || !created || len(regs) != 1 {
		t.Fatalf("unlock: %v created=%v", err, created)
	}
	reg, err := f.repo.Get(ctx, regs[0].ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !reg.PaymentUnlocked || reg.Type != "author" || reg.PaperID != "paper-2" || reg.TotalAmount != 400 {
		t.Fatalf("unexpected auto-created registration %+v", reg)
	}
}

func TestAdminTransitions(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	out, err := f.svc.InitiatePayment(ctx, f.request("u1", "professional", 550, fees.AddOns{}))
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	id := out.Registration.ID

	steps := []struct {
		to      PaymentStatus
		wantErr error
	}{
		{StatusPaid, nil},
		{StatusPending, ErrInvalidTransition},
		{StatusRejected, ErrInvalidTransition},
		{StatusApproved, nil},
		{StatusApproved, nil},
		{StatusPaid, ErrInvalidTransition},
	}
	for _, st := range steps {
		reg, err := f.svc.SetStatus(ctx, id, st.to)
		if !errors.Is(err, st.wantErr) {
			t.Fatalf("to %s: got %v, want %v", st.to, err, st.wantErr)
		}
		if err == nil && reg.PaymentStatus != st.to {
			t.Fatalf("to %s: status %s", st.to, reg.PaymentStatus)
		}
	}

	summary, err := f.svc.Summary(ctx)
	if err != nil || len(summary) != 1 {
		t.Fatalf("summary: %v %+v", err, summary)
	}
	if summary[0].Approved != 1 || summary[0].Revenue["USD"] != 550 {
		t.Fatalf("unexpected totals %+v", summary[0])
	}
}

func TestCanTransition(t *testing.T) {
	if !CanTransition(StatusPending, StatusRejected) || CanTransition(StatusRejected, StatusPending) || CanTransition(StatusApproved, StatusPaid) {
		t.Fatal("transition table mismatch")
	}
}

func TestCancelKeepsRegistrationPayable(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	out, err := f.svc.InitiatePayment(ctx, f.request("u1", "professional", 550, fees.AddOns{}))
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	reg, err := f.svc.Cancel(ctx, "", out.Session.Reference)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if reg.WorkflowStatus != WorkflowPaymentCancelled || reg.PaymentStatus != StatusPending {
		t.Fatalf("unexpected state %s/%s", reg.WorkflowStatus, reg.PaymentStatus)
	}
	if _, err := f.svc.Cancel(ctx, "missing", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}

	retry, err := f.svc.InitiatePayment(ctx, f.request("u1", "professional", 550, fees.AddOns{}))
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if retry.Registration.ID != reg.ID || retry.Registration.WorkflowStatus != WorkflowPaymentInitiated {
		t.Fatalf("retry should reuse the cancelled registration: %+v", retry.Registration)
	}
	if retry.Session.Reference == out.Session.Reference {
		t.Fatal("retry should use a fresh reference")
	}
}

func TestRejectedRegistrationIgnoresGatewayConfirmation(t *testing.T) {
	gw := &fakeGateway{}
	f := newFixture(t, gw)
	ctx := context.Background()

	out, err := f.svc.InitiatePayment(ctx, f.request("u1", "professional", 550, fees.AddOns{}))
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if _, err := f.svc.SetStatus(ctx, out.Registration.ID, StatusRejected); err != nil {
		t.Fatalf("reject: %v", err)
	}
	gw.webhook = func(ctx context.Context, payload []byte, sig string) (payment.WebhookEvent, error) {
		return payment.WebhookEvent{PaymentID: out.Session.PaymentID, Status: payment.StatusPaid, Amount: 550}, nil
	}

	reg, applied, err := f.svc.HandleWebhook(ctx, []byte(`{}`), "good")
	if err != nil || applied || reg.PaymentStatus != StatusRejected {
		t.Fatalf("webhook: err=%v applied=%v status=%s", err, applied, reg.PaymentStatus)
	}
	reg, err = f.svc.HandleCallback(ctx, out.Session.PaymentID, "")
	if err != nil || reg.PaymentStatus != StatusRejected {
		t.Fatalf("callback: err=%v status=%s", err, reg.PaymentStatus)
	}

	stored, _ := f.repo.Get(ctx, out.Registration.ID)
	if stored.PaymentStatus != StatusRejected || stored.PaidAt != nil {
		t.Fatalf("stored registration changed: %+v", stored)
	}
	if n := f.notifier.count(notify.KindPaymentConfirmed); n != 0 {
		t.Fatalf("confirmation sent %d times", n)
	}
}

func TestLockedAuthorRegistrationKeepsCategory(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	draft, err := f.svc.Submit(ctx, Form{Applicant: Applicant{UserID: "u1", Email: "ada@example.org"}, ConferenceID: f.confID, Type: "student_author"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if draft.WorkflowStatus != WorkflowAwaitingReview {
		t.Fatalf("workflow = %s", draft.WorkflowStatus)
	}

	if _, err := f.svc.InitiatePayment(ctx, f.request("u1", "professional", 550, fees.AddOns{})); !errors.Is(err, ErrPaymentLocked) {
		t.Fatalf("pay as professional: %v", err)
	}
	if _, err := f.svc.Submit(ctx, Form{Applicant: Applicant{UserID: "u1"}, ConferenceID: f.confID, Type: "professional"}); !errors.Is(err, ErrPaymentLocked) {
		t.Fatalf("resubmit as professional: %v", err)
	}
	if f.gateway.calls != 0 {
		t.Fatalf("gateway called %d times", f.gateway.calls)
	}
	stored, _ := f.repo.Get(ctx, draft.ID)
	if stored.Type != "student_author" || stored.PaymentID != "" {
		t.Fatalf("locked registration changed: %+v", stored)
	}
}
