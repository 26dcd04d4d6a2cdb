package registration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"conference/internal/conference"
	"conference/internal/docstore"
	"conference/internal/fees"
	"conference/internal/metrics"
	"conference/internal/notify"
	"conference/internal/payment"
)

var (
	ErrInvalid            = errors.New("invalid registration")
	ErrRegistrationClosed = errors.New("registration is not open for this conference")
	ErrWrongPeriod        = errors.New("selected period is not the current registration period")
	ErrAmountMismatch     = errors.New("total amount does not match the fee schedule")
	ErrPaymentLocked      = errors.New("payment is locked until your paper has been accepted")
	ErrAlreadyPaid        = errors.New("registration is already paid")
	ErrInvalidTransition  = errors.New("status change not allowed")
	ErrVerificationFailed = errors.New("payment could not be verified")
	ErrPaymentIncomplete  = errors.New("payment has not been completed")
)

// Conferences is the subset of the conference service used here.
type Conferences interface {
	Get(ctx context.Context, id string) (conference.Conference, error)
}

// Fees is the subset of the fee service used here.
type Fees interface {
	Current(ctx context.Context) (fees.Schedule, fees.Period, error)
	ConsumeEarlyBirdSeat(ctx context.Context) error
}

// Notifier publishes registrant notifications.
type Notifier interface {
	Notify(ctx context.Context, kind string, n notify.Notice) error
}

// Options configures a Service.
type Options struct {
	// BaseURL is the public site root used for gateway return links.
	BaseURL string
	Now     func() time.Time
}

// Service coordinates registrations, pricing and the payment gateway.
type Service struct {
	repo        *Repository
	conferences Conferences
	fees        Fees
	gateway     payment.Gateway
	notifier    Notifier
	log         zerolog.Logger
	baseURL     string
	now         func() time.Time
}

// NewService wires a registration service.
func NewService(repo *Repository, conferences Conferences, feeSvc Fees, gateway payment.Gateway, notifier Notifier, log zerolog.Logger, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		repo:        repo,
		conferences: conferences,
		fees:        feeSvc,
		gateway:     gateway,
		notifier:    notifier,
		log:         log.With().Str("component", "registration").Logger(),
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		now:         opts.Now,
	}
}

// Applicant identifies the signed-in registrant.
type Applicant struct {
	UserID      string
	Name        string
	Email       string
	Affiliation string
}

// Form is a registration form submission.
type Form struct {
	Applicant
	ConferenceID string
	Type         string
	AddOns       fees.AddOns
}

// Submit records a registration without starting payment. A pending
// registration for the same user and conference is updated in place.
func (s *Service) Submit(ctx context.Context, f Form) (Registration, error) {
	if f.UserID == "" || f.ConferenceID == "" || strings.TrimSpace(f.Type) == "" {
		return Registration{}, fmt.Errorf("%w: conference and registration type are required", ErrInvalid)
	}
	conf, err := s.openConference(ctx, f.ConferenceID)
	if err != nil {
		return Registration{}, err
	}
	sched, period, err := s.fees.Current(ctx)
	if err != nil {
		return Registration{}, err
	}

	existing, err := s.repo.ForUserConference(ctx, f.UserID, f.ConferenceID)
	if err != nil {
		return Registration{}, err
	}
	for _, r := range existing {
		if r.Settled() {
			return Registration{}, ErrAlreadyPaid
		}
	}
	reg, found := latestPending(existing)
	now := s.now().UTC()
	if !found {
		reg = Registration{
			ID:            uuid.NewString(),
			UserID:        f.UserID,
			ConferenceID:  f.ConferenceID,
			PaymentStatus: StatusPending,
			CreatedAt:     now,
		}
	}
	if found && !reg.CanPay() && !IsAuthorType(f.Type) {
		return Registration{}, ErrPaymentLocked
	}
	reg.Name, reg.Email, reg.Affiliation = f.Name, f.Email, f.Affiliation
	reg.Type = strings.TrimSpace(f.Type)
	reg.AddOns = f.AddOns
	reg.Currency = sched.Currency
	if period != fees.PeriodClosed {
		q, err := sched.Quote(fees.QuoteRequest{Period: period, Category: reg.Type, AddOns: reg.AddOns, WaiveExtraPaper: reg.ExtraPaperWaived})
		if err != nil {
			return Registration{}, err
		}
		reg.Period = period
		reg.TotalAmount = q.Total
	}
	if IsAuthorType(reg.Type) && !reg.PaymentUnlocked {
		reg.WorkflowStatus = WorkflowAwaitingReview
	} else {
		reg.WorkflowStatus = WorkflowAwaitingPayment
	}
	reg.UpdatedAt = now
	if err := s.repo.Put(ctx, reg); err != nil {
		return Registration{}, fmt.Errorf("save registration: %w", err)
	}
	if !found {
		s.notify(ctx, notify.KindRegistrationCreated, reg, conf.Name)
	}
	return reg, nil
}

// PaymentRequest is the client's checkout request.
type PaymentRequest struct {
	Applicant
	ConferenceID   string
	SelectedPeriod string
	SelectedType   string
	TotalAmount    float64
	AddOns         fees.AddOns
}

// Checkout is the result of a started payment.
type Checkout struct {
	Registration Registration    `json:"registration"`
	Session      payment.Session `json:"session"`
}

// InitiatePayment validates the request against the live fee schedule and
// opens a gateway checkout. Nothing is written unless the gateway accepted
// the session.
func (s *Service) InitiatePayment(ctx context.Context, req PaymentRequest) (Checkout, error) {
	if req.UserID == "" || req.ConferenceID == "" || strings.TrimSpace(req.SelectedType) == "" {
		return Checkout{}, fmt.Errorf("%w: conference and registration type are required", ErrInvalid)
	}
	conf, err := s.openConference(ctx, req.ConferenceID)
	if err != nil {
		return Checkout{}, err
	}
	sched, current, err := s.fees.Current(ctx)
	if err != nil {
		return Checkout{}, err
	}
	if current == fees.PeriodClosed {
		return Checkout{}, fees.ErrPeriodClosed
	}
	selected, ok := fees.ParsePeriod(req.SelectedPeriod)
	if !ok || selected != current {
		return Checkout{}, fmt.Errorf("%w: current period is %s", ErrWrongPeriod, current)
	}

	existing, err := s.repo.ForUserConference(ctx, req.UserID, req.ConferenceID)
	if err != nil {
		return Checkout{}, err
	}
	for _, r := range existing {
		if r.Settled() {
			return Checkout{}, ErrAlreadyPaid
		}
	}
	reg, found := latestPending(existing)
	now := s.now().UTC()
	if !found {
		reg = Registration{
			ID:            uuid.NewString(),
			UserID:        req.UserID,
			ConferenceID:  req.ConferenceID,
			PaymentStatus: StatusPending,
			CreatedAt:     now,
		}
	}
	// An author registration waiting on review keeps its category.
	if found && !reg.CanPay() {
		return Checkout{}, ErrPaymentLocked
	}
	reg.Type = strings.TrimSpace(req.SelectedType)
	if !reg.CanPay() {
		return Checkout{}, ErrPaymentLocked
	}

	q, err := sched.Quote(fees.QuoteRequest{Period: current, Category: reg.Type, AddOns: req.AddOns, WaiveExtraPaper: reg.ExtraPaperWaived})
	if err != nil {
		return Checkout{}, err
	}
	if !q.Matches(req.TotalAmount) {
		return Checkout{}, fmt.Errorf("%w: expected %.2f %s", ErrAmountMismatch, q.Total, q.Currency)
	}

	if req.Name != "" {
		reg.Name = req.Name
	}
	if req.Email != "" {
		reg.Email = req.Email
	}
	if req.Affiliation != "" {
		reg.Affiliation = req.Affiliation
	}
	reference := newReference(now)
	draft := payment.Draft{
		RegistrationID: reg.ID,
		Reference:      reference,
		Amount:         q.Total,
		Currency:       q.Currency,
		Description:    fmt.Sprintf("%s registration (%s, %s)", conf.Name, reg.Type, current),
		CustomerName:   reg.Name,
		CustomerEmail:  reg.Email,
		ReturnURL:      s.baseURL + "/payment/callback",
		CancelURL:      s.baseURL + "/payment/cancelled?reference=" + reference,
	}
	sess, err := s.gateway.CreateSession(ctx, draft)
	if err != nil {
		metrics.CheckoutSessions.WithLabelValues(s.gateway.Name(), "error").Inc()
		s.log.Error().Err(err).Str("conference_id", req.ConferenceID).Str("registration_id", reg.ID).Msg("create checkout session")
		return Checkout{}, err
	}
	result := "created"
	if sess.Demo {
		result = "demo"
	}
	metrics.CheckoutSessions.WithLabelValues(s.gateway.Name(), result).Inc()

	reg.Period = current
	reg.AddOns = req.AddOns
	reg.TotalAmount = q.Total
	reg.Currency = q.Currency
	reg.PaymentProvider = s.gateway.Name()
	reg.PaymentID = sess.PaymentID
	reg.TransactionReference = sess.Reference
	reg.WorkflowStatus = WorkflowPaymentInitiated
	reg.UpdatedAt = now
	if err := s.repo.Put(ctx, reg); err != nil {
		return Checkout{}, fmt.Errorf("save registration: %w", err)
	}
	s.log.Info().Str("registration_id", reg.ID).Str("payment_id", sess.PaymentID).Bool("demo", sess.Demo).Msg("checkout session created")
	return Checkout{Registration: reg, Session: sess}, nil
}

// HandleCallback verifies a payment after the gateway redirected the user
// back. Only pending registrations can change; any other status is
// returned unchanged.
func (s *Service) HandleCallback(ctx context.Context, paymentID, reference string) (Registration, error) {
	reg, err := s.repo.ByPayment(ctx, paymentID, reference)
	if err != nil {
		return Registration{}, err
	}
	if reg.PaymentStatus != StatusPending {
		s.log.Info().Str("registration_id", reg.ID).Str("payment_status", string(reg.PaymentStatus)).Msg("callback ignored")
		return reg, nil
	}
	id := reg.PaymentID
	if id == "" {
		id = paymentID
	}
	v, err := s.gateway.Verify(ctx, id)
	if err != nil {
		s.log.Warn().Err(err).Str("registration_id", reg.ID).Str("payment_id", id).Msg("verify payment")
		return reg, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
	if v.Status != payment.StatusPaid {
		return reg, fmt.Errorf("%w: status %s", ErrPaymentIncomplete, v.Status)
	}
	return s.markPaid(ctx, reg, "callback")
}

// HandleWebhook authenticates and applies a gateway delivery. applied is
// false when the delivery changed nothing, including repeats of an event
// that was already processed.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (reg Registration, applied bool, err error) {
	evt, err := s.gateway.ParseWebhook(ctx, payload, signature)
	if err != nil {
		reason := "payload"
		if errors.Is(err, payment.ErrInvalidSignature) {
			reason = "signature"
		}
		metrics.WebhookRejected.WithLabelValues(reason).Inc()
		return Registration{}, false, err
	}
	reg, err = s.repo.ByPayment(ctx, evt.PaymentID, evt.Reference)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			metrics.WebhookRejected.WithLabelValues("unknown").Inc()
		}
		return Registration{}, false, err
	}
	if evt.Status != payment.StatusPaid || reg.PaymentStatus != StatusPending {
		s.log.Info().Str("registration_id", reg.ID).Str("status", string(evt.Status)).
			Str("payment_status", string(reg.PaymentStatus)).Msg("webhook ignored")
		return reg, false, nil
	}
	reg, err = s.markPaid(ctx, reg, "webhook")
	if err != nil {
		return Registration{}, false, err
	}
	return reg, true, nil
}

// Cancel records that the user abandoned the gateway checkout.
func (s *Service) Cancel(ctx context.Context, paymentID, reference string) (Registration, error) {
	reg, err := s.repo.ByPayment(ctx, paymentID, reference)
	if err != nil {
		return Registration{}, err
	}
	if reg.PaymentStatus != StatusPending || reg.WorkflowStatus == WorkflowPaymentCancelled {
		return reg, nil
	}
	reg.WorkflowStatus = WorkflowPaymentCancelled
	reg.UpdatedAt = s.now().UTC()
	if err := s.repo.Put(ctx, reg); err != nil {
		return Registration{}, err
	}
	return reg, nil
}

// SetStatus applies an admin override of the payment status.
func (s *Service) SetStatus(ctx context.Context, id string, to PaymentStatus) (Registration, error) {
	reg, err := s.repo.Get(ctx, id)
	if err != nil {
		return Registration{}, err
	}
	if reg.PaymentStatus == to {
		return reg, nil
	}
	if !CanTransition(reg.PaymentStatus, to) {
		return Registration{}, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, reg.PaymentStatus, to)
	}
	if to == StatusPaid {
		return s.markPaid(ctx, reg, "admin")
	}
	reg.PaymentStatus = to
	if to == StatusRejected {
		reg.WorkflowStatus = WorkflowRejected
	} else {
		reg.WorkflowStatus = WorkflowCompleted
	}
	reg.UpdatedAt = s.now().UTC()
	if err := s.repo.Put(ctx, reg); err != nil {
		return Registration{}, err
	}
	s.log.Info().Str("registration_id", reg.ID).Str("status", string(to)).Msg("registration status overridden")
	return reg, nil
}

// UnlockForPaper opens the payment step after a paper was accepted. Every
// pending registration of the author for that conference is unlocked, gets
// the extra paper waiver and is re-priced. When the author has no
// registration at all one is created. created reports that case.
func (s *Service) UnlockForPaper(ctx context.Context, a Applicant, conferenceID, paperID string) (unlocked []Registration, created bool, err error) {
	existing, err := s.repo.ForUserConference(ctx, a.UserID, conferenceID)
	if err != nil {
		return nil, false, err
	}
	sched, current, err := s.fees.Current(ctx)
	if err != nil {
		return nil, false, err
	}
	now := s.now().UTC()

	if len(existing) == 0 {
		reg := Registration{
			ID:               uuid.NewString(),
			UserID:           a.UserID,
			ConferenceID:     conferenceID,
			Name:             a.Name,
			Email:            a.Email,
			Affiliation:      a.Affiliation,
			Type:             "author",
			Currency:         sched.Currency,
			PaymentStatus:    StatusPending,
			PaymentUnlocked:  true,
			ExtraPaperWaived: true,
			PaperID:          paperID,
			WorkflowStatus:   WorkflowAwaitingPayment,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		s.reprice(&reg, sched, current)
		if err := s.repo.Put(ctx, reg); err != nil {
			return nil, false, fmt.Errorf("create author registration: %w", err)
		}
		s.log.Info().Str("registration_id", reg.ID).Str("paper_id", paperID).Msg("author registration created")
		return []Registration{reg}, true, nil
	}

	for _, reg := range existing {
		if reg.PaymentStatus != StatusPending {
			continue
		}
		reg.PaymentUnlocked = true
		reg.ExtraPaperWaived = true
		if reg.PaperID == "" {
			reg.PaperID = paperID
		}
		if reg.WorkflowStatus == WorkflowAwaitingReview {
			reg.WorkflowStatus = WorkflowAwaitingPayment
		}
		s.reprice(&reg, sched, current)
		reg.UpdatedAt = now
		if err := s.repo.Put(ctx, reg); err != nil {
			return unlocked, false, fmt.Errorf("unlock registration %s: %w", reg.ID, err)
		}
		unlocked = append(unlocked, reg)
	}
	return unlocked, false, nil
}

// reprice recomputes the total of a pending registration. Registrations
// whose category is not priced keep their amount.
func (s *Service) reprice(reg *Registration, sched fees.Schedule, current fees.Period) {
	period := reg.Period
	if period == "" || period == fees.PeriodClosed {
		period = current
	}
	q, err := sched.Quote(fees.QuoteRequest{Period: period, Category: reg.Type, AddOns: reg.AddOns, WaiveExtraPaper: reg.ExtraPaperWaived})
	if err != nil {
		return
	}
	reg.Period = period
	reg.TotalAmount = q.Total
	reg.Currency = q.Currency
}

// markPaid is the only place a registration becomes paid. Callers pass
// pending registrations only.
func (s *Service) markPaid(ctx context.Context, reg Registration, source string) (Registration, error) {
	if !CanTransition(reg.PaymentStatus, StatusPaid) {
		return reg, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, reg.PaymentStatus, StatusPaid)
	}
	now := s.now().UTC()
	reg.PaymentStatus = StatusPaid
	reg.WorkflowStatus = WorkflowCompleted
	reg.PaidAt = &now
	reg.UpdatedAt = now
	if err := s.repo.Put(ctx, reg); err != nil {
		return Registration{}, fmt.Errorf("mark registration paid: %w", err)
	}
	metrics.PaymentsCompleted.WithLabelValues(source).Inc()
	metrics.RevenueCents.WithLabelValues(reg.Currency).Add(float64(fees.Amount(reg.TotalAmount).Cents()))
	s.log.Info().Str("registration_id", reg.ID).Str("payment_id", reg.PaymentID).Str("source", source).Msg("registration paid")

	if reg.Period == fees.PeriodEarlyBird {
		if err := s.fees.ConsumeEarlyBirdSeat(ctx); err != nil {
			s.log.Error().Err(err).Str("registration_id", reg.ID).Msg("consume early bird seat")
		}
	}
	confName := ""
	if conf, err := s.conferences.Get(ctx, reg.ConferenceID); err == nil {
		confName = conf.Name
	}
	s.notify(ctx, notify.KindPaymentConfirmed, reg, confName)
	return reg, nil
}

func (s *Service) notify(ctx context.Context, kind string, reg Registration, confName string) {
	if s.notifier == nil {
		return
	}
	err := s.notifier.Notify(ctx, kind, notify.Notice{
		Email:          reg.Email,
		Name:           reg.Name,
		ConferenceID:   reg.ConferenceID,
		ConferenceName: confName,
		RegistrationID: reg.ID,
		Reference:      reg.TransactionReference,
		Amount:         reg.TotalAmount,
		Currency:       reg.Currency,
	})
	if err != nil {
		s.log.Warn().Err(err).Str("registration_id", reg.ID).Str("kind", kind).Msg("publish notification")
	}
}

func (s *Service) openConference(ctx context.Context, id string) (conference.Conference, error) {
	conf, err := s.conferences.Get(ctx, id)
	if err != nil {
		return conference.Conference{}, err
	}
	if !conf.AcceptsRegistrations(s.now()) {
		return conference.Conference{}, ErrRegistrationClosed
	}
	return conf, nil
}

// Get returns one registration.
func (s *Service) Get(ctx context.Context, id string) (Registration, error) {
	return s.repo.Get(ctx, id)
}

// ListForUser returns a user's registrations.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]Registration, error) {
	return s.repo.Find(ctx, docstore.Filter{"user_id": userID})
}

// Query filters the admin registration listing. Empty fields match all.
type Query struct {
	ConferenceID string
	Status       PaymentStatus
}

// List returns registrations for the admin console.
func (s *Service) List(ctx context.Context, q Query) ([]Registration, error) {
	f := docstore.Filter{}
	if q.ConferenceID != "" {
		f["conference_id"] = q.ConferenceID
	}
	if q.Status != "" {
		f["payment_status"] = string(q.Status)
	}
	return s.repo.Find(ctx, f)
}

// ConferenceTotals summarises payments for one conference.
type ConferenceTotals struct {
	ConferenceID string             `json:"conference_id"`
	Pending      int                `json:"pending"`
	Paid         int                `json:"paid"`
	Approved     int                `json:"approved"`
	Rejected     int                `json:"rejected"`
	Revenue      map[string]float64 `json:"revenue"`
}

// Summary totals registrations per conference. Revenue counts paid and
// approved registrations by currency.
func (s *Service) Summary(ctx context.Context) ([]ConferenceTotals, error) {
	all, err := s.repo.Find(ctx, nil)
	if err != nil {
		return nil, err
	}
	index := map[string]int{}
	var out []ConferenceTotals
	cents := map[string]map[string]int64{}
	for _, r := range all {
		i, ok := index[r.ConferenceID]
		if !ok {
			i = len(out)
			index[r.ConferenceID] = i
			out = append(out, ConferenceTotals{ConferenceID: r.ConferenceID, Revenue: map[string]float64{}})
			cents[r.ConferenceID] = map[string]int64{}
		}
		t := &out[i]
		switch r.PaymentStatus {
		case StatusPending:
			t.Pending++
		case StatusPaid:
			t.Paid++
		case StatusApproved:
			t.Approved++
		case StatusRejected:
			t.Rejected++
		}
		if r.Settled() {
			cents[r.ConferenceID][r.Currency] += fees.Amount(r.TotalAmount).Cents()
		}
	}
	for i := range out {
		for cur, c := range cents[out[i].ConferenceID] {
			out[i].Revenue[cur] = float64(c) / 100
		}
	}
	return out, nil
}

func latestPending(regs []Registration) (Registration, bool) {
	for i := len(regs) - 1; i >= 0; i-- {
		if regs[i].PaymentStatus == StatusPending {
			return regs[i], true
		}
	}
	return Registration{}, false
}

func newReference(now time.Time) string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return fmt.Sprintf("REG-%s-%s", now.Format("20060102"), id[:10])
}
