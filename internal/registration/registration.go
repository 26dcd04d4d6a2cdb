// Package registration implements the registration and payment lifecycle.
package registration

import (
	"strings"
	"time"

	"conference/internal/fees"
)

// PaymentStatus is the payment state of a registration.
type PaymentStatus string

const (
	StatusPending  PaymentStatus = "pending"
	StatusPaid     PaymentStatus = "paid"
	StatusApproved PaymentStatus = "approved"
	StatusRejected PaymentStatus = "rejected"
)

// ParseStatus maps an admin supplied status.
func ParseStatus(s string) (PaymentStatus, bool) {
	switch st := PaymentStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusPending, StatusPaid, StatusApproved, StatusRejected:
		return st, true
	}
	return "", false
}

// Workflow is the user facing progress of a registration.
type Workflow string

const (
	WorkflowAwaitingReview   Workflow = "awaiting_review"
	WorkflowAwaitingPayment  Workflow = "awaiting_payment"
	WorkflowPaymentInitiated Workflow = "payment_initiated"
	WorkflowPaymentCancelled Workflow = "payment_cancelled"
	WorkflowCompleted        Workflow = "completed"
	WorkflowRejected         Workflow = "rejected"
)

// Registration is one user's attempt to attend a conference.
type Registration struct {
	ID                   string        `json:"id"`
	UserID               string        `json:"user_id"`
	ConferenceID         string        `json:"conference_id"`
	Name                 string        `json:"name"`
	Email                string        `json:"email"`
	Affiliation          string        `json:"affiliation,omitempty"`
	Type                 string        `json:"registration_type"`
	Period               fees.Period   `json:"registration_period,omitempty"`
	AddOns               fees.AddOns   `json:"add_ons"`
	TotalAmount          float64       `json:"total_amount"`
	Currency             string        `json:"currency,omitempty"`
	PaymentStatus        PaymentStatus `json:"payment_status"`
	PaymentProvider      string        `json:"payment_provider,omitempty"`
	PaymentID            string        `json:"payment_id,omitempty"`
	TransactionReference string        `json:"transaction_reference,omitempty"`
	PaymentUnlocked      bool          `json:"payment_unlocked"`
	ExtraPaperWaived     bool          `json:"extra_paper_waived"`
	PaperID              string        `json:"paper_id,omitempty"`
	WorkflowStatus       Workflow      `json:"workflow_status"`
	PaidAt               *time.Time    `json:"paid_at,omitempty"`
	CreatedAt            time.Time     `json:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at"`
}

// IsAuthorType reports whether a registration category is gated on paper review.
func IsAuthorType(t string) bool {
	return strings.Contains(strings.ToLower(t), "author")
}

// Settled reports whether the registration needs no further payment.
func (r Registration) Settled() bool {
	return r.PaymentStatus == StatusPaid || r.PaymentStatus == StatusApproved
}

// CanPay reports whether the payment step is open for this registration.
func (r Registration) CanPay() bool {
	return r.PaymentStatus == StatusPending && (r.PaymentUnlocked || !IsAuthorType(r.Type))
}

// normalize fills defaults on records read from the store.
func (r *Registration) normalize() {
	if r.PaymentStatus == "" {
		r.PaymentStatus = StatusPending
	}
	if r.WorkflowStatus == "" {
		switch {
		case r.PaymentStatus == StatusPaid || r.PaymentStatus == StatusApproved:
			r.WorkflowStatus = WorkflowCompleted
		case r.PaymentStatus == StatusRejected:
			r.WorkflowStatus = WorkflowRejected
		case IsAuthorType(r.Type) && !r.PaymentUnlocked:
			r.WorkflowStatus = WorkflowAwaitingReview
		default:
			r.WorkflowStatus = WorkflowAwaitingPayment
		}
	}
}

// transitions lists the admin status changes allowed from each state.
var transitions = map[PaymentStatus][]PaymentStatus{
	StatusPending: {StatusPaid, StatusApproved, StatusRejected},
	StatusPaid:    {StatusApproved},
}

// CanTransition reports whether an admin may move a registration from one
// payment status to another.
func CanTransition(from, to PaymentStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
