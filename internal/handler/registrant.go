package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"conference/internal/auth"
	"conference/internal/fees"
	"conference/internal/papers"
	"conference/internal/payment"
	"conference/internal/registration"
)

// maxWebhookBytes bounds webhook payloads.
const maxWebhookBytes = 1 << 20

// applicant builds the registrant identity from the bearer token.
func (h *Handler) applicant(c *gin.Context) registration.Applicant {
	claims, _ := auth.FromContext(c)
	a := registration.Applicant{UserID: claims.Subject, Name: claims.Name, Email: claims.Email}
	if u, err := h.accounts.Get(c.Request.Context(), claims.Subject); err == nil {
		a.Affiliation = u.Affiliation
		if a.Name == "" {
			a.Name = u.Name
		}
	}
	return a
}

type registerRequest struct {
	Type   string      `json:"registration_type" binding:"required"`
	AddOns fees.AddOns `json:"add_ons"`
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	reg, err := h.registrations.Submit(c.Request.Context(), registration.Form{
		Applicant:    h.applicant(c),
		ConferenceID: c.Param("id"),
		Type:         req.Type,
		AddOns:       req.AddOns,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"registration": reg, "can_pay": reg.CanPay()})
}

func (h *Handler) myRegistrations(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	regs, err := h.registrations.ListForUser(c.Request.Context(), claims.Subject)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"registrations": regs})
}

type paperRequest struct {
	Title    string          `json:"title" form:"title" binding:"required"`
	Abstract string          `json:"abstract" form:"abstract"`
	Keywords []string        `json:"keywords" form:"keywords"`
	Authors  []papers.Author `json:"authors" form:"-" binding:"dive"`
}

func (h *Handler) submitPaper(c *gin.Context) {
	var (
		req  paperRequest
		file *papers.Upload
	)
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		if err := c.ShouldBind(&req); err != nil {
			badRequest(c, err)
			return
		}
		if raw := c.PostForm("authors"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &req.Authors); err != nil {
				badRequest(c, errors.New("authors must be a JSON array"))
				return
			}
			if err := binding.Validator.ValidateStruct(&req); err != nil {
				badRequest(c, err)
				return
			}
		}
		if fh, err := c.FormFile("file"); err == nil {
			f, err := fh.Open()
			if err != nil {
				badRequest(c, err)
				return
			}
			defer f.Close()
			file = &papers.Upload{Filename: fh.Filename, Size: fh.Size, Content: f}
		} else if !errors.Is(err, http.ErrMissingFile) {
			badRequest(c, err)
			return
		}
	} else if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	a := h.applicant(c)
	p, err := h.papers.Submit(c.Request.Context(), papers.Submitter{UserID: a.UserID, Name: a.Name, Email: a.Email}, papers.Submission{
		ConferenceID: c.Param("id"),
		Title:        req.Title,
		Abstract:     req.Abstract,
		Keywords:     req.Keywords,
		Authors:      req.Authors,
	}, file)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"paper": p})
}

func (h *Handler) myPapers(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	list, err := h.papers.ListForUser(c.Request.Context(), claims.Subject)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"papers": list})
}

type createPaymentRequest struct {
	ConferenceID   string      `json:"conference_id" binding:"required"`
	SelectedPeriod string      `json:"selected_period" binding:"required,period"`
	SelectedType   string      `json:"selected_type" binding:"required"`
	TotalAmount    float64     `json:"total_amount" binding:"gte=0"`
	AddOns         fees.AddOns `json:"add_ons"`
}

func (h *Handler) createPayment(c *gin.Context) {
	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": bindingMessage(err)})
		return
	}
	out, err := h.registrations.InitiatePayment(c.Request.Context(), registration.PaymentRequest{
		Applicant:      h.applicant(c),
		ConferenceID:   req.ConferenceID,
		SelectedPeriod: req.SelectedPeriod,
		SelectedType:   req.SelectedType,
		TotalAmount:    req.TotalAmount,
		AddOns:         req.AddOns,
	})
	if err != nil {
		_ = c.Error(err)
		if errors.Is(err, payment.ErrUnavailable) {
			h.log.Warn().Err(err).Str("conference_id", req.ConferenceID).Msg("checkout session failed")
			c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": "payment service unavailable"})
			return
		}
		c.JSON(statusFor(err), gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":               true,
		"payment_url":           out.Session.PaymentURL,
		"payment_id":            out.Session.PaymentID,
		"transaction_reference": out.Session.Reference,
		"amount":                out.Session.Amount,
		"currency":              out.Session.Currency,
		"demo":                  out.Session.Demo,
		"registration_id":       out.Registration.ID,
	})
}

// paymentRef reads the gateway identifiers from the redirect query.
func paymentRef(c *gin.Context) (paymentID, reference string) {
	paymentID = c.Query("payment_id")
	reference = c.Query("reference")
	if reference == "" {
		reference = c.Query("trxref")
	}
	return paymentID, reference
}

func (h *Handler) paymentCallback(c *gin.Context) {
	paymentID, reference := paymentRef(c)
	if paymentID == "" && reference == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "payment_id or reference is required"})
		return
	}
	reg, err := h.registrations.HandleCallback(c.Request.Context(), paymentID, reference)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"success": reg.Settled(), "status": reg.PaymentStatus, "registration": reg})
	case errors.Is(err, registration.ErrPaymentIncomplete):
		_ = c.Error(err)
		c.JSON(http.StatusPaymentRequired, gin.H{"success": false, "status": reg.PaymentStatus,
			"error": "payment has not been completed, please start a new payment", "registration_id": reg.ID})
	case errors.Is(err, registration.ErrVerificationFailed):
		_ = c.Error(err)
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "status": reg.PaymentStatus,
			"error": "payment could not be verified, please try again", "registration_id": reg.ID})
	default:
		h.fail(c, err)
	}
}

func (h *Handler) paymentWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if err != nil {
		badRequest(c, err)
		return
	}
	signature := c.GetHeader(h.gateway.SignatureHeader())
	reg, applied, err := h.registrations.HandleWebhook(c.Request.Context(), payload, signature)
	if err != nil {
		h.log.Warn().Err(err).Str("provider", h.gateway.Name()).Msg("webhook rejected")
		_ = c.Error(err)
		c.JSON(statusFor(err), gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "applied": applied, "status": reg.PaymentStatus, "reference": reg.TransactionReference})
}

func (h *Handler) paymentCancelled(c *gin.Context) {
	paymentID, reference := paymentRef(c)
	if paymentID == "" && reference == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "payment_id or reference is required"})
		return
	}
	reg, err := h.registrations.Cancel(c.Request.Context(), paymentID, reference)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": false, "cancelled": true, "status": reg.PaymentStatus, "registration_id": reg.ID})
}
