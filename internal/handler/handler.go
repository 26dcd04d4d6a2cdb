// Package handler exposes the site over HTTP.
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"conference/internal/account"
	"conference/internal/auth"
	"conference/internal/conference"
	"conference/internal/content"
	"conference/internal/fees"
	"conference/internal/httpmiddleware"
	"conference/internal/logging"
	"conference/internal/papers"
	"conference/internal/payment"
	"conference/internal/registration"
)

// Deps carries everything the router needs.
type Deps struct {
	Log           zerolog.Logger
	Tokens        auth.Issuer
	Accounts      *account.Service
	Conferences   *conference.Service
	Fees          *fees.Service
	Registrations *registration.Service
	Papers        *papers.Service
	Content       *content.Service
	Gateway       payment.Gateway
	Limiter       httpmiddleware.Limiter
	// Health maps a dependency name to its reachability check.
	Health        map[string]func(context.Context) bool
	CORSOrigins   []string
}

// Handler holds the services behind the routes.
type Handler struct {
	log           zerolog.Logger
	accounts      *account.Service
	conferences   *conference.Service
	fees          *fees.Service
	registrations *registration.Service
	papers        *papers.Service
	content       *content.Service
	gateway       payment.Gateway
	health        map[string]func(context.Context) bool
}

// NewRouter builds the gin engine with every route mounted.
func NewRouter(d Deps) *gin.Engine {
	registerValidators(d.Log)
	h := &Handler{
		log:           d.Log.With().Str("component", "http").Logger(),
		accounts:      d.Accounts,
		conferences:   d.Conferences,
		fees:          d.Fees,
		registrations: d.Registrations,
		papers:        d.Papers,
		content:       d.Content,
		gateway:       d.Gateway,
		health:        d.Health,
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logging.Middleware(d.Log, "/healthz", "/metrics"))
	r.Use(cors.New(corsConfig(d.CORSOrigins)))
	r.Use(securityHeaders())
	if d.Limiter != nil {
		r.Use(httpmiddleware.RateLimit(d.Limiter, d.Log))
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", h.healthz)

	v1 := r.Group("/v1", h.siteSettings())
	v1.GET("/site", h.getSite)
	v1.GET("/pages/:slug", h.getPage)
	v1.GET("/announcements", h.listAnnouncements)
	v1.GET("/conferences", h.listConferences)
	v1.GET("/conferences/:id", h.getConference)
	v1.GET("/fees", h.getFees)
	v1.POST("/fees/quote", h.quote)

	v1.POST("/auth/signup", h.signup)
	v1.POST("/auth/login", h.login)
	v1.POST("/auth/admin/login", h.adminLogin)
	v1.POST("/auth/refresh", h.refresh)

	user := v1.Group("", auth.Required(d.Tokens))
	user.POST("/conferences/:id/registrations", h.register)
	user.POST("/conferences/:id/papers", h.submitPaper)
	user.GET("/me/registrations", h.myRegistrations)
	user.GET("/me/papers", h.myPapers)

	pay := r.Group("/payment")
	pay.POST("/create", auth.Required(d.Tokens), h.createPayment)
	pay.GET("/callback", h.paymentCallback)
	pay.POST("/webhook", h.paymentWebhook)
	pay.GET("/cancelled", h.paymentCancelled)

	admin := v1.Group("/admin", auth.Required(d.Tokens), auth.RequireRole(auth.RoleAdmin))
	admin.GET("/conferences", h.adminListConferences)
	admin.POST("/conferences", h.createConference)
	admin.PUT("/conferences/:id", h.updateConference)
	admin.DELETE("/conferences/:id", h.deleteConference)
	admin.GET("/fees", h.getFees)
	admin.PUT("/fees", h.saveFees)
	admin.GET("/fees/period", h.previewPeriod)
	admin.GET("/conferences/:id/papers", h.listPapers)
	admin.PUT("/conferences/:id/papers/:paperID/review", h.reviewPaper)
	admin.GET("/registrations", h.listRegistrations)
	admin.PUT("/registrations/:id/status", h.setRegistrationStatus)
	admin.GET("/payments/summary", h.paymentSummary)
	admin.PUT("/pages/:slug", h.savePage)
	admin.GET("/announcements", h.adminAnnouncements)
	admin.POST("/announcements", h.saveAnnouncement)
	admin.PUT("/announcements/:id", h.saveAnnouncement)
	admin.DELETE("/announcements/:id", h.deleteAnnouncement)
	admin.PUT("/site", h.saveSite)

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	cfg.AllowHeaders = append(cfg.AllowHeaders, "Authorization")
	cfg.MaxAge = 24 * time.Hour
	return cfg
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}

func (h *Handler) healthz(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range h.health {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

// fail maps service errors to responses.
func (h *Handler) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	status := statusFor(err)
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway && status != http.StatusServiceUnavailable {
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, conference.ErrNotFound),
		errors.Is(err, registration.ErrNotFound),
		errors.Is(err, papers.ErrNotFound),
		errors.Is(err, content.ErrNotFound),
		errors.Is(err, account.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, account.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, registration.ErrPaymentLocked):
		return http.StatusForbidden
	case errors.Is(err, account.ErrEmailTaken),
		errors.Is(err, registration.ErrAlreadyPaid),
		errors.Is(err, registration.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, registration.ErrAmountMismatch),
		errors.Is(err, registration.ErrWrongPeriod),
		errors.Is(err, registration.ErrRegistrationClosed),
		errors.Is(err, papers.ErrSubmissionClosed),
		errors.Is(err, fees.ErrPeriodClosed),
		errors.Is(err, fees.ErrUnknownFee):
		return http.StatusUnprocessableEntity
	case errors.Is(err, conference.ErrInvalid),
		errors.Is(err, registration.ErrInvalid),
		errors.Is(err, papers.ErrInvalid),
		errors.Is(err, papers.ErrFileRejected),
		errors.Is(err, content.ErrInvalid),
		errors.Is(err, account.ErrInvalid),
		errors.Is(err, payment.ErrInvalidSignature),
		errors.Is(err, payment.ErrInvalidPayload):
		return http.StatusBadRequest
	case errors.Is(err, payment.ErrUnavailable),
		errors.Is(err, registration.ErrVerificationFailed):
		return http.StatusBadGateway
	case errors.Is(err, papers.ErrUploadDisabled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func badRequest(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(http.StatusBadRequest, gin.H{"error": bindingMessage(err)})
}
