package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"conference/internal/content"
	"conference/internal/fees"
)

const siteKey = "site"

// siteSettings loads the site settings once per request.
func (h *Handler) siteSettings() gin.HandlerFunc {
	return func(c *gin.Context) {
		site, err := h.content.Site(c.Request.Context())
		if err != nil {
			h.log.Warn().Err(err).Msg("load site settings")
			site = content.Site{Title: "Conference", Theme: "default", Social: map[string]string{}}
		}
		c.Set(siteKey, site)
		c.Next()
	}
}

// siteFrom returns the settings stored by siteSettings.
func siteFrom(c *gin.Context) content.Site {
	if v, ok := c.Get(siteKey); ok {
		if s, ok := v.(content.Site); ok {
			return s
		}
	}
	return content.Site{}
}

func (h *Handler) getSite(c *gin.Context) {
	c.JSON(http.StatusOK, siteFrom(c))
}

func (h *Handler) getPage(c *gin.Context) {
	page, err := h.content.Page(c.Request.Context(), c.Param("slug"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"page": page, "site": siteFrom(c)})
}

func (h *Handler) listAnnouncements(c *gin.Context) {
	list, err := h.content.Announcements(c.Request.Context(), false)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"announcements": list})
}

func (h *Handler) listConferences(c *gin.Context) {
	list, err := h.conferences.List(c.Request.Context(), false)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conferences": list, "featured_conference_id": siteFrom(c).FeaturedConferenceID})
}

func (h *Handler) getConference(c *gin.Context) {
	conf, err := h.conferences.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	now := h.conferences.Now()
	c.JSON(http.StatusOK, gin.H{
		"conference":            conf,
		"accepts_registrations": conf.AcceptsRegistrations(now),
		"accepts_papers":        conf.AcceptsPapers(now),
	})
}

func (h *Handler) getFees(c *gin.Context) {
	sched, period, err := h.fees.Current(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"schedule":       sched,
		"current_period": period,
		"categories":     sched.Categories(period),
	})
}

type quoteRequest struct {
	Period   string      `json:"period" binding:"omitempty,period"`
	Category string      `json:"registration_type" binding:"required"`
	AddOns   fees.AddOns `json:"add_ons"`
}

func (h *Handler) quote(c *gin.Context) {
	var req quoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	period, _ := fees.ParsePeriod(req.Period)
	q, err := h.fees.Quote(c.Request.Context(), fees.QuoteRequest{Period: period, Category: req.Category, AddOns: req.AddOns})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

type signupRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=8"`
	Name        string `json:"name" binding:"required"`
	Affiliation string `json:"affiliation"`
}

func (h *Handler) signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	u, tokens, err := h.accounts.Signup(c.Request.Context(), req.Email, req.Password, req.Name, req.Affiliation)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": gin.H{"id": u.ID, "email": u.Email, "name": u.Name, "affiliation": u.Affiliation}, "tokens": tokens})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	u, tokens, err := h.accounts.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": gin.H{"id": u.ID, "email": u.Email, "name": u.Name, "affiliation": u.Affiliation}, "tokens": tokens})
}

func (h *Handler) adminLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	tokens, err := h.accounts.AdminLogin(req.Email, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tokens": tokens})
}

func (h *Handler) refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	tokens, err := h.accounts.Refresh(req.RefreshToken)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tokens": tokens})
}
