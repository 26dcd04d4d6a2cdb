package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"conference/internal/conference"
	"conference/internal/content"
	"conference/internal/fees"
	"conference/internal/papers"
	"conference/internal/registration"
)

func (h *Handler) adminListConferences(c *gin.Context) {
	list, err := h.conferences.List(c.Request.Context(), true)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conferences": list})
}

func (h *Handler) createConference(c *gin.Context) {
	var in conference.Conference
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	out, err := h.conferences.Create(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"conference": out})
}

func (h *Handler) updateConference(c *gin.Context) {
	var in conference.Conference
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	out, err := h.conferences.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conference": out})
}

func (h *Handler) deleteConference(c *gin.Context) {
	if err := h.conferences.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) saveFees(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		badRequest(c, err)
		return
	}
	sched, err := fees.Decode(raw)
	if err != nil {
		badRequest(c, err)
		return
	}
	saved, err := h.fees.Save(c.Request.Context(), sched)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.log.Info().Str("currency", saved.Currency).Msg("fee schedule updated")
	c.JSON(http.StatusOK, gin.H{"schedule": saved})
}

type periodQuery struct {
	Date string `form:"date" binding:"omitempty,yyyymmdd"`
}

// previewPeriod resolves the period the stored schedule yields on a date.
func (h *Handler) previewPeriod(c *gin.Context) {
	var q periodQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	day := fees.NewDate(h.conferences.Now().Date())
	if q.Date != "" {
		day, _ = fees.ParseDate(q.Date)
	}
	sched, _, err := h.fees.Current(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	period := fees.ResolvePeriod(day.Time, sched)
	c.JSON(http.StatusOK, gin.H{"date": day, "period": period, "categories": sched.Categories(period)})
}

func (h *Handler) listPapers(c *gin.Context) {
	var status papers.Status
	if raw := c.Query("status"); raw != "" {
		st, ok := papers.ParseStatus(raw)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown paper status"})
			return
		}
		status = st
	}
	list, err := h.papers.List(c.Request.Context(), c.Param("id"), status)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"papers": list})
}

type reviewRequest struct {
	Status  string `json:"status" binding:"required"`
	Comment string `json:"comment"`
}

func (h *Handler) reviewPaper(c *gin.Context) {
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	st, _ := papers.ParseStatus(req.Status)
	if st == "" {
		st = papers.Status(req.Status)
	}
	p, err := h.papers.Review(c.Request.Context(), c.Param("id"), c.Param("paperID"), papers.Decision{Status: st, Comment: req.Comment})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"paper": p})
}

type registrationQuery struct {
	ConferenceID string `form:"conference_id"`
	Status       string `form:"status" binding:"omitempty,pay_status"`
}

func (h *Handler) listRegistrations(c *gin.Context) {
	var q registrationQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	st, _ := registration.ParseStatus(q.Status)
	regs, err := h.registrations.List(c.Request.Context(), registration.Query{ConferenceID: q.ConferenceID, Status: st})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"registrations": regs})
}

type statusRequest struct {
	Status string `json:"status" binding:"required,pay_status"`
}

func (h *Handler) setRegistrationStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	st, _ := registration.ParseStatus(req.Status)
	reg, err := h.registrations.SetStatus(c.Request.Context(), c.Param("id"), st)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"registration": reg})
}

func (h *Handler) paymentSummary(c *gin.Context) {
	totals, err := h.registrations.Summary(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conferences": totals, "provider": h.gateway.Name()})
}

func (h *Handler) savePage(c *gin.Context) {
	var p content.Page
	if err := c.ShouldBindJSON(&p); err != nil {
		badRequest(c, err)
		return
	}
	p.Slug = c.Param("slug")
	saved, err := h.content.SavePage(c.Request.Context(), p)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"page": saved})
}

func (h *Handler) adminAnnouncements(c *gin.Context) {
	list, err := h.content.Announcements(c.Request.Context(), true)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"announcements": list})
}

func (h *Handler) saveAnnouncement(c *gin.Context) {
	var a content.Announcement
	if err := c.ShouldBindJSON(&a); err != nil {
		badRequest(c, err)
		return
	}
	a.ID = c.Param("id")
	status := http.StatusOK
	if a.ID == "" {
		status = http.StatusCreated
	}
	saved, err := h.content.SaveAnnouncement(c.Request.Context(), a)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(status, gin.H{"announcement": saved})
}

func (h *Handler) deleteAnnouncement(c *gin.Context) {
	if err := h.content.DeleteAnnouncement(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) saveSite(c *gin.Context) {
	var s content.Site
	if err := c.ShouldBindJSON(&s); err != nil {
		badRequest(c, err)
		return
	}
	saved, err := h.content.SaveSite(c.Request.Context(), s)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"site": saved})
}
