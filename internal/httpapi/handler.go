// Package httpapi serves the organizer HTTP API.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"careerquest/internal/auth"
	"careerquest/internal/ledger"
	"careerquest/internal/notify"
	"careerquest/internal/store"
)

// Ledger is the subset of the ledger service the API drives.
type Ledger interface {
	IsAdmin(ctx context.Context, userID int64) (bool, error)
	AddAdmin(ctx context.Context, userID int64) error
	GetStudent(ctx context.Context, id int64) (ledger.Student, error)
	GetRating(ctx context.Context, requesterID int64, limit *int) ([]ledger.RatingEntry, error)
	AddEvent(ctx context.Context, name string) (ledger.Event, error)
	ListEvents(ctx context.Context) ([]ledger.Event, error)
	GetEvent(ctx context.Context, id int64) (ledger.Event, error)
	DeleteEvent(ctx context.Context, id int64) (int64, error)
	AddCodeToEvent(ctx context.Context, eventID int64, codeText string, points int, isIncome bool) (ledger.Code, error)
	GenerateCode(ctx context.Context, eventID int64, points int, isIncome bool) (ledger.Code, error)
	DeleteCode(ctx context.Context, codeText string) error
	SetCodeActive(ctx context.Context, codeText string, active bool) error
	ListCodeUsage(ctx context.Context, eventID *int64) ([]ledger.CodeUsage, error)
}

// Broadcaster queues notifications for delivery.
type Broadcaster interface {
	Enqueue(ctx context.Context, requestedBy int64, text string) (notify.Job, error)
}

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	Healthy(ctx context.Context) bool
}

type Handler struct {
	ledger     Ledger
	broadcasts Broadcaster
	checks     map[string]HealthChecker
	log        *slog.Logger
}

func New(l Ledger, b Broadcaster, checks map[string]HealthChecker, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{ledger: l, broadcasts: b, checks: checks, log: logger}
}

// Register mounts every route. adminAuth guards the /v1 group.
func (h *Handler) Register(r gin.IRouter, adminAuth gin.HandlerFunc) {
	r.GET("/healthz", h.Healthz)

	v1 := r.Group("/v1", adminAuth)
	v1.GET("/rating", h.Rating)
	v1.GET("/students/:id", h.GetStudent)
	v1.GET("/events", h.ListEvents)
	v1.POST("/events", h.CreateEvent)
	v1.GET("/events/:id", h.GetEvent)
	v1.DELETE("/events/:id", h.DeleteEvent)
	v1.POST("/events/:id/codes", h.AddCode)
	v1.POST("/events/:id/codes/generate", h.GenerateCode)
	v1.GET("/codes", h.ListCodes)
	v1.PATCH("/codes/:code", h.UpdateCode)
	v1.DELETE("/codes/:code", h.DeleteCode)
	v1.POST("/admins", h.AddAdmin)
	v1.POST("/notifications", h.Notify)
}

// RequestID tags each request with an X-Request-ID, keeping one the client sent.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// ---------- Health ----------

func (h *Handler) Healthz(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range h.checks {
		ok := check.Healthy(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

// ---------- Students & rating ----------

func (h *Handler) Rating(c *gin.Context) {
	var limit *int
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = &n
	}
	entries, err := h.ledger.GetRating(c.Request.Context(), c.GetInt64(auth.AdminIDKey), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rating": entries})
}

func (h *Handler) GetStudent(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	st, err := h.ledger.GetStudent(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// ---------- Events ----------

func (h *Handler) ListEvents(c *gin.Context) {
	events, err := h.ledger.ListEvents(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

type createEventRequest struct {
	Name string `json:"name" binding:"required"`
}

func (h *Handler) CreateEvent(c *gin.Context) {
	var req createEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	evt, err := h.ledger.AddEvent(c.Request.Context(), req.Name)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, evt)
}

func (h *Handler) GetEvent(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	evt, err := h.ledger.GetEvent(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	codes, err := h.ledger.ListCodeUsage(c.Request.Context(), &id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"event": evt, "codes": codes})
}

func (h *Handler) DeleteEvent(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	removed, err := h.ledger.DeleteEvent(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id, "codes_removed": removed})
}

// ---------- Codes ----------

type addCodeRequest struct {
	Code   string `json:"code" binding:"required"`
	Points int    `json:"points" binding:"required,gt=0"`
	Spend  bool   `json:"spend"`
}

func (h *Handler) AddCode(c *gin.Context) {
	eventID, ok := pathID(c)
	if !ok {
		return
	}
	var req addCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	code, err := h.ledger.AddCodeToEvent(c.Request.Context(), eventID, req.Code, req.Points, !req.Spend)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, code)
}

type generateCodeRequest struct {
	Points int  `json:"points" binding:"required,gt=0"`
	Spend  bool `json:"spend"`
}

func (h *Handler) GenerateCode(c *gin.Context) {
	eventID, ok := pathID(c)
	if !ok {
		return
	}
	var req generateCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	code, err := h.ledger.GenerateCode(c.Request.Context(), eventID, req.Points, !req.Spend)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, code)
}

func (h *Handler) ListCodes(c *gin.Context) {
	var eventID *int64
	if v := c.Query("event_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "event_id must be an integer"})
			return
		}
		eventID = &id
	}
	codes, err := h.ledger.ListCodeUsage(c.Request.Context(), eventID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"codes": codes})
}

type updateCodeRequest struct {
	Active *bool `json:"active" binding:"required"`
}

func (h *Handler) UpdateCode(c *gin.Context) {
	var req updateCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	code := ledger.NormalizeCode(c.Param("code"))
	if err := h.ledger.SetCodeActive(c.Request.Context(), code, *req.Active); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": code, "active": *req.Active})
}

func (h *Handler) DeleteCode(c *gin.Context) {
	code := ledger.NormalizeCode(c.Param("code"))
	if err := h.ledger.DeleteCode(c.Request.Context(), code); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": code})
}

// ---------- Admins & notifications ----------

type addAdminRequest struct {
	UserID int64 `json:"user_id" binding:"required"`
}

func (h *Handler) AddAdmin(c *gin.Context) {
	var req addAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.ledger.AddAdmin(c.Request.Context(), req.UserID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user_id": req.UserID})
}

type notifyRequest struct {
	Text string `json:"text" binding:"required"`
}

func (h *Handler) Notify(c *gin.Context) {
	var req notifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	job, err := h.broadcasts.Enqueue(c.Request.Context(), c.GetInt64(auth.AdminIDKey), req.Text)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": job.ID})
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a positive integer"})
		return 0, false
	}
	return id, true
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, ledger.ErrDuplicate):
		c.JSON(http.StatusConflict, gin.H{"error": "already exists"})
	case errors.Is(err, ledger.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "no rights"})
	case errors.Is(err, ledger.ErrInvalid), errors.Is(err, notify.ErrEmptyText):
		c.JSON(http.StatusBadRequest, gin.H{"error": strings.TrimSpace(err.Error())})
	case errors.Is(err, store.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "try again later"})
	default:
		h.log.Error("request failed", "path", c.FullPath(), "request_id", c.GetString("request_id"), "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
