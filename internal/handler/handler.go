package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"rollsheet/internal/apperr"
	"rollsheet/internal/auth"
	"rollsheet/internal/metrics"
	"rollsheet/internal/relay"
)

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Healthy(ctx context.Context) bool
}

// Handler serves the HTTP API.
type Handler struct {
	auth    *auth.Service
	relay   *relay.Service
	metrics *metrics.Metrics
	db      Pinger
	redis   Pinger
}

// New creates a handler. m, db and redis may be nil.
func New(authSvc *auth.Service, relaySvc *relay.Service, m *metrics.Metrics, db, redis Pinger) *Handler {
	return &Handler{auth: authSvc, relay: relaySvc, metrics: m, db: db, redis: redis}
}

// Routes mounts the API on r.
func (h *Handler) Routes(r gin.IRouter) {
	r.GET("/healthz", h.Healthz)

	api := r.Group("/api")
	api.POST("/register", h.Register)
	api.POST("/login", h.Login)

	protected := api.Group("", auth.Middleware(h.auth))
	protected.POST("/verify-webapp", h.VerifyWebapp)
	protected.POST("/attendance", h.Attendance)
}

// ---------- Health ----------

func (h *Handler) Healthz(c *gin.Context) {
	ctx := c.Request.Context()
	dbHealthy := h.db == nil || h.db.Healthy(ctx)
	body := gin.H{"status": "ok", "db": dbHealthy}
	status := http.StatusOK
	if h.redis != nil {
		redisHealthy := h.redis.Healthy(ctx)
		body["redis"] = redisHealthy
		if !redisHealthy {
			status = http.StatusServiceUnavailable
		}
	}
	if !dbHealthy {
		status = http.StatusServiceUnavailable
	}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	c.JSON(status, body)
}

// ---------- Auth ----------

type registerRequest struct {
	Username     string  `json:"username"`
	Password     string  `json:"password"`
	WebAppURL    string  `json:"webAppUrl"`
	WebAppSecret string  `json:"webAppSecret"`
	SheetURL     *string `json:"sheetUrl"`
}

func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if !bindJSON(c, &req) {
		return
	}
	id, err := h.auth.Register(c.Request.Context(), auth.RegisterInput{
		Username:      req.Username,
		Password:      req.Password,
		WebhookURL:    req.WebAppURL,
		WebhookSecret: req.WebAppSecret,
		SheetURL:      req.SheetURL,
	})
	if err != nil {
		h.metrics.AuthEvent("register", string(apperr.KindOf(err)))
		writeError(c, err)
		return
	}
	h.metrics.AuthEvent("register", "ok")
	c.JSON(http.StatusOK, gin.H{"ok": true, "id": id})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.auth.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.metrics.AuthEvent("login", string(apperr.KindOf(err)))
		writeError(c, err)
		return
	}
	h.metrics.AuthEvent("login", "ok")
	c.JSON(http.StatusOK, gin.H{"token": res.Token, "webAppUrl": res.WebhookURL})
}

// ---------- Relay ----------

type verifyRequest struct {
	WebAppURL    string `json:"webAppUrl"`
	WebAppSecret string `json:"webAppSecret"`
}

func (h *Handler) VerifyWebapp(c *gin.Context) {
	identity, _ := auth.IdentityFrom(c)
	var req verifyRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.relay.VerifyWebhook(c.Request.Context(), identity, req.WebAppURL, req.WebAppSecret)
	if err != nil {
		if e, ok := apperr.As(err); ok && e.Kind == apperr.KindUpstream && e.Status != 0 {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "data": res.Data})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "data": res.Data})
}

type attendanceRequest struct {
	Subject       any             `json:"subject"`
	Date          any             `json:"date"`
	Regular       any             `json:"regular"`
	Extra         any             `json:"extra"`
	PresentMatrix json.RawMessage `json:"presentMatrix"`
}

func (h *Handler) Attendance(c *gin.Context) {
	identity, ok := auth.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	var req attendanceRequest
	if !bindJSON(c, &req) {
		return
	}

	// A presentMatrix that is not an array normalizes to all-absent.
	var presence []any
	if len(req.PresentMatrix) > 0 {
		_ = json.Unmarshal(req.PresentMatrix, &presence)
	}

	out, err := h.relay.SubmitAttendance(c.Request.Context(), identity, relay.Submission{
		Subject:  relay.Text(req.Subject),
		Date:     relay.Text(req.Date),
		Regular:  req.Regular,
		Extra:    req.Extra,
		Presence: presence,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "webappResult": out})
}

// ---------- Errors ----------

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		// An empty body binds as {} so field validation reports what is missing.
		if errors.Is(err, io.EOF) {
			return true
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
			return false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body", "detail": err.Error()})
		return false
	}
	return true
}

// writeError converts a service error into the JSON error body.
func writeError(c *gin.Context, err error) {
	e, ok := apperr.As(err)
	if !ok {
		log.Printf("%s %s: unclassified error: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
		return
	}
	body := gin.H{"error": e.Message}
	switch e.Kind {
	case apperr.KindUpstream:
		if e.Status != 0 {
			body["status"] = e.Status
			body["detail"] = e.Detail
		} else if e.Err != nil {
			body["detail"] = e.Err.Error()
		}
	case apperr.KindInternal:
		log.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(apperr.HTTPStatus(e.Kind), body)
}
