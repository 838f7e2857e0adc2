package httpapi

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"classtrack/internal/auth"
	"classtrack/internal/checkin"
	"classtrack/internal/classroom"
	"classtrack/internal/config"
	"classtrack/internal/csvimport"
	"classtrack/internal/geoloc"
	"classtrack/internal/metrics"
)

// Handler holds the wired services behind the HTTP API.
type Handler struct {
	cfg      config.App
	store    classroom.Store
	manager  *classroom.Manager
	att      *classroom.Service
	checkin  *checkin.Service
	verifier *checkin.Verifier
	importer *csvimport.Importer
	geo      geoloc.Provider
}

// New creates the handler.
func New(cfg config.App, store classroom.Store, manager *classroom.Manager, att *classroom.Service,
	ci *checkin.Service, verifier *checkin.Verifier, importer *csvimport.Importer, geo geoloc.Provider) *Handler {
	return &Handler{
		cfg:      cfg,
		store:    store,
		manager:  manager,
		att:      att,
		checkin:  ci,
		verifier: verifier,
		importer: importer,
		geo:      geo,
	}
}

// Register mounts all routes on r.
func (h *Handler) Register(r *gin.Engine) {
	r.POST("/v1/auth/register", h.registerProfile)
	r.POST("/v1/auth/login", h.login)

	authd := r.Group("/v1", auth.UserAuth(h.cfg.JWTSigningKey, h.cfg.JWTIssuer))

	teacher := authd.Group("", auth.RequireRole(auth.RoleTeacher))
	teacher.POST("/classes", h.createClass)
	teacher.GET("/classes/:id", h.getClass)
	teacher.GET("/classes/:id/roster", h.roster)
	teacher.POST("/classes/:id/roster", h.enroll)
	teacher.DELETE("/classes/:id/roster/:studentID", h.unenroll)
	teacher.POST("/classes/:id/start", h.startClass)
	teacher.POST("/classes/:id/stop", h.stopClass)
	teacher.PUT("/classes/:id/online", h.setOnlineMode)
	teacher.DELETE("/classes/:id/online/pending", h.cancelPending)
	teacher.PUT("/classes/:id/geofence", h.setGeofence)
	teacher.GET("/classes/:id/attendance", h.currentView)
	teacher.GET("/classes/:id/sessions", h.sessionsOn)
	teacher.GET("/classes/:id/sessions/:sid/records", h.sessionRecords)
	teacher.PUT("/classes/:id/sessions/:sid/records/:studentID", h.setAttendance)
	teacher.DELETE("/classes/:id/sessions/:sid/records", h.resetAttendance)
	teacher.DELETE("/classes/:id/sessions/:sid", h.deleteSession)
	teacher.POST("/classes/:id/sessions/:sid/bulk", h.bulkUpload)

	authd.POST("/classes/:id/sessions/:sid/check-location", h.checkLocation)
	authd.POST("/classes/:id/sessions/:sid/checkin", h.selfCheckIn)
}

// writeErr maps the error taxonomy onto HTTP status codes. Everything else
// is a 400: failures surface to the user and the caller re-triggers.
func writeErr(c *gin.Context, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, classroom.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, classroom.ErrPermissionDenied),
		errors.Is(err, classroom.ErrOutOfRange),
		errors.Is(err, checkin.ErrFaceRejected),
		errors.Is(err, checkin.ErrSelfCheckInOff):
		status = http.StatusForbidden
	case errors.Is(err, classroom.ErrSessionActive),
		errors.Is(err, classroom.ErrGeofenceRequired),
		errors.Is(err, checkin.ErrSessionInactive):
		status = http.StatusConflict
	case errors.Is(err, classroom.ErrLocationUnavailable):
		status = http.StatusBadGateway
	case errors.Is(err, classroom.ErrPersistenceFailure):
		status = http.StatusInternalServerError
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// provider returns a Static provider for coordinates submitted in the
// request, falling back to the server-configured provider. Positions are
// never cached between calls.
func (h *Handler) provider(lat, lng *float64) geoloc.Provider {
	if lat != nil && lng != nil {
		return geoloc.Static{Pos: geoloc.Position{Lat: *lat, Lng: *lng}}
	}
	return h.geo
}

// ---- auth ----

func (h *Handler) registerProfile(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Name     string `json:"name"`
		Role     string `json:"role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Role == "" {
		req.Role = auth.RoleStudent
	}
	if req.Role != auth.RoleStudent && req.Role != auth.RoleTeacher {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role must be teacher or student"})
		return
	}
	p, err := h.store.CreateProfile(c.Request.Context(), classroom.Profile{
		Username: req.Username,
		Name:     req.Name,
		Role:     req.Role,
	})
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *Handler) login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	// Fixed shared password; real credential storage is out of scope.
	if req.Password != h.cfg.SharedPassword {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	p, err := h.store.ProfileByUsername(c.Request.Context(), req.Username)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	tokens, err := auth.Issue(p.ID, p.Role, h.cfg.JWTIssuer, h.cfg.JWTSigningKey, h.cfg.AccessTTL, h.cfg.RefreshTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
		"profile":       p,
	})
}

// ---- classes and roster ----

func (h *Handler) createClass(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cls, err := h.att.CreateClass(c.Request.Context(), req.Name, auth.FromContext(c).Subject)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, cls)
}

func (h *Handler) getClass(c *gin.Context) {
	cls, err := h.att.GetClass(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeErr(c, err)
		return
	}
	resp := gin.H{"class": cls}
	if id, ok := h.manager.CurrentSession(cls.ID); ok {
		resp["live_session_id"] = id
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) roster(c *gin.Context) {
	roster, err := h.att.Roster(c.Request.Context(), c.Param("id"), auth.FromContext(c).Subject)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"roster": roster})
}

func (h *Handler) enroll(c *gin.Context) {
	var req struct {
		StudentID string `json:"student_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.att.Enroll(c.Request.Context(), c.Param("id"), auth.FromContext(c).Subject, req.StudentID); err != nil {
		writeErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) unenroll(c *gin.Context) {
	if err := h.att.Unenroll(c.Request.Context(), c.Param("id"), auth.FromContext(c).Subject, c.Param("studentID")); err != nil {
		writeErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ---- session lifecycle ----

func (h *Handler) startClass(c *gin.Context) {
	var req struct {
		Radius float64  `json:"radius_m"`
		Lat    *float64 `json:"lat"`
		Lng    *float64 `json:"lng"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess, err := h.manager.Start(c.Request.Context(), h.provider(req.Lat, req.Lng),
		c.Param("id"), auth.FromContext(c).Subject, req.Radius)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

func (h *Handler) stopClass(c *gin.Context) {
	if err := h.manager.Stop(c.Request.Context(), c.Param("id"), auth.FromContext(c).Subject); err != nil {
		writeErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) setOnlineMode(c *gin.Context) {
	var req struct {
		Online *bool `json:"online" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := h.manager.SetOnlineMode(c.Request.Context(), c.Param("id"), auth.FromContext(c).Subject, *req.Online)
	if errors.Is(err, classroom.ErrGeofenceRequired) {
		// Toggle is deferred; the client completes it via the geofence
		// endpoint or cancels it.
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "pending": true})
		return
	}
	if err != nil {
		writeErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) cancelPending(c *gin.Context) {
	h.manager.CancelPending(c.Param("id"))
	c.Status(http.StatusNoContent)
}

func (h *Handler) setGeofence(c *gin.Context) {
	var req struct {
		Radius float64  `json:"radius_m" binding:"required"`
		Lat    *float64 `json:"lat"`
		Lng    *float64 `json:"lng"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	gf, err := h.manager.SetGeofence(c.Request.Context(), h.provider(req.Lat, req.Lng),
		c.Param("id"), auth.FromContext(c).Subject, req.Radius)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gf)
}

// ---- attendance ----

func (h *Handler) currentView(c *gin.Context) {
	entries, err := h.att.CurrentView(c.Request.Context(), c.Param("id"), auth.FromContext(c).Subject)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (h *Handler) sessionRecords(c *gin.Context) {
	entries, err := h.att.Records(c.Request.Context(), c.Param("id"), auth.FromContext(c).Subject, c.Param("sid"))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (h *Handler) setAttendance(c *gin.Context) {
	var req struct {
		Status classroom.Status `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	entries, err := h.att.SetAttendance(c.Request.Context(), c.Param("id"), auth.FromContext(c).Subject,
		c.Param("sid"), c.Param("studentID"), req.Status)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (h *Handler) resetAttendance(c *gin.Context) {
	if err := h.att.ResetAttendance(c.Request.Context(), c.Param("id"), auth.FromContext(c).Subject, c.Param("sid")); err != nil {
		writeErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ---- history ----

func (h *Handler) sessionsOn(c *gin.Context) {
	day := time.Now()
	if v := c.Query("date"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
		day = parsed
	}
	sessions, err := h.att.SessionsOn(c.Request.Context(), c.Param("id"), auth.FromContext(c).Subject, day)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (h *Handler) deleteSession(c *gin.Context) {
	err := h.att.DeleteSession(c.Request.Context(), c.Param("id"), auth.FromContext(c).Subject, c.Param("sid"))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ---- bulk upload ----

func (h *Handler) bulkUpload(c *gin.Context) {
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file field required"})
		return
	}
	defer file.Close()

	report, err := h.importer.Import(c.Request.Context(), c.Param("id"), auth.FromContext(c).Subject, c.Param("sid"), file)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusAccepted, report)
}

// ---- student check-in ----

func (h *Handler) checkLocation(c *gin.Context) {
	var req struct {
		Lat *float64 `json:"lat"`
		Lng *float64 `json:"lng"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess, err := h.store.GetSession(c.Request.Context(), c.Param("id"), c.Param("sid"))
	if err != nil {
		writeErr(c, err)
		return
	}
	if sess.Geofence == nil {
		c.JSON(http.StatusOK, gin.H{"skipped": true})
		return
	}
	res := h.verifier.Check(c.Request.Context(), sess.ID, auth.FromContext(c).Subject,
		*sess.Geofence, h.provider(req.Lat, req.Lng))
	c.JSON(http.StatusOK, res)
}

func (h *Handler) selfCheckIn(c *gin.Context) {
	var req struct {
		ImageURL string `json:"image_url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	studentID := auth.FromContext(c).Subject
	err := h.checkin.CheckIn(c.Request.Context(), c.Param("id"), c.Param("sid"), studentID, req.ImageURL)
	switch {
	case err == nil:
		metrics.CheckIns.WithLabelValues("accepted").Inc()
		c.JSON(http.StatusOK, gin.H{"status": classroom.StatusPresent})
	case errors.Is(err, classroom.ErrOutOfRange):
		metrics.CheckIns.WithLabelValues("out_of_range").Inc()
		writeErr(c, err)
	case errors.Is(err, checkin.ErrFaceRejected):
		metrics.CheckIns.WithLabelValues("face_rejected").Inc()
		writeErr(c, err)
	default:
		metrics.CheckIns.WithLabelValues("error").Inc()
		writeErr(c, err)
	}
}
