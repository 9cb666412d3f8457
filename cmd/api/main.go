package main

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"rollcall/internal/audit"
	"rollcall/internal/auth"
	"rollcall/internal/config"
	"rollcall/internal/enrollment"
	"rollcall/internal/extractor"
	"rollcall/internal/httpmiddleware"
	"rollcall/internal/imagestore"
	"rollcall/internal/logging"
	"rollcall/internal/match"
	"rollcall/internal/metrics"
	"rollcall/internal/notify"
	"rollcall/internal/queue"
	"rollcall/internal/record"
	"rollcall/internal/session"
	"rollcall/internal/store"
	"rollcall/internal/verify"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.Env)
	defer func() { _ = log.Sync() }()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, log); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg config.App, log *zap.Logger) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	if cfg.MigrationsAuto {
		if err := store.Migrate(ctx, db); err != nil {
			return err
		}
	}

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	var counter verify.AttemptCounter
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
		counter = verify.NewMemoryCounter()
	} else {
		q = queue.NewRedisQueue(redisClient.Client, cfg.CommitQueueKey)
		counter = verify.NewRedisCounter(redisClient.Client, cfg.AttemptTTL)
	}

	extract := extractor.New(cfg.ExtractorURL, cfg.ExtractorSkip, cfg.MinQualityFloor)

	sessions := session.NewManager(session.NewPostgresRepository(db.Client), log)
	templates := enrollment.NewService(enrollment.NewPostgresStore(db.Client), extract, cfg.EnrollQualityMin, log)
	trail := audit.NewTrail(audit.NewPostgresStore(db.Client), log)
	publisher := notify.NewCommitPublisher(q)
	recorder := record.NewRecorder(record.NewPostgresRepository(db.Client), publisher, log)
	notifyStore := notify.NewPostgresStore(db.Client)
	pipeline := verify.NewPipeline(sessions, templates, extract, match.NewEngine(),
		recorder, counter, trail, cfg.ExtractTimeout, log)
	tokens := auth.NewTokenStore(db.Client)

	// With the in-memory queue there is no separate worker process, so run
	// the dispatcher in here.
	if cfg.QueueBackend == "memory" {
		dispatcher := notify.NewDispatcher(notifyStore, recorder, log)
		go func() {
			if err := dispatcher.Run(ctx, q); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("dispatcher stopped", zap.Error(err))
			}
		}()
	}

	// Capture image store (nil when not configured; audit entries then go
	// without an image reference).
	var captures *imagestore.Client
	if cfg.CloudinaryCloudName != "" && cfg.CloudinaryAPIKey != "" && cfg.CloudinaryAPISecret != "" {
		captures = imagestore.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		log.Info("capture image store configured", zap.String("cloud", cfg.CloudinaryCloudName))
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		rctx := c.Request.Context()
		redisHealthy := redisClient.Healthy(rctx)
		dbHealthy := db.Client.PingContext(rctx) == nil
		extractorHealthy := extract.Health(rctx) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"status":    "ok",
			"db":        dbHealthy,
			"redis":     redisHealthy,
			"extractor": extractorHealthy,
		})
	})

	r.POST("/v1/devices/register", func(c *gin.Context) {
		var req struct {
			DeviceID string `json:"device_id" binding:"required"`
			Role     string `json:"role"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		role := req.Role
		if role == "" {
			role = auth.RoleKiosk
		}
		if role != auth.RoleKiosk && role != auth.RoleTeacher {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown role"})
			return
		}

		pair, err := auth.Issue(req.DeviceID, role, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		_ = tokens.SaveRefreshToken(c.Request.Context(), req.DeviceID, pair.RefreshToken, pair.RefreshExp)

		c.JSON(http.StatusCreated, gin.H{
			"access_token":  pair.AccessToken,
			"refresh_token": pair.RefreshToken,
			"expires_at":    pair.AccessExp.Unix(),
		})
	})

	authed := r.Group("/v1", auth.Bearer(cfg.JWTSigningKey, cfg.JWTIssuer))
	admin := authed.Group("", auth.RequireRole(auth.RoleTeacher))

	admin.POST("/sessions", func(c *gin.Context) {
		var req struct {
			SubjectID  string              `json:"subject_id" binding:"required"`
			TeacherID  string              `json:"teacher_id" binding:"required"`
			Date       string              `json:"date"`
			Mode       string              `json:"mode"`
			Thresholds *session.Thresholds `json:"thresholds"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		day := time.Now().UTC()
		if req.Date != "" {
			parsed, err := time.Parse("2006-01-02", req.Date)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
				return
			}
			day = parsed
		}
		mode := session.ModeFaceScan
		if req.Mode != "" {
			mode = session.Mode(req.Mode)
		}
		th := session.Thresholds{
			Confidence:  cfg.DefaultConfidence,
			Liveness:    cfg.DefaultLiveness,
			MaxAttempts: cfg.DefaultMaxTries,
		}
		if req.Thresholds != nil {
			th = *req.Thresholds
		}

		s, err := sessions.Open(c.Request.Context(), req.SubjectID, req.TeacherID, day, mode, th)
		if err != nil {
			respondError(c, err)
			return
		}
		metrics.SessionsOpened.Inc()
		c.JSON(http.StatusCreated, s)
	})

	admin.POST("/sessions/:id/close", func(c *gin.Context) {
		if err := sessions.Close(c.Request.Context(), c.Param("id")); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "closed"})
	})

	admin.PUT("/sessions/:id/thresholds", func(c *gin.Context) {
		var th session.Thresholds
		if err := c.ShouldBindJSON(&th); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := sessions.SetThresholds(c.Request.Context(), c.Param("id"), th); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "updated"})
	})

	authed.GET("/sessions/active", func(c *gin.Context) {
		day := time.Now().UTC()
		if v := c.Query("date"); v != "" {
			parsed, err := time.Parse("2006-01-02", v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
				return
			}
			day = parsed
		}
		s, err := sessions.GetActive(c.Request.Context(), c.Query("subject_id"), c.Query("teacher_id"), day)
		if err != nil {
			respondError(c, err)
			return
		}
		if s == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no active session"})
			return
		}
		c.JSON(http.StatusOK, s)
	})

	authed.POST("/enrollments", func(c *gin.Context) {
		studentID, img, contentType, err := imageRequest(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		tpl, err := templates.Setup(c.Request.Context(), studentID, img, contentType)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, tpl)
	})

	authed.POST("/sessions/:id/verify", func(c *gin.Context) {
		studentID, img, contentType, err := imageRequest(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		imageRef := ""
		if captures != nil {
			if uploaded, err := captures.UploadBytes(img, studentID+".jpg"); err != nil {
				log.Warn("capture upload failed", zap.Error(err))
			} else {
				imageRef = uploaded.SecureURL
			}
		}

		out, err := pipeline.Verify(c.Request.Context(), verify.Request{
			SessionID:   c.Param("id"),
			StudentID:   studentID,
			Image:       img,
			ContentType: contentType,
			ImageRef:    imageRef,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		status := http.StatusOK
		if out.Code == verify.OutcomeMatched {
			status = http.StatusCreated
		}
		c.JSON(status, out)
	})

	admin.GET("/sessions/:id/attempts", func(c *gin.Context) {
		limit, offset := 50, 0
		if v := c.Query("limit"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				limit = parsed
			}
		}
		if v := c.Query("offset"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				offset = parsed
			}
		}
		attempts, err := trail.List(c.Request.Context(), c.Param("id"), c.Query("student_id"), limit, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"attempts": attempts})
	})

	admin.POST("/sessions/:id/records", func(c *gin.Context) {
		var req struct {
			StudentID string `json:"student_id" binding:"required"`
			Status    string `json:"status" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s, err := sessions.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		rec, err := recorder.Commit(c.Request.Context(), s, req.StudentID,
			record.Status(req.Status), session.ModeManual, nil)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, rec)
	})

	admin.PATCH("/records/:id", func(c *gin.Context) {
		var req struct {
			Status string `json:"status" binding:"required"`
			Reason string `json:"reason" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		claims, _ := auth.ClaimsFrom(c)
		rec, err := recorder.Amend(c.Request.Context(), c.Param("id"), claims.Subject,
			record.Status(req.Status), req.Reason)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, rec)
	})

	authed.GET("/notifications", func(c *gin.Context) {
		claims, ok := auth.ClaimsFrom(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing credentials"})
			return
		}
		unreadOnly := c.Query("unread") == "true"
		items, err := notifyStore.ListForUser(c.Request.Context(), claims.Subject, unreadOnly, 50)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"notifications": items})
	})

	authed.POST("/notifications/:id/read", func(c *gin.Context) {
		if err := notifyStore.MarkRead(c.Request.Context(), c.Param("id")); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "read"})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("forced shutdown", zap.Error(err))
	}
	log.Info("server exited")
	return nil
}

// imageRequest pulls the claimed student id and image bytes out of either a
// multipart form or a JSON body with a base64 data URL.
func imageRequest(c *gin.Context) (studentID string, img []byte, contentType string, err error) {
	ct := c.ContentType()
	if strings.Contains(ct, "multipart/form-data") {
		studentID = c.PostForm("student_id")
		if studentID == "" {
			return "", nil, "", errors.New("student_id field required")
		}
		file, header, ferr := c.Request.FormFile("file")
		if ferr != nil {
			return "", nil, "", errors.New("file field required")
		}
		defer file.Close()
		img, ferr = io.ReadAll(file)
		if ferr != nil {
			return "", nil, "", ferr
		}
		return studentID, img, header.Header.Get("Content-Type"), nil
	}

	var body struct {
		StudentID string `json:"student_id" binding:"required"`
		Data      string `json:"data" binding:"required"`
	}
	if berr := c.ShouldBindJSON(&body); berr != nil {
		return "", nil, "", errors.New(`provide {"student_id": "...", "data": "<base64 data URL>"}`)
	}
	img, contentType, err = decodeDataURL(body.Data)
	if err != nil {
		return "", nil, "", err
	}
	return body.StudentID, img, contentType, nil
}

// decodeDataURL accepts "data:image/jpeg;base64,..." or raw base64.
func decodeDataURL(data string) ([]byte, string, error) {
	contentType := "image/jpeg"
	if strings.HasPrefix(data, "data:") {
		rest := data[len("data:"):]
		semi := strings.Index(rest, ";base64,")
		if semi < 0 {
			return nil, "", errors.New("data URL must be base64 encoded")
		}
		contentType = rest[:semi]
		data = rest[semi+len(";base64,"):]
	}
	img, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, "", errors.New("invalid base64 image data")
	}
	return img, contentType, nil
}

// respondError maps domain errors onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrInvalidConfig),
		errors.Is(err, record.ErrInvalidStatus),
		errors.Is(err, record.ErrReasonRequired),
		errors.Is(err, verify.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, record.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrAlreadyClosed),
		errors.Is(err, session.ErrActiveExists),
		errors.Is(err, session.ErrInactive),
		errors.Is(err, record.ErrDuplicateAttendance):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, verify.ErrNotEnrolled),
		errors.Is(err, enrollment.ErrQualityTooLow),
		errors.Is(err, extractor.ErrNoFace),
		errors.Is(err, extractor.ErrMultipleFaces),
		errors.Is(err, extractor.ErrLowQuality):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// CORS middleware for browser requests.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// Security headers middleware.
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
