package handlers

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/proctor/internal/logging"
	"github.com/example/proctor/internal/report"
	"github.com/example/proctor/internal/verification"
)

// MaxUploadSize is the default request body limit. A base64 encoded 5 MB
// image fits comfortably.
const MaxUploadSize = 8 << 20

// Verifier produces a verification report for one image.
type Verifier interface {
	Verify(ctx context.Context, image []byte) (report.Report, error)
}

// Enroller registers a face and returns its identity token.
type Enroller interface {
	Enroll(ctx context.Context, image []byte, fullName string) (string, error)
}

// Options tunes RegisterRoutes. Zero values are valid.
type Options struct {
	MaxBodyBytes int64
	// Auth guards /enroll and /verify when set.
	Auth gin.HandlerFunc
	// Metrics is served on GET /metrics when set.
	Metrics http.Handler
	Logger  *zap.Logger
}

type enrollRequest struct {
	Image    string `json:"image" binding:"required"`
	FullName string `json:"fullName" binding:"required"`
}

type verifyRequest struct {
	Image string `json:"image" binding:"required"`
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, verifier Verifier, enroller Enroller, opts Options) {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = MaxUploadSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router.Use(CORS())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(opts.Metrics))
	}

	guarded := router.Group("/")
	guarded.Use(limitBody(opts.MaxBodyBytes))
	if opts.Auth != nil {
		guarded.Use(opts.Auth)
	}

	guarded.POST("/enroll", func(c *gin.Context) {
		var req enrollRequest
		if !bindRequest(c, &req) {
			return
		}
		image, err := decodeImage(req.Image)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "image must be base64 encoded"})
			return
		}

		ctx := withRequestID(c)
		token, err := enroller.Enroll(ctx, image, req.FullName)
		switch {
		case errors.Is(err, verification.ErrInvalidImage), errors.Is(err, verification.ErrMissingFullName):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		case err != nil:
			logging.WithOperation(logger, "handlers.enroll", logging.RequestID(ctx)).Error("enrollment failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"ExternalImageId": token})
	})

	guarded.POST("/verify", func(c *gin.Context) {
		var req verifyRequest
		if !bindRequest(c, &req) {
			return
		}
		image, err := decodeImage(req.Image)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "image must be base64 encoded"})
			return
		}

		result, err := verifier.Verify(withRequestID(c), image)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	})
}

func bindRequest(c *gin.Context, req any) bool {
	err := c.ShouldBindJSON(req)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
		return false
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
	return false
}

func limitBody(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

func withRequestID(c *gin.Context) context.Context {
	requestID := c.GetHeader("X-Request-Id")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-Id", requestID)
	return logging.ContextWithRequestID(c.Request.Context(), requestID)
}

// decodeImage accepts standard base64 with or without padding, optionally
// behind a data URL prefix.
func decodeImage(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "data:") {
		if i := strings.Index(raw, ","); i >= 0 {
			raw = raw[i+1:]
		}
	}
	image, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		image, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(raw, "="))
	}
	if err != nil {
		return nil, err
	}
	if len(image) == 0 {
		return nil, verification.ErrInvalidImage
	}
	return image, nil
}
