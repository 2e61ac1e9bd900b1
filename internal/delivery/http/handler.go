package http

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/seo401b/new-Allert/internal/domain"
)

const (
	serviceName    = "allert"
	serviceVersion = "1.0.0"

	defaultMaxUploadBytes = 50 << 20
	// Room for multipart headers, JSON framing and a data URL prefix
	bodyOverheadBytes = 64 << 10
)

// Resolver resolves the products pictured in an image against a catalog snapshot
type Resolver interface {
	ResolveAll(ctx context.Context, image domain.SourceImage, snapshot []domain.CatalogRow) ([]domain.ResolutionResult, error)
}

// ImagePreparer turns uploaded bytes into a SourceImage ready for the model
type ImagePreparer interface {
	Prepare(data []byte) (domain.SourceImage, error)
}

// HandlerConfig holds configuration for HTTP handlers
type HandlerConfig struct {
	MaxUploadBytes int64
	Logger         *slog.Logger
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	resolver       Resolver
	preparer       ImagePreparer
	catalog        []domain.CatalogRow
	maxUploadBytes int64
	validate       *validator.Validate
	logger         *slog.Logger
}

// NewHandler creates a new HTTP handler serving resolutions against catalog
func NewHandler(resolver Resolver, preparer ImagePreparer, catalog []domain.CatalogRow, cfg HandlerConfig) *Handler {
	h := &Handler{
		resolver:       resolver,
		preparer:       preparer,
		catalog:        catalog,
		maxUploadBytes: cfg.MaxUploadBytes,
		validate:       validator.New(),
		logger:         cfg.Logger,
	}
	if h.maxUploadBytes <= 0 {
		h.maxUploadBytes = defaultMaxUploadBytes
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h
}

// base64ImageRequest is the JSON body of the base64 upload variant
type base64ImageRequest struct {
	Base64Image string `json:"base64Image" validate:"required"`
}

// Root answers with a plain-text liveness banner
func (h *Handler) Root(c *gin.Context) {
	c.String(http.StatusOK, "Allert backend is running")
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"service":     serviceName,
		"version":     serviceVersion,
		"catalogRows": len(h.catalog),
	})
}

// AnalyzeImage resolves the products in a multipart upload (field "image")
func (h *Handler) AnalyzeImage(c *gin.Context) {
	if !h.limitBody(c, h.maxUploadBytes+bodyOverheadBytes) {
		return
	}

	file, err := c.FormFile("image")
	if err != nil {
		if isBodyTooLarge(err) {
			h.respondTooLarge(c)
			return
		}
		h.respondError(c, fmt.Errorf("%w: image file is required", domain.ErrInvalidRequest))
		return
	}
	if file.Size > h.maxUploadBytes {
		h.respondTooLarge(c)
		return
	}

	f, err := file.Open()
	if err != nil {
		h.respondError(c, fmt.Errorf("%w: opening upload: %w", domain.ErrInvalidRequest, err))
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, h.maxUploadBytes))
	if err != nil {
		h.respondError(c, fmt.Errorf("%w: reading upload: %w", domain.ErrInvalidRequest, err))
		return
	}

	h.resolve(c, data)
}

// AnalyzeImageBase64 resolves the products in a base64 encoded image sent as JSON
func (h *Handler) AnalyzeImageBase64(c *gin.Context) {
	// base64 inflates by a third
	if !h.limitBody(c, (h.maxUploadBytes+2)/3*4+bodyOverheadBytes) {
		return
	}

	var req base64ImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if isBodyTooLarge(err) {
			h.respondTooLarge(c)
			return
		}
		h.respondError(c, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.respondError(c, fmt.Errorf("%w: base64Image is required", domain.ErrInvalidRequest))
		return
	}

	data, err := base64.StdEncoding.DecodeString(stripDataURL(req.Base64Image))
	if err != nil {
		h.respondError(c, fmt.Errorf("%w: base64Image is not valid base64", domain.ErrInvalidRequest))
		return
	}
	if int64(len(data)) > h.maxUploadBytes {
		h.respondTooLarge(c)
		return
	}

	h.resolve(c, data)
}

// limitBody caps the request body before anything reads it. A declared
// length over the limit is rejected without reading.
func (h *Handler) limitBody(c *gin.Context, limit int64) bool {
	if c.Request.ContentLength > limit {
		h.respondTooLarge(c)
		return false
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	return true
}

func (h *Handler) respondTooLarge(c *gin.Context) {
	requestLogger(c, h.logger).Warn("request rejected",
		"status", http.StatusRequestEntityTooLarge,
		"content_length", c.Request.ContentLength,
	)
	c.JSON(http.StatusRequestEntityTooLarge, gin.H{
		"error": fmt.Sprintf("image exceeds %d bytes", h.maxUploadBytes),
	})
}

func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

func (h *Handler) resolve(c *gin.Context, data []byte) {
	image, err := h.preparer.Prepare(data)
	if err != nil {
		h.respondError(c, err)
		return
	}

	results, err := h.resolver.ResolveAll(c.Request.Context(), image, h.catalog)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, results)
}

// respondError maps domain errors onto HTTP status codes
func (h *Handler) respondError(c *gin.Context, err error) {
	status := statusFor(err)
	logger := requestLogger(c, h.logger)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "error", err)
	} else {
		logger.Warn("request rejected", "status", status, "error", err)
	}

	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrExtractionFailure):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrCatalogLoadFailure):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// stripDataURL drops a "data:<mime>;base64," prefix when present
func stripDataURL(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "data:") {
		return s
	}
	if _, payload, ok := strings.Cut(s, ";base64,"); ok {
		return payload
	}
	return s
}
