// Package handlers exposes the prediction service over HTTP.
package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Brownie44l1/wound-api/internal/predict"
)

// FormField is the multipart field carrying the image.
const FormField = "file"

// multipartOverhead is the slack allowed on top of the file for multipart framing.
const multipartOverhead = 64 << 10

const (
	detailInvalidImage     = "Invalid image file."
	detailModelUnavailable = "Model failed to load."
	detailPredictionFailed = "Error processing the image."
	detailNoFile           = "No file uploaded."
	detailTooLarge         = "Uploaded file is too large."
)

// Predictor is the subset of predict.Service the handlers need.
type Predictor interface {
	Ping() string
	Available() bool
	Predict(ctx context.Context, data []byte) (predict.Result, error)
}

type PingResponse struct {
	Message string `json:"message"`
}

type PredictResponse struct {
	Class       string   `json:"Class"`
	Confidence  float64  `json:"Confidence"`
	Suggestions []string `json:"Suggestions"`
}

type ErrorResponse struct {
	Detail string `json:"detail"`
}

type Handler struct {
	svc            Predictor
	maxUploadBytes int64
	logger         *zap.Logger
}

func NewHandler(svc Predictor, maxUploadBytes int64, logger *zap.Logger) *Handler {
	return &Handler{
		svc:            svc,
		maxUploadBytes: maxUploadBytes,
		logger:         logger.Named("handlers"),
	}
}

func (h *Handler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, PingResponse{Message: h.svc.Ping()})
}

func (h *Handler) Predict(c *gin.Context) {
	if !h.svc.Available() {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Detail: detailModelUnavailable})
		return
	}

	bodyLimit := h.maxUploadBytes + multipartOverhead
	if c.Request.ContentLength > bodyLimit {
		h.logger.Warn("upload too large", zap.Int64("content_length", c.Request.ContentLength), zap.Int64("limit", h.maxUploadBytes))
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Detail: detailTooLarge})
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, bodyLimit)

	file, err := c.FormFile(FormField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.logger.Warn("upload too large", zap.Int64("limit", h.maxUploadBytes))
			c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Detail: detailTooLarge})
			return
		}
		h.logger.Warn("no file in request", zap.Error(err))
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Detail: detailNoFile})
		return
	}
	if file.Size > h.maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Detail: detailTooLarge})
		return
	}

	h.logger.Info("received file",
		zap.String("filename", file.Filename),
		zap.String("content_type", file.Header.Get("Content-Type")),
		zap.Int64("size", file.Size),
	)

	f, err := file.Open()
	if err != nil {
		h.logger.Error("error opening upload", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Detail: detailPredictionFailed})
		return
	}
	defer func() {
		if err := f.Close(); err != nil {
			h.logger.Warn("error closing upload", zap.Error(err))
		}
	}()

	data, err := io.ReadAll(io.LimitReader(f, h.maxUploadBytes+1))
	if err != nil {
		h.logger.Error("error reading upload", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Detail: detailPredictionFailed})
		return
	}

	result, err := h.svc.Predict(c.Request.Context(), data)
	if err != nil {
		status, detail := errorStatus(err)
		c.JSON(status, ErrorResponse{Detail: detail})
		return
	}

	c.JSON(http.StatusOK, PredictResponse{
		Class:       result.Class,
		Confidence:  result.Confidence,
		Suggestions: result.Suggestions,
	})
}

// errorStatus maps the service error taxonomy to a status and a fixed detail
// message. Causes never reach the client.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, predict.ErrInvalidImage):
		return http.StatusBadRequest, detailInvalidImage
	case errors.Is(err, predict.ErrModelUnavailable):
		return http.StatusInternalServerError, detailModelUnavailable
	default:
		return http.StatusInternalServerError, detailPredictionFailed
	}
}
