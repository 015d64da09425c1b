package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const RequestIDHeader = "X-Request-ID"

var allMethods = []string{
	http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
	http.MethodPatch, http.MethodDelete, http.MethodOptions,
}

// Browsers ignore a "*" Access-Control-Allow-Headers when credentials are
// allowed, so the accepted request headers are listed explicitly.
var allowedHeaders = []string{
	"Origin", "Accept", "Accept-Language", "Content-Language", "Content-Type",
	"Content-Length", "Authorization", "X-Requested-With", RequestIDHeader,
}

type RouterConfig struct {
	AllowedOrigin  string
	MaxUploadBytes int64
}

func NewRouter(svc Predictor, cfg RouterConfig, logger *zap.Logger) *gin.Engine {
	h := NewHandler(svc, cfg.MaxUploadBytes, logger)

	r := gin.New()
	r.MaxMultipartMemory = cfg.MaxUploadBytes
	r.Use(requestLogger(logger), recovery(logger))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.AllowedOrigin},
		AllowMethods:     allMethods,
		AllowHeaders:     allowedHeaders,
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/ping", h.Ping)
	r.POST("/predict", h.Predict)

	return r
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	logger = logger.Named("http")
	return func(c *gin.Context) {
		start := time.Now()

		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)

		c.Next()

		logger.Info("request",
			zap.String("request_id", id),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// recovery turns a panic in a handler into a 500 with the generic detail.
func recovery(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, rec any) {
		logger.Error("panic while handling request",
			zap.String("path", c.Request.URL.Path),
			zap.String("panic", fmt.Sprint(rec)),
			zap.Stack("stack"),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{Detail: detailPredictionFailed})
	})
}
