package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"delivery-service/internal/service"
	"delivery-service/internal/store"
	"delivery-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// storageRetryDelay is the backoff before the single in-handler retry on
// a storage failure
const storageRetryDelay = 200 * time.Millisecond

// Handler contains HTTP handlers
type Handler struct {
	orderService *service.OrderService
	tokenService *service.TokenService
	fileService  *service.FileService
}

// NewHandler creates a new HTTP handler
func NewHandler(
	orderService *service.OrderService,
	tokenService *service.TokenService,
	fileService *service.FileService,
) *Handler {
	return &Handler{
		orderService: orderService,
		tokenService: tokenService,
		fileService:  fileService,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/api/download/:token", h.download)
	router.GET("/api/download/:token/files", h.downloadFiles)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/orders", h.createOrder)
		v1.GET("/orders/:id", h.getOrder)
		v1.POST("/orders/:id/download-token", h.issueToken)
		v1.POST("/products/:id/files", h.registerUpload)
		v1.GET("/files/:id/verify", h.verifyFile)
		v1.DELETE("/files/:id", h.deleteFile)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// download resolves a token and delivers the files. A single-file order
// gets a redirect straight to its presigned URL; anything else gets the
// JSON listing.
func (h *Handler) download(c *gin.Context) {
	delivery, err := h.resolveWithRetry(c)
	if err != nil {
		h.deliveryError(c, err)
		return
	}

	if len(delivery.Files) == 1 {
		c.Redirect(http.StatusFound, delivery.Files[0].URL)
		return
	}

	c.JSON(http.StatusOK, delivery)
}

// downloadFiles resolves a token and always returns the JSON listing
func (h *Handler) downloadFiles(c *gin.Context) {
	delivery, err := h.resolveWithRetry(c)
	if err != nil {
		h.deliveryError(c, err)
		return
	}

	c.JSON(http.StatusOK, delivery)
}

// resolveWithRetry retries once on a storage failure; invalid and
// expired tokens fail immediately.
func (h *Handler) resolveWithRetry(c *gin.Context) (*service.Delivery, error) {
	delivery, err := h.tokenService.ResolveToken(c.Request.Context(), c.Param("token"))
	if errors.Is(err, service.ErrStorageUnavailable) {
		time.Sleep(storageRetryDelay)
		delivery, err = h.tokenService.ResolveToken(c.Request.Context(), c.Param("token"))
	}
	return delivery, err
}

// deliveryError maps token resolution errors to HTTP responses. Invalid
// and expired are both 404-class but carry distinct messages.
func (h *Handler) deliveryError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidToken):
		c.JSON(http.StatusNotFound, gin.H{
			"error": "This download link is invalid",
		})
	case errors.Is(err, service.ErrExpiredToken):
		c.JSON(http.StatusNotFound, gin.H{
			"error": "This download link has expired, request a new one",
		})
	case errors.Is(err, service.ErrStorageUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "File storage is temporarily unavailable, try again shortly",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to resolve download",
		})
	}
}

// createOrder handles checkout ingestion
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	resp, err := h.orderService.CreateOrder(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Unknown product in order",
				"details": err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to create order",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := paramID(c, "id")
	if !ok {
		return
	}

	order, items, err := h.orderService.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Order not found",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order": order,
		"items": items,
	})
}

// issueToken mints a fresh download token for a completed order (the
// customer-portal "resend link" path)
func (h *Handler) issueToken(c *gin.Context) {
	orderID, ok := paramID(c, "id")
	if !ok {
		return
	}

	issued, err := h.tokenService.IssueToken(c.Request.Context(), orderID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOrderNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Order not found",
			})
		case errors.Is(err, service.ErrOrderNotCompleted):
			c.JSON(http.StatusConflict, gin.H{
				"error": "Order is not completed yet",
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "Failed to issue download token",
				"details": err.Error(),
			})
		}
		return
	}

	c.JSON(http.StatusCreated, issued)
}

// registerUpload registers a product file and returns a presigned upload URL
func (h *Handler) registerUpload(c *gin.Context) {
	productID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req service.RegisterUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	slot, err := h.fileService.RegisterUpload(c.Request.Context(), productID, &req)
	if err != nil {
		h.fileError(c, err, "Failed to register upload")
		return
	}

	c.JSON(http.StatusCreated, slot)
}

// verifyFile checks the asset's object exists in storage
func (h *Handler) verifyFile(c *gin.Context) {
	fileID, ok := paramID(c, "id")
	if !ok {
		return
	}

	asset, exists, err := h.fileService.VerifyFile(c.Request.Context(), fileID)
	if err != nil {
		h.fileError(c, err, "Failed to verify file")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"asset":  asset,
		"exists": exists,
	})
}

// deleteFile removes a file asset and its object
func (h *Handler) deleteFile(c *gin.Context) {
	fileID, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := h.fileService.DeleteFile(c.Request.Context(), fileID); err != nil {
		h.fileError(c, err, "Failed to delete file")
		return
	}

	c.Status(http.StatusNoContent)
}

// fileError maps file-management errors to HTTP responses
func (h *Handler) fileError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Not found",
		})
	case errors.Is(err, service.ErrStorageUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "File storage is temporarily unavailable, try again shortly",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   msg,
			"details": err.Error(),
		})
	}
}

func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid " + name,
		})
		return 0, false
	}
	return id, true
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
