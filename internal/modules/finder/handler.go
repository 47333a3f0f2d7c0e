package finder

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/simple-flow/find-image/internal/models"
	"github.com/simple-flow/find-image/internal/pkg/response"
)

const serviceVersion = "1.0.0"

// Handler exposes the finder over HTTP.
type Handler struct {
	finder *Finder
}

func NewHandler(finder *Finder) *Handler {
	return &Handler{finder: finder}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/", h.root)
	r.GET("/health", h.health)
	r.POST("/", h.findImage)
	// Old endpoint kept for compatibility.
	r.POST("/find_image", h.findImage)
}

func (h *Handler) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "Image Finder API",
		"version": serviceVersion,
		"status":  "running",
	})
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (h *Handler) findImage(c *gin.Context) {
	var req models.ImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.finder.Find(c.Request.Context(), req)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, resp)
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"detail": "Request timeout"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
	}
}
