package storage

import (
	"github.com/gin-gonic/gin"
	"github.com/simple-flow/find-image/internal/pkg/response"
)

// Handler serves stored images back to clients.
type Handler struct {
	storage *Storage
}

func NewHandler(storage *Storage) *Handler {
	return &Handler{storage: storage}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/images/:name", h.get)
}

func (h *Handler) get(c *gin.Context) {
	path := h.storage.Path(c.Param("name"))
	if path == "" {
		response.NotFound(c)
		return
	}

	c.Header("Cache-Control", "public, max-age=31536000")
	c.File(path)
}
