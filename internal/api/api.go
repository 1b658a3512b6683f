package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/folio-dev/folio/internal/engine"
	"github.com/folio-dev/folio/pkg/schema"
)

// StatusBody is returned by the status endpoint.
const StatusBody = "folio is running"

// LoadFailedBody is returned with a 200 when the working file cannot be read.
const LoadFailedBody = "Failed to load local data. Please refresh."

// Store is the part of the collection store the handlers need.
type Store interface {
	List(ctx context.Context) ([]schema.Collection, error)
	Upsert(ctx context.Context, record schema.Collection) ([]schema.Collection, error)
	Update(ctx context.Context, record schema.Collection) ([]schema.Collection, error)
	Delete(ctx context.Context, id int) ([]schema.Collection, error)
	Reinitialize(ctx context.Context) error
}

// DefaultReinitTimeout bounds the re-initialization a failed list triggers.
const DefaultReinitTimeout = 30 * time.Second

type Handler struct {
	Store  Store
	Logger *zap.Logger
	// ReinitTimeout bounds re-initialization after a failed list; zero means DefaultReinitTimeout.
	ReinitTimeout time.Duration
}

func (h *Handler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

func (h *Handler) ListProjects(c *gin.Context) {
	collections, err := h.Store.List(c.Request.Context())
	if errors.Is(err, context.Canceled) {
		// Client went away before anything was read.
		return
	}
	if err != nil {
		h.logger().Error("failed to load projects data", zap.Error(err))
		h.logger().Info("re-initializing files")

		// The re-sync outlives the request: a disconnecting client must not make
		// a reachable origin look unreachable.
		timeout := h.ReinitTimeout
		if timeout <= 0 {
			timeout = DefaultReinitTimeout
		}
		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), timeout)
		defer cancel()
		if err := h.Store.Reinitialize(ctx); err != nil {
			h.logger().Error("re-initialization failed", zap.Error(err))
		}
		c.JSON(http.StatusOK, LoadFailedBody)
		return
	}
	c.JSON(http.StatusOK, collections)
}

func (h *Handler) CreateProject(c *gin.Context) {
	var record schema.Collection
	if err := c.ShouldBindJSON(&record); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := h.Store.Upsert(c.Request.Context(), record); err != nil {
		h.logger().Error("failed to add project", zap.String("title", record.Title), zap.Error(err))
		h.writeError(c, err, http.StatusBadRequest)
		return
	}
	h.logger().Info("added project", zap.String("title", record.Title))
	c.String(http.StatusOK, fmt.Sprintf("Added %q", record.Title))
}

func (h *Handler) UpdateProject(c *gin.Context) {
	var record schema.Collection
	if err := c.ShouldBindJSON(&record); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := h.Store.Update(c.Request.Context(), record); err != nil {
		h.writeError(c, err, http.StatusNotFound)
		return
	}
	h.logger().Info("updated project", zap.String("title", record.Title))
	c.String(http.StatusOK, fmt.Sprintf("Updated %q", record.Title))
}

// deleteRequest is the subset of a Collection that DELETE looks at.
type deleteRequest struct {
	ID    *int   `json:"id" binding:"required"`
	Title string `json:"title"`
}

func (h *Handler) DeleteProject(c *gin.Context) {
	var input deleteRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := h.Store.Delete(c.Request.Context(), *input.ID); err != nil {
		h.writeError(c, err, http.StatusBadRequest)
		return
	}
	h.logger().Info("deleted project", zap.Int("id", *input.ID), zap.String("title", input.Title))
	c.String(http.StatusOK, fmt.Sprintf("Deleted %q", input.Title))
}

func (h *Handler) Status(c *gin.Context) {
	c.String(http.StatusOK, StatusBody)
}

// writeError maps store errors to responses. indexStatus is used for ids that
// do not address a record; everything else is a server error.
func (h *Handler) writeError(c *gin.Context, err error, indexStatus int) {
	var idxErr *engine.IndexError
	if errors.As(err, &idxErr) {
		c.JSON(indexStatus, gin.H{"error": err.Error(), "id": idxErr.ID})
		return
	}
	h.logger().Error("store operation failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
