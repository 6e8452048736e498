// Package v1 provides the HTTP handlers of the memory service.
package v1

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/dhawansolanki/weavium-ai/internal/domain"
	"github.com/dhawansolanki/weavium-ai/internal/service"
	"github.com/dhawansolanki/weavium-ai/internal/tools"
	"github.com/dhawansolanki/weavium-ai/internal/transport/ws"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
	tools   *tools.Registry
	stream  *ws.Server
}

// NewHandler creates a new handler. The tool registry and stream server are optional.
func NewHandler(service *service.Service, registry *tools.Registry, stream *ws.Server) *Handler {
	return &Handler{
		service: service,
		tools:   registry,
		stream:  stream,
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Conversations
	e.POST("/v1/conversations", h.CreateConversation)
	e.GET("/v1/conversations", h.ListRecentConversations)
	e.GET("/v1/conversations/:conversation_id/messages", h.GetConversationMessages)
	e.POST("/v1/conversations/:conversation_id/messages", h.AddMessage)
	e.GET("/v1/messages/last", h.GetLastMessage)
	if h.stream != nil {
		e.GET("/v1/conversations/:conversation_id/stream", h.stream.HandleStream)
	}

	// Memories
	e.POST("/v1/agents/:agent_name/memories", h.StoreMemory)
	e.GET("/v1/agents/:agent_name/memories", h.RetrieveMemories)
	e.PUT("/v1/memories/:memory_id", h.UpdateMemory)
	e.DELETE("/v1/memories/:memory_id", h.DeleteMemory)
	e.GET("/v1/memories/search", h.SearchMemories)

	// Tool API
	if h.tools != nil {
		e.GET("/v1/tools", h.ListTools)
		e.POST("/v1/tools/:tool_name/invoke", h.InvokeTool)
	}

	e.GET("/health", h.Health)
}

// Health returns health status with storage counts.
func (h *Handler) Health(c echo.Context) error {
	stats, err := h.service.Stats(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
			"error":  err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":        "healthy",
		"version":       "0.1.0",
		"read_only":     h.service.ReadOnly(),
		"conversations": stats.Conversations,
		"memories":      stats.Memories,
	})
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrPolicyDenied):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func errorJSON(c echo.Context, err error) error {
	return c.JSON(errorStatus(err), map[string]string{"error": err.Error()})
}
