package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/dhawansolanki/weavium-ai/internal/domain"
)

type storeMemoryRequest struct {
	MemoryType string         `json:"memory_type"`
	Content    domain.Content `json:"content"`
}

type updateMemoryRequest struct {
	Content domain.Content `json:"content"`
}

// StoreMemory stores a memory for the agent in the path.
// POST /v1/agents/:agent_name/memories
func (h *Handler) StoreMemory(c echo.Context) error {
	var req storeMemoryRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	mem, err := h.service.StoreMemory(c.Request().Context(), c.Param("agent_name"), req.MemoryType, req.Content)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusCreated, mem)
}

// RetrieveMemories lists an agent's memories.
// GET /v1/agents/:agent_name/memories?memory_type=
func (h *Handler) RetrieveMemories(c echo.Context) error {
	memories, err := h.service.RetrieveMemories(c.Request().Context(), c.Param("agent_name"), c.QueryParam("memory_type"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"memories": memories,
	})
}

// UpdateMemory replaces a memory's content.
// PUT /v1/memories/:memory_id
func (h *Handler) UpdateMemory(c echo.Context) error {
	id, err := memoryID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid memory_id"})
	}
	var req updateMemoryRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	updated, err := h.service.UpdateMemory(c.Request().Context(), id, req.Content)
	if err != nil {
		return errorJSON(c, err)
	}
	if !updated {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "memory not found"})
	}
	return c.JSON(http.StatusOK, map[string]bool{"updated": true})
}

// DeleteMemory removes a memory.
// DELETE /v1/memories/:memory_id
func (h *Handler) DeleteMemory(c echo.Context) error {
	id, err := memoryID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid memory_id"})
	}

	deleted, err := h.service.DeleteMemory(c.Request().Context(), id)
	if err != nil {
		return errorJSON(c, err)
	}
	if !deleted {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "memory not found"})
	}
	return c.NoContent(http.StatusNoContent)
}

// SearchMemories finds memories whose content contains q.
// GET /v1/memories/search?q=
func (h *Handler) SearchMemories(c echo.Context) error {
	memories, err := h.service.SearchMemories(c.Request().Context(), c.QueryParam("q"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"memories": memories,
	})
}

func memoryID(c echo.Context) (int64, error) {
	return strconv.ParseInt(c.Param("memory_id"), 10, 64)
}
