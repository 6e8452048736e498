package v1

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/dhawansolanki/weavium-ai/internal/domain"
)

type createConversationRequest struct {
	ConversationID string `json:"conversation_id"`
	Title          string `json:"title"`
}

type addMessageRequest struct {
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
	Content  string `json:"content"`
}

// CreateConversation creates a conversation. A missing id is generated.
// POST /v1/conversations
func (h *Handler) CreateConversation(c echo.Context) error {
	var req createConversationRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.ConversationID == "" {
		req.ConversationID = uuid.New().String()
	}

	conv, err := h.service.CreateConversation(c.Request().Context(), req.ConversationID, req.Title)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusCreated, conv)
}

// ListRecentConversations lists conversations by latest activity.
// GET /v1/conversations?limit=
func (h *Handler) ListRecentConversations(c echo.Context) error {
	limit := 0
	if l := c.QueryParam("limit"); l != "" {
		val, err := strconv.Atoi(l)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "limit must be an integer"})
		}
		limit = val
	}

	conversations, err := h.service.GetRecentConversations(c.Request().Context(), limit)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"conversations": conversations,
	})
}

// GetConversationMessages returns a conversation's history.
// GET /v1/conversations/:conversation_id/messages
func (h *Handler) GetConversationMessages(c echo.Context) error {
	messages, err := h.service.GetConversationHistory(c.Request().Context(), c.Param("conversation_id"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"messages": messages,
	})
}

// AddMessage appends a message, creating the conversation if needed.
// POST /v1/conversations/:conversation_id/messages
func (h *Handler) AddMessage(c echo.Context) error {
	var req addMessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	msg, err := h.service.AddMessage(c.Request().Context(), c.Param("conversation_id"), req.Sender, req.Receiver, req.Content)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusCreated, msg)
}

// GetLastMessage returns the newest message matching the query filters.
// GET /v1/messages/last?conversation_id=&sender=&receiver=
func (h *Handler) GetLastMessage(c echo.Context) error {
	filter := domain.MessageFilter{
		ConversationID: c.QueryParam("conversation_id"),
		Sender:         c.QueryParam("sender"),
		Receiver:       c.QueryParam("receiver"),
	}

	msg, err := h.service.GetLastMessage(c.Request().Context(), filter)
	if err != nil {
		return errorJSON(c, err)
	}
	if msg == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "no matching message"})
	}
	return c.JSON(http.StatusOK, msg)
}
