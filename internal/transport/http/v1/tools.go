package v1

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"
)

type invokeToolRequest struct {
	Caller string          `json:"caller"`
	Args   json.RawMessage `json:"args"`
}

// ListTools lists the registered tools.
// GET /v1/tools
func (h *Handler) ListTools(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"tools": h.tools.List(),
	})
}

// InvokeTool runs a tool on behalf of the caller.
// POST /v1/tools/:tool_name/invoke
func (h *Handler) InvokeTool(c echo.Context) error {
	var req invokeToolRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	out, err := h.tools.Execute(c.Request().Context(), req.Caller, c.Param("tool_name"), req.Args)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSONBlob(http.StatusOK, out)
}
