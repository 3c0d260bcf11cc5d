package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"scanhub/internal/services"
)

type ToolHandler struct {
	toolService services.ToolServiceMethods
}

func NewToolHandler(toolService services.ToolServiceMethods) *ToolHandler {
	return &ToolHandler{toolService: toolService}
}

func (h *ToolHandler) ListTools(c *gin.Context) {
	c.JSON(http.StatusOK, DataResponse{Data: gin.H{"tools": h.toolService.ListTools()}})
}
