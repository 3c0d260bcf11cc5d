package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"scanhub/internal/services"
	"scanhub/pkg/logger"
)

type VulnerabilityHandler struct {
	vulnService services.VulnerabilityServiceMethods
	logger      *logger.Logger
}

func NewVulnerabilityHandler(vulnService services.VulnerabilityServiceMethods, log *logger.Logger) *VulnerabilityHandler {
	return &VulnerabilityHandler{vulnService: vulnService, logger: log}
}

func (h *VulnerabilityHandler) GetVulnerability(c *gin.Context) {
	detail, err := h.vulnService.GetVulnerability(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err, "Failed to get vulnerability")
		return
	}
	c.JSON(http.StatusOK, DataResponse{Data: detail})
}

func (h *VulnerabilityHandler) UpdateStatus(c *gin.Context) {
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Invalid request payload"})
		return
	}

	v, err := h.vulnService.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		respondError(c, h.logger, err, "Failed to update vulnerability")
		return
	}
	c.JSON(http.StatusOK, DataResponse{Data: v})
}
