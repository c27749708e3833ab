package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/reviewloop/reviewloop-api/internal/models"
	"github.com/reviewloop/reviewloop-api/internal/service"
	"github.com/reviewloop/reviewloop-api/pkg/response"
)

// DispatchHandler exposes the invitation dispatcher to operators.
type DispatchHandler struct {
	service *service.DispatchService
}

// NewDispatchHandler constructs a dispatch handler.
func NewDispatchHandler(svc *service.DispatchService) *DispatchHandler {
	return &DispatchHandler{service: svc}
}

// RunSweep godoc
// @Summary Run the daily invitation sweep on demand
// @Tags Dispatch
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /dispatch/sweep [post]
func (h *DispatchHandler) RunSweep(c *gin.Context) {
	report, err := h.service.RunDailySweep(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// DispatchNow godoc
// @Summary Send the invitation wave for one subject and moment immediately
// @Tags Dispatch
// @Produce json
// @Security BearerAuth
// @Param id path string true "Subject ID"
// @Param moment path string true "Moment (DURING, AFTER)"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /subjects/{id}/dispatch/{moment} [post]
func (h *DispatchHandler) DispatchNow(c *gin.Context) {
	moment := models.Moment(strings.ToUpper(c.Param("moment")))
	receipt, err := h.service.DispatchNow(c.Request.Context(), c.Param("id"), moment)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, receipt, nil)
}
