package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/reviewloop/reviewloop-api/internal/service"
	"github.com/reviewloop/reviewloop-api/pkg/response"
)

// ExportHandler serves review exports.
type ExportHandler struct {
	service *service.ExportService
}

// NewExportHandler constructs an export handler.
func NewExportHandler(svc *service.ExportService) *ExportHandler {
	return &ExportHandler{service: svc}
}

// ExportReviews godoc
// @Summary Export reviews of a form as CSV or PDF
// @Tags Reviews
// @Produce octet-stream
// @Security BearerAuth
// @Param id path string true "Form ID"
// @Param format query string false "Export format (csv, pdf)" default(csv)
// @Success 200 {file} file
// @Failure 404 {object} response.Envelope
// @Router /forms/{id}/reviews/export [get]
func (h *ExportHandler) ExportReviews(c *gin.Context) {
	formID := c.Param("id")
	format := c.DefaultQuery("format", "csv")

	payload, contentType, err := h.service.ExportReviews(c.Request.Context(), formID, format)
	if err != nil {
		response.Error(c, err)
		return
	}

	filename := fmt.Sprintf("reviews-%s-%s.%s", formID, time.Now().UTC().Format("20060102"), format)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, contentType, payload)
}
