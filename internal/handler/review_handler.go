package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/reviewloop/reviewloop-api/internal/models"
	"github.com/reviewloop/reviewloop-api/internal/service"
	appErrors "github.com/reviewloop/reviewloop-api/pkg/errors"
	"github.com/reviewloop/reviewloop-api/pkg/response"
)

// ReviewHandler handles submission endpoints, public and admin.
type ReviewHandler struct {
	service *service.ReviewService
}

// NewReviewHandler constructs a review handler.
func NewReviewHandler(svc *service.ReviewService) *ReviewHandler {
	return &ReviewHandler{service: svc}
}

// Submit godoc
// @Summary Submit a filled-in review
// @Tags Public
// @Accept json
// @Produce json
// @Param id path string true "Form ID"
// @Param payload body service.SubmitReviewRequest true "Answers"
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /public/forms/{id}/reviews [post]
func (h *ReviewHandler) Submit(c *gin.Context) {
	var req service.SubmitReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	review, err := h.service.Submit(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, review)
}

// GetByToken godoc
// @Summary Look up a submitted review by its receipt token
// @Tags Public
// @Produce json
// @Param token path string true "Review token"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /public/reviews/{token} [get]
func (h *ReviewHandler) GetByToken(c *gin.Context) {
	review, err := h.service.GetByToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, review, nil)
}

// ListByForm godoc
// @Summary List reviews submitted against a form
// @Tags Reviews
// @Produce json
// @Security BearerAuth
// @Param id path string true "Form ID"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /forms/{id}/reviews [get]
func (h *ReviewHandler) ListByForm(c *gin.Context) {
	filter := models.ReviewFilter{FormID: c.Param("id")}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = limit
	}

	reviews, pagination, err := h.service.ListByForm(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reviews, pagination)
}
