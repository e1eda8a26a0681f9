package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/leadership-program/nomination-api/internal/dto"
	"github.com/leadership-program/nomination-api/internal/middleware"
	"github.com/leadership-program/nomination-api/internal/models"
	"github.com/leadership-program/nomination-api/pkg/response"
)

type nominationService interface {
	Create(ctx context.Context, req dto.CreateNominationRequest) (*models.Nomination, error)
	CreateDirectInvitation(ctx context.Context, req dto.DirectInvitationRequest) (*dto.InvitationResult, error)
	Get(ctx context.Context, id string) (*models.Nomination, error)
	List(ctx context.Context, query dto.NominationQuery) ([]models.Nomination, *models.Pagination, error)
	Stats(ctx context.Context) (*models.NominationStats, bool, error)
	Update(ctx context.Context, id string, req dto.UpdateNominationRequest) (*models.Nomination, error)
	Delete(ctx context.Context, id string) error
	Approve(ctx context.Context, id string, notes *string) (*models.Nomination, error)
	Reject(ctx context.Context, id string, reason *string) (*models.Nomination, error)
}

// NominationHandler exposes the nomination intake and review endpoints.
type NominationHandler struct {
	service nominationService
}

// NewNominationHandler constructs the handler.
func NewNominationHandler(service nominationService) *NominationHandler {
	return &NominationHandler{service: service}
}

// Create godoc
// @Summary Submit a nomination
// @Description Public nomination form. The nominator receives a confirmation email.
// @Tags Nominations
// @Accept json
// @Produce json
// @Param payload body dto.CreateNominationRequest true "Nomination payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /nominations [post]
func (h *NominationHandler) Create(c *gin.Context) {
	var req dto.CreateNominationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid nomination payload"))
		return
	}
	nomination, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.NewNominationResponse(nomination))
}

// CreateInvitation godoc
// @Summary Invite a nominee directly
// @Description Creates an already approved nomination and returns its registration link
// @Tags Nominations
// @Accept json
// @Produce json
// @Param payload body dto.DirectInvitationRequest true "Invitation payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /nominations/invitations [post]
func (h *NominationHandler) CreateInvitation(c *gin.Context) {
	var req dto.DirectInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid invitation payload"))
		return
	}
	result, err := h.service.CreateDirectInvitation(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{
		"nomination":       dto.NewNominationResponse(result.Nomination),
		"registration_url": result.RegistrationURL,
	})
}

// List godoc
// @Summary List nominations
// @Tags Nominations
// @Produce json
// @Param status query string false "pending, approved, rejected, registered, awaiting_approval, active, completed"
// @Param event_id query string false "Program identifier"
// @Param search query string false "Name or email"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /nominations [get]
func (h *NominationHandler) List(c *gin.Context) {
	var query dto.NominationQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, bindError(err, "invalid query parameters"))
		return
	}
	items, pagination, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewNominationResponses(items), pagination)
}

// Stats godoc
// @Summary Nomination statistics
// @Tags Nominations
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /nominations/stats [get]
func (h *NominationHandler) Stats(c *gin.Context) {
	stats, cacheHit, err := h.service.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, stats, nil, middleware.ExtractMeta(c))
}

// Get godoc
// @Summary Get nomination
// @Tags Nominations
// @Produce json
// @Param id path string true "Nomination ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /nominations/{id} [get]
func (h *NominationHandler) Get(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	nomination, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewNominationResponse(nomination), nil)
}

// Update godoc
// @Summary Edit admin notes or motivation
// @Tags Nominations
// @Accept json
// @Produce json
// @Param id path string true "Nomination ID"
// @Param payload body dto.UpdateNominationRequest true "Fields to update"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /nominations/{id} [put]
func (h *NominationHandler) Update(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.UpdateNominationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid nomination payload"))
		return
	}
	nomination, err := h.service.Update(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewNominationResponse(nomination), nil)
}

// Delete godoc
// @Summary Delete nomination
// @Tags Nominations
// @Param id path string true "Nomination ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /nominations/{id} [delete]
func (h *NominationHandler) Delete(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Approve godoc
// @Summary Approve nomination
// @Description Moves a pending nomination to approved and emails the nominee a registration link
// @Tags Nominations
// @Accept json
// @Produce json
// @Param id path string true "Nomination ID"
// @Param payload body dto.ReviewRequest false "Optional admin notes"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /nominations/{id}/approve [post]
func (h *NominationHandler) Approve(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	req, err := bindReview(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	nomination, err := h.service.Approve(c.Request.Context(), id, req.Notes)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewNominationResponse(nomination), nil)
}

// Reject godoc
// @Summary Reject nomination
// @Tags Nominations
// @Accept json
// @Produce json
// @Param id path string true "Nomination ID"
// @Param payload body dto.ReviewRequest false "Optional reason"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /nominations/{id}/reject [post]
func (h *NominationHandler) Reject(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	req, err := bindReview(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	nomination, err := h.service.Reject(c.Request.Context(), id, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewNominationResponse(nomination), nil)
}

// bindReview accepts an empty body since notes and reason are optional.
func bindReview(c *gin.Context) (dto.ReviewRequest, error) {
	var req dto.ReviewRequest
	if c.Request.ContentLength == 0 {
		return req, nil
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		return req, bindError(err, "invalid review payload")
	}
	return req, nil
}
