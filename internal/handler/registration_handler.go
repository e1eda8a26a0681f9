package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/leadership-program/nomination-api/internal/dto"
	"github.com/leadership-program/nomination-api/internal/models"
	"github.com/leadership-program/nomination-api/pkg/response"
)

type registrationService interface {
	GetPublic(ctx context.Context, id string) (*dto.RegistrationView, error)
	Register(ctx context.Context, id string, data models.RegistrationData) (*dto.RegistrationAck, error)
}

// RegistrationHandler serves the public registration page.
type RegistrationHandler struct {
	service registrationService
}

// NewRegistrationHandler constructs the handler.
func NewRegistrationHandler(service registrationService) *RegistrationHandler {
	return &RegistrationHandler{service: service}
}

// Get godoc
// @Summary Registration page data
// @Description Returns the limited nomination view the registration form needs
// @Tags Registration
// @Produce json
// @Param id path string true "Nomination ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /registration/{id} [get]
func (h *RegistrationHandler) Get(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	view, err := h.service.GetPublic(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// Register godoc
// @Summary Submit registration
// @Description Stores the nominee's profile once. A second submission returns 409.
// @Tags Registration
// @Accept json
// @Produce json
// @Param id path string true "Nomination ID"
// @Param payload body models.RegistrationData true "Registration profile"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /nominations/{id}/register [post]
func (h *RegistrationHandler) Register(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var data models.RegistrationData
	if err := c.ShouldBindJSON(&data); err != nil {
		response.Error(c, bindError(err, "invalid registration payload"))
		return
	}
	ack, err := h.service.Register(c.Request.Context(), id, data)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, ack)
}
