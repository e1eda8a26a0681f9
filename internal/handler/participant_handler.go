package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/leadership-program/nomination-api/internal/dto"
	"github.com/leadership-program/nomination-api/internal/models"
	appErrors "github.com/leadership-program/nomination-api/pkg/errors"
	"github.com/leadership-program/nomination-api/pkg/response"
)

type participantSessionService interface {
	Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error)
	Me(ctx context.Context, participantID string) (*dto.ParticipantProfile, error)
}

// ParticipantHandler serves the participant portal.
type ParticipantHandler struct {
	service participantSessionService
}

// NewParticipantHandler constructs the handler.
func NewParticipantHandler(service participantSessionService) *ParticipantHandler {
	return &ParticipantHandler{service: service}
}

// Login godoc
// @Summary Participant login
// @Tags Participants
// @Accept json
// @Produce json
// @Param payload body models.LoginRequest true "Login payload"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /participants/login [post]
func (h *ParticipantHandler) Login(c *gin.Context) {
	req, err := bindLogin(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	res, err := h.service.Login(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Me godoc
// @Summary Current participant
// @Tags Participants
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /participants/me [get]
func (h *ParticipantHandler) Me(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	profile, err := h.service.Me(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profile, nil)
}

func bindLogin(c *gin.Context) (models.LoginRequest, error) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return req, bindError(err, "invalid login payload")
	}
	req.IP = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")
	return req, nil
}
