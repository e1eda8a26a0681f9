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

type memberService interface {
	Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error)
	Me(ctx context.Context, memberID string) (*dto.MemberProfile, error)
	Diplomas(ctx context.Context, memberID string) ([]dto.MemberDiplomaView, error)
	ForgotPassword(ctx context.Context, req models.ForgotPasswordRequest) error
}

// MemberHandler serves the alumni member portal.
type MemberHandler struct {
	service memberService
}

// NewMemberHandler constructs the handler.
func NewMemberHandler(service memberService) *MemberHandler {
	return &MemberHandler{service: service}
}

// Login godoc
// @Summary Member login
// @Tags Members
// @Accept json
// @Produce json
// @Param payload body models.LoginRequest true "Login payload"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /members/login [post]
func (h *MemberHandler) Login(c *gin.Context) {
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
// @Summary Current member with diplomas
// @Tags Members
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /members/me [get]
func (h *MemberHandler) Me(c *gin.Context) {
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

// Diplomas godoc
// @Summary Member diplomas with signed download links
// @Tags Members
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /members/me/diplomas [get]
func (h *MemberHandler) Diplomas(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	diplomas, err := h.service.Diplomas(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, diplomas, nil)
}

// ForgotPassword godoc
// @Summary Reissue a member password
// @Description Emails a fresh password. The response is the same whether or not the email exists.
// @Tags Members
// @Accept json
// @Produce json
// @Param payload body models.ForgotPasswordRequest true "Member email"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /members/forgot-password [post]
func (h *MemberHandler) ForgotPassword(c *gin.Context) {
	var req models.ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid payload"))
		return
	}
	if err := h.service.ForgotPassword(c.Request.Context(), req); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, gin.H{"message": "if the email is registered, a new password has been sent"}, nil)
}
