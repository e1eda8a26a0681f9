package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/leadership-program/nomination-api/internal/dto"
	appErrors "github.com/leadership-program/nomination-api/pkg/errors"
	"github.com/leadership-program/nomination-api/pkg/response"
)

type diplomaService interface {
	Preview(ctx context.Context, id string) (*dto.Artifact, error)
	Generate(ctx context.Context, id string) (*dto.Artifact, error)
	Send(ctx context.Context, id string) (*dto.SendDiplomaResult, error)
	Download(ctx context.Context, token string) (*dto.Artifact, error)
}

// DiplomaHandler renders, delivers and serves diplomas.
type DiplomaHandler struct {
	service diplomaService
}

// NewDiplomaHandler constructs the handler.
func NewDiplomaHandler(service diplomaService) *DiplomaHandler {
	return &DiplomaHandler{service: service}
}

// Preview godoc
// @Summary Preview diploma
// @Tags Diplomas
// @Produce application/pdf
// @Param id path string true "Nomination ID"
// @Success 200 {file} file
// @Failure 412 {object} response.Envelope
// @Router /training-participants/{id}/preview-diploma [get]
func (h *DiplomaHandler) Preview(c *gin.Context) {
	h.serve(c, h.service.Preview, true)
}

// Generate godoc
// @Summary Generate diploma PDF
// @Tags Diplomas
// @Produce application/pdf
// @Param id path string true "Nomination ID"
// @Success 200 {file} file
// @Failure 412 {object} response.Envelope
// @Router /training-participants/{id}/generate-diploma [post]
func (h *DiplomaHandler) Generate(c *gin.Context) {
	h.serve(c, h.service.Generate, false)
}

// Send godoc
// @Summary Send diploma
// @Description Provisions the member account, emails the PDF and marks the diploma sent
// @Tags Diplomas
// @Produce json
// @Param id path string true "Nomination ID"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /training-participants/{id}/send-diploma [post]
func (h *DiplomaHandler) Send(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.service.Send(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Download godoc
// @Summary Download an archived diploma
// @Tags Diplomas
// @Produce application/pdf
// @Param token path string true "Signed download token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /diplomas/download/{token} [get]
func (h *DiplomaHandler) Download(c *gin.Context) {
	token := strings.TrimSpace(c.Param("token"))
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	artifact, err := h.service.Download(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, artifact.Filename, artifact.ContentType, artifact.Data, false)
}

func (h *DiplomaHandler) serve(c *gin.Context, render func(context.Context, string) (*dto.Artifact, error), inline bool) {
	id, err := idParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	artifact, err := render(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, artifact.Filename, artifact.ContentType, artifact.Data, inline)
}
