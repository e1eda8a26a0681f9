package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/leadership-program/nomination-api/internal/dto"
	"github.com/leadership-program/nomination-api/internal/models"
	"github.com/leadership-program/nomination-api/pkg/response"
)

type trainingService interface {
	DecideRegistration(ctx context.Context, id string, req dto.RegistrationDecisionRequest) (*dto.DecisionResult, error)
	RecordAttendance(ctx context.Context, id string, req dto.AttendanceRequest) (*models.Nomination, error)
	ListTrainingParticipants(ctx context.Context, query dto.TrainingParticipantQuery) ([]dto.TrainingParticipant, *models.Pagination, error)
	GetTrainingParticipant(ctx context.Context, id string) (*dto.TrainingParticipant, error)
}

type rosterExporter interface {
	Roster(ctx context.Context, query dto.TrainingParticipantQuery) (*dto.Artifact, error)
}

// TrainingHandler exposes the admin side of the participant approval gate and attendance tracking.
type TrainingHandler struct {
	service  trainingService
	exporter rosterExporter
}

// NewTrainingHandler constructs the handler.
func NewTrainingHandler(service trainingService, exporter rosterExporter) *TrainingHandler {
	return &TrainingHandler{service: service, exporter: exporter}
}

// DecideRegistration godoc
// @Summary Approve or reject a registration
// @Description Approval creates or reuses the participant account and emails the portal credentials
// @Tags Training
// @Accept json
// @Produce json
// @Param id path string true "Nomination ID"
// @Param payload body dto.RegistrationDecisionRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /nominations/{id}/approve-registration [post]
func (h *TrainingHandler) DecideRegistration(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.RegistrationDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid decision payload"))
		return
	}
	result, err := h.service.DecideRegistration(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// List godoc
// @Summary List training participants
// @Tags Training
// @Produce json
// @Param status query string false "awaiting_approval, active, completed, rejected"
// @Param event_id query string false "Program identifier"
// @Param search query string false "Name or email"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /training-participants [get]
func (h *TrainingHandler) List(c *gin.Context) {
	var query dto.TrainingParticipantQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, bindError(err, "invalid query parameters"))
		return
	}
	items, pagination, err := h.service.ListTrainingParticipants(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get training participant
// @Tags Training
// @Produce json
// @Param id path string true "Nomination ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /training-participants/{id} [get]
func (h *TrainingHandler) Get(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	participant, err := h.service.GetTrainingParticipant(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, participant, nil)
}

// Export godoc
// @Summary Export the training roster
// @Tags Training
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv (default) or pdf"
// @Param status query string false "Status filter"
// @Param event_id query string false "Program identifier"
// @Success 200 {file} file
// @Router /training-participants/export [get]
func (h *TrainingHandler) Export(c *gin.Context) {
	var query dto.TrainingParticipantQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, bindError(err, "invalid query parameters"))
		return
	}
	artifact, err := h.exporter.Roster(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, artifact.Filename, artifact.ContentType, artifact.Data, false)
}

// RecordAttendance godoc
// @Summary Set attendance hours
// @Description Overwrites the hour total. Reaching the threshold completes the participant.
// @Tags Training
// @Accept json
// @Produce json
// @Param id path string true "Nomination ID"
// @Param payload body dto.AttendanceRequest true "Attendance hours"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /training-participants/{id}/attendance [put]
func (h *TrainingHandler) RecordAttendance(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.AttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid attendance payload"))
		return
	}
	nomination, err := h.service.RecordAttendance(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewNominationResponse(nomination), nil)
}
