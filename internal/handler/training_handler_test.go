package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadership-program/nomination-api/internal/dto"
	"github.com/leadership-program/nomination-api/internal/models"
	appErrors "github.com/leadership-program/nomination-api/pkg/errors"
)

type fakeTrainingSrv struct {
	decision     dto.RegistrationDecisionRequest
	result       *dto.DecisionResult
	attendance   dto.AttendanceRequest
	nomination   *models.Nomination
	participants []dto.TrainingParticipant
	lastQuery    dto.TrainingParticipantQuery
	err          error
}

func (f *fakeTrainingSrv) DecideRegistration(_ context.Context, _ string, req dto.RegistrationDecisionRequest) (*dto.DecisionResult, error) {
	f.decision = req
	return f.result, f.err
}

func (f *fakeTrainingSrv) RecordAttendance(_ context.Context, _ string, req dto.AttendanceRequest) (*models.Nomination, error) {
	f.attendance = req
	return f.nomination, f.err
}

func (f *fakeTrainingSrv) ListTrainingParticipants(_ context.Context, query dto.TrainingParticipantQuery) ([]dto.TrainingParticipant, *models.Pagination, error) {
	f.lastQuery = query
	return f.participants, &models.Pagination{Page: 1, PageSize: 20, TotalCount: len(f.participants)}, f.err
}

func (f *fakeTrainingSrv) GetTrainingParticipant(context.Context, string) (*dto.TrainingParticipant, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &f.participants[0], nil
}

type fakeExporter struct {
	query dto.TrainingParticipantQuery
}

func (f *fakeExporter) Roster(_ context.Context, query dto.TrainingParticipantQuery) (*dto.Artifact, error) {
	f.query = query
	return &dto.Artifact{Filename: "training_participants.csv", ContentType: "text/csv; charset=utf-8", Data: []byte("Name\n")}, nil
}

func TestTrainingHandlerDecideRegistration(t *testing.T) {
	participantID := "part-1"
	srv := &fakeTrainingSrv{result: &dto.DecisionResult{
		NominationID:      "nom-1",
		ParticipantStatus: models.ParticipantApproved,
		ParticipantID:     &participantID,
		AccountCreated:    true,
	}}
	handler := NewTrainingHandler(srv, &fakeExporter{})

	c, rec := testContext(http.MethodPost, "/nominations/nom-1/approve-registration",
		jsonBody(t, map[string]string{"decision": "approve"}), gin.Param{Key: "id", Value: "nom-1"})
	handler.DecideRegistration(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, dto.DecisionApprove, srv.decision.Decision)
	var result dto.DecisionResult
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &result))
	assert.True(t, result.AccountCreated)
	assert.Equal(t, models.ParticipantApproved, result.ParticipantStatus)
}

func TestTrainingHandlerDecideRegistrationWithoutRegistration(t *testing.T) {
	handler := NewTrainingHandler(&fakeTrainingSrv{err: appErrors.ErrNoRegistration}, &fakeExporter{})

	c, rec := testContext(http.MethodPost, "/nominations/nom-1/approve-registration",
		jsonBody(t, map[string]string{"decision": "approve"}), gin.Param{Key: "id", Value: "nom-1"})
	handler.DecideRegistration(c)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, appErrors.ErrNoRegistration.Code, decodeEnvelope(t, rec).Error.Code)
}

func TestTrainingHandlerRecordAttendance(t *testing.T) {
	completed := sampleNomination(models.ReviewApproved)
	completed.ParticipantStatus = models.ParticipantCompleted
	completed.AttendanceHours = 21
	srv := &fakeTrainingSrv{nomination: completed}
	handler := NewTrainingHandler(srv, &fakeExporter{})

	c, rec := testContext(http.MethodPut, "/training-participants/nom-1/attendance",
		jsonBody(t, map[string]float64{"attendance_hours": 21}), gin.Param{Key: "id", Value: "nom-1"})
	handler.RecordAttendance(c)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, srv.attendance.Hours)
	assert.Equal(t, 21.0, *srv.attendance.Hours)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &body))
	assert.Equal(t, "completed", body["status"])
}

func TestTrainingHandlerListAndGet(t *testing.T) {
	srv := &fakeTrainingSrv{participants: []dto.TrainingParticipant{{NominationID: "nom-1", FullName: "Maria Svensson"}}}
	handler := NewTrainingHandler(srv, &fakeExporter{})

	c, rec := testContext(http.MethodGet, "/training-participants?status=active&search=maria", nil)
	handler.List(c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "active", srv.lastQuery.Status)
	assert.Equal(t, "maria", srv.lastQuery.Search)

	c, rec = testContext(http.MethodGet, "/training-participants/nom-1", nil, gin.Param{Key: "id", Value: "nom-1"})
	handler.Get(c)
	require.Equal(t, http.StatusOK, rec.Code)
	var participant dto.TrainingParticipant
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &participant))
	assert.Equal(t, "Maria Svensson", participant.FullName)
}

func TestTrainingHandlerExportStreamsAttachment(t *testing.T) {
	exporter := &fakeExporter{}
	handler := NewTrainingHandler(&fakeTrainingSrv{}, exporter)

	c, rec := testContext(http.MethodGet, "/training-participants/export?format=csv&event_id=evt-1", nil)
	handler.Export(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "csv", exporter.query.Format)
	assert.Equal(t, "evt-1", exporter.query.EventID)
	assert.Equal(t, `attachment; filename="training_participants.csv"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "Name\n", rec.Body.String())
}

type fakeRegistrationSrv struct {
	view *dto.RegistrationView
	data models.RegistrationData
	err  error
}

func (f *fakeRegistrationSrv) GetPublic(context.Context, string) (*dto.RegistrationView, error) {
	return f.view, f.err
}

func (f *fakeRegistrationSrv) Register(_ context.Context, id string, data models.RegistrationData) (*dto.RegistrationAck, error) {
	f.data = data
	if f.err != nil {
		return nil, f.err
	}
	return &dto.RegistrationAck{NominationID: id, Status: string(models.ParticipantPendingApproval)}, nil
}

func TestRegistrationHandlerGet(t *testing.T) {
	handler := NewRegistrationHandler(&fakeRegistrationSrv{view: &dto.RegistrationView{ID: "nom-1", Open: true}})

	c, rec := testContext(http.MethodGet, "/registration/nom-1", nil, gin.Param{Key: "id", Value: "nom-1"})
	handler.Get(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var view dto.RegistrationView
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &view))
	assert.True(t, view.Open)
}

func TestRegistrationHandlerRegister(t *testing.T) {
	srv := &fakeRegistrationSrv{}
	handler := NewRegistrationHandler(srv)

	c, rec := testContext(http.MethodPost, "/nominations/nom-1/register",
		jsonBody(t, map[string]interface{}{"full_name": "Maria Svensson", "email": "maria@example.com"}),
		gin.Param{Key: "id", Value: "nom-1"})
	handler.Register(c)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Maria Svensson", srv.data.FullName)
	var ack dto.RegistrationAck
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &ack))
	assert.Equal(t, "pending_approval", ack.Status)
}

func TestRegistrationHandlerRegisterTwice(t *testing.T) {
	handler := NewRegistrationHandler(&fakeRegistrationSrv{err: appErrors.ErrAlreadyRegistered})

	c, rec := testContext(http.MethodPost, "/nominations/nom-1/register",
		jsonBody(t, map[string]string{"full_name": "Maria Svensson"}), gin.Param{Key: "id", Value: "nom-1"})
	handler.Register(c)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, appErrors.ErrAlreadyRegistered.Code, decodeEnvelope(t, rec).Error.Code)
}
