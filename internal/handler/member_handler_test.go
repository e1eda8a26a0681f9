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
	"github.com/leadership-program/nomination-api/internal/middleware"
	"github.com/leadership-program/nomination-api/internal/models"
	appErrors "github.com/leadership-program/nomination-api/pkg/errors"
)

type fakeMemberSrv struct {
	login     models.LoginRequest
	lastID    string
	forgotten string
	err       error
}

func (f *fakeMemberSrv) Login(_ context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	f.login = req
	if f.err != nil {
		return nil, f.err
	}
	return &models.LoginResponse{AccessToken: "token", User: models.UserInfo{ID: "mem-1", Role: models.RoleMember}}, nil
}

func (f *fakeMemberSrv) Me(_ context.Context, memberID string) (*dto.MemberProfile, error) {
	f.lastID = memberID
	return &dto.MemberProfile{ID: memberID, Diplomas: []dto.MemberDiplomaView{{ID: "dip-1", ProgramTitle: "Spring Leadership"}}}, f.err
}

func (f *fakeMemberSrv) Diplomas(_ context.Context, memberID string) ([]dto.MemberDiplomaView, error) {
	f.lastID = memberID
	return []dto.MemberDiplomaView{{ID: "dip-1", DownloadURL: "/api/v1/diplomas/download/tok"}}, f.err
}

func (f *fakeMemberSrv) ForgotPassword(_ context.Context, req models.ForgotPasswordRequest) error {
	f.forgotten = req.Email
	return f.err
}

func withClaims(c *gin.Context, id string, role models.UserRole) {
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: id, Role: role})
}

func TestMemberHandlerLoginCapturesClient(t *testing.T) {
	srv := &fakeMemberSrv{}
	handler := NewMemberHandler(srv)

	c, rec := testContext(http.MethodPost, "/members/login",
		jsonBody(t, map[string]string{"email": "maria@example.com", "password": "secret123"}))
	c.Request.Header.Set("User-Agent", "portal")
	handler.Login(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "maria@example.com", srv.login.Email)
	assert.Equal(t, "portal", srv.login.UserAgent)
	var res models.LoginResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &res))
	assert.Equal(t, "token", res.AccessToken)
}

func TestMemberHandlerLoginInvalidCredentials(t *testing.T) {
	handler := NewMemberHandler(&fakeMemberSrv{err: appErrors.ErrInvalidCredentials})

	c, rec := testContext(http.MethodPost, "/members/login",
		jsonBody(t, map[string]string{"email": "maria@example.com", "password": "wrong"}))
	handler.Login(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMemberHandlerMeUsesTokenSubject(t *testing.T) {
	srv := &fakeMemberSrv{}
	handler := NewMemberHandler(srv)

	c, rec := testContext(http.MethodGet, "/members/me", nil)
	withClaims(c, "mem-1", models.RoleMember)
	handler.Me(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "mem-1", srv.lastID)
	var profile dto.MemberProfile
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &profile))
	require.Len(t, profile.Diplomas, 1)
}

func TestMemberHandlerMeRequiresClaims(t *testing.T) {
	handler := NewMemberHandler(&fakeMemberSrv{})

	c, rec := testContext(http.MethodGet, "/members/me", nil)
	handler.Me(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMemberHandlerDiplomas(t *testing.T) {
	handler := NewMemberHandler(&fakeMemberSrv{})

	c, rec := testContext(http.MethodGet, "/members/me/diplomas", nil)
	withClaims(c, "mem-1", models.RoleMember)
	handler.Diplomas(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var views []dto.MemberDiplomaView
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &views))
	assert.Equal(t, "/api/v1/diplomas/download/tok", views[0].DownloadURL)
}

func TestMemberHandlerForgotPasswordIsAccepted(t *testing.T) {
	srv := &fakeMemberSrv{}
	handler := NewMemberHandler(srv)

	c, rec := testContext(http.MethodPost, "/members/forgot-password",
		jsonBody(t, map[string]string{"email": "unknown@example.com"}))
	handler.ForgotPassword(c)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "unknown@example.com", srv.forgotten)
}

type fakeParticipantSrv struct {
	lastID string
}

func (f *fakeParticipantSrv) Login(context.Context, models.LoginRequest) (*models.LoginResponse, error) {
	return &models.LoginResponse{AccessToken: "participant-token"}, nil
}

func (f *fakeParticipantSrv) Me(_ context.Context, participantID string) (*dto.ParticipantProfile, error) {
	f.lastID = participantID
	return &dto.ParticipantProfile{ID: participantID, AttendanceHours: 12, RequiredHours: 21}, nil
}

func TestParticipantHandlerLoginAndMe(t *testing.T) {
	srv := &fakeParticipantSrv{}
	handler := NewParticipantHandler(srv)

	c, rec := testContext(http.MethodPost, "/participants/login",
		jsonBody(t, map[string]string{"email": "maria@example.com", "password": "secret123"}))
	handler.Login(c)
	require.Equal(t, http.StatusOK, rec.Code)

	c, rec = testContext(http.MethodGet, "/participants/me", nil)
	withClaims(c, "part-1", models.RoleParticipant)
	handler.Me(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "part-1", srv.lastID)
	var profile dto.ParticipantProfile
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &profile))
	assert.Equal(t, 21.0, profile.RequiredHours)
}

type fakeAuthSrv struct {
	err error
}

func (f *fakeAuthSrv) Login(context.Context, models.LoginRequest) (*models.LoginResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.LoginResponse{AccessToken: "admin-token", User: models.UserInfo{Role: models.RoleAdmin}}, nil
}

func (f *fakeAuthSrv) Me(_ context.Context, userID string) (*models.UserInfo, error) {
	return &models.UserInfo{ID: userID, Role: models.RoleAdmin}, f.err
}

func TestAuthHandlerLoginRejectsMalformedBody(t *testing.T) {
	handler := NewAuthHandler(&fakeAuthSrv{})

	c, rec := testContext(http.MethodPost, "/auth/login", nil)
	handler.Login(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthHandlerMe(t *testing.T) {
	handler := NewAuthHandler(&fakeAuthSrv{})

	c, rec := testContext(http.MethodGet, "/auth/me", nil)
	withClaims(c, "admin-1", models.RoleAdmin)
	handler.Me(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var info models.UserInfo
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &info))
	assert.Equal(t, "admin-1", info.ID)
}
