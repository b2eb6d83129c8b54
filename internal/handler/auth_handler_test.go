package handler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-gateway/internal/dto"
	"github.com/noah-isme/campus-gateway/internal/models"
	appErrors "github.com/noah-isme/campus-gateway/pkg/errors"
	"github.com/noah-isme/campus-gateway/pkg/protocol"
)

type accountServiceMock struct {
	registerResp *dto.UserInfo
	registerErr  error
	updateResp   *dto.UserInfo
	updateErr    error
	lastRegister dto.RegisterRequest
	lastUpdate   dto.UpdateUserRequest
	lastActor    *models.Principal
}

func (m *accountServiceMock) Register(ctx context.Context, req dto.RegisterRequest) (*dto.UserInfo, error) {
	m.lastRegister = req
	return m.registerResp, m.registerErr
}

func (m *accountServiceMock) UpdateUser(ctx context.Context, principal *models.Principal, req dto.UpdateUserRequest) (*dto.UserInfo, error) {
	m.lastActor = principal
	m.lastUpdate = req
	return m.updateResp, m.updateErr
}

func TestAuthHandlerRegisterIsPublic(t *testing.T) {
	svc := &accountServiceMock{registerResp: &dto.UserInfo{ID: "u-1", Username: "dana", Role: models.RoleStudent}}
	d := newDispatcher()
	NewAuthHandler(svc).Routes(d)

	env := d.Dispatch(context.Background(), protocol.Request(protocol.OpUserRegister, dto.RegisterRequest{
		Username:      "dana",
		Password:      "longenough",
		FullName:      "Dana Putri",
		StudentNumber: "S-100",
		AdmissionYear: 2024,
	}), &sessionStub{})

	require.Equal(t, protocol.CodeSuccess, env.Code)
	var info dto.UserInfo
	decodePayload(t, env, &info)
	assert.Equal(t, "u-1", info.ID)
	assert.Equal(t, "S-100", svc.lastRegister.StudentNumber)
}

func TestAuthHandlerRegisterValidation(t *testing.T) {
	svc := &accountServiceMock{}
	d := newDispatcher()
	NewAuthHandler(svc).Routes(d)

	env := d.Dispatch(context.Background(), protocol.Request(protocol.OpUserRegister, dto.RegisterRequest{Username: "dana"}), &sessionStub{})
	assert.Equal(t, protocol.ResultCode(appErrors.CodeValidation), env.Code)
	assert.Empty(t, svc.lastRegister.Username)
}

func TestAuthHandlerUpdateRequiresSession(t *testing.T) {
	name := "Dana P."
	svc := &accountServiceMock{updateResp: &dto.UserInfo{ID: "s-1", FullName: name}}
	d := newDispatcher()
	NewAuthHandler(svc).Routes(d)
	req := protocol.Request(protocol.OpUserUpdate, dto.UpdateUserRequest{FullName: &name})

	env := d.Dispatch(context.Background(), req, &sessionStub{})
	assert.Equal(t, protocol.ResultCode(appErrors.CodeUnauthorized), env.Code)
	assert.Nil(t, svc.lastActor)

	env = d.Dispatch(context.Background(), req, studentSession("s-1"))
	require.Equal(t, protocol.CodeSuccess, env.Code)
	require.NotNil(t, svc.lastActor)
	assert.Equal(t, "s-1", svc.lastActor.UserID)
}

func TestAuthHandlerPropagatesServiceError(t *testing.T) {
	svc := &accountServiceMock{registerErr: appErrors.Clone(appErrors.ErrConflict, "username already taken")}
	d := newDispatcher()
	NewAuthHandler(svc).Routes(d)

	env := d.Dispatch(context.Background(), protocol.Request(protocol.OpUserRegister, dto.RegisterRequest{
		Username:      "dana",
		Password:      "longenough",
		FullName:      "Dana Putri",
		StudentNumber: "S-100",
		AdmissionYear: 2024,
	}), &sessionStub{})
	assert.Equal(t, protocol.ResultCode(appErrors.CodeConflict), env.Code)
}
