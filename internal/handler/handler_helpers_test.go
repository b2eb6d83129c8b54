package handler

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-gateway/internal/dispatch"
	"github.com/noah-isme/campus-gateway/internal/models"
	"github.com/noah-isme/campus-gateway/pkg/protocol"
)

type sessionStub struct {
	principal *models.Principal
}

func (s *sessionStub) ID() string { return "handler-test" }

func (s *sessionStub) Principal() *models.Principal { return s.principal }

func (s *sessionStub) SetPrincipal(principal *models.Principal) { s.principal = principal }

func studentSession(id string) *sessionStub {
	return &sessionStub{principal: &models.Principal{UserID: id, Username: id, Roles: []models.UserRole{models.RoleStudent}}}
}

func adminSession() *sessionStub {
	return &sessionStub{principal: &models.Principal{UserID: "admin-1", Username: "admin", Roles: []models.UserRole{models.RoleAdmin}}}
}

func newDispatcher() *dispatch.Dispatcher {
	return dispatch.New(nil, nil, nil, nil)
}

func decodePayload(t *testing.T, env protocol.Envelope, dest interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Payload, dest))
}
