package handler

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-gateway/internal/dto"
	"github.com/noah-isme/campus-gateway/internal/models"
	appErrors "github.com/noah-isme/campus-gateway/pkg/errors"
	"github.com/noah-isme/campus-gateway/pkg/protocol"
)

type changeRequestServiceMock struct {
	submitResp  *models.ChangeRequest
	listResp    []models.ChangeRequest
	detailResp  *models.ChangeRequestDetail
	reviewResp  *models.ChangeRequest
	err         error
	lastSubmit  dto.SubmitChangeRequest
	lastStudent string
	lastLimit   int
	lastID      int64
	lastComment string
	calls       []string
}

func (m *changeRequestServiceMock) Submit(ctx context.Context, actor *models.Principal, req dto.SubmitChangeRequest) (*models.ChangeRequest, error) {
	m.calls = append(m.calls, "submit")
	m.lastSubmit = req
	return m.submitResp, m.err
}

func (m *changeRequestServiceMock) ListForUser(ctx context.Context, actor *models.Principal, studentID string, limit, offset int) ([]models.ChangeRequest, error) {
	m.calls = append(m.calls, "mine")
	m.lastStudent = studentID
	m.lastLimit = limit
	return m.listResp, m.err
}

func (m *changeRequestServiceMock) ListPending(ctx context.Context, actor *models.Principal, limit, offset int) ([]models.ChangeRequest, error) {
	m.calls = append(m.calls, "pending")
	m.lastLimit = limit
	return m.listResp, m.err
}

func (m *changeRequestServiceMock) Detail(ctx context.Context, actor *models.Principal, id int64) (*models.ChangeRequestDetail, error) {
	m.calls = append(m.calls, "detail")
	m.lastID = id
	return m.detailResp, m.err
}

func (m *changeRequestServiceMock) Approve(ctx context.Context, reviewer *models.Principal, id int64, comment string) (*models.ChangeRequest, error) {
	m.calls = append(m.calls, "approve")
	m.lastID = id
	m.lastComment = comment
	return m.reviewResp, m.err
}

func (m *changeRequestServiceMock) Reject(ctx context.Context, reviewer *models.Principal, id int64, comment string) (*models.ChangeRequest, error) {
	m.calls = append(m.calls, "reject")
	m.lastID = id
	m.lastComment = comment
	return m.reviewResp, m.err
}

type profileServiceMock struct {
	resp        *models.StudentProfile
	err         error
	lastStudent string
}

func (m *profileServiceMock) Get(ctx context.Context, actor *models.Principal, studentID string) (*models.StudentProfile, error) {
	m.lastStudent = studentID
	return m.resp, m.err
}

func newEnrollmentFixture() (*changeRequestServiceMock, *profileServiceMock, func(protocol.Envelope, *sessionStub) protocol.Envelope) {
	requests := &changeRequestServiceMock{}
	profiles := &profileServiceMock{}
	d := newDispatcher()
	NewEnrollmentHandler(requests, profiles).Routes(d)
	return requests, profiles, func(env protocol.Envelope, session *sessionStub) protocol.Envelope {
		return d.Dispatch(context.Background(), env, session)
	}
}

func TestEnrollmentHandlerProfile(t *testing.T) {
	_, profiles, call := newEnrollmentFixture()
	profiles.resp = &models.StudentProfile{StudentID: "s-1", StudentNumber: "S-100", Status: models.ProfileStatusActive}

	env := call(protocol.Request(protocol.OpEnrollmentProfileGet, dto.ProfileGetRequest{}), studentSession("s-1"))
	require.Equal(t, protocol.CodeSuccess, env.Code)

	var profile models.StudentProfile
	decodePayload(t, env, &profile)
	assert.Equal(t, "S-100", profile.StudentNumber)
	assert.Empty(t, profiles.lastStudent)
}

func TestEnrollmentHandlerSubmit(t *testing.T) {
	requests, _, call := newEnrollmentFixture()
	requests.submitResp = &models.ChangeRequest{ID: 1, StudentID: "s-1", Status: models.ChangeStatusPending}

	env := call(protocol.Request(protocol.OpEnrollmentRequestSubmit, dto.SubmitChangeRequest{
		ChangeType: models.ChangeTypeSuspend,
		Reason:     "medical leave",
	}), studentSession("s-1"))
	require.Equal(t, protocol.CodeSuccess, env.Code)
	assert.Equal(t, "medical leave", requests.lastSubmit.Reason)

	var created models.ChangeRequest
	decodePayload(t, env, &created)
	assert.Equal(t, int64(1), created.ID)
	assert.Equal(t, models.ChangeStatusPending, created.Status)
}

func TestEnrollmentHandlerSubmitWithoutReason(t *testing.T) {
	requests, _, call := newEnrollmentFixture()
	requests.submitResp = &models.ChangeRequest{ID: 2, StudentID: "s-1", Status: models.ChangeStatusPending}

	env := call(protocol.Request(protocol.OpEnrollmentRequestSubmit, dto.SubmitChangeRequest{
		ChangeType: models.ChangeTypeProfileUpdate,
		Fields:     map[string]json.RawMessage{"nickname": json.RawMessage(`"neo"`)},
	}), studentSession("s-1"))
	require.Equal(t, protocol.CodeSuccess, env.Code)
	assert.Equal(t, []string{"submit"}, requests.calls)
	assert.Empty(t, requests.lastSubmit.Reason)
}

func TestEnrollmentHandlerSubmitRejectsTeacher(t *testing.T) {
	requests, _, call := newEnrollmentFixture()
	teacher := &sessionStub{principal: &models.Principal{UserID: "t-1", Roles: []models.UserRole{models.RoleTeacher}}}

	env := call(protocol.Request(protocol.OpEnrollmentRequestSubmit, dto.SubmitChangeRequest{
		ChangeType: models.ChangeTypeSuspend,
		Reason:     "x",
	}), teacher)
	assert.Equal(t, protocol.ResultCode(appErrors.CodeForbidden), env.Code)
	assert.Empty(t, requests.calls)
}

func TestEnrollmentHandlerListScopes(t *testing.T) {
	requests, _, call := newEnrollmentFixture()
	requests.listResp = []models.ChangeRequest{{ID: 2}, {ID: 1}}

	env := call(protocol.Request(protocol.OpEnrollmentRequestList, dto.ListChangeRequests{Limit: 10}), studentSession("s-1"))
	require.Equal(t, protocol.CodeSuccess, env.Code)
	var list dto.ChangeRequestList
	decodePayload(t, env, &list)
	assert.Equal(t, 2, list.Count)
	assert.Equal(t, 10, requests.lastLimit)

	env = call(protocol.Request(protocol.OpEnrollmentRequestList, dto.ListChangeRequests{Scope: dto.ListScopePending}), adminSession())
	require.Equal(t, protocol.CodeSuccess, env.Code)
	assert.Equal(t, []string{"mine", "pending"}, requests.calls)
}

func TestEnrollmentHandlerListRejectsUnknownScope(t *testing.T) {
	requests, _, call := newEnrollmentFixture()

	env := call(protocol.Request(protocol.OpEnrollmentRequestList, dto.ListChangeRequests{Scope: "everything"}), adminSession())
	assert.Equal(t, protocol.ResultCode(appErrors.CodeValidation), env.Code)
	assert.Empty(t, requests.calls)
}

func TestEnrollmentHandlerReviewRequiresAdmin(t *testing.T) {
	requests, _, call := newEnrollmentFixture()
	req := protocol.Request(protocol.OpEnrollmentRequestApprove, dto.ReviewChangeRequest{ID: 3, Comment: "ok"})

	env := call(req, studentSession("s-1"))
	assert.Equal(t, protocol.ResultCode(appErrors.CodeForbidden), env.Code)
	assert.Empty(t, requests.calls)

	requests.reviewResp = &models.ChangeRequest{ID: 3, Status: models.ChangeStatusApproved}
	env = call(req, adminSession())
	require.Equal(t, protocol.CodeSuccess, env.Code)
	assert.Equal(t, int64(3), requests.lastID)
	assert.Equal(t, "ok", requests.lastComment)
}

func TestEnrollmentHandlerRejectSurfacesAlreadyProcessed(t *testing.T) {
	requests, _, call := newEnrollmentFixture()
	requests.err = appErrors.Clone(appErrors.ErrAlreadyProcessed, "change request 3 already processed")

	env := call(protocol.Request(protocol.OpEnrollmentRequestReject, dto.ReviewChangeRequest{ID: 3}), adminSession())
	assert.Equal(t, protocol.ResultCode(appErrors.CodeAlreadyProcessed), env.Code)
	assert.Equal(t, []string{"reject"}, requests.calls)
}

func TestEnrollmentHandlerDetailDecodeError(t *testing.T) {
	requests, _, call := newEnrollmentFixture()
	env := protocol.Envelope{Op: protocol.OpEnrollmentRequestDetail, Payload: json.RawMessage(`{"id":"seven"}`)}

	resp := call(env, studentSession("s-1"))
	assert.Equal(t, protocol.ResultCode(appErrors.CodeDecode), resp.Code)
	assert.Empty(t, requests.calls)
}
