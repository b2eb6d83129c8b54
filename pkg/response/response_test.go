package response

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/campus-gateway/pkg/errors"
	"github.com/noah-isme/campus-gateway/pkg/protocol"
)

func decodeMessage(t *testing.T, env protocol.Envelope) string {
	t.Helper()
	var body protocol.ErrorBody
	require.NoError(t, json.Unmarshal(env.Payload, &body))
	return body.Message
}

func TestSuccess(t *testing.T) {
	env := Success(protocol.OpHeartbeat, map[string]int{"n": 1})
	assert.Equal(t, protocol.OpHeartbeat, env.Op)
	assert.Equal(t, protocol.CodeSuccess, env.Code)
	assert.JSONEq(t, `{"n":1}`, string(env.Payload))
}

func TestSuccessEncodingFailureBecomesError(t *testing.T) {
	env := Success(protocol.OpHeartbeat, make(chan int))
	assert.Equal(t, protocol.ResultCode(appErrors.CodeInternal), env.Code)
}

func TestErrorUsesTypedCode(t *testing.T) {
	env := Error(protocol.OpEnrollmentRequestApprove, appErrors.Clone(appErrors.ErrAlreadyProcessed, "change request 7 already processed"))
	assert.Equal(t, protocol.ResultCode(appErrors.CodeAlreadyProcessed), env.Code)
	assert.Equal(t, "change request 7 already processed", decodeMessage(t, env))
}

func TestErrorMapsDecodeErrors(t *testing.T) {
	env := Error(protocol.OpUserLogin, &protocol.DecodeError{Op: protocol.OpUserLogin, Err: errors.New("bad shape")})
	assert.Equal(t, protocol.ResultCode(appErrors.CodeDecode), env.Code)
	assert.Contains(t, decodeMessage(t, env), "bad shape")
}

func TestErrorHidesUntypedCauses(t *testing.T) {
	env := Error(protocol.OpUserLogin, errors.New("pq: password authentication failed"))
	assert.Equal(t, protocol.ResultCode(appErrors.CodeInternal), env.Code)
	assert.Equal(t, appErrors.ErrInternal.Message, decodeMessage(t, env))
}
