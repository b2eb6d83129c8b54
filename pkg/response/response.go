package response

import (
	"errors"

	appErrors "github.com/noah-isme/campus-gateway/pkg/errors"
	"github.com/noah-isme/campus-gateway/pkg/protocol"
)

// Success builds a SUCCESS envelope for op carrying data.
func Success(op protocol.OpTag, data interface{}) protocol.Envelope {
	env, err := protocol.NewEnvelope(op, protocol.CodeSuccess, data)
	if err != nil {
		return Error(op, appErrors.Wrap(err, appErrors.ErrInternal.Code, "failed to encode response"))
	}
	return env
}

// Error converts err to the common error envelope: the code comes from the typed error
// and the payload carries a human-readable message.
func Error(op protocol.OpTag, err error) protocol.Envelope {
	appErr := FromError(err)
	env, _ := protocol.NewEnvelope(op, protocol.ResultCode(appErr.Code), protocol.ErrorBody{Message: appErr.Message})
	return env
}

// FromError normalises err, mapping payload decode failures to DECODE_ERROR.
func FromError(err error) *appErrors.Error {
	if err == nil {
		return appErrors.Clone(appErrors.ErrInternal, "")
	}
	var decodeErr *protocol.DecodeError
	if errors.As(err, &decodeErr) {
		return appErrors.Wrap(decodeErr, appErrors.ErrDecode.Code, decodeErr.Error())
	}
	var frameErr *protocol.FrameError
	if errors.As(err, &frameErr) {
		return appErrors.Wrap(frameErr, appErrors.ErrDecode.Code, frameErr.Error())
	}
	return appErrors.FromError(err)
}
