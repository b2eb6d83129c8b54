package dispatch

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/campus-gateway/internal/models"
	appErrors "github.com/noah-isme/campus-gateway/pkg/errors"
	"github.com/noah-isme/campus-gateway/pkg/protocol"
)

// Request is the dispatched operation as seen by a handler.
type Request struct {
	Op        protocol.OpTag
	Principal *models.Principal

	envelope protocol.Envelope
	validate *validator.Validate
}

// Bind strictly decodes the payload into dest and validates it. Shape errors are
// *protocol.DecodeError; rule violations are VALIDATION_ERROR.
func (r *Request) Bind(dest interface{}) error {
	if err := r.envelope.Decode(dest); err != nil {
		return err
	}
	if r.validate == nil {
		return nil
	}
	if err := r.validate.Struct(dest); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, validationMessage(err))
	}
	return nil
}

func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		first := fieldErrs[0]
		return first.Field() + " failed " + first.Tag() + " validation"
	}
	return appErrors.ErrValidation.Message
}

// Typed adapts a handler taking a statically typed payload. Each operation tag owns
// exactly one payload type T.
func Typed[T any](fn func(ctx context.Context, principal *models.Principal, payload T) (interface{}, error)) HandlerFunc {
	return func(ctx context.Context, req *Request) (interface{}, error) {
		var payload T
		if err := req.Bind(&payload); err != nil {
			return nil, err
		}
		return fn(ctx, req.Principal, payload)
	}
}
