// Package protocol defines the envelope exchanged between campus clients and the server
// and the codecs that move envelopes over a connection.
//
// Every exchange is one client envelope answered by exactly one server envelope. The only
// unsolicited envelope is the greeting written once after the connection is accepted.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Version is announced in the greeting. Tags are only ever added, never repurposed.
const Version = 1

// OpTag identifies an operation. The set is closed and shared by both peers.
type OpTag string

const (
	OpServerGreeting OpTag = "SERVER_GREETING"
	OpHeartbeat      OpTag = "HEARTBEAT"

	OpUserLogin    OpTag = "USER_LOGIN"
	OpUserLogout   OpTag = "USER_LOGOUT"
	OpUserRegister OpTag = "USER_REGISTER"
	OpUserUpdate   OpTag = "USER_UPDATE"

	OpEnrollmentProfileGet     OpTag = "ENROLLMENT_PROFILE_GET"
	OpEnrollmentRequestSubmit  OpTag = "ENROLLMENT_REQUEST_SUBMIT"
	OpEnrollmentRequestList    OpTag = "ENROLLMENT_REQUEST_LIST"
	OpEnrollmentRequestDetail  OpTag = "ENROLLMENT_REQUEST_DETAIL"
	OpEnrollmentRequestApprove OpTag = "ENROLLMENT_REQUEST_APPROVE"
	OpEnrollmentRequestReject  OpTag = "ENROLLMENT_REQUEST_REJECT"

	// Tags served by external domain handlers.
	OpLibraryBookSearch OpTag = "LIBRARY_BOOK_SEARCH"
	OpLibraryBookBorrow OpTag = "LIBRARY_BOOK_BORROW"
	OpLibraryBookReturn OpTag = "LIBRARY_BOOK_RETURN"
	OpShopProductList   OpTag = "SHOP_PRODUCT_LIST"
	OpShopOrderCreate   OpTag = "SHOP_ORDER_CREATE"
	OpCourseList        OpTag = "COURSE_LIST"
	OpCourseSelect      OpTag = "COURSE_SELECT"
	OpCourseDrop        OpTag = "COURSE_DROP"
	OpForumPostList     OpTag = "FORUM_POST_LIST"
	OpForumPostCreate   OpTag = "FORUM_POST_CREATE"
)

var knownOps = map[OpTag]struct{}{
	OpServerGreeting:           {},
	OpHeartbeat:                {},
	OpUserLogin:                {},
	OpUserLogout:               {},
	OpUserRegister:             {},
	OpUserUpdate:               {},
	OpEnrollmentProfileGet:     {},
	OpEnrollmentRequestSubmit:  {},
	OpEnrollmentRequestList:    {},
	OpEnrollmentRequestDetail:  {},
	OpEnrollmentRequestApprove: {},
	OpEnrollmentRequestReject:  {},
	OpLibraryBookSearch:        {},
	OpLibraryBookBorrow:        {},
	OpLibraryBookReturn:        {},
	OpShopProductList:          {},
	OpShopOrderCreate:          {},
	OpCourseList:               {},
	OpCourseSelect:             {},
	OpCourseDrop:               {},
	OpForumPostList:            {},
	OpForumPostCreate:          {},
}

// Valid reports whether the tag belongs to the enumeration.
func (o OpTag) Valid() bool {
	_, ok := knownOps[o]
	return ok
}

// ResultCode is SUCCESS, ERROR, or one of the domain error codes.
type ResultCode string

const (
	CodeSuccess ResultCode = "SUCCESS"
	CodeError   ResultCode = "ERROR"
)

// OK reports whether the code signals success.
func (c ResultCode) OK() bool {
	return c == CodeSuccess
}

// Envelope is one request or response. Values are treated as immutable once built.
type Envelope struct {
	Op      OpTag           `json:"op"`
	Code    ResultCode      `json:"code,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope marshals payload and builds an envelope.
func NewEnvelope(op OpTag, code ResultCode, payload interface{}) (Envelope, error) {
	env := Envelope{Op: op, Code: code}
	if payload == nil {
		return env, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", op, err)
	}
	env.Payload = raw
	return env, nil
}

// Request builds a client request envelope; it panics on unmarshalable payloads and is
// meant for clients and tests with static payloads.
func Request(op OpTag, payload interface{}) Envelope {
	env, err := NewEnvelope(op, "", payload)
	if err != nil {
		panic(err)
	}
	return env
}

// Decode strictly unmarshals the payload into dest. Unknown fields and trailing data are
// reported as a *DecodeError.
func (e Envelope) Decode(dest interface{}) error {
	if len(bytes.TrimSpace(e.Payload)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(e.Payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		return &DecodeError{Op: e.Op, Err: err}
	}
	if dec.More() {
		return &DecodeError{Op: e.Op, Err: fmt.Errorf("unexpected data after payload")}
	}
	return nil
}

// Greeting is the payload of the first envelope on every connection.
type Greeting struct {
	Message   string `json:"message"`
	Version   int    `json:"version"`
	SessionID string `json:"sessionId"`
}

// ErrorBody is the payload of every non-success envelope.
type ErrorBody struct {
	Message string `json:"message"`
}

// DecodeError reports a payload whose shape does not match its tag.
type DecodeError struct {
	Op  OpTag
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s payload: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
