package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ChangeType enumerates the enrollment changes a student can request.
type ChangeType string

const (
	ChangeTypeProfileUpdate ChangeType = "PROFILE_UPDATE"
	ChangeTypeSuspend       ChangeType = "SUSPEND"
	ChangeTypeWithdraw      ChangeType = "WITHDRAW"
	ChangeTypeResume        ChangeType = "RESUME"
)

// Valid reports whether t is a known change type.
func (t ChangeType) Valid() bool {
	switch t {
	case ChangeTypeProfileUpdate, ChangeTypeSuspend, ChangeTypeWithdraw, ChangeTypeResume:
		return true
	}
	return false
}

// ChangeStatus captures workflow states. PENDING moves to APPROVED or REJECTED exactly once.
type ChangeStatus string

const (
	ChangeStatusPending  ChangeStatus = "PENDING"
	ChangeStatusApproved ChangeStatus = "APPROVED"
	ChangeStatusRejected ChangeStatus = "REJECTED"
)

// HistoryAction enumerates audit trail actions.
type HistoryAction string

const (
	HistoryActionSubmit  HistoryAction = "SUBMIT"
	HistoryActionApprove HistoryAction = "APPROVE"
	HistoryActionReject  HistoryAction = "REJECT"
)

// ProfileStatus is the enrollment status held on a student profile.
type ProfileStatus string

const (
	ProfileStatusActive    ProfileStatus = "ACTIVE"
	ProfileStatusSuspended ProfileStatus = "SUSPENDED"
	ProfileStatusWithdrawn ProfileStatus = "WITHDRAWN"
)

// Valid reports whether s is a known profile status.
func (s ProfileStatus) Valid() bool {
	switch s {
	case ProfileStatusActive, ProfileStatusSuspended, ProfileStatusWithdrawn:
		return true
	}
	return false
}

// PayloadChangeTypeKey is the payload key the change type is merged under.
const PayloadChangeTypeKey = "changeType"

// ChangePayload maps field names to raw JSON values. It is stored in a JSONB column.
type ChangePayload map[string]json.RawMessage

// Value implements driver.Valuer.
func (p ChangePayload) Value() (driver.Value, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(p)
}

// Scan implements sql.Scanner.
func (p *ChangePayload) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*p = ChangePayload{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("scan change payload: unsupported type %T", src)
	}
	out := ChangePayload{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("scan change payload: %w", err)
	}
	*p = out
	return nil
}

// Clone returns a shallow copy that can be modified independently.
func (p ChangePayload) Clone() ChangePayload {
	out := make(ChangePayload, len(p))
	for k, v := range p {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

// ChangeType reads the merged change type back from the payload.
func (p ChangePayload) ChangeType() (ChangeType, error) {
	raw, ok := p[PayloadChangeTypeKey]
	if !ok {
		return "", errors.New("payload has no change type")
	}
	var t ChangeType
	if err := json.Unmarshal(raw, &t); err != nil {
		return "", fmt.Errorf("payload change type: %w", err)
	}
	return t, nil
}

// ChangeRequest is a durable request to change a student's enrollment record.
type ChangeRequest struct {
	ID            int64         `db:"id" json:"id"`
	StudentID     string        `db:"student_id" json:"studentId"`
	ChangeType    ChangeType    `db:"-" json:"changeType"`
	Payload       ChangePayload `db:"payload" json:"payload"`
	Reason        string        `db:"reason" json:"reason"`
	Status        ChangeStatus  `db:"status" json:"status"`
	SubmittedAt   time.Time     `db:"submitted_at" json:"submittedAt"`
	ReviewedBy    *string       `db:"reviewed_by" json:"reviewedBy,omitempty"`
	ReviewedAt    *time.Time    `db:"reviewed_at" json:"reviewedAt,omitempty"`
	ReviewComment *string       `db:"review_comment" json:"reviewComment,omitempty"`
}

// ChangeHistoryEntry is one append-only audit row of a change request.
type ChangeHistoryEntry struct {
	ID              int64         `db:"id" json:"id"`
	ChangeRequestID int64         `db:"change_request_id" json:"changeRequestId"`
	Action          HistoryAction `db:"action" json:"action"`
	ActorID         string        `db:"actor_id" json:"actorId"`
	ActedAt         time.Time     `db:"acted_at" json:"actedAt"`
	Comment         *string       `db:"comment" json:"comment,omitempty"`
	PayloadSnapshot ChangePayload `db:"payload_snapshot" json:"payloadSnapshot"`
}

// ChangeRequestDetail bundles a request with its audit trail.
type ChangeRequestDetail struct {
	ChangeRequest
	History []ChangeHistoryEntry `json:"history"`
}

// ChangeRequestFilter constrains listing queries.
type ChangeRequestFilter struct {
	StudentID string
	Status    []ChangeStatus
	Limit     int
	Offset    int
}

// StudentProfile is the enrollment record mutated by approved change requests.
type StudentProfile struct {
	StudentID      string        `db:"student_id" json:"studentId"`
	StudentNumber  string        `db:"student_number" json:"studentNumber"`
	AdmissionYear  int           `db:"admission_year" json:"admissionYear"`
	GraduationYear *int          `db:"graduation_year" json:"graduationYear,omitempty"`
	AdvisorID      *string       `db:"advisor_id" json:"advisorId,omitempty"`
	Status         ProfileStatus `db:"status" json:"status"`
	GPA            float64       `db:"gpa" json:"gpa"`
	TotalCredits   int           `db:"total_credits" json:"totalCredits"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updatedAt"`
}
