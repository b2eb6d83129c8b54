package dto

import (
	"encoding/json"

	"github.com/noah-isme/campus-gateway/internal/models"
)

// ProfileGetRequest reads a student profile; an empty StudentID means the caller.
type ProfileGetRequest struct {
	StudentID string `json:"studentId" validate:"omitempty,max=64"`
}

// SubmitChangeRequest opens a new enrollment change request.
type SubmitChangeRequest struct {
	StudentID  string                     `json:"studentId" validate:"omitempty,max=64"`
	ChangeType models.ChangeType          `json:"changeType" validate:"required,oneof=PROFILE_UPDATE SUSPEND WITHDRAW RESUME"`
	Fields     map[string]json.RawMessage `json:"fields"`
	Reason     string                     `json:"reason" validate:"max=1000"`
}

// Listing scopes.
const (
	ListScopeMine    = "mine"
	ListScopePending = "pending"
)

// ListChangeRequests selects own requests or the pending review queue.
type ListChangeRequests struct {
	Scope     string `json:"scope" validate:"omitempty,oneof=mine pending"`
	StudentID string `json:"studentId" validate:"omitempty,max=64"`
	Limit     int    `json:"limit" validate:"omitempty,gte=0,lte=200"`
	Offset    int    `json:"offset" validate:"omitempty,gte=0"`
}

// ChangeRequestRef addresses a single change request.
type ChangeRequestRef struct {
	ID int64 `json:"id" validate:"required,gt=0"`
}

// ReviewChangeRequest carries a reviewer decision for approve or reject.
type ReviewChangeRequest struct {
	ID      int64  `json:"id" validate:"required,gt=0"`
	Comment string `json:"comment" validate:"max=1000"`
}

// ChangeRequestList wraps listing results.
type ChangeRequestList struct {
	Items []models.ChangeRequest `json:"items"`
	Count int                    `json:"count"`
}
