package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChangePayloadScanAndValue(t *testing.T) {
	var p ChangePayload
	require.NoError(t, p.Scan([]byte(`{"changeType":"SUSPEND","note":"x"}`)))

	changeType, err := p.ChangeType()
	require.NoError(t, err)
	assert.Equal(t, ChangeTypeSuspend, changeType)

	value, err := p.Value()
	require.NoError(t, err)
	assert.JSONEq(t, `{"changeType":"SUSPEND","note":"x"}`, string(value.([]byte)))

	require.NoError(t, p.Scan(nil))
	assert.Empty(t, p)
	require.Error(t, p.Scan(42))
}

func TestChangePayloadCloneIsIndependent(t *testing.T) {
	original := ChangePayload{"gpa": json.RawMessage(`3.5`)}
	clone := original.Clone()
	clone["gpa"] = json.RawMessage(`1.0`)
	clone["extra"] = json.RawMessage(`true`)

	assert.Equal(t, json.RawMessage(`3.5`), original["gpa"])
	assert.NotContains(t, original, "extra")
}

func TestChangePayloadMissingType(t *testing.T) {
	_, err := ChangePayload{}.ChangeType()
	require.Error(t, err)
}

func TestPrincipalRoles(t *testing.T) {
	email := "a@campus.test"
	p := NewPrincipal(&User{ID: "u1", Username: "admin", Role: RoleAdmin, Email: &email}, time.Now())
	assert.True(t, p.IsAdmin())
	assert.True(t, p.HasRole(RoleTeacher, RoleAdmin))
	assert.False(t, p.HasRole(RoleStudent))
	assert.Equal(t, email, p.Email)

	var nilPrincipal *Principal
	assert.False(t, nilPrincipal.HasRole(RoleStudent))
}
