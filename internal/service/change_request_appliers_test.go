package service

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-gateway/internal/models"
	appErrors "github.com/noah-isme/campus-gateway/pkg/errors"
)

func TestApplyProfileUpdateAllowList(t *testing.T) {
	advisor := "adv-old"
	graduation := 2026
	profile := &models.StudentProfile{
		StudentID:      "stu-1",
		StudentNumber:  "S-001",
		AdmissionYear:  2022,
		GraduationYear: &graduation,
		AdvisorID:      &advisor,
		Status:         models.ProfileStatusActive,
	}
	payload := models.ChangePayload{
		"changeType":     json.RawMessage(`"PROFILE_UPDATE"`),
		"studentNumber":  json.RawMessage(`" S-002 "`),
		"graduationYear": json.RawMessage(`null`),
		"advisorId":      json.RawMessage(`"adv-new"`),
		"status":         json.RawMessage(`"suspended"`),
		"totalCredits":   json.RawMessage(`64`),
		"studentId":      json.RawMessage(`"someone-else"`),
	}

	applied, err := ApplyProfileUpdate(profile, payload)
	require.NoError(t, err)
	assert.Equal(t, []string{"advisorId", "graduationYear", "status", "studentNumber", "totalCredits"}, applied)
	assert.Equal(t, "stu-1", profile.StudentID)
	assert.Equal(t, "S-002", profile.StudentNumber)
	assert.Nil(t, profile.GraduationYear)
	require.NotNil(t, profile.AdvisorID)
	assert.Equal(t, "adv-new", *profile.AdvisorID)
	assert.Equal(t, models.ProfileStatusSuspended, profile.Status)
	assert.Equal(t, 64, profile.TotalCredits)
}

func TestApplyProfileUpdateRejectsBadTypes(t *testing.T) {
	cases := map[string]json.RawMessage{
		"gpa":           json.RawMessage(`4.5`),
		"totalCredits":  json.RawMessage(`12.5`),
		"admissionYear": json.RawMessage(`"2020"`),
		"status":        json.RawMessage(`"GRADUATED"`),
		"studentNumber": json.RawMessage(`null`),
	}
	for field, raw := range cases {
		t.Run(field, func(t *testing.T) {
			profile := &models.StudentProfile{StudentNumber: "S-001", GPA: 3}
			_, err := ApplyProfileUpdate(profile, models.ChangePayload{field: raw})
			require.Error(t, err)
			assert.True(t, appErrors.HasCode(err, appErrors.CodeValidation))
		})
	}
}

func TestDefaultProfileEffectsSetStatus(t *testing.T) {
	effects := DefaultProfileEffects()
	expectations := map[models.ChangeType]models.ProfileStatus{
		models.ChangeTypeSuspend:  models.ProfileStatusSuspended,
		models.ChangeTypeWithdraw: models.ProfileStatusWithdrawn,
		models.ChangeTypeResume:   models.ProfileStatusActive,
	}
	for changeType, status := range expectations {
		profile := &models.StudentProfile{Status: models.ProfileStatusSuspended, GPA: 2}
		if changeType == models.ChangeTypeResume {
			profile.Status = models.ProfileStatusWithdrawn
		}
		require.NoError(t, effects[changeType].Apply(profile, models.ChangePayload{"gpa": json.RawMessage(`4.0`)}))
		assert.Equal(t, status, profile.Status)
		assert.Equal(t, 2.0, profile.GPA)
	}
}
