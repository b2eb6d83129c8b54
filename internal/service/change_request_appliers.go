package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/noah-isme/campus-gateway/internal/models"
	appErrors "github.com/noah-isme/campus-gateway/pkg/errors"
)

// ProfileEffect mutates a locked profile as the business effect of an approved change.
type ProfileEffect interface {
	Apply(profile *models.StudentProfile, payload models.ChangePayload) error
}

// ProfileEffectFunc allows using plain functions.
type ProfileEffectFunc func(profile *models.StudentProfile, payload models.ChangePayload) error

// Apply implements ProfileEffect.
func (f ProfileEffectFunc) Apply(profile *models.StudentProfile, payload models.ChangePayload) error {
	return f(profile, payload)
}

type profileFieldSetter func(profile *models.StudentProfile, raw json.RawMessage) error

// profileFieldSetters is the allow-list of fields a PROFILE_UPDATE may touch.
var profileFieldSetters = map[string]profileFieldSetter{
	"studentNumber": func(p *models.StudentProfile, raw json.RawMessage) error {
		v, err := decodeString(raw)
		if err != nil {
			return err
		}
		if v == "" {
			return fmt.Errorf("must not be empty")
		}
		p.StudentNumber = v
		return nil
	},
	"admissionYear": func(p *models.StudentProfile, raw json.RawMessage) error {
		v, err := decodeYear(raw)
		if err != nil {
			return err
		}
		p.AdmissionYear = v
		return nil
	},
	"graduationYear": func(p *models.StudentProfile, raw json.RawMessage) error {
		if isNull(raw) {
			p.GraduationYear = nil
			return nil
		}
		v, err := decodeYear(raw)
		if err != nil {
			return err
		}
		p.GraduationYear = &v
		return nil
	},
	"advisorId": func(p *models.StudentProfile, raw json.RawMessage) error {
		if isNull(raw) {
			p.AdvisorID = nil
			return nil
		}
		v, err := decodeString(raw)
		if err != nil {
			return err
		}
		p.AdvisorID = &v
		return nil
	},
	"status": func(p *models.StudentProfile, raw json.RawMessage) error {
		v, err := decodeString(raw)
		if err != nil {
			return err
		}
		status := models.ProfileStatus(strings.ToUpper(v))
		if !status.Valid() {
			return fmt.Errorf("unknown status %q", v)
		}
		p.Status = status
		return nil
	},
	"gpa": func(p *models.StudentProfile, raw json.RawMessage) error {
		var v float64
		if isNull(raw) || json.Unmarshal(raw, &v) != nil {
			return fmt.Errorf("must be a number")
		}
		if v < 0 || v > 4 {
			return fmt.Errorf("must be between 0 and 4")
		}
		p.GPA = v
		return nil
	},
	"totalCredits": func(p *models.StudentProfile, raw json.RawMessage) error {
		var v int
		if isNull(raw) || json.Unmarshal(raw, &v) != nil {
			return fmt.Errorf("must be an integer")
		}
		if v < 0 {
			return fmt.Errorf("must not be negative")
		}
		p.TotalCredits = v
		return nil
	},
}

// ApplyProfileUpdate merges the allow-listed fields of payload into profile. Unknown keys,
// including the merged change type, are ignored. It returns the names of the applied fields.
func ApplyProfileUpdate(profile *models.StudentProfile, payload models.ChangePayload) ([]string, error) {
	keys := make([]string, 0, len(payload))
	for key := range payload {
		if _, ok := profileFieldSetters[key]; ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := profileFieldSetters[key](profile, payload[key]); err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s %s", key, err.Error()))
		}
	}
	return keys, nil
}

func setStatus(status models.ProfileStatus) ProfileEffectFunc {
	return func(profile *models.StudentProfile, _ models.ChangePayload) error {
		profile.Status = status
		return nil
	}
}

// DefaultProfileEffects maps each change type to its business effect.
func DefaultProfileEffects() map[models.ChangeType]ProfileEffect {
	return map[models.ChangeType]ProfileEffect{
		models.ChangeTypeProfileUpdate: ProfileEffectFunc(func(profile *models.StudentProfile, payload models.ChangePayload) error {
			_, err := ApplyProfileUpdate(profile, payload)
			return err
		}),
		models.ChangeTypeSuspend:  setStatus(models.ProfileStatusSuspended),
		models.ChangeTypeWithdraw: setStatus(models.ProfileStatusWithdrawn),
		models.ChangeTypeResume:   setStatus(models.ProfileStatusActive),
	}
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func decodeString(raw json.RawMessage) (string, error) {
	var v string
	if isNull(raw) || json.Unmarshal(raw, &v) != nil {
		return "", fmt.Errorf("must be a string")
	}
	return strings.TrimSpace(v), nil
}

func decodeYear(raw json.RawMessage) (int, error) {
	var v int
	if isNull(raw) || json.Unmarshal(raw, &v) != nil {
		return 0, fmt.Errorf("must be an integer year")
	}
	if v < 1900 || v > 2100 {
		return 0, fmt.Errorf("must be between 1900 and 2100")
	}
	return v, nil
}
