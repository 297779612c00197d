// Package persona sanitizes and whitelists persona payloads.
package persona

import (
	"html"
	"log/slog"
	"strings"

	"github.com/ashureev/persona-predict/internal/domain"
	"github.com/microcosm-cc/bluemonday"
)

// maxCleanPasses bounds the fixed-point loop in cleanField.
const maxCleanPasses = 8

// Validator cleans persona fields and checks them against the English whitelist.
type Validator struct {
	policy     *bluemonday.Policy
	industries map[string]struct{}
	problems   map[string]struct{}
}

// NewValidator creates a validator for the given slug sets.
func NewValidator(industries, problems map[string]struct{}) *Validator {
	return &Validator{
		policy:     bluemonday.StrictPolicy(),
		industries: industries,
		problems:   problems,
	}
}

// Sanitize strips markup from both fields and trims whitespace.
func (v *Validator) Sanitize(raw domain.Persona) domain.Persona {
	return domain.Persona{
		Industry:       v.cleanField(raw.Industry),
		BusinesProblem: v.cleanField(raw.BusinesProblem),
	}
}

// IsValid sanitizes raw and reports whether both fields are whitelisted.
// The sanitized persona is returned either way.
func (v *Validator) IsValid(raw domain.Persona) (bool, domain.Persona) {
	clean := v.Sanitize(raw)
	_, industryOK := v.industries[clean.Industry]
	_, problemOK := v.problems[clean.BusinesProblem]
	if !industryOK || !problemOK {
		slog.Debug("Persona rejected", "industry_ok", industryOK, "problem_ok", problemOK)
	}
	return industryOK && problemOK, clean
}

// cleanField runs strip/unescape/trim until the value stops changing, so that
// entity-encoded markup cannot survive a second pass. A value still changing
// after maxCleanPasses is dropped.
func (v *Validator) cleanField(value string) string {
	current := strings.TrimSpace(value)
	for i := 0; i < maxCleanPasses; i++ {
		next := strings.TrimSpace(html.UnescapeString(v.policy.Sanitize(current)))
		if next == current {
			return next
		}
		current = next
	}
	return ""
}
