package config

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

// RegisterCustomValidators registers custom validation functions
func RegisterCustomValidators(v *validator.Validate) error {
	return v.RegisterValidation("url_path", validateURLPath)
}

// validateURLPath accepts absolute request paths without query or fragment.
func validateURLPath(fl validator.FieldLevel) bool {
	p := fl.Field().String()
	if !strings.HasPrefix(p, "/") {
		return false
	}
	return !strings.ContainsAny(p, "?# ")
}
