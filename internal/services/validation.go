package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"furadapt/api/internal/models"
)

// validateInput runs the binding-tag validator and turns its failures into ErrValidation.
func validateInput(v interface{}) error {
	err := models.Validate(v)
	if err == nil {
		return nil
	}
	return validationError("%s", DescribeValidation(err))
}

// DescribeValidation renders validator failures as a single readable sentence.
func DescribeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		// Namespace is "Type.Field.Sub"; drop the root type name.
		field := fe.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		switch fe.Tag() {
		case "required":
			parts = append(parts, fmt.Sprintf("%s is required", field))
		case "max":
			parts = append(parts, fmt.Sprintf("%s must be at most %s characters", field, fe.Param()))
		case "min":
			parts = append(parts, fmt.Sprintf("%s must be at least %s", field, fe.Param()))
		case "oneof":
			parts = append(parts, fmt.Sprintf("%s must be one of [%s]", field, fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s failed '%s' validation", field, fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
