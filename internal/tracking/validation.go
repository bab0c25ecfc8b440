package tracking

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/socialpulse/followwatch/internal/models"
)

func newValidator() *validator.Validate {
	v := validator.New()

	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})

	// Handles are normalised before validation
	_ = v.RegisterValidation("handle", func(fl validator.FieldLevel) bool {
		return models.ValidateHandle(fl.Field().String()) == nil
	})

	return v
}

// toValidationError maps the first failed rule to a models.ValidationError
func toValidationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("invalid request: %w", err)
	}

	fe := fieldErrs[0]
	switch fe.Tag() {
	case "handle":
		if handleErr := models.ValidateHandle(fe.Value().(string)); handleErr != nil {
			return handleErr
		}
		return models.NewValidationError(fe.Field(), "invalid handle")
	case "required":
		return models.NewValidationError(fe.Field(), fmt.Sprintf("%s is required", fe.Field()))
	case "min":
		return models.NewValidationError(fe.Field(), fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param()))
	case "max":
		return models.NewValidationError(fe.Field(), fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param()))
	case "email":
		return models.NewValidationError(fe.Field(), "must be a valid e-mail address")
	default:
		return models.NewValidationError(fe.Field(), fmt.Sprintf("failed %s validation", fe.Tag()))
	}
}
