package validator

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Errors is returned by Struct so callers can pass validation failures around as an error.
type Errors []ValidationError

func (e Errors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, ve := range e {
		msgs = append(msgs, ve.Message)
	}

	return strings.Join(msgs, "; ")
}

type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]

		if name == "-" {
			return ""
		}

		return name
	})

	return &Validator{validate: v}
}

func (v *Validator) Validate(i any) ([]ValidationError, bool) {
	err := v.validate.Struct(i)
	if err == nil {
		return nil, true
	}

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return []ValidationError{{Code: "INVALID", Message: err.Error()}}, false
	}

	errors := make([]ValidationError, 0, len(validationErrors))
	for _, err := range validationErrors {
		errors = append(errors, ValidationError{
			Field:   err.Field(),
			Code:    strings.ToUpper(err.Tag()),
			Message: message(err.Field(), err.Tag(), err.Param()),
		})
	}

	return errors, false
}

// Struct is Validate for callers that only need an error.
func (v *Validator) Struct(i any) error {
	if errs, ok := v.Validate(i); !ok {
		return Errors(errs)
	}

	return nil
}

// Email reports whether s is a syntactically valid email address.
func (v *Validator) Email(s string) bool {
	return v.validate.Var(s, "required,email") == nil
}

func message(field, tag, param string) string {
	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters long", field, param)
	case "max":
		return fmt.Sprintf("%s must not exceed %s characters", field, param)
	case "len":
		return fmt.Sprintf("%s must be exactly %s characters long", field, param)
	case "email":
		return fmt.Sprintf("%s must be a valid email", field)
	case "url":
		return fmt.Sprintf("%s must be a valid url", field)
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, param)
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, param)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
