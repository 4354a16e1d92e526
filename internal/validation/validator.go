// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/tomtom215/reelgate/internal/models"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// sourceKeyPattern matches video-source keys such as "dbzy" or "ffzy-2".
var sourceKeyPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// ValidationError is a single field failure.
type ValidationError struct {
	field   string
	tag     string
	param   string
	message string
}

// Field returns the JSON name of the field that failed.
func (e *ValidationError) Field() string { return e.field }

// Tag returns the validation tag that failed.
func (e *ValidationError) Tag() string { return e.tag }

// Param returns the tag parameter, e.g. "32" for "max=32".
func (e *ValidationError) Param() string { return e.param }

func (e *ValidationError) Error() string { return e.message }

// RequestValidationError collects every field failure of one struct.
type RequestValidationError struct {
	errors []ValidationError
}

// Errors returns the individual field failures.
func (ve *RequestValidationError) Errors() []ValidationError {
	return ve.errors
}

// Error joins all field messages.
func (ve *RequestValidationError) Error() string {
	if len(ve.errors) == 0 {
		return "validation failed"
	}
	messages := make([]string, len(ve.errors))
	for i := range ve.errors {
		messages[i] = ve.errors[i].message
	}
	return strings.Join(messages, "; ")
}

// Messages returns one message per failed field.
func (ve *RequestValidationError) Messages() []string {
	out := make([]string, len(ve.errors))
	for i := range ve.errors {
		out[i] = ve.errors[i].message
	}
	return out
}

// ToAPIError converts the failures into the API error envelope.
// Submitted values are never echoed back; they may be passwords.
func (ve *RequestValidationError) ToAPIError() *models.APIError {
	apiErr := &models.APIError{Code: "VALIDATION_ERROR", Message: ve.Error()}
	if len(ve.errors) == 0 {
		apiErr.Message = "Validation failed"
		return apiErr
	}

	fields := make([]map[string]string, len(ve.errors))
	for i, err := range ve.errors {
		fields[i] = map[string]string{"field": err.field, "tag": err.tag, "message": err.message}
	}
	apiErr.Details = map[string]interface{}{"fields": fields}
	return apiErr
}

// GetValidator returns the process-wide validator. Safe for concurrent use.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		// Report JSON field names so messages match the request body.
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})

		mustRegister("username", func(fl validator.FieldLevel) bool {
			return models.IsValidUsername(fl.Field().String())
		})
		mustRegister("role", func(fl validator.FieldLevel) bool {
			_, err := models.ParseRole(fl.Field().String())
			return err == nil
		})
		mustRegister("sourcekey", func(fl validator.FieldLevel) bool {
			return sourceKeyPattern.MatchString(fl.Field().String())
		})
	})
	return validate
}

func mustRegister(tag string, fn validator.Func) {
	if err := validate.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("validation: register %s: %v", tag, err))
	}
}

// ValidateStruct returns nil or a *RequestValidationError.
//
//	if verr := validation.ValidateStruct(&req); verr != nil {
//	    respondValidationError(w, verr)
//	    return
//	}
func ValidateStruct(s interface{}) *RequestValidationError {
	if err := GetValidator().Struct(s); err != nil {
		return fromError(err, "")
	}
	return nil
}

// ValidateVar validates a single value, such as a path parameter, against a tag expression.
func ValidateVar(field string, value interface{}, tag string) *RequestValidationError {
	if err := GetValidator().Var(value, tag); err != nil {
		return fromError(err, field)
	}
	return nil
}

// fromError converts a validator error; a non-empty field overrides the reported name.
func fromError(err error, field string) *RequestValidationError {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &RequestValidationError{errors: []ValidationError{{field: "unknown", tag: "unknown", message: err.Error()}}}
	}

	out := make([]ValidationError, len(fieldErrs))
	for i, fe := range fieldErrs {
		name := field
		if name == "" {
			name = fe.Field()
		}
		out[i] = ValidationError{
			field:   name,
			tag:     fe.Tag(),
			param:   fe.Param(),
			message: translateError(fe, name),
		}
	}
	return &RequestValidationError{errors: out}
}

var errorMessageTemplates = map[string]string{
	"required":  "%s is required",
	"username":  "%s must be 3-32 characters of letters, digits, '.', '_' or '-'",
	"role":      "%s must be one of: user, admin, owner",
	"sourcekey": "%s must be a valid source key",
	"eqfield":   "%s does not match",
}

var errorMessageWithParam = map[string]string{
	"oneof": "%s must be one of: %s",
	"gte":   "%s must be greater than or equal to %s",
	"lte":   "%s must be less than or equal to %s",
}

func translateError(fe validator.FieldError, field string) string {
	if field == "" {
		field = "value"
	}
	tag := fe.Tag()
	param := fe.Param()

	if template, ok := errorMessageTemplates[tag]; ok {
		return fmt.Sprintf(template, field)
	}
	if template, ok := errorMessageWithParam[tag]; ok {
		return fmt.Sprintf(template, field, param)
	}

	isString := fe.Kind() == reflect.String
	switch tag {
	case "min":
		if isString {
			return fmt.Sprintf("%s must be at least %s characters", field, param)
		}
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		if isString {
			return fmt.Sprintf("%s must be at most %s characters", field, param)
		}
		return fmt.Sprintf("%s must be at most %s", field, param)
	default:
		return fmt.Sprintf("%s failed %s validation", field, tag)
	}
}
