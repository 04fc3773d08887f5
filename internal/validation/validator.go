// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

// Package validation wraps go-playground/validator v10 with a shared instance,
// JSON field naming and the VALIDATION_ERROR message style used by the API.
//
//	if verr := validation.ValidateStruct(&draft); verr != nil {
//	    return verr // *RequestValidationError
//	}
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// FieldError describes one failed rule.
type FieldError struct {
	Field   string
	Tag     string
	Param   string
	Message string
}

func (e FieldError) Error() string {
	return e.Message
}

// RequestValidationError collects every failed rule of one struct.
type RequestValidationError struct {
	errors []FieldError
}

// NewRequestValidationError builds an error for checks done outside struct tags,
// such as comparing a draft with its event configuration.
func NewRequestValidationError(field, tag, message string) *RequestValidationError {
	return &RequestValidationError{errors: []FieldError{{Field: field, Tag: tag, Message: message}}}
}

func (ve *RequestValidationError) Errors() []FieldError {
	return ve.errors
}

func (ve *RequestValidationError) Error() string {
	if len(ve.errors) == 0 {
		return "validation failed"
	}
	msgs := make([]string, 0, len(ve.errors))
	for _, e := range ve.errors {
		msgs = append(msgs, e.Message)
	}
	return strings.Join(msgs, "; ")
}

// Details returns the field list in the shape APIError.Details expects.
func (ve *RequestValidationError) Details() map[string]interface{} {
	fields := make([]map[string]string, 0, len(ve.errors))
	for _, e := range ve.errors {
		fields = append(fields, map[string]string{"field": e.Field, "tag": e.Tag, "message": e.Message})
	}
	return map[string]interface{}{"fields": fields}
}

// GetValidator returns the shared validator. Field names are reported by their
// json tag so messages match the request body.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
		//nolint:errcheck // registration only fails on an empty tag
		validate.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
			return slugPattern.MatchString(fl.Field().String())
		})
	})
	return validate
}

// ValidateStruct returns nil or a *RequestValidationError.
func ValidateStruct(s interface{}) *RequestValidationError {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &RequestValidationError{errors: []FieldError{{Field: "unknown", Tag: "unknown", Message: err.Error()}}}
	}

	out := make([]FieldError, len(fieldErrs))
	for i, fe := range fieldErrs {
		out[i] = FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Param:   fe.Param(),
			Message: translate(fe),
		}
	}
	return &RequestValidationError{errors: out}
}

var messages = map[string]string{
	"required": "%s is required",
	"email":    "%s must be a valid email address",
	"iso4217":  "%s must be an ISO 4217 currency code",
	"slug":     "%s must contain only lower case letters, digits, '-' and '_'",
	"uuid4":    "%s must be a UUID",
}

var messagesWithParam = map[string]string{
	"oneof": "%s must be one of: %s",
	"gt":    "%s must be greater than %s",
	"gte":   "%s must be greater than or equal to %s",
	"lte":   "%s must be less than or equal to %s",
}

func translate(fe validator.FieldError) string {
	if tmpl, ok := messages[fe.Tag()]; ok {
		return fmt.Sprintf(tmpl, fe.Field())
	}
	if tmpl, ok := messagesWithParam[fe.Tag()]; ok {
		return fmt.Sprintf(tmpl, fe.Field(), fe.Param())
	}
	isString := fe.Kind() == reflect.String
	switch fe.Tag() {
	case "min":
		if isString {
			return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		if isString {
			return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	}
	return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
}
