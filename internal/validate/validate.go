// Package validate is the input-validation collaborator. It runs struct-tag
// rules and reports failures as domain Validation errors.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/pkordes/users-api/internal/domain"
)

// v is the package-level singleton validator. Field names in failures are
// taken from json tags so messages match the request payload.
var v = newValidator()

func newValidator() *validator.Validate {
	val := validator.New(validator.WithRequiredStructEnabled())
	val.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return val
}

// Struct validates s using its validate tags. It returns nil, a
// domain.Validation error naming every failed field, or a domain.BadRequest
// error when s is not a struct.
func Struct(s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return domain.BadRequest("request payload could not be validated", domain.WithCause(err))
	}

	msgs := make([]string, 0, len(ve))
	fields := make([]string, 0, len(ve))
	for _, fe := range ve {
		msgs = append(msgs, message(fe))
		fields = append(fields, fe.Field())
	}
	return domain.Validation(strings.Join(msgs, "; "),
		domain.WithCause(err),
		domain.WithField("fields", fields),
	)
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return fe.Field() + " must be a valid email address"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}
