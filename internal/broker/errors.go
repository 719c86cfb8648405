package broker

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

// DefaultLoginFailure is reported when the backend rejects a login without a message
const DefaultLoginFailure = "Login failed"

// ErrInvalidResponse marks a login reply that carries no user id
var ErrInvalidResponse = errors.New("Invalid response format")

// AuthError is a rejected login
type AuthError struct {
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	return e.Message
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// ValidationError lists the fields of a request that failed local validation
type ValidationError struct {
	Fields []string
	Err    error
}

func (e *ValidationError) Error() string {
	return "invalid order: " + strings.Join(e.Fields, ", ")
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func newValidationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &ValidationError{Err: err}
	}
	fields := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields = append(fields, fe.Field()+" "+describeTag(fe))
	}
	return &ValidationError{Fields: fields, Err: err}
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt", "positive":
		return "must be positive"
	case "oneof":
		return "must be one of " + fe.Param()
	}
	return "failed " + fe.Tag()
}
