package auth

import (
	"errors"
	"strings"
)

var (
	// ErrInvalidCredentials covers both unknown email and wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrInvalidOrExpiredToken is returned by the reset token gate.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	// ErrUserNotFound is returned by UserStore lookups.
	ErrUserNotFound = errors.New("user not found")
	// ErrNoResetUser is returned when SubmitUpdate runs without a resolved token.
	ErrNoResetUser = errors.New("no user resolved from reset token")
	// ErrStaleCredential is returned by UserStore.UpdateCredential when the
	// stored credential changed after the user was loaded.
	ErrStaleCredential = errors.New("credential changed since it was read")
)

// Validation messages.
const (
	MsgBlank       = "can't be blank"
	MsgTooLong     = "is too long (maximum is 72 bytes)"
	MsgNoMatch     = "doesn't match Password"
	MsgInvalid     = "is invalid"
	MsgTaken       = "has already been taken"
	MaxPasswordLen = 72
)

// FieldError is a single validation failure on a named field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a list of field failures. A nil or empty value means
// the input was valid.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, fe := range v {
		parts = append(parts, fe.Field+" "+fe.Message)
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// Add appends a failure for field.
func (v *ValidationErrors) Add(field, message string) {
	*v = append(*v, FieldError{Field: field, Message: message})
}

// On returns the messages recorded for field.
func (v ValidationErrors) On(field string) []string {
	var out []string
	for _, fe := range v {
		if fe.Field == field {
			out = append(out, fe.Message)
		}
	}
	return out
}

// ByField groups messages by field name.
func (v ValidationErrors) ByField() map[string][]string {
	out := make(map[string][]string, len(v))
	for _, fe := range v {
		out[fe.Field] = append(out[fe.Field], fe.Message)
	}
	return out
}

// ValidatePassword applies the password constraints enforced on every
// credential change: both fields present, at most 72 bytes, and equal.
func ValidatePassword(password, confirmation string) ValidationErrors {
	var errs ValidationErrors
	switch {
	case password == "":
		errs.Add("password", MsgBlank)
	case len(password) > MaxPasswordLen:
		errs.Add("password", MsgTooLong)
	}
	switch {
	case confirmation == "":
		errs.Add("password_confirmation", MsgBlank)
	case password != "" && confirmation != password:
		errs.Add("password_confirmation", MsgNoMatch)
	}
	return errs
}
