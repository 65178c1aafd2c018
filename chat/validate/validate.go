// Package validate checks user-supplied chat input before any store access.
package validate

import (
	"github.com/go-playground/validator/v10"
)

// A Validator wraps the underlying validator library with the chat input
// rules.
type Validator struct {
	cli *validator.Validate
}

// An Error is a recoverable input failure with a human-readable reason.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return e.Reason
}

// New initializes and returns a new instance of the Validator.
func New() *Validator {
	return &Validator{
		cli: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// PIN checks that pin is exactly 6 digits.
func (v *Validator) PIN(pin string) error {
	if err := v.cli.Var(pin, "required,len=6,numeric"); err != nil {
		return &Error{Field: "pin", Reason: "PIN must be 6 digits"}
	}
	return nil
}

// Password checks that password is at least 4 characters.
func (v *Validator) Password(password string) error {
	if err := v.cli.Var(password, "required,min=4"); err != nil {
		return &Error{Field: "password", Reason: "Password must be at least 4 characters"}
	}
	return nil
}

// Credentials checks a pin/password pair, reporting the first failure.
func (v *Validator) Credentials(pin, password string) error {
	if err := v.PIN(pin); err != nil {
		return err
	}
	return v.Password(password)
}
