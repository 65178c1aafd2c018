package validate

import (
	"errors"
	"testing"
)

func TestValidator_PIN(t *testing.T) {
	v := New()

	tests := []struct {
		name    string
		pin     string
		wantErr bool
	}{
		{name: "Valid", pin: "123456", wantErr: false},
		{name: "Empty", pin: "", wantErr: true},
		{name: "TooShort", pin: "12345", wantErr: true},
		{name: "TooLong", pin: "1234567", wantErr: true},
		{name: "NonNumeric", pin: "12a456", wantErr: true},
		{name: "LeadingZeros", pin: "000001", wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.PIN(tt.pin)
			if tt.wantErr && err == nil {
				t.Error("PIN() expected error but got none")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("PIN() got unexpected error: %v", err)
			}
		})
	}
}

func TestValidator_Password(t *testing.T) {
	v := New()

	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{name: "Valid", password: "hunter2", wantErr: false},
		{name: "Empty", password: "", wantErr: true},
		{name: "TooShort", password: "abc", wantErr: true},
		{name: "ExactMinimum", password: "abcd", wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Password(tt.password)
			if tt.wantErr && err == nil {
				t.Error("Password() expected error but got none")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Password() got unexpected error: %v", err)
			}
		})
	}
}

func TestValidator_Credentials(t *testing.T) {
	v := New()

	err := v.Credentials("12345", "hunter2")
	var verr *Error
	if !errors.As(err, &verr) {
		t.Fatalf("Credentials() error = %v, want *validate.Error", err)
	}
	if verr.Field != "pin" {
		t.Errorf("Got field %q, want pin", verr.Field)
	}
	if verr.Reason != "PIN must be 6 digits" {
		t.Errorf("Got reason %q", verr.Reason)
	}

	err = v.Credentials("123456", "abc")
	if !errors.As(err, &verr) {
		t.Fatalf("Credentials() error = %v, want *validate.Error", err)
	}
	if verr.Field != "password" {
		t.Errorf("Got field %q, want password", verr.Field)
	}

	if err := v.Credentials("123456", "hunter2"); err != nil {
		t.Errorf("Credentials() got unexpected error: %v", err)
	}
}
