package validation

import (
	"strings"
	"testing"

	"github.com/kbukum/resilix/errors"
)

func TestValidatorRequired(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"present", "orders", false},
		{"empty", "", true},
		{"whitespace", "   ", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v := New().Required("name", tc.value)
			if v.HasErrors() != tc.wantErr {
				t.Errorf("HasErrors() = %v, want %v", v.HasErrors(), tc.wantErr)
			}
		})
	}
}

func TestValidatorRange(t *testing.T) {
	if New().Range("max_attempts", 3, 1, 10).HasErrors() {
		t.Error("expected 3 to be in range")
	}
	if !New().Range("max_attempts", 0, 1, 10).HasErrors() {
		t.Error("expected 0 to be out of range")
	}
	if !New().Min("pool", -1, 0).HasErrors() {
		t.Error("expected -1 to be below min")
	}
}

func TestValidatorOneOf(t *testing.T) {
	allowed := []string{"static", "consul", "redis"}
	if New().OneOf("provider", "consul", allowed).HasErrors() {
		t.Error("expected consul to be allowed")
	}
	if New().OneOf("provider", "", allowed).HasErrors() {
		t.Error("expected empty value to be skipped")
	}
	if !New().OneOf("provider", "etcd", allowed).HasErrors() {
		t.Error("expected etcd to be rejected")
	}
}

func TestValidatorHostPort(t *testing.T) {
	tests := []struct {
		value   string
		wantErr bool
	}{
		{"127.0.0.1:53", false},
		{"db.internal:3306", false},
		{"[::1]:8500", false},
		{"localhost", true},
		{":3306", true},
		{"host:0", true},
		{"host:70000", true},
		{"host:abc", true},
	}
	for _, tc := range tests {
		t.Run(tc.value, func(t *testing.T) {
			v := New().HostPort("address", tc.value)
			if v.HasErrors() != tc.wantErr {
				t.Errorf("HostPort(%q) errors = %v, want %v", tc.value, v.Errors(), tc.wantErr)
			}
		})
	}
}

func TestValidatorGlob(t *testing.T) {
	if New().Glob("include", "orders-*").HasErrors() {
		t.Error("expected valid glob")
	}
	if !New().Glob("include", "orders-[").HasErrors() {
		t.Error("expected malformed glob to be rejected")
	}
}

func TestValidatorValidate(t *testing.T) {
	v := New()
	if err := v.Validate(); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	v.Required("name", "").Custom(false, "round", "must advance")
	err := v.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !errors.HasCode(err, errors.ErrCodeInvalidInput) {
		t.Errorf("expected INVALID_INPUT, got %v", err)
	}
	if !strings.Contains(err.Error(), "name: is required") || !strings.Contains(err.Error(), "round: must advance") {
		t.Errorf("expected both field errors in message, got %q", err.Error())
	}
	appErr, _ := errors.As(err)
	if fields, ok := appErr.Details["fields"].([]FieldError); !ok || len(fields) != 2 {
		t.Errorf("expected 2 field errors in details, got %v", appErr.Details["fields"])
	}
}

func TestStructValidate(t *testing.T) {
	type Section struct {
		Provider string `mapstructure:"provider" validate:"required,oneof=static consul redis"`
		Address  string `mapstructure:"address" validate:"omitempty,hostname_port"`
		Attempts int    `mapstructure:"max_attempts" validate:"gte=1,lte=10"`
	}

	if err := Validate(Section{Provider: "static", Attempts: 3}); err != nil {
		t.Errorf("expected valid section, got %v", err)
	}

	err := Validate(Section{Provider: "etcd", Address: "nope", Attempts: 0})
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	for _, want := range []string{"provider: must be one of", "address: must be a host:port address", "max_attempts: must be at least 1"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected %q in %q", want, msg)
		}
	}
}

func TestRequiredFunc(t *testing.T) {
	if err := Required("name", "value"); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
	if err := Required("name", ""); err == nil {
		t.Error("expected error for empty required field")
	}
}
