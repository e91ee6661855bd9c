// Package validation validates configuration sections and user input,
// returning *errors.AppError with code INVALID_INPUT.
//
// Struct tags (go-playground/validator) cover field-level rules:
//
//	type Config struct {
//	    Provider string `mapstructure:"provider" validate:"required,oneof=static consul redis"`
//	    Address  string `mapstructure:"address" validate:"omitempty,hostname_port"`
//	}
//	if err := validation.Validate(cfg); err != nil { ... }
//
// The chained Validator covers cross-field rules:
//
//	v := validation.New()
//	v.Range("statement.max_attempts", cfg.MaxAttempts, 1, 10)
//	v.Glob("include[0]", pattern)
//	return v.Validate()
package validation
