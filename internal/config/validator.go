package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// RegisterCustomValidators registers gateway-specific validation rules.
// Must be called before validating Config.
func RegisterCustomValidators(v *validator.Validate) error {
	v.RegisterStructValidation(validateJWTModeFields, JWTConfig{})
	return nil
}

// validateJWTModeFields is a struct-level check wired onto JWTConfig: a
// symmetric mode requires Secret, an asymmetric mode requires JWKSURL.
func validateJWTModeFields(sl validator.StructLevel) {
	jwt := sl.Current().Interface().(JWTConfig)
	switch jwt.Mode {
	case "symmetric":
		if jwt.Secret == "" {
			sl.ReportError(jwt.Secret, "Secret", "Secret", "required_with_mode_symmetric", "")
		}
	case "asymmetric":
		if jwt.JWKSURL == "" {
			sl.ReportError(jwt.JWKSURL, "JWKSURL", "JWKSURL", "required_with_mode_asymmetric", "")
		}
	}
}

// Validate validates Config using struct tags and cross-field rules.
// Returns an error with an actionable message if validation fails.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := RegisterCustomValidators(v); err != nil {
		return err
	}
	v.RegisterStructValidation(validateJWTModeFields, JWTConfig{})

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateUpstreamMutualExclusion(); err != nil {
		return err
	}
	if err := c.validateScopeMappingTools(); err != nil {
		return err
	}

	return nil
}

// validateUpstreamMutualExclusion ensures the config picks either a single
// default upstream (transport/command/url) or a named multi-upstream set
// (servers[]), never both — the two dispatch shapes are mutually exclusive
// at the config level.
func (c *Config) validateUpstreamMutualExclusion() error {
	hasSingle := c.Upstream.Command != "" || c.Upstream.URL != ""
	hasServers := len(c.Upstream.Servers) > 0

	if hasSingle && hasServers {
		return ErrUpstreamMutualExclusion
	}
	return nil
}

// HasSingleUpstream reports whether the config declares the single default
// upstream shape rather than a named servers[] set.
func (c *Config) HasSingleUpstream() bool {
	return c.Upstream.Command != "" || c.Upstream.URL != ""
}

// validateScopeMappingTools ensures every scope_tool_mapping entry maps to
// at least one non-empty tool name; the struct tag catches an empty slice
// but not a slice of empty strings.
func (c *Config) validateScopeMappingTools() error {
	check := func(source string, mappings []ScopeMappingSpec) error {
		for i, m := range mappings {
			for _, tool := range m.Tools {
				if strings.TrimSpace(tool) == "" {
					return fmt.Errorf("%s.scope_tool_mapping[%d]: tool name must not be blank", source, i)
				}
			}
		}
		return nil
	}
	if err := check("auth.jwt", c.Auth.JWT.ScopeToolMapping); err != nil {
		return err
	}
	return check("auth.oauth", c.Auth.OAuth.ScopeToolMapping)
}

// formatValidationErrors converts validator.ValidationErrors to user-friendly
// messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError creates a user-friendly message for a single
// validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must have at least %s items", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "startswith":
		return fmt.Sprintf("%s must start with %q", field, e.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "hostname|ip":
		return fmt.Sprintf("%s must be a valid hostname or IP address", field)
	case "required_with_mode_symmetric":
		return fmt.Sprintf("%s is required when auth.jwt.mode is \"symmetric\"", field)
	case "required_with_mode_asymmetric":
		return fmt.Sprintf("%s is required when auth.jwt.mode is \"asymmetric\"", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}
