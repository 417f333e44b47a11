package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/marmos91/dittores/pkg/pipeline"
	"github.com/marmos91/dittores/pkg/resource"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// This function uses go-playground/validator for declarative validation
// via struct tags, with additional custom validation for complex rules
// that cannot be expressed in tags.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
//
// Returns an error describing validation failures.
func Validate(cfg *Config) error {
	// Run struct tag validation
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	// Custom validation rules that can't be expressed in tags
	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	// Validate at least one resolver is enabled
	enabled := cfg.Shared.Enabled
	for _, nr := range cfg.Resolvers.all() {
		enabled = enabled || nr.config.Enabled
	}
	if !enabled {
		return fmt.Errorf("resolvers: at least one resolver must be enabled")
	}

	// The shared root and link targets must be concrete, non-shared URIs
	if cfg.Shared.Root != "" {
		if err := validateSharedTarget(cfg.Shared.Root); err != nil {
			return fmt.Errorf("shared.root: %w", err)
		}
	}

	for prefix, target := range cfg.Shared.Links {
		if strings.Trim(prefix, "/") == "" {
			return fmt.Errorf("shared.links: cannot link the shared root")
		}
		if err := validateSharedTarget(target); err != nil {
			return fmt.Errorf("shared.links[%s]: %w", prefix, err)
		}
	}

	return nil
}

func validateSharedTarget(raw string) error {
	u, err := resource.ParseURI(raw)
	if err != nil {
		return err
	}
	if u.Scheme == pipeline.SharedScheme {
		return fmt.Errorf("%s cannot be a %s: URI", raw, pipeline.SharedScheme)
	}
	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		// Return the first validation error with context
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
