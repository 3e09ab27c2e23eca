package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// RegisterCustomValidators registers ingestpipe-specific validation
// rules on a caller-supplied validator. PipelineConfig.Validate applies
// the same rule to its own validator without needing this.
func RegisterCustomValidators(v *validator.Validate) error {
	v.RegisterStructValidation(validateStorageDSN, StorageConfig{})
	return nil
}

// validateStorageDSN is applied to StorageConfig.DSN: required when
// Driver is "sqlite", irrelevant (and ignored) otherwise. Implemented
// as a struct-level validator rather than a field tag because it needs
// a sibling field.
func validateStorageDSN(sl validator.StructLevel) {
	cfg := sl.Current().Interface().(StorageConfig)
	if cfg.Driver == "sqlite" && cfg.DSN == "" {
		sl.ReportError(cfg.DSN, "DSN", "dsn", "storage_dsn", "")
	}
}

// Validate validates the PipelineConfig using struct tags and
// cross-field rules, following the teacher's OSSConfig.Validate shape:
// struct-tag pass first, then cross-field checks that a tag alone can't
// express.
func (c *PipelineConfig) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(validateStorageDSN, StorageConfig{})

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateSourceIDsUnique(); err != nil {
		return err
	}
	if err := c.validateFlagsStaticCoverage(); err != nil {
		return err
	}

	return nil
}

// validateSourceIDsUnique ensures no two SourceConfig entries share an ID.
func (c *PipelineConfig) validateSourceIDsUnique() error {
	seen := make(map[string]struct{}, len(c.Sources))
	for _, s := range c.Sources {
		if _, exists := seen[s.ID]; exists {
			return fmt.Errorf("sources: duplicate source id %q", s.ID)
		}
		seen[s.ID] = struct{}{}
	}
	return nil
}

// validateFlagsStaticCoverage ensures every manifest flag has a value
// when the static driver is selected, so a missing entry fails at
// config load time rather than mid-batch in FlagSnapshotter.Snapshot.
func (c *PipelineConfig) validateFlagsStaticCoverage() error {
	if c.Flags.Driver != "static" {
		return nil
	}
	for _, name := range c.Flags.Manifest {
		if _, ok := c.Flags.StaticValues[name]; !ok {
			return fmt.Errorf("flags: manifest entry %q has no static_values entry", name)
		}
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to
// user-friendly messages.
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

// formatSingleValidationError creates a user-friendly message for a
// single validation error.
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
	case "storage_dsn":
		return fmt.Sprintf("%s is required when storage.driver is \"sqlite\"", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}
