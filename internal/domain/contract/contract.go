// Package contract validates untyped payload maps against the two
// schemas the pipeline enforces (spec §6): the source-specific raw
// payload shape and the canonical menu item shape. Both decode the
// incoming map into a typed struct with mapstructure, then run
// go-playground/validator/v10 struct-tag validation — the same two-step
// decode-then-validate idiom the teacher's internal/config package uses
// for YAML documents, applied here to per-item payload maps instead.
package contract

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

// Violations is a field name to list of messages mapping, matching
// itemctx.Context.Violations' shape so the processor can merge it in
// directly.
type Violations map[string][]string

// Result is the outcome of validating one payload against a Contract.
type Result struct {
	OK         bool
	Violations Violations
}

// Contract validates an untyped payload map against a fixed schema.
type Contract interface {
	// Name identifies the contract for error messages and replay packs.
	Name() string
	// Validate decodes and validates payload, returning field-level
	// violations on failure. Never returns an error for a malformed
	// payload — malformed input becomes a violation, not a Go error.
	Validate(payload map[string]any) Result
}

// structContract is grounded on the teacher's OSSConfig.Validate: build
// a *validator.Validate once, decode the input, run Struct, translate
// validator.ValidationErrors into field->message pairs.
type structContract struct {
	name     string
	validate *validator.Validate
	newDest  func() any
}

func newStructContract(name string, newDest func() any) *structContract {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return &structContract{name: name, validate: v, newDest: newDest}
}

func (c *structContract) Name() string { return c.name }

func (c *structContract) Validate(payload map[string]any) Result {
	dest := c.newDest()

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           dest,
		WeaklyTypedInput: true,
		ErrorUnused:      false,
	})
	if err != nil {
		return Result{OK: false, Violations: Violations{"_decode": {err.Error()}}}
	}
	if err := decoder.Decode(payload); err != nil {
		return Result{OK: false, Violations: Violations{"_decode": {err.Error()}}}
	}

	if err := c.validate.Struct(dest); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return Result{OK: false, Violations: translateValidationErrors(verrs)}
		}
		return Result{OK: false, Violations: Violations{"_validate": {err.Error()}}}
	}

	return Result{OK: true, Violations: Violations{}}
}

func translateValidationErrors(verrs validator.ValidationErrors) Violations {
	out := make(Violations, len(verrs))
	for _, e := range verrs {
		field := fieldPath(e.Namespace())
		out[field] = append(out[field], formatFieldError(e))
	}
	return out
}

// fieldPath strips the leading "StructName." segment validator.Namespace
// adds, converting e.g. "rawTreezPayload.price_cents" to "price_cents".
// Fields are named by their mapstructure tag (see newStructContract), so
// the result matches the payload's own map keys.
func fieldPath(namespace string) string {
	parts := strings.SplitN(namespace, ".", 2)
	field := namespace
	if len(parts) == 2 {
		field = parts[1]
	}
	return strings.ToLower(field)
}

func formatFieldError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fieldPath(e.Namespace()))
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fieldPath(e.Namespace()), e.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", fieldPath(e.Namespace()), e.Param())
	case "dive":
		return fmt.Sprintf("%s has an invalid element", fieldPath(e.Namespace()))
	default:
		return fmt.Sprintf("%s failed validation: %s", fieldPath(e.Namespace()), e.Tag())
	}
}
