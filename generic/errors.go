/*
errors.go - Centralized error types for the costing engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Transport layers map these onto status codes via the helpers at the
  bottom of the file.

ERROR CATEGORIES:
  1. Input validation - malformed request, rejected before the pipeline
  2. Not found        - unknown template or variant
  3. Store errors     - collaborator failures, fatal for the request

  Formula failures and missing prices are NOT errors at this level: the
  pipeline records them on the affected line and keeps going.

USAGE:
  if errors.Is(err, generic.ErrTemplateNotFound) {
      // 404
  }

SEE ALSO:
  - calculate.go: records formula/price diagnostics instead of failing
  - api/handlers.go: maps these to HTTP status codes
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidInput is returned when a request fails validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTemplateNotFound is returned when a template key is unknown.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrVariantNotFound is returned when a variant key or id is unknown
	// for the template.
	ErrVariantNotFound = errors.New("variant not found")

	// ErrDuplicateKey is returned by stores when a key already exists.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrStoreUnavailable marks collaborator failures.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// NotFoundError carries the kind of entity and the key that was asked for.
type NotFoundError struct {
	Kind string // "template" or "variant"
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Key)
}

func (e *NotFoundError) Unwrap() error {
	if e.Kind == "variant" {
		return ErrVariantNotFound
	}
	return ErrTemplateNotFound
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsNotFound returns true if the error indicates a missing template or variant.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTemplateNotFound) || errors.Is(err, ErrVariantNotFound)
}

// IsConflict returns true for duplicate-key store errors.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateKey)
}
