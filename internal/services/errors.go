package services

import (
	"errors"
	"fmt"
	"strings"

	"porter/internal/records"
)

var (
	ErrTransient     = errors.New("transient failure")
	ErrLocked        = errors.New("resource locked")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrAuth          = errors.New("authorization error")
	ErrNotFound      = errors.New("not found")
	ErrExternal      = errors.New("external service error")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later status classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// FailureStatus maps a stage error to the project status the scheduler should
// persist after the stage fails.
func FailureStatus(err error) records.ProjectStatus {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConfiguration):
		return records.ProjectPaused
	default:
		return records.ProjectFailed
	}
}

// IsSoftFailure reports whether an item-level error should be recorded without
// feeding the retry ledger (the destination was held by another writer).
func IsSoftFailure(err error) bool {
	return errors.Is(err, ErrLocked)
}

// IsValidationError reports whether an error stems from bad caller input
// rather than a pipeline or service fault.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFound reports whether an error represents a missing remote resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAuthError reports whether an error reflects a credential problem that a
// retry cannot fix.
func IsAuthError(err error) bool {
	if errors.Is(err, ErrAuth) {
		return true
	}
	message := err.Error()
	return strings.Contains(message, "401") || strings.Contains(message, "403")
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
