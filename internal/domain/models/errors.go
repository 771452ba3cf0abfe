package models

import (
	"errors"
	"fmt"
)

var (
	ErrValidation       = errors.New("validation failed")
	ErrInsufficientData = errors.New("insufficient data")
	ErrSingular         = errors.New("singular estimation")
	ErrRuleNotFound     = errors.New("alert rule not found")
	ErrSymbolNotFound   = errors.New("symbol not found")
)

// ValidationError rejects a malformed input (tick, rule, request).
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// InsufficientDataError reports that a computation needs more points than
// are available.
type InsufficientDataError struct {
	What string
	Need int
	Have int
}

func NewInsufficientDataError(what string, need, have int) *InsufficientDataError {
	return &InsufficientDataError{What: what, Need: need, Have: have}
}

func (e *InsufficientDataError) Error() string {
	if e.Need == 0 && e.Have == 0 {
		return fmt.Sprintf("insufficient data for %s", e.What)
	}
	return fmt.Sprintf("insufficient data for %s: need %d points, have %d", e.What, e.Need, e.Have)
}

func (e *InsufficientDataError) Is(target error) bool { return target == ErrInsufficientData }

// SingularEstimationError is raised by a hedge estimator when the regression
// is degenerate. Callers recover with the last valid ratio.
type SingularEstimationError struct {
	Estimator Estimator
	Reason    string
}

func (e *SingularEstimationError) Error() string {
	return fmt.Sprintf("%s estimation is singular: %s", e.Estimator, e.Reason)
}

func (e *SingularEstimationError) Is(target error) bool { return target == ErrSingular }
