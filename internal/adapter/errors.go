// Package adapter binds entity metadata to the generic resource contract
// consumed by the JSON:API engine: queries, model accessors and persistence.
package adapter

import (
	"errors"
	"fmt"
)

// ErrInvalidValue is wrapped by binding errors caused by a client value that
// cannot be converted to the accessor's parameter type
var ErrInvalidValue = errors.New("invalid value")

// BindingError is returned when a model lacks a usable accessor
type BindingError struct {
	Entity   string
	Accessor string
	Err      error
}

// Error implements the error interface
func (e *BindingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %v", e.Entity, e.Accessor, e.Err)
	}
	return fmt.Sprintf("%s has no accessor %s", e.Entity, e.Accessor)
}

// Unwrap returns the underlying error
func (e *BindingError) Unwrap() error {
	return e.Err
}

// ContractViolation signals a defect in the caller or the schema: an
// unsupported operator, a duplicate identifier match, an unknown
// relationship or a query handle used with the wrong adapter.
type ContractViolation struct {
	Op     string
	Reason string
}

// Error implements the error interface
func (e *ContractViolation) Error() string {
	return fmt.Sprintf("contract violation in %s: %s", e.Op, e.Reason)
}

func violation(op, format string, args ...any) *ContractViolation {
	return &ContractViolation{Op: op, Reason: fmt.Sprintf(format, args...)}
}

// IsBindingError returns true if err is or wraps a *BindingError
func IsBindingError(err error) bool {
	var be *BindingError
	return errors.As(err, &be)
}

// IsContractViolation returns true if err is or wraps a *ContractViolation
func IsContractViolation(err error) bool {
	var cv *ContractViolation
	return errors.As(err, &cv)
}
