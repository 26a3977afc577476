// Package simerr defines the error taxonomy shared by the simulation engine.
//
// Errors fall into two groups. Run-fatal errors (definition errors, missing
// actors, sequence misuse) stop the whole simulation. Pairing errors
// (terminations, dropped branches, exhausted retries) end one actor's current
// workflow execution and never cross the pairing boundary.
package simerr

import (
	"errors"
	"fmt"
)

// InvalidDefinitionError reports a workflow definition rejected at build time.
type InvalidDefinitionError struct {
	Node    string
	Field   string
	Message string
}

func (e *InvalidDefinitionError) Error() string {
	switch {
	case e.Node != "" && e.Field != "":
		return fmt.Sprintf("invalid definition of %s: %s: %s", e.Node, e.Field, e.Message)
	case e.Node != "":
		return fmt.Sprintf("invalid definition of %s: %s", e.Node, e.Message)
	default:
		return "invalid definition: " + e.Message
	}
}

// Invalid is a shorthand constructor for InvalidDefinitionError.
func Invalid(node, field, msg string) *InvalidDefinitionError {
	return &InvalidDefinitionError{Node: node, Field: field, Message: msg}
}

// SimulationTerminationError aborts the remaining steps of one workflow
// execution. It is raised by ensure steps.
type SimulationTerminationError struct {
	Reason string
}

func (e *SimulationTerminationError) Error() string {
	if e.Reason == "" {
		return "simulation terminated"
	}
	return "simulation terminated: " + e.Reason
}

// RetryExhaustedError is returned when every allowed attempt produced a
// retriable result.
type RetryExhaustedError struct {
	Attempts int
	Cause    error
}

func (e *RetryExhaustedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("retries exhausted after %d attempts", e.Attempts)
	}
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Cause)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Cause }

// BranchDroppedError marks a branch abandoned after a recoverable failure,
// typically a transport error on a request without retry configuration.
type BranchDroppedError struct {
	Node  string
	Cause error
}

func (e *BranchDroppedError) Error() string {
	return fmt.Sprintf("branch %s dropped: %v", e.Node, e.Cause)
}

func (e *BranchDroppedError) Unwrap() error { return e.Cause }

// InsufficientActorsError is returned when the actor pool never reached the
// required size within the poll budget.
type InsufficientActorsError struct {
	Required int
	Attempts int
}

func (e *InsufficientActorsError) Error() string {
	return fmt.Sprintf("insufficient actors: %d required, not available after %d polls", e.Required, e.Attempts)
}

// ErrSequenceExhausted is returned by a stopped sequence.
var ErrSequenceExhausted = errors.New("sequence exhausted")

// ErrUnexpectedStatus is the cause recorded when a response is classified as
// retriable. Retry policies wrap it with the status that triggered the retry.
var ErrUnexpectedStatus = errors.New("unexpected status")

// IsFatal reports whether err must stop the whole run rather than a single
// pairing.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var def *InvalidDefinitionError
	var actors *InsufficientActorsError
	return errors.As(err, &def) || errors.As(err, &actors) || errors.Is(err, ErrSequenceExhausted)
}

// IsTermination reports whether err ended a workflow execution through an
// ensure step.
func IsTermination(err error) bool {
	var t *SimulationTerminationError
	return errors.As(err, &t)
}

// IsDropped reports whether err is a dropped branch.
func IsDropped(err error) bool {
	var d *BranchDroppedError
	return errors.As(err, &d)
}
