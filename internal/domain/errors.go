package domain

import (
	"errors"
	"fmt"
	"github.com/samber/lo"
	"strings"
)

var (
	ErrNotFound = errors.New("order not found")
)

// ValidationError is a client-input error; nothing has been changed when it
// is returned.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	msg := e.Reason
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return "validation: " + msg
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// StorageError means the persistence layer was unavailable or rejected the
// write. The operation left no partial state behind.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// SinkFailure is a failed delivery to one named broadcast sink.
type SinkFailure struct {
	Sink string
	Err  error
}

// DispatchError is returned when one or more sinks failed after the order
// was already persisted.
type DispatchError struct {
	Failures []SinkFailure
}

func (e *DispatchError) Error() string {
	parts := lo.Map(e.Failures, func(f SinkFailure, _ int) string {
		return fmt.Sprintf("%s: %v", f.Sink, f.Err)
	})
	return "dispatch failed: " + strings.Join(parts, "; ")
}

func (e *DispatchError) Unwrap() []error {
	return lo.Map(e.Failures, func(f SinkFailure, _ int) error {
		return f.Err
	})
}

// Sinks returns the names of the failed sinks in attempt order.
func (e *DispatchError) Sinks() []string {
	return lo.Map(e.Failures, func(f SinkFailure, _ int) string {
		return f.Sink
	})
}

// DecodeError is a per-message failure while draining the work queue.
type DecodeError struct {
	ReceiptHandle string
	Err           error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode message[%s]: %v", e.ReceiptHandle, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
