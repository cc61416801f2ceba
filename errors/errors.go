// Package errors provides the node's single error type: a typed, wrappable
// *Error carrying an error code, grounded on the teacher's errors/Error.go.
// Unlike the teacher, codes here are a plain Go enum rather than a
// protobuf-generated one, since no RPC surface crosses the node's process
// boundary.
package errors

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// ERR classifies an Error for programmatic handling (§7 of the spec assigns
// each of the four failure classes a family of codes below).
type ERR int32

const (
	ERR_UNKNOWN ERR = iota
	ERR_NOT_FOUND
	ERR_INVALID_ARGUMENT
	ERR_ALREADY_EXISTS
	ERR_THRESHOLD_EXCEEDED
	ERR_CONFIGURATION
	ERR_PROCESSING
	ERR_STORAGE
	ERR_SERVICE
	ERR_INVALID_STATE
	ERR_NETWORK
	ERR_TIMEOUT
	ERR_PEER_MISBEHAVIOR
	ERR_CONSENSUS_INVARIANT
	ERR_NOT_SYNCED
)

var errName = map[ERR]string{
	ERR_UNKNOWN:             "UNKNOWN",
	ERR_NOT_FOUND:           "NOT_FOUND",
	ERR_INVALID_ARGUMENT:    "INVALID_ARGUMENT",
	ERR_ALREADY_EXISTS:      "ALREADY_EXISTS",
	ERR_THRESHOLD_EXCEEDED:  "THRESHOLD_EXCEEDED",
	ERR_CONFIGURATION:       "CONFIGURATION",
	ERR_PROCESSING:          "PROCESSING",
	ERR_STORAGE:             "STORAGE",
	ERR_SERVICE:             "SERVICE",
	ERR_INVALID_STATE:       "INVALID_STATE",
	ERR_NETWORK:             "NETWORK",
	ERR_TIMEOUT:             "TIMEOUT",
	ERR_PEER_MISBEHAVIOR:    "PEER_MISBEHAVIOR",
	ERR_CONSENSUS_INVARIANT: "CONSENSUS_INVARIANT",
	ERR_NOT_SYNCED:          "NOT_SYNCED",
}

func (c ERR) String() string {
	if name, ok := errName[c]; ok {
		return name
	}
	return "UNKNOWN"
}

// ErrData is an optional typed payload attached to an Error, used when a
// caller needs more than the error string.
type ErrData interface {
	Error() string
}

// Error is the node's single error type. It is always constructed via New.
type Error struct {
	Code       ERR
	Message    string
	WrappedErr error
	Data       ErrData
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}

	dataMsg := ""
	if e.Data != nil {
		dataMsg = e.Data.Error()
	}

	if e.WrappedErr == nil {
		if dataMsg == "" {
			return fmt.Sprintf("%s: %s", e.Code, e.Message)
		}
		return fmt.Sprintf("%s: %s, data: %s", e.Code, e.Message, dataMsg)
	}

	if dataMsg == "" {
		return fmt.Sprintf("%s (%d): %s: %v", e.Code, e.Code, e.Message, e.WrappedErr)
	}

	return fmt.Sprintf("%s (%d): %s: %v, data: %s", e.Code, e.Code, e.Message, e.WrappedErr, dataMsg)
}

// Is reports whether error codes match, unwrapping through chained Errors.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}

	var ue *Error
	if errors.As(target, &ue) {
		if e.Code == ue.Code {
			return true
		}
		if e.WrappedErr == nil {
			return false
		}
	}

	if unwrapped := errors.Unwrap(e); unwrapped != nil {
		if ue, ok := unwrapped.(*Error); ok {
			return ue.Is(target)
		}
	}

	return false
}

func (e *Error) As(target interface{}) bool {
	if e == nil {
		return false
	}

	if targetErr, ok := target.(**Error); ok {
		*targetErr = e
		return true
	}

	if e.Data != nil {
		if data, ok := e.Data.(error); ok {
			return errors.As(data, target)
		}
	}

	if e.WrappedErr != nil {
		if reflect.ValueOf(e.WrappedErr).Kind() == reflect.Ptr && reflect.ValueOf(e.WrappedErr).IsNil() {
			return false
		}
		return errors.As(e.WrappedErr, target)
	}

	return false
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.WrappedErr
}

// New builds an Error. If the last element of params is an error or *Error,
// it becomes the wrapped error and is excluded from message formatting.
func New(code ERR, message string, params ...interface{}) *Error {
	var wErr *Error

	if len(params) > 0 {
		lastParam := params[len(params)-1]

		if err, ok := lastParam.(*Error); ok {
			wErr = err
			params = params[:len(params)-1]
		} else if err, ok := lastParam.(error); ok {
			wErr = &Error{Message: err.Error()}
			params = params[:len(params)-1]
		}
	}

	if len(params) > 0 {
		message = fmt.Sprintf(message, params...)
	}

	return &Error{
		Code:       code,
		Message:    message,
		WrappedErr: wErr,
	}
}

func NewNotFoundError(message string, params ...interface{}) *Error {
	return New(ERR_NOT_FOUND, message, params...)
}

func NewInvalidArgumentError(message string, params ...interface{}) *Error {
	return New(ERR_INVALID_ARGUMENT, message, params...)
}

func NewAlreadyExistsError(message string, params ...interface{}) *Error {
	return New(ERR_ALREADY_EXISTS, message, params...)
}

func NewConfigurationError(message string, params ...interface{}) *Error {
	return New(ERR_CONFIGURATION, message, params...)
}

func NewProcessingError(message string, params ...interface{}) *Error {
	return New(ERR_PROCESSING, message, params...)
}

func NewStorageError(message string, params ...interface{}) *Error {
	return New(ERR_STORAGE, message, params...)
}

func NewServiceError(message string, params ...interface{}) *Error {
	return New(ERR_SERVICE, message, params...)
}

func NewInvalidStateError(message string, params ...interface{}) *Error {
	return New(ERR_INVALID_STATE, message, params...)
}

func NewNetworkError(message string, params ...interface{}) *Error {
	return New(ERR_NETWORK, message, params...)
}

func NewTimeoutError(message string, params ...interface{}) *Error {
	return New(ERR_TIMEOUT, message, params...)
}

func NewPeerMisbehaviorError(message string, params ...interface{}) *Error {
	return New(ERR_PEER_MISBEHAVIOR, message, params...)
}

// NewConsensusInvariantError marks a class-3 failure (§7): these always
// escalate to the process lifetime manager rather than being handled locally.
func NewConsensusInvariantError(message string, params ...interface{}) *Error {
	return New(ERR_CONSENSUS_INVARIANT, message, params...)
}

func NewNotSyncedError(message string, params ...interface{}) *Error {
	return New(ERR_NOT_SYNCED, message, params...)
}

func Join(errs ...error) error {
	var messages []string
	for _, err := range errs {
		if err != nil {
			messages = append(messages, err.Error())
		}
	}
	if len(messages) == 0 {
		return nil
	}
	return errors.New(strings.Join(messages, ", "))
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

// IsConsensusInvariant reports whether err is a class-3 failure (§7) that
// should escalate to process shutdown rather than being handled locally.
func IsConsensusInvariant(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == ERR_CONSENSUS_INVARIANT
}
