// Package cuperrors defines the single error type threaded through every
// Cuprate component. It follows the node's one long-standing convention:
// errors carry a numeric code, a human message, and an optional wrapped
// cause, and translate cleanly to gRPC status codes and JSON-RPC error
// objects at the edges (C15/C16) without the caller needing to know that.
package cuperrors

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ERR enumerates the error kinds from spec §7 plus the handful of general
// categories every layer needs (not-found, invalid-argument, etc).
type ERR int32

const (
	ERR_UNKNOWN ERR = iota
	ERR_NOT_FOUND
	ERR_INVALID_ARGUMENT
	ERR_FORMAT              // epee: unexpected tag, malformed length, missing field
	ERR_IO                  // epee/levin: short read/write, socket error
	ERR_TOO_LARGE           // epee/levin: container or bucket over configured limit
	ERR_TIMEOUT             // network or storage operation timed out
	ERR_THRESHOLD_EXCEEDED  // resource budget exceeded (§5)
	ERR_NETWORK_TRANSIENT   // transient network error, safe to retry on another peer
	ERR_PROTOCOL_VIOLATION  // malformed bucket, bad network id, banworthy
	ERR_CONSENSUS_REJECTED  // block/tx failed a §4.13 rule
	ERR_STORAGE_RESIZE      // mapped backend needs to grow; transient
	ERR_STORAGE_CORRUPTION  // fatal, triggers shutdown
	ERR_STORAGE_INVARIANT   // fatal invariant violation (duplicate key image, etc)
	ERR_RPC_INTERNAL        // -32603 equivalent
	ERR_RPC_INVALID_PARAMS  // -32602 equivalent
	ERR_RPC_METHOD_NOT_FOUND
	ERR_RPC_PARSE
	ERR_RPC_RESTRICTED
)

var errName = map[ERR]string{
	ERR_UNKNOWN:               "UNKNOWN",
	ERR_NOT_FOUND:             "NOT_FOUND",
	ERR_INVALID_ARGUMENT:      "INVALID_ARGUMENT",
	ERR_FORMAT:                "FORMAT",
	ERR_IO:                    "IO",
	ERR_TOO_LARGE:             "TOO_LARGE",
	ERR_TIMEOUT:               "TIMEOUT",
	ERR_THRESHOLD_EXCEEDED:    "THRESHOLD_EXCEEDED",
	ERR_NETWORK_TRANSIENT:     "NETWORK_TRANSIENT",
	ERR_PROTOCOL_VIOLATION:    "PROTOCOL_VIOLATION",
	ERR_CONSENSUS_REJECTED:    "CONSENSUS_REJECTED",
	ERR_STORAGE_RESIZE:        "STORAGE_RESIZE",
	ERR_STORAGE_CORRUPTION:    "STORAGE_CORRUPTION",
	ERR_STORAGE_INVARIANT:     "STORAGE_INVARIANT",
	ERR_RPC_INTERNAL:          "RPC_INTERNAL",
	ERR_RPC_INVALID_PARAMS:    "RPC_INVALID_PARAMS",
	ERR_RPC_METHOD_NOT_FOUND:  "RPC_METHOD_NOT_FOUND",
	ERR_RPC_PARSE:             "RPC_PARSE",
	ERR_RPC_RESTRICTED:        "RPC_RESTRICTED",
}

func (c ERR) String() string {
	if n, ok := errName[c]; ok {
		return n
	}
	return "UNKNOWN"
}

// ErrData lets a caller attach structured context (e.g. a RejectReason) to
// an Error without it being swallowed by fmt.Errorf string formatting.
type ErrData interface {
	Error() string
}

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
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.WrappedErr)
	}
	return fmt.Sprintf("%s: %s: %v, data: %s", e.Code, e.Message, e.WrappedErr, dataMsg)
}

// Is reports whether error codes match, unwrapping chains of *Error.
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
			if errors.As(data, target) {
				return true
			}
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

// New builds an Error. The optional last param may be an error (wrapped
// verbatim) or used as a fmt.Errorf-style argument to message otherwise.
func New(code ERR, message string, params ...interface{}) *Error {
	var wErr error

	if len(params) > 0 {
		last := params[len(params)-1]
		if err, ok := last.(error); ok {
			wErr = err
			params = params[:len(params)-1]
		}
	}

	if len(params) > 0 {
		message = fmt.Sprintf(message, params...)
	}

	return &Error{Code: code, Message: message, WrappedErr: wErr}
}

// ToGRPCCode maps a Cuprate error code to the nearest gRPC status code, for
// a gRPC-style surface. No package in this module calls it: the RPC server
// (C16) answers JSON-RPC and has no gRPC or health endpoint.
func ToGRPCCode(code ERR) codes.Code {
	switch code {
	case ERR_NOT_FOUND:
		return codes.NotFound
	case ERR_INVALID_ARGUMENT, ERR_FORMAT:
		return codes.InvalidArgument
	case ERR_THRESHOLD_EXCEEDED:
		return codes.ResourceExhausted
	case ERR_TIMEOUT:
		return codes.DeadlineExceeded
	case ERR_STORAGE_CORRUPTION, ERR_STORAGE_INVARIANT:
		return codes.Internal
	case ERR_UNKNOWN:
		return codes.Unknown
	default:
		return codes.Internal
	}
}

// ToGRPCStatus converts e into a *status.Status carrying the mapped code.
func ToGRPCStatus(e *Error) *status.Status {
	if e == nil {
		return status.New(codes.OK, "")
	}
	return status.New(ToGRPCCode(e.Code), e.Error())
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

func Is(err, target error) bool  { return errors.Is(err, target) }
func As(err error, target any) bool { return errors.As(err, target) }
