package domain

import (
	"fmt"
	"time"
)

// ErrorKind enumerates the TypedError variants from spec §3/§4.4. Only the
// first four are retryable; Retriable reports that.
type ErrorKind string

const (
	KindRateLimited    ErrorKind = "rate_limited"
	KindServiceOverload ErrorKind = "service_overload"
	KindServerError    ErrorKind = "server_error"
	KindTimeout        ErrorKind = "timeout"
	KindAuthError      ErrorKind = "auth_error"
	KindValidationError ErrorKind = "validation_error"
	KindNetworkError   ErrorKind = "network_error"
	KindAllKeysExhausted ErrorKind = "all_keys_exhausted"
)

// Retriable reports whether the pool/provider client should attempt another
// call after receiving this kind of error.
func (k ErrorKind) Retriable() bool {
	switch k {
	case KindRateLimited, KindServiceOverload, KindServerError, KindTimeout:
		return true
	default:
		return false
	}
}

// TypedError is the structured failure object surfaced to callers; never
// free text. Status and RetryAfter are populated only when the underlying
// HTTP response carried them.
type TypedError struct {
	Kind          ErrorKind
	Message       string
	Status        int
	RetryAfter    time.Duration
	KeyIDSuffix   string
	cause         error
}

func NewTypedError(kind ErrorKind, message string) *TypedError {
	return &TypedError{Kind: kind, Message: message}
}

func (e *TypedError) WithStatus(status int) *TypedError {
	e.Status = status
	return e
}

func (e *TypedError) WithRetryAfter(d time.Duration) *TypedError {
	e.RetryAfter = d
	return e
}

func (e *TypedError) WithKeySuffix(suffix string) *TypedError {
	e.KeyIDSuffix = suffix
	return e
}

func (e *TypedError) WithCause(err error) *TypedError {
	e.cause = err
	return e
}

func (e *TypedError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status=%d)", e.Kind, e.Message, e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *TypedError) Unwrap() error {
	return e.cause
}

func (e *TypedError) Retriable() bool {
	return e.Kind.Retriable()
}

// AllKeysExhaustedError wraps the last TypedError observed across every key
// and retry attempt in a pool dispatch.
type AllKeysExhaustedError struct {
	Attempts int
	Last     *TypedError
}

func (e *AllKeysExhaustedError) Error() string {
	if e.Last == nil {
		return fmt.Sprintf("all keys exhausted after %d attempts", e.Attempts)
	}
	return fmt.Sprintf("all keys exhausted after %d attempts: %s", e.Attempts, e.Last.Error())
}

func (e *AllKeysExhaustedError) Unwrap() error {
	return e.Last
}
