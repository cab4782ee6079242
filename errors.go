package linkup

import (
	"errors"
	"fmt"
)

// ============================================================================
// Error Taxonomy
// ============================================================================

// ErrorKind classifies API failures.
type ErrorKind string

const (
	// KindNetwork covers transport failures and server-side errors; the
	// caller may retry by re-invoking the operation.
	KindNetwork ErrorKind = "network"

	// KindUnauthenticated means the session token was rejected. Callers
	// should navigate back to the public view; the SDK never retries it.
	KindUnauthenticated ErrorKind = "unauthenticated"

	// KindValidation means the store rejected the request payload.
	KindValidation ErrorKind = "validation"
)

// APIError is the error type returned by all LinkUp API operations.
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("linkup: %s (%d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("linkup: %s: %s", e.Kind, e.Message)
}

// ErrEmptyMessage is returned by Send and Edit when the trimmed message
// text is empty. No network call is made.
var ErrEmptyMessage = &APIError{Kind: KindValidation, Message: "message text is empty"}

func kindOf(err error) (ErrorKind, bool) {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Kind, true
	}
	return "", false
}

// IsUnauthenticated reports whether err means the session is no longer
// authenticated.
func IsUnauthenticated(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindUnauthenticated
}

// IsValidation reports whether err is a store-side rejection.
func IsValidation(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindValidation
}

// IsNetwork reports whether err is a transport or server failure that may
// succeed on manual retry.
func IsNetwork(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindNetwork
}
