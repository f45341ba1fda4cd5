package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure the relay can produce. The values are part
// of the public response contract ({"code": ErrorKind, "message": ...}).
type ErrorKind string

const (
	KindCodeTooLarge              ErrorKind = "CodeTooLarge"
	KindUnsupportedLanguage       ErrorKind = "UnsupportedLanguage"
	KindMalformedRequest          ErrorKind = "MalformedRequest"
	KindUserRateLimited           ErrorKind = "UserRateLimited"
	KindProviderRateLimited       ErrorKind = "ProviderRateLimited"
	KindProviderUnavailable       ErrorKind = "ProviderUnavailable"
	KindMalformedProviderResponse ErrorKind = "MalformedProviderResponse"
	KindAllProvidersExhausted     ErrorKind = "AllProvidersExhausted"
	KindRecordNotFound            ErrorKind = "RecordNotFound"
	KindInternal                  ErrorKind = "InternalError"
)

var (
	// ErrCodeTooLarge is returned when the source code exceeds the size limit.
	ErrCodeTooLarge = errors.New("source code exceeds maximum size")

	// ErrUnsupportedLanguage is returned when no registered provider supports the language.
	ErrUnsupportedLanguage = errors.New("unsupported language")

	// ErrMalformedRequest is returned for empty, non-UTF-8 or control-byte-laden input.
	ErrMalformedRequest = errors.New("malformed execution request")

	// ErrUserRateLimited is returned when the requestor exceeded its request budget.
	ErrUserRateLimited = errors.New("rate limit exceeded, try again later")

	// ErrProviderRateLimited is internal: the provider is skipped for this attempt.
	ErrProviderRateLimited = errors.New("provider rate limit exceeded")

	// ErrProviderUnavailable covers transport errors, timeouts and 5xx responses.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrMalformedProviderResponse is returned when a provider payload cannot be parsed.
	ErrMalformedProviderResponse = errors.New("malformed provider response")

	// ErrAllProvidersExhausted is returned when no eligible provider produced a result.
	ErrAllProvidersExhausted = errors.New("all execution providers are unavailable")

	// ErrRecordNotFound is returned when an execution record cannot be found by ID.
	ErrRecordNotFound = errors.New("execution record not found")
)

var kindSentinels = map[ErrorKind]error{
	KindCodeTooLarge:              ErrCodeTooLarge,
	KindUnsupportedLanguage:       ErrUnsupportedLanguage,
	KindMalformedRequest:          ErrMalformedRequest,
	KindUserRateLimited:           ErrUserRateLimited,
	KindProviderRateLimited:       ErrProviderRateLimited,
	KindProviderUnavailable:       ErrProviderUnavailable,
	KindMalformedProviderResponse: ErrMalformedProviderResponse,
	KindAllProvidersExhausted:     ErrAllProvidersExhausted,
	KindRecordNotFound:            ErrRecordNotFound,
}

// ExecError is the typed error carried through the relay. Is matches the
// sentinel of its kind, so callers can use errors.Is(err, ErrCodeTooLarge).
type ExecError struct {
	Kind       ErrorKind
	Message    string
	ProviderID string
	Err        error
}

// NewExecError builds an ExecError with a formatted message.
func NewExecError(kind ErrorKind, format string, args ...any) *ExecError {
	return &ExecError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// ProviderError builds an ExecError attributed to a provider.
func ProviderError(kind ErrorKind, providerID string, err error) *ExecError {
	msg := string(kind)
	if err != nil {
		msg = err.Error()
	}
	return &ExecError{Kind: kind, Message: msg, ProviderID: providerID, Err: err}
}

func (e *ExecError) Error() string {
	if e.ProviderID != "" {
		return fmt.Sprintf("%s: provider %s: %s", e.Kind, e.ProviderID, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel error for this kind.
func (e *ExecError) Is(target error) bool {
	s, ok := kindSentinels[e.Kind]
	return ok && s == target
}

// KindOf extracts the ErrorKind from err, or KindInternal if err is not an ExecError.
func KindOf(err error) ErrorKind {
	var execErr *ExecError
	if errors.As(err, &execErr) {
		return execErr.Kind
	}
	return KindInternal
}

// IsProviderFailure reports whether the kind should trigger fallback to the next provider.
func (k ErrorKind) IsProviderFailure() bool {
	switch k {
	case KindProviderUnavailable, KindMalformedProviderResponse, KindProviderRateLimited:
		return true
	}
	return false
}
