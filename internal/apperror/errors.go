// Package apperror defines the error kinds surfaced by the publish pipeline
// and how they map onto HTTP responses.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindAuthentication
	KindForbidden
	KindValidation
	KindConflict
	KindCredentialMissing
	KindExternalService
	KindQueueScheduling
	KindTimeout
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindAuthentication:
		return "authentication"
	case KindForbidden:
		return "forbidden"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindCredentialMissing:
		return "credential_missing"
	case KindExternalService:
		return "external_service"
	case KindQueueScheduling:
		return "queue_scheduling"
	case KindTimeout:
		return "timeout"
	case KindUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// ErrInvalidSchedule is wrapped by every rejected schedule time.
var ErrInvalidSchedule = errors.New("scheduled time must be in the future")

type Error struct {
	Kind    Kind
	Message string
	Details string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func NotFound(msg string) *Error            { return newError(KindNotFound, msg, nil) }
func Authentication(msg string) *Error      { return newError(KindAuthentication, msg, nil) }
func Forbidden(msg string) *Error           { return newError(KindForbidden, msg, nil) }
func Validation(msg string) *Error          { return newError(KindValidation, msg, nil) }
func Conflict(msg string, err error) *Error { return newError(KindConflict, msg, err) }
func CredentialMissing(msg string) *Error   { return newError(KindCredentialMissing, msg, nil) }
func Timeout(msg string, err error) *Error  { return newError(KindTimeout, msg, err) }

// Unavailable marks a request the caller should retry later.
func Unavailable(msg string) *Error { return newError(KindUnavailable, msg, nil) }

func InvalidSchedule(details string) *Error {
	return &Error{Kind: KindValidation, Message: ErrInvalidSchedule.Error(), Details: details, Err: ErrInvalidSchedule}
}

func ExternalService(msg, details string, err error) *Error {
	return &Error{Kind: KindExternalService, Message: msg, Details: details, Err: err}
}

func QueueScheduling(msg string, err error) *Error {
	return newError(KindQueueScheduling, msg, err)
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindExternalService:
		return http.StatusBadGateway
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Public returns the message and details safe to show to the caller.
func Public(err error) (string, string) {
	var e *Error
	if errors.As(err, &e) {
		return e.Message, e.Details
	}
	return "internal server error", ""
}
