package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by how the gateway reports it.
type Kind string

const (
	KindAuthentication Kind = "authentication"
	KindAuthorization  Kind = "authorization"
	KindNotFound       Kind = "not_found"
	KindPolicy         Kind = "policy"
	KindInvalid        Kind = "invalid"
	KindTransient      Kind = "transient"
	KindInternal       Kind = "internal"
)

// Error codes delivered to clients in error events.
const (
	CodeUnauthenticated = "UNAUTHENTICATED"
	CodeForbidden       = "FORBIDDEN"
	CodeNotFound        = "NOT_FOUND"
	CodeChatDisabled    = "CHAT_DISABLED"
	CodeBanned          = "BANNED"
	CodeParentNotFound  = "PARENT_NOT_FOUND"
	CodeCannotNest      = "CANNOT_NEST"
	CodeAlreadyBanned   = "ALREADY_BANNED"
	CodeInvalidContent  = "INVALID_CONTENT"
	CodeUnavailable     = "UNAVAILABLE"
	CodeBadRequest      = "BAD_REQUEST"
	CodeInternal        = "INTERNAL"
)

// Error is a classified failure with a client-safe message.
type Error struct {
	Kind    Kind
	Code    string
	Message string
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

// Is matches sentinels by value so copies carrying a cause still compare equal.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code && e.Message == t.Message
}

// Wrap attaches a cause to a sentinel without changing its identity.
func (e *Error) Wrap(err error) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: e.Message, Err: err}
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

var (
	ErrMissingToken = newError(KindAuthentication, CodeUnauthenticated, "missing token")
	ErrInvalidToken = newError(KindAuthentication, CodeUnauthenticated, "invalid token")

	ErrForbidden = newError(KindAuthorization, CodeForbidden, "insufficient role")

	ErrLivestreamNotFound = newError(KindNotFound, CodeNotFound, "livestream not found")
	ErrCommentNotFound    = newError(KindNotFound, CodeNotFound, "comment not found")
	ErrParentNotFound     = newError(KindNotFound, CodeParentNotFound, "parent comment not found")

	ErrChatDisabled   = newError(KindPolicy, CodeChatDisabled, "chat is disabled for this livestream")
	ErrBanned         = newError(KindPolicy, CodeBanned, "you are banned from this livestream")
	ErrCannotNest     = newError(KindPolicy, CodeCannotNest, "cannot reply to a reply")
	ErrAlreadyBanned  = newError(KindPolicy, CodeAlreadyBanned, "user is already banned")
	ErrEmptyContent   = newError(KindInvalid, CodeInvalidContent, "content must not be empty")
	ErrContentTooLong = newError(KindInvalid, CodeInvalidContent, "content is too long")
	ErrBadRequest     = newError(KindInvalid, CodeBadRequest, "bad request")
)

// Transient wraps a store failure.
func Transient(message string, err error) *Error {
	return &Error{Kind: KindTransient, Code: CodeUnavailable, Message: message, Err: err}
}

// BadRequest reports a malformed client frame.
func BadRequest(message string) *Error {
	return &Error{Kind: KindInvalid, Code: CodeBadRequest, Message: message}
}

// As extracts the classified error, falling back to an internal error.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindInternal, Code: CodeInternal, Message: "internal error", Err: err}
}

// KindOf returns the kind of err.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return As(err).Kind
}
