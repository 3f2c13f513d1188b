package chat

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindInvalidArgument Kind = iota + 1
	KindNotFound
	KindPermissionDenied
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid argument"
	case KindNotFound:
		return "not found"
	case KindPermissionDenied:
		return "permission denied"
	default:
		return "internal"
	}
}

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewInvalidArgument(message string) *Error {
	return &Error{Kind: KindInvalidArgument, Message: message}
}

func NewNotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

func NewPermissionDenied(message string) *Error {
	return &Error{Kind: KindPermissionDenied, Message: message}
}

func NewInternal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// KindOf classifies any error; errors outside the taxonomy are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return KindInternal
}
