package errors

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeNetwork             Code = "network"
	CodeTokenExpired        Code = "token_expired"
	CodeRefreshFailed       Code = "refresh_failed"
	CodeOffline             Code = "offline"
	CodeProviderUnavailable Code = "provider_unavailable"
	CodeStorage             Code = "storage"
	CodeConfiguration       Code = "configuration"
	CodeInvalidArgument     Code = "invalid_argument"
	CodeUnknown             Code = "unknown"
)

type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	err     error
}

func New(code Code, opts ...Option) *Error {
	e := &Error{
		Code:    code,
		Message: Info(code).Message,
	}

	for _, opt := range opts {
		opt.apply(e)
	}

	return e
}

func (e *Error) Error() string {
	s := fmt.Sprintf("code: %s, message: %s", e.Code, e.Message)
	if e.err != nil {
		s += fmt.Sprintf(", err: %s", e.err)
	}

	return s
}

func (e *Error) Unwrap() error {
	return e.err
}

// Retryable reports whether retrying the failed operation may succeed.
func (e *Error) Retryable() bool {
	return Info(e.Code).Retryable
}

// Hint returns the recovery hint shown next to the message.
func (e *Error) Hint() string {
	return Info(e.Code).Hint
}

// Convert returns err as an *Error, classifying foreign errors by Classify.
func Convert(err error) *Error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return e
	}

	return New(Classify(err), WithCause(err))
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

type Option interface {
	apply(*Error)
}

type optionFunc func(*Error)

func (f optionFunc) apply(e *Error) {
	f(e)
}

func WithCause(err error) Option {
	return optionFunc(func(e *Error) {
		e.err = err
	})
}

func WithMessagef(format string, args ...any) Option {
	return optionFunc(func(e *Error) {
		e.Message = fmt.Sprintf(format, args...)
	})
}
