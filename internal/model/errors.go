package model

import (
	"errors"
	"fmt"
)

// ErrorKind классифицирует доменные ошибки независимо от транспорта.
type ErrorKind string

const (
	KindValidation         ErrorKind = "VALIDATION"
	KindForbidden          ErrorKind = "FORBIDDEN"
	KindNotFound           ErrorKind = "NOT_FOUND"
	KindInvalidTransition  ErrorKind = "INVALID_TRANSITION"
	KindStorageUnavailable ErrorKind = "STORAGE_UNAVAILABLE"
	KindConflict           ErrorKind = "CONFLICT"
	KindUnauthorized       ErrorKind = "UNAUTHORIZED"
)

// Error описывает доменную ошибку с классификацией.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewError создаёт доменную ошибку.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Errorf создаёт доменную ошибку с форматированным сообщением.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError оборачивает произвольную ошибку доменной классификацией.
func WrapError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf возвращает классификацию ошибки или пустую строку для недоменных ошибок.
func KindOf(err error) ErrorKind {
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr.Kind
	}
	return ""
}

// IsKind проверяет классификацию ошибки.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

var (
	ErrDossierNotFound       = NewError(KindNotFound, "dossier not found")
	ErrResourceOrderNotFound = NewError(KindNotFound, "resource order not found")
	ErrMessageNotFound       = NewError(KindNotFound, "message not found")
	ErrPersonnelNotFound     = NewError(KindNotFound, "personnel not found")
	ErrUserNotFound          = NewError(KindNotFound, "user not found")
	ErrUserExists            = NewError(KindConflict, "user already exists")
	ErrInvalidCredentials    = NewError(KindUnauthorized, "invalid credentials")
)
