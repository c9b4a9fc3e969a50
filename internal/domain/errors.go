package domain

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindConnection      ErrorKind = "connection"
	KindAuth            ErrorKind = "auth"
	KindValidation      ErrorKind = "validation"
	KindServerRejection ErrorKind = "server_rejection"
	KindStale           ErrorKind = "stale"
)

var (
	ErrConnection      = errors.New("connection error")
	ErrAuth            = errors.New("authentication rejected")
	ErrValidation      = errors.New("validation failed")
	ErrServerRejection = errors.New("rejected by server")
	ErrStale           = errors.New("stale event or snapshot")

	ErrSessionClosed = errors.New("session closed")
)

func (k ErrorKind) sentinel() error {
	switch k {
	case KindConnection:
		return ErrConnection
	case KindAuth:
		return ErrAuth
	case KindValidation:
		return ErrValidation
	case KindServerRejection:
		return ErrServerRejection
	case KindStale:
		return ErrStale
	default:
		return nil
	}
}

// SyncError carries one of the error kinds the sync engine surfaces.
// errors.Is matches it against the kind's sentinel as well as its cause.
type SyncError struct {
	Kind       ErrorKind
	Op         string
	Message    string
	StatusCode int
	Retryable  bool
	Cause      error
}

func (e *SyncError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *SyncError) Unwrap() error {
	return e.Cause
}

func (e *SyncError) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

func NewConnectionError(op string, cause error) *SyncError {
	return &SyncError{Kind: KindConnection, Op: op, Message: "connection failed", Retryable: true, Cause: cause}
}

func NewAuthError(op, message string, statusCode int) *SyncError {
	return &SyncError{Kind: KindAuth, Op: op, Message: message, StatusCode: statusCode}
}

func NewValidationError(op, message string) *SyncError {
	return &SyncError{Kind: KindValidation, Op: op, Message: message}
}

func NewServerRejection(op, message string, statusCode int) *SyncError {
	return &SyncError{Kind: KindServerRejection, Op: op, Message: message, StatusCode: statusCode}
}

func NewStaleError(op, message string) *SyncError {
	return &SyncError{Kind: KindStale, Op: op, Message: message}
}

// UserMessage is the text surfaced next to the bid form.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var se *SyncError
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	return err.Error()
}
