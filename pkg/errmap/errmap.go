package errmap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Code classifies high-level error categories for user-facing messages.
type Code string

const (
	CodeLocalStore         Code = "local_store"
	CodeNotFound           Code = "not_found"
	CodeRemoteSync         Code = "remote_sync"
	CodeChangeTokenExpired Code = "change_token_expired"
	CodeCanceled           Code = "canceled"
	CodeTimeout            Code = "timeout"
	CodeSyncDisabled       Code = "sync_disabled"
	CodeShareInProgress    Code = "share_in_progress"
	CodeInvalidInput       Code = "invalid_input"
	CodeUnexpected         Code = "unexpected"
)

// Error carries a code and context while preserving the original cause via
// Unwrap. Package-level *Error values double as sentinels: errors.Is matches
// them by identity.
type Error struct {
	Code      Code
	Message   string
	Op        string
	Retryable bool
	cause     error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Message
	if msg == "" {
		msg = humanize(e.Code, e.cause)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.cause }

func humanize(code Code, cause error) string {
	switch code {
	case CodeLocalStore:
		if cause != nil {
			return fmt.Sprintf("local store error: %s", cause.Error())
		}
		return "local store error"
	case CodeNotFound:
		return "record not found"
	case CodeRemoteSync:
		if cause != nil {
			return fmt.Sprintf("synchronization failed: %s", cause.Error())
		}
		return "synchronization failed"
	case CodeChangeTokenExpired:
		return "change token expired"
	case CodeCanceled:
		return "operation was canceled"
	case CodeTimeout:
		return "operation timed out"
	case CodeSyncDisabled:
		return "sync is disabled"
	case CodeShareInProgress:
		return "a share is already in progress"
	case CodeInvalidInput:
		if cause != nil {
			return fmt.Sprintf("invalid input: %s", cause.Error())
		}
		return "invalid input"
	default:
		if cause != nil {
			return cause.Error()
		}
		return "unexpected error"
	}
}

// New constructs an Error with the supplied code, message, and underlying cause.
func New(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// Wrap annotates cause with a code and the failing operation.
func Wrap(code Code, op string, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Code: code, Op: op, cause: cause}
}

// Map converts an arbitrary error into an *Error with a best-effort code.
// It keeps the original error as the cause.
func Map(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err // already mapped
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Code: CodeCanceled, Retryable: true, cause: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Code: CodeTimeout, Retryable: true, cause: err}
	}
	if errors.Is(err, sql.ErrNoRows) {
		return &Error{Code: CodeNotFound, cause: err}
	}

	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "sqlite"), strings.Contains(lower, "database"):
		return &Error{Code: CodeLocalStore, cause: err}
	case strings.Contains(lower, "timeout"):
		return &Error{Code: CodeTimeout, cause: err}
	}
	return &Error{Code: CodeUnexpected, cause: err}
}

// CodeOf returns the code of the first *Error in err's chain, or the code Map
// would assign.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(Map(err), &e) {
		return e.Code
	}
	return CodeUnexpected
}

// Is reports whether err carries code anywhere in its chain.
func Is(err error, code Code) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.cause
	}
	return false
}

// Friendly returns a short, action-oriented message for the terminal.
func Friendly(err error) string {
	if err == nil {
		return ""
	}
	var me *Error
	if !errors.As(Map(err), &me) {
		return err.Error()
	}
	switch me.Code {
	case CodeNotFound:
		return "Nothing matched that identifier."
	case CodeSyncDisabled:
		return "Sync is turned off. Enable it with `recordsync settings sync on`."
	case CodeShareInProgress:
		return "That company is already being shared. Finish or abandon the open share first."
	case CodeChangeTokenExpired:
		return "The sync state was out of date and could not be recovered. Try syncing again."
	case CodeRemoteSync:
		return fmt.Sprintf("Sync failed: %s.", me.Error())
	case CodeLocalStore:
		return fmt.Sprintf("Could not access local data: %s.", me.Error())
	case CodeTimeout:
		return "The operation timed out."
	case CodeCanceled:
		return "The operation was canceled."
	default:
		if s := me.Error(); s != "" {
			return s
		}
		return "Unexpected error."
	}
}
