package service

import (
	"errors"
	"fmt"
)

// Shared failures; handlers map them to HTTP status codes or system lines.
var (
	ErrRoomNotFound         = errors.New("room does not exist")
	ErrNoRoomAccess         = errors.New("no access to room")
	ErrNoWriteAccess        = errors.New("no write access to room")
	ErrProtectedRoom        = errors.New("the general room cannot be deleted")
	ErrConfirmationRequired = errors.New("confirmation required")
	ErrUserNotFound         = errors.New("user not found")
	ErrAlreadyAdmin         = errors.New("user is already an admin")
	ErrNotAdmin             = errors.New("admin privileges required")
	ErrNotAuthenticated     = errors.New("not logged in")
	ErrLastCell             = errors.New("cannot delete the last cell")
)

// AuthError is a failed sign-in or registration. Message is shown as is.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string { return e.Message }

// DataError wraps a backend failure. Error returns the backend text verbatim.
type DataError struct {
	Op  string
	Err error
}

func (e *DataError) Error() string { return e.Err.Error() }

func (e *DataError) Unwrap() error { return e.Err }

func dataErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &DataError{Op: op, Err: err}
}

// ValidationError is raised before any backend call is made.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ModerationError rejects a send from a blocked or timed out profile.
type ModerationError struct {
	Blocked bool
	Minutes int
	Reason  string
}

func (e *ModerationError) Error() string {
	if e.Blocked {
		return "account blocked"
	}
	return fmt.Sprintf("timed out, %d minutes remaining", e.Minutes)
}
