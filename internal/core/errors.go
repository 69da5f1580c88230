package core

import (
	"errors"
	"fmt"

	"github.com/cloudfs/cloudsh/internal/provider"
)

var (
	ErrMalformedPath  = errors.New("malformed path")
	ErrNotFound       = errors.New("no such file or directory")
	ErrNotADirectory  = errors.New("not a directory")
	ErrAccessDenied   = errors.New("access denied")
	ErrTimedOut       = errors.New("took too long, it may have failed. No further actions performed")
	ErrRemote         = errors.New("remote error")
	ErrCreateFailed   = errors.New("could not get node for created folder")
	ErrAlreadyExists  = errors.New("already exists")
	ErrNotLoggedIn    = errors.New("not logged in")
	ErrOrphaned       = errors.New("node has no parent")
	ErrAlreadyAwaited = errors.New("request adapter already awaited")
)

// OpError describes a failed shell operation.
// Err is one of the sentinel errors above; Code and Message carry the
// store's own result when the failure came from a remote request.
type OpError struct {
	Op      string
	Path    string
	Code    provider.ErrorCode
	Message string
	Err     error
}

func (e *OpError) Error() string {
	head := e.Op
	if e.Path != "" {
		head += " " + e.Path
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", head, e.Message)
	}
	return fmt.Sprintf("%s: %v", head, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func opErr(op, path string, err error) *OpError {
	return &OpError{Op: op, Path: path, Err: err}
}

// remoteErr maps a finished request's error to an OpError, or nil on success.
// The store's message is always kept.
func remoteErr(op, path string, e provider.Error) error {
	if e.IsOK() {
		return nil
	}
	sentinel := ErrRemote
	if e.Code == provider.EACCESS {
		sentinel = ErrAccessDenied
	}
	msg := e.Message
	if msg == "" {
		msg = provider.ErrorString(e.Code)
	}
	return &OpError{Op: op, Path: path, Code: e.Code, Message: msg, Err: sentinel}
}

// CodeOf returns the remote error code carried by err, or provider.OK.
func CodeOf(err error) provider.ErrorCode {
	var oe *OpError
	if errors.As(err, &oe) {
		return oe.Code
	}
	return provider.OK
}

// IsNotice reports errors that are shown to the user but do not fail a command.
func IsNotice(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}
