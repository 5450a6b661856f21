// Package errors defines the SFS error taxonomy: a small set of sentinel
// error values plus a wrapper type that lets callers attach context without
// losing the ability to compare against a sentinel with errors.Is.
package errors

import (
	"fmt"
)

// SFSError is a sentinel error. Every operation in this module that can
// fail returns one of these, optionally wrapped with extra context via
// WithMessage or WrapError.
type SFSError string

const ErrNoSpace = SFSError("no space left on device")
const ErrNotFound = SFSError("no such file or directory")
const ErrInvalid = SFSError("invalid argument")
const ErrIOFailed = SFSError("input/output error")
const ErrTooManyLinks = SFSError("too many links")
const ErrNotEmpty = SFSError("directory not empty")
const ErrReadOnly = SFSError("read-only file system")
const ErrExists = SFSError("file exists")
const ErrIsADirectory = SFSError("is a directory")
const ErrNotADirectory = SFSError("not a directory")
const ErrNameTooLong = SFSError("file name too long")
const ErrFileTooLarge = SFSError("file too large")
const ErrBadMagic = SFSError("bad magic number")
const ErrBadGeometry = SFSError("inconsistent volume geometry")
const ErrCorrupted = SFSError("structure needs cleaning")
const ErrNotSupported = SFSError("operation not supported")
const ErrBusy = SFSError("device or resource busy")

func (e SFSError) Error() string {
	return string(e)
}

func (e SFSError) WithMessage(message string) DriverError {
	return customDriverError{
		message:       fmt.Sprintf("%s: %s", string(e), message),
		originalError: e,
	}
}

func (e SFSError) WrapError(err error) DriverError {
	return customDriverError{
		message:       fmt.Sprintf("%s: %s", string(e), err.Error()),
		originalError: err,
	}
}
