package sfs

import (
	"fmt"
	"syscall"
)

// Error is a POSIX-errno-shaped wrapper around the package's sentinel
// errors, for callers (e.g. a FUSE binding) that need a plain
// syscall.Errno to hand back to the kernel rather than a comparable
// sentinel.
type Error struct {
	Errno   syscall.Errno
	message string
}

func (e *Error) Error() string {
	if e.message != "" {
		return e.message
	}
	return e.Errno.Error()
}

// NewError creates an Error carrying just the errno's default message.
func NewError(errno syscall.Errno) *Error {
	return &Error{Errno: errno, message: errno.Error()}
}

// NewErrorWithMessage creates an Error with a custom message appended to
// the errno's description.
func NewErrorWithMessage(errno syscall.Errno, message string) *Error {
	return &Error{Errno: errno, message: fmt.Sprintf("%s: %s", errno.Error(), message)}
}
