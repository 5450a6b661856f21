package errors

// DriverError is the interface every error returned by this module's
// storage/inode/dirstore/volume packages implements. It behaves like a
// normal Go error but lets callers chain on extra context without losing
// the original sentinel (see Unwrap, for use with errors.Is/errors.As).
type DriverError interface {
	error
	WithMessage(message string) DriverError
	WrapError(err error) DriverError
}

type customDriverError struct {
	message       string
	originalError error
}

func (e customDriverError) Error() string {
	return e.message
}

func (e customDriverError) WithMessage(message string) DriverError {
	return customDriverError{
		message:       message + ": " + e.message,
		originalError: e,
	}
}

func (e customDriverError) WrapError(err error) DriverError {
	return customDriverError{
		message:       e.Error() + ": " + err.Error(),
		originalError: err,
	}
}

func (e customDriverError) Unwrap() error {
	return e.originalError
}
